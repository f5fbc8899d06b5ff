package http

import "context"

// Codec turns typed request bodies into values and response payloads into
// bytes.
type Codec interface {
	Decode(data []byte, v any) error
	Encode(v any) ([]byte, error)
}

// Invocation is a callback bound to one request, ready to run.
type Invocation func(ctx context.Context) (Response, error)

// Callback is a route's handler descriptor. The two implementations are
// NoBody and JSONBody; binding a request happens before any user code runs, so
// a body that fails to decode never reaches the callback.
type Callback interface {
	bind(req *Request, codec Codec) (Invocation, error)
}

type noBody struct {
	fn func(ctx context.Context, req *Request) (Response, error)
}

// NoBody wraps a callback that only needs the request context.
func NoBody(fn func(ctx context.Context, req *Request) (Response, error)) Callback {
	return noBody{fn: fn}
}

func (cb noBody) bind(req *Request, _ Codec) (Invocation, error) {
	return func(ctx context.Context) (Response, error) {
		return cb.fn(ctx, req)
	}, nil
}

type typedBody[T any] struct {
	fn func(ctx context.Context, req *Request, body T) (Response, error)
}

// JSONBody wraps a callback whose request body is decoded into T first.
func JSONBody[T any](fn func(ctx context.Context, req *Request, body T) (Response, error)) Callback {
	return typedBody[T]{fn: fn}
}

func (cb typedBody[T]) bind(req *Request, codec Codec) (Invocation, error) {
	var body T
	if err := codec.Decode(req.Body, &body); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (Response, error) {
		return cb.fn(ctx, req, body)
	}, nil
}
