package http

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// conn is the slice of a transport connection the handler needs. Both
// methods are safe to call from any goroutine; the done callback of
// AsyncWrite runs on the connection's event loop.
type conn interface {
	AsyncWrite(b []byte, done func(err error)) error
	Close() error
}

type connState uint8

const (
	connIdle connState = iota
	connHead
	connBody
	connEnd
)

// connHandler drives one connection. Every method except dispatch and emit
// runs on the connection's event loop, so the fields below need no locking.
// While a request is busy the dispatch goroutine reads req, callback and
// routeErr; the loop leaves them alone until the response has been written.
type connHandler struct {
	srv  *Server
	conn conn

	state   connState
	parser  parser
	pending []byte

	req      Request
	callback Callback
	routeErr error

	// busy is set from END until the response write completes. tracked
	// mirrors whether the request holds a slot in the server's drain group.
	// keepOpen is the keep-alive decision written into the response head.
	busy     bool
	tracked  bool
	closing  bool
	keepOpen bool

	emitted atomic.Bool
	out     []byte
}

func newConnHandler() *connHandler {
	return &connHandler{}
}

func (h *connHandler) attach(srv *Server, c conn) {
	h.srv = srv
	h.conn = c
	h.parser.maxHeaderBytes = srv.MaxHeaderBytes
	h.parser.reset()
	h.state = connIdle
}

// reset clears everything so the handler can serve another connection.
func (h *connHandler) reset() {
	h.srv = nil
	h.conn = nil
	h.pending = h.pending[:0]
	h.parser.reset()
	h.resetRequest()
	h.busy = false
	h.tracked = false
	h.closing = false
}

func (h *connHandler) resetRequest() {
	h.state = connIdle
	h.req.reset()
	h.callback = nil
	h.routeErr = nil
	h.keepOpen = false
	h.emitted.Store(false)
}

// idle reports whether no request is underway on this connection.
func (h *connHandler) idle() bool {
	return h.state == connIdle && !h.busy
}

// feed takes newly received bytes. A non-nil error means the connection
// must be closed without writing anything further.
func (h *connHandler) feed(data []byte) error {
	if h.closing {
		return nil
	}
	h.pending = append(h.pending, data...)
	if h.busy && len(h.pending) > h.srv.MaxHeaderBytes+h.srv.MaxBodyBytes {
		return ErrBodyTooLarge
	}
	return h.process()
}

// process parses buffered bytes until it runs out of input or a request
// becomes busy. Bytes of a pipelined follow-up request stay buffered.
func (h *connHandler) process() error {
	off := 0
	defer func() {
		h.pending = h.pending[:copy(h.pending, h.pending[off:])]
	}()

	for !h.busy {
		f, n, err := h.parser.parse(h.pending[off:])
		if err != nil {
			return err
		}
		off += n

		switch f.kind {
		case frameNone:
			if n == 0 {
				return nil
			}
		case frameHead:
			if err := h.onHead(); err != nil {
				return err
			}
		case frameBody:
			if err := h.onBody(f.data); err != nil {
				return err
			}
		case frameEnd:
			h.onEnd()
		}
	}
	return nil
}

func (h *connHandler) onHead() error {
	head := &h.parser.head
	if head.contentLength > int64(h.srv.MaxBodyBytes) {
		return ErrBodyTooLarge
	}

	req := &h.req
	req.Method = ParseMethod(head.method)
	req.Proto = head.proto
	req.headers = append(req.headers[:0], head.headers...)
	if err := req.setTarget(head.target); err != nil {
		return ErrMalformed
	}
	connection, _ := req.Header("Connection")
	req.keepAlive = keepAliveFor(req.Proto, connection)
	if v, ok := req.Header("Expect"); ok && equalFold(v, "100-continue") {
		req.expect = true
	}

	if !h.srv.inflight.add() {
		return ErrServerDraining
	}
	h.tracked = true
	h.state = connHead

	h.callback, req.captures, h.routeErr = h.srv.Router.match(req.Method, req.Path, req.captures[:0])

	if req.expect && req.Proto == "HTTP/1.1" && head.contentLength != 0 {
		if err := h.conn.AsyncWrite(continueResponse, nil); err != nil {
			return err
		}
	}
	return nil
}

func (h *connHandler) onBody(data []byte) error {
	if len(h.req.Body)+len(data) > h.srv.MaxBodyBytes {
		return ErrBodyTooLarge
	}
	h.state = connBody
	h.req.Body = append(h.req.Body, data...)
	return nil
}

// onEnd hands the complete request to exactly one goroutine.
func (h *connHandler) onEnd() {
	h.state = connEnd
	h.busy = true
	go h.dispatch()
}

// dispatch runs off the loop. It computes the response, encodes it and
// posts the bytes back to the connection.
func (h *connHandler) dispatch() {
	srv := h.srv
	req := &h.req
	req.ID = uuid.NewString()

	ctx := WithRequestID(srv.baseCtx, req.ID)
	ctx, span := tracer.Start(ctx, req.Method.String()+" request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method.String()),
			attribute.String("url.path", req.Path),
			attribute.String("http.request.id", req.ID),
		),
	)
	start := time.Now()

	res := h.respond(ctx)
	out, status, err := h.encode(res)

	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= StatusInternalServerError {
		span.SetStatus(codes.Error, StatusText(status))
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("http.request.method", req.Method.String()),
		attribute.Int("http.response.status_code", status),
	)
	requestCount.Add(ctx, 1, attrs)
	requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		srv.log().ErrorContext(ctx, "abandoning response", "request_id", req.ID, "error", err)
		h.conn.Close()
		return
	}
	h.emit(out)
}

// respond produces the Response for the current request. Routing and body
// decoding failures never reach the callback.
func (h *connHandler) respond(ctx context.Context) Response {
	if h.routeErr != nil {
		return h.srv.errorResponse(ctx, h.routeErr)
	}

	invoke, err := h.callback.bind(&h.req, h.srv.Codec)
	if err != nil {
		msg := "Invalid request body"
		if h.srv.Debug {
			msg += ": " + err.Error()
		}
		return BadRequest(msg).Response()
	}

	res, err := run(ctx, invoke)
	if err != nil {
		return h.srv.errorResponse(ctx, err)
	}
	return res
}

// run calls the bound callback, turning a panic into an error.
func run(ctx context.Context, invoke Invocation) (res Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return invoke(ctx)
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// internalError replaces a response whose payload cannot be encoded.
var internalError = &ErrorResponse{Status: StatusInternalServerError, Code: "internal_error", Message: "Internal server error"}

// encode renders res into wire bytes. If the payload cannot be encoded it
// falls back once to the generic internal error; if the codec fails on that
// too, the caller closes the connection without a response.
func (h *connHandler) encode(res Response) ([]byte, int, error) {
	req := &h.req
	head := responseHead{
		proto:     req.Proto,
		keepAlive: req.keepAlive && !h.srv.inflight.isDraining(),
		omitBody:  req.Method == MethodHead,
	}

	body, err := res.body(h.srv.Codec)
	if err != nil {
		h.srv.log().Error("response encoding failed", "request_id", req.ID, "error", err)
		res = internalError.Response()
		if body, err = res.body(h.srv.Codec); err != nil {
			return nil, StatusInternalServerError, err
		}
	}

	// written runs later on the loop and must agree with the header sent.
	h.keepOpen = head.keepAlive
	h.out = writeResponse(h.out[:0], head, res.status(), res.MIME, body)
	return h.out, res.status(), nil
}

// emit posts the response to the loop. A second emit for the same request is
// dropped.
func (h *connHandler) emit(out []byte) {
	if !h.emitted.CompareAndSwap(false, true) {
		h.srv.log().Warn("duplicate response suppressed", "request_id", h.req.ID)
		return
	}
	if err := h.conn.AsyncWrite(out, h.written); err != nil {
		h.srv.log().Warn("response write not queued", "request_id", h.req.ID, "error", err)
		h.conn.Close()
	}
}

// written runs on the loop once the response has been flushed, or has
// failed to flush. If the connection closed in the meantime closed has
// already released the request and this is a no-op.
func (h *connHandler) written(err error) {
	if !h.busy {
		return
	}
	h.busy = false
	h.release()

	if err != nil {
		h.srv.log().Debug("response write failed", "error", err)
		h.shut()
		return
	}
	if !h.keepOpen {
		h.shut()
		return
	}

	h.resetRequest()
	if err := h.process(); err != nil {
		h.srv.log().Debug("closing connection", "error", err)
		h.shut()
	}
}

// closed runs on the loop when the transport connection is gone. It reports
// whether the handler may be reused; a handler whose dispatch goroutine is
// still running must not be.
func (h *connHandler) closed() bool {
	h.closing = true
	if h.busy {
		h.busy = false
		h.release()
		return false
	}
	h.release()
	return true
}

func (h *connHandler) release() {
	if h.tracked {
		h.tracked = false
		h.srv.inflight.done()
	}
}

func (h *connHandler) shut() {
	h.closing = true
	h.conn.Close()
}

type requestIDKey struct{}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id of the request being served, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// errorResponse maps an error from routing or a callback onto the wire.
// ErrorResponse values pass through; anything else becomes a generic 500.
func (s *Server) errorResponse(ctx context.Context, err error) Response {
	var er *ErrorResponse
	if errors.As(err, &er) {
		return er.Response()
	}

	var pe *panicError
	if errors.As(err, &pe) {
		s.log().ErrorContext(ctx, "callback panicked", "request_id", RequestID(ctx), "panic", pe.value, "stack", string(pe.stack))
	} else {
		s.log().ErrorContext(ctx, "callback failed", "request_id", RequestID(ctx), "error", err)
	}

	msg := "Internal server error"
	if s.Debug {
		msg = err.Error()
	}
	er = &ErrorResponse{Status: StatusInternalServerError, Code: "internal_error", Message: msg}
	return er.Response()
}
