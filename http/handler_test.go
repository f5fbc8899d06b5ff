package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	nethttp "net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopConn stands in for a gnet connection: all handler calls and write
// completions run serially on one goroutine.
type loopConn struct {
	h *connHandler

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	stop   chan struct{}
	out    strings.Builder
	closes int

	// closed is only touched on the loop.
	closed   bool
	closedCh chan struct{}
	reused   atomic.Bool
}

func newLoopConn(t *testing.T, srv *Server) *loopConn {
	t.Helper()
	c := &loopConn{
		h:        newConnHandler(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		closedCh: make(chan struct{}),
	}
	c.h.attach(srv, c)
	go c.run()
	t.Cleanup(func() { close(c.stop) })
	return c
}

func (c *loopConn) post(f func()) {
	c.mu.Lock()
	c.queue = append(c.queue, f)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *loopConn) run() {
	for {
		select {
		case <-c.stop:
			return
		case <-c.wake:
		}
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			f := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			f()
		}
	}
}

func (c *loopConn) AsyncWrite(b []byte, done func(err error)) error {
	data := string(b)
	c.post(func() {
		if c.closed {
			if done != nil {
				done(net.ErrClosed)
			}
			return
		}
		c.mu.Lock()
		c.out.WriteString(data)
		c.mu.Unlock()
		if done != nil {
			done(nil)
		}
	})
	return nil
}

func (c *loopConn) Close() error {
	c.post(c.closeNow)
	return nil
}

func (c *loopConn) closeNow() {
	if c.closed {
		return
	}
	c.closed = true
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.reused.Store(c.h.closed())
	close(c.closedCh)
}

func (c *loopConn) send(data string) {
	c.post(func() {
		if c.closed {
			return
		}
		if err := c.h.feed([]byte(data)); err != nil {
			c.closeNow()
		}
	})
}

func (c *loopConn) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func (c *loopConn) isClosed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

// onLoop runs f on the loop and waits for it.
func (c *loopConn) onLoop(f func()) {
	done := make(chan struct{})
	c.post(func() {
		f()
		close(done)
	})
	<-done
}

func newTestServer(t *testing.T, router *Router, configure ...func(*Server)) *Server {
	t.Helper()
	srv := NewServer("test", router, nil)
	srv.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, f := range configure {
		f(srv)
	}
	srv.prepare(context.Background())
	return srv
}

type testResponse struct {
	*nethttp.Response
	body string
}

// readResponses parses n responses from raw; methods lists the request
// methods in order so HEAD responses are read without a body.
func readResponses(t *testing.T, raw string, methods ...string) []testResponse {
	t.Helper()
	br := bufio.NewReader(strings.NewReader(raw))
	out := make([]testResponse, 0, len(methods))
	for _, method := range methods {
		res, err := nethttp.ReadResponse(br, &nethttp.Request{Method: method})
		require.NoError(t, err)
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		res.Body.Close()
		out = append(out, testResponse{Response: res, body: string(body)})
	}
	rest, _ := io.ReadAll(br)
	require.Empty(t, string(rest), "unexpected trailing bytes")
	return out
}

func waitForResponses(t *testing.T, c *loopConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Count(c.output(), "HTTP/1.") >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func versionRouter() *Router {
	router := NewRouter()
	router.GET("/version", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		return JSON(map[string]string{"version": "1.0"}), nil
	}))
	return router
}

func TestHandlerVersion(t *testing.T) {
	srv := newTestServer(t, versionRouter())
	c := newLoopConn(t, srv)

	c.send("GET /version HTTP/1.1\r\nHost: localhost\r\n\r\n")
	waitForResponses(t, c, 1)

	res := readResponses(t, c.output(), "GET")[0]
	assert.Equal(t, StatusOK, res.StatusCode)
	assert.Equal(t, `{"version":"1.0"}`, res.body)
	assert.Equal(t, int64(len(res.body)), res.ContentLength)
	assert.Equal(t, MIMEJSON, res.Header.Get("Content-Type"))
	assert.False(t, res.Close)
	assert.False(t, c.isClosed())
}

func TestHandlerKeepAliveOrdering(t *testing.T) {
	router := NewRouter()
	router.GET(`^/echo/([0-9]+)$`, NoBody(func(ctx context.Context, req *Request) (Response, error) {
		// Later requests finish faster; responses must still follow request order.
		time.Sleep(time.Duration(5-req.MatchInt64(1)) * 10 * time.Millisecond)
		return Text(req.Match(1)), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	c.send("GET /echo/1 HTTP/1.1\r\n\r\nGET /echo/2 HTTP/1.1\r\n\r\n")
	c.send("GET /echo/3 HTTP/1.1\r\n\r\n")
	waitForResponses(t, c, 3)

	responses := readResponses(t, c.output(), "GET", "GET", "GET")
	for i, res := range responses {
		assert.Equal(t, string(rune('1'+i)), res.body)
	}
	assert.False(t, c.isClosed())
}

func TestHandlerConnectionClose(t *testing.T) {
	tests := []struct {
		name    string
		request string
		close   bool
	}{
		{"http/1.1 default", "GET /version HTTP/1.1\r\n\r\n", false},
		{"http/1.1 close", "GET /version HTTP/1.1\r\nConnection: close\r\n\r\n", true},
		{"http/1.0 default", "GET /version HTTP/1.0\r\n\r\n", true},
		{"http/1.0 keep-alive", "GET /version HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, versionRouter())
			c := newLoopConn(t, srv)

			c.send(tt.request)
			waitForResponses(t, c, 1)
			res := readResponses(t, c.output(), "GET")[0]

			assert.Equal(t, tt.close, res.Close)
			if tt.close {
				require.Eventually(t, c.isClosed, time.Second, 5*time.Millisecond)
				assert.True(t, c.reused.Load())
			} else {
				time.Sleep(20 * time.Millisecond)
				assert.False(t, c.isClosed())
			}
			assert.Equal(t, 0, srv.inflight.pending())
		})
	}
}

func TestHandlerResponseMirrorsProto(t *testing.T) {
	srv := newTestServer(t, versionRouter())
	c := newLoopConn(t, srv)

	c.send("GET /version HTTP/1.0\r\n\r\n")
	waitForResponses(t, c, 1)
	assert.True(t, strings.HasPrefix(c.output(), "HTTP/1.0 200 OK\r\n"))
}

func TestHandlerHead(t *testing.T) {
	router := NewRouter()
	router.HEAD("/version", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		return JSON(map[string]string{"version": "1.0"}), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	c.send("HEAD /version HTTP/1.1\r\n\r\n")
	waitForResponses(t, c, 1)

	res := readResponses(t, c.output(), "HEAD")[0]
	assert.Equal(t, int64(len(`{"version":"1.0"}`)), res.ContentLength)
	assert.Empty(t, res.body)
}

func TestHandlerRoutingErrors(t *testing.T) {
	var calls atomic.Int32
	router := NewRouter()
	router.GET("/version", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		calls.Add(1)
		return Empty(StatusNoContent), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	c.send("POST /version HTTP/1.1\r\nContent-Length: 2\r\n\r\n{}")
	c.send("GET /missing HTTP/1.1\r\n\r\n")
	c.send("BREW /version HTTP/1.1\r\n\r\n")
	waitForResponses(t, c, 3)

	responses := readResponses(t, c.output(), "POST", "GET", "BREW")
	assert.Equal(t, StatusMethodNotAllowed, responses[0].StatusCode)
	assert.JSONEq(t, `{"code":"invalid_method"}`, responses[0].body)
	assert.Equal(t, StatusNotFound, responses[1].StatusCode)
	assert.JSONEq(t, `{"code":"path_not_found"}`, responses[1].body)
	assert.Equal(t, StatusMethodNotAllowed, responses[2].StatusCode)
	assert.Equal(t, int32(0), calls.Load())
}

func TestHandlerBodyTooLarge(t *testing.T) {
	var calls atomic.Int32
	router := NewRouter()
	router.POST("/items", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		calls.Add(1)
		return Empty(StatusCreated), nil
	}))

	tests := []struct {
		name    string
		request string
	}{
		{"declared length", "POST /items HTTP/1.1\r\nContent-Length: 11\r\n\r\n"},
		{"chunked", "POST /items HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n6\r\nabcdef\r\n6\r\nghijkl\r\n0\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, router, func(s *Server) { s.MaxBodyBytes = 10 })
			c := newLoopConn(t, srv)

			c.send(tt.request)
			require.Eventually(t, c.isClosed, time.Second, 5*time.Millisecond)
			assert.Empty(t, c.output())
			assert.Equal(t, 0, srv.inflight.pending())
		})
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestHandlerBodyAtLimit(t *testing.T) {
	router := NewRouter()
	router.POST("/items", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		return Text(string(req.Body)), nil
	}))
	srv := newTestServer(t, router, func(s *Server) { s.MaxBodyBytes = 10 })
	c := newLoopConn(t, srv)

	c.send("POST /items HTTP/1.1\r\nContent-Length: 10\r\n\r\n01234")
	c.send("56789")
	waitForResponses(t, c, 1)
	assert.Equal(t, "0123456789", readResponses(t, c.output(), "POST")[0].body)
}

func TestHandlerMalformedHead(t *testing.T) {
	srv := newTestServer(t, versionRouter())
	c := newLoopConn(t, srv)

	c.send("GET /version HTTP/9.9\r\n\r\n")
	require.Eventually(t, c.isClosed, time.Second, 5*time.Millisecond)
	assert.Empty(t, c.output())
}

type itemBody struct {
	Name string `json:"name" validate:"required"`
}

func typedRouter(calls *atomic.Int32) *Router {
	router := NewRouter()
	router.POST("/items", JSONBody(func(ctx context.Context, req *Request, body itemBody) (Response, error) {
		calls.Add(1)
		return JSON(body).WithStatus(StatusCreated), nil
	}))
	return router
}

func TestHandlerTypedBody(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		calls  int32
	}{
		{"malformed", `{"name":`, StatusBadRequest, 0},
		{"missing required field", `{"other":"x"}`, StatusBadRequest, 0},
		{"empty", ``, StatusBadRequest, 0},
		{"valid", `{"name":"lamp"}`, StatusCreated, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newTestServer(t, typedRouter(&calls))
			c := newLoopConn(t, srv)

			c.send("POST /items HTTP/1.1\r\nContent-Length: " + itoa(len(tt.body)) + "\r\n\r\n" + tt.body)
			waitForResponses(t, c, 1)

			res := readResponses(t, c.output(), "POST")[0]
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.calls, calls.Load())
			if tt.status == StatusBadRequest {
				assert.JSONEq(t, `{"code":"invalid_request","message":"Invalid request body"}`, res.body)
			} else {
				assert.JSONEq(t, `{"name":"lamp"}`, res.body)
			}
		})
	}
}

func TestHandlerTypedBodyDebugDetail(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, typedRouter(&calls), func(s *Server) { s.Debug = true })
	c := newLoopConn(t, srv)

	c.send("POST /items HTTP/1.1\r\nContent-Length: 2\r\n\r\n{}")
	waitForResponses(t, c, 1)

	res := readResponses(t, c.output(), "POST")[0]
	assert.Equal(t, StatusBadRequest, res.StatusCode)
	assert.Contains(t, res.body, "Invalid request body: ")
	assert.Contains(t, res.body, "name is required")
	assert.True(t, strings.HasSuffix(res.body, "\n"))
}

func TestHandlerCallbackErrors(t *testing.T) {
	router := NewRouter()
	router.GET("/handler-error", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		return Response{}, NotFound("no such item")
	}))
	router.GET("/wrapped", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		return Response{}, errors.Join(errors.New("context"), BadRequest("limit must be positive"))
	}))
	router.GET("/plain-error", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		return Response{}, errors.New("database unreachable at 10.0.0.1")
	}))
	router.GET("/panic", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		panic("boom")
	}))

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/handler-error", StatusNotFound, `{"code":"not_found","message":"no such item"}`},
		{"/wrapped", StatusBadRequest, `{"code":"invalid_request","message":"limit must be positive"}`},
		{"/plain-error", StatusInternalServerError, `{"code":"internal_error","message":"Internal server error"}`},
		{"/panic", StatusInternalServerError, `{"code":"internal_error","message":"Internal server error"}`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			srv := newTestServer(t, router)
			c := newLoopConn(t, srv)

			c.send("GET " + tt.path + " HTTP/1.1\r\n\r\n")
			waitForResponses(t, c, 1)

			res := readResponses(t, c.output(), "GET")[0]
			assert.Equal(t, tt.status, res.StatusCode)
			assert.JSONEq(t, tt.body, res.body)
			assert.False(t, c.isClosed())
		})
	}
}

func TestHandlerEncodeFailureFallsBackOnce(t *testing.T) {
	router := NewRouter()
	router.GET("/bad", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		return JSON(math.Inf(1)), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	c.send("GET /bad HTTP/1.1\r\n\r\n")
	waitForResponses(t, c, 1)
	time.Sleep(20 * time.Millisecond)

	res := readResponses(t, c.output(), "GET")[0]
	assert.Equal(t, StatusInternalServerError, res.StatusCode)
	assert.Equal(t, MIMEJSON, res.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"code":"internal_error","message":"Internal server error"}`, res.body)
	assert.Equal(t, 1, strings.Count(c.output(), "HTTP/1.1 "))
	assert.False(t, c.isClosed())
}

type failingCodec struct{}

func (failingCodec) Decode(data []byte, v any) error { return errors.New("decode unavailable") }
func (failingCodec) Encode(v any) ([]byte, error)    { return nil, errors.New("encode unavailable") }

func TestHandlerCodecFailureAbandonsConnection(t *testing.T) {
	srv := newTestServer(t, versionRouter(), func(s *Server) { s.Codec = failingCodec{} })
	c := newLoopConn(t, srv)

	c.send("GET /version HTTP/1.1\r\n\r\n")
	require.Eventually(t, c.isClosed, time.Second, 5*time.Millisecond)
	assert.Empty(t, c.output())
	assert.False(t, c.reused.Load())
}

func TestHandlerExpectContinue(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, typedRouter(&calls))
	c := newLoopConn(t, srv)

	c.send("POST /items HTTP/1.1\r\nContent-Length: 15\r\nExpect: 100-continue\r\n\r\n")
	require.Eventually(t, func() bool {
		return c.output() == "HTTP/1.1 100 Continue\r\n\r\n"
	}, time.Second, 5*time.Millisecond)

	c.send(`{"name":"lamp"}`)
	waitForResponses(t, c, 2)

	final := strings.TrimPrefix(c.output(), "HTTP/1.1 100 Continue\r\n\r\n")
	res := readResponses(t, final, "POST")[0]
	assert.Equal(t, StatusCreated, res.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandlerQueryAndHeaders(t *testing.T) {
	router := NewRouter()
	router.GET("/search", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		ua, _ := req.Header("user-agent")
		return JSON(map[string]any{
			"q":     req.Query("q"),
			"limit": req.QueryInt("limit", 10),
			"ua":    ua,
			"id":    RequestID(ctx) == req.ID && req.ID != "",
		}), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	c.send("GET /search?q=first&q=last&limit=x HTTP/1.1\r\nUser-Agent: one\r\nUser-Agent: two\r\n\r\n")
	waitForResponses(t, c, 1)

	res := readResponses(t, c.output(), "GET")[0]
	assert.JSONEq(t, `{"q":"last","limit":10,"ua":"one","id":true}`, res.body)
}

func TestHandlerSlowCallbackIsNotTimedOut(t *testing.T) {
	// There is no request timeout in the engine; a slow callback still gets
	// its response written. Deployments enforce deadlines themselves.
	router := NewRouter()
	router.GET("/slow", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		time.Sleep(300 * time.Millisecond)
		_, hasDeadline := ctx.Deadline()
		return JSON(map[string]bool{"deadline": hasDeadline}), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	c.send("GET /slow HTTP/1.1\r\n\r\n")
	waitForResponses(t, c, 1)
	assert.JSONEq(t, `{"deadline":false}`, readResponses(t, c.output(), "GET")[0].body)
}

func TestHandlerCloseDuringCallback(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	router := NewRouter()
	router.GET("/wait", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		<-release
		defer close(finished)
		return Text("late"), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	c.send("GET /wait HTTP/1.1\r\n\r\n")
	require.Eventually(t, func() bool { return srv.inflight.pending() == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	require.Eventually(t, c.isClosed, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, srv.inflight.pending())
	assert.False(t, c.reused.Load())

	close(release)
	<-finished
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.output())
}

func TestHandlerEmitIsIdempotent(t *testing.T) {
	srv := newTestServer(t, versionRouter())
	c := newLoopConn(t, srv)

	c.h.emit([]byte("HTTP/1.1 204 No Content\r\nContent-Length: 0\r\n\r\n"))
	c.h.emit([]byte("HTTP/1.1 500 Internal Server Error\r\nContent-Length: 0\r\n\r\n"))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "HTTP/1.1 204 No Content\r\nContent-Length: 0\r\n\r\n", c.output())
}

func TestHandlerOneDispatchPerRequest(t *testing.T) {
	var calls atomic.Int32
	router := NewRouter()
	router.POST("/count", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		calls.Add(1)
		return Empty(StatusNoContent), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	// Body delivered one byte at a time.
	request := "POST /count HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"
	for i := range request {
		c.send(request[i : i+1])
	}
	waitForResponses(t, c, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandlerDraining(t *testing.T) {
	release := make(chan struct{})
	router := NewRouter()
	router.GET("/wait", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		<-release
		return Text("done"), nil
	}))
	srv := newTestServer(t, router)
	busy := newLoopConn(t, srv)
	idle := newLoopConn(t, srv)

	busy.send("GET /wait HTTP/1.1\r\n\r\n")
	require.Eventually(t, func() bool { return srv.inflight.pending() == 1 }, time.Second, 5*time.Millisecond)

	srv.inflight.drain()

	// New requests are refused without a response.
	idle.send("GET /wait HTTP/1.1\r\n\r\n")
	require.Eventually(t, idle.isClosed, time.Second, 5*time.Millisecond)
	assert.Empty(t, idle.output())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.inflight.wait(ctx), context.DeadlineExceeded)

	// The in-flight request completes and its connection closes afterwards.
	close(release)
	waitForResponses(t, busy, 1)
	res := readResponses(t, busy.output(), "GET")[0]
	assert.Equal(t, "done", res.body)
	assert.True(t, res.Close)
	require.Eventually(t, busy.isClosed, time.Second, 5*time.Millisecond)
	assert.NoError(t, srv.inflight.wait(context.Background()))
}

func TestHandlerKeepAliveFollowsSentHeader(t *testing.T) {
	release := make(chan struct{})
	router := NewRouter()
	router.GET("/wait", NoBody(func(ctx context.Context, req *Request) (Response, error) {
		<-release
		return Text("done"), nil
	}))
	srv := newTestServer(t, router)
	c := newLoopConn(t, srv)

	c.send("GET /wait HTTP/1.1\r\n\r\n")
	require.Eventually(t, func() bool { return srv.inflight.pending() == 1 }, time.Second, 5*time.Millisecond)

	// Hold the loop so the encoded response sits queued behind it.
	gate := make(chan struct{})
	started := make(chan struct{})
	c.post(func() {
		close(started)
		<-gate
	})
	<-started

	close(release)
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.queue) > 0
	}, time.Second, 5*time.Millisecond)

	// Draining starts after the head promised keep-alive.
	srv.inflight.drain()
	close(gate)

	waitForResponses(t, c, 1)
	res := readResponses(t, c.output(), "GET")[0]
	assert.Equal(t, "done", res.body)
	assert.False(t, res.Close)
	assert.NoError(t, srv.inflight.wait(context.Background()))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.isClosed())
}

func TestHandlerIdleReportsState(t *testing.T) {
	srv := newTestServer(t, versionRouter())
	c := newLoopConn(t, srv)

	var idle bool
	c.onLoop(func() { idle = c.h.idle() })
	assert.True(t, idle)

	c.send("POST /version HTTP/1.1\r\nContent-Length: 4\r\n\r\nab")
	c.onLoop(func() { idle = c.h.idle() })
	assert.False(t, idle)
}

func itoa(n int) string {
	return string(appendDecimal(nil, n))
}
