// Package httptest runs an http.Server on a temporary unix socket and talks
// to it over raw HTTP/1.1.
package httptest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freekieb7/jet/http"
)

// Globals is a deployment bound to a socket in a private temporary directory.
// It records every teardown call.
type Globals struct {
	Addr http.Address

	// ShutdownErr is returned from Shutdown.
	ShutdownErr error
	// OnShutdown, when set, runs inside Shutdown.
	OnShutdown func()

	shutdowns atomic.Int32
}

func NewGlobals(t testing.TB) *Globals {
	t.Helper()
	// Socket paths are length limited; keep the directory short.
	dir, err := os.MkdirTemp("", "jet")
	if err != nil {
		t.Fatalf("httptest: create socket dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return &Globals{Addr: http.UnixAddress(filepath.Join(dir, "jet.sock"))}
}

func (g *Globals) BindAddress() http.Address {
	return g.Addr
}

func (g *Globals) Shutdown(ctx context.Context) error {
	g.shutdowns.Add(1)
	if g.OnShutdown != nil {
		g.OnShutdown()
	}
	return g.ShutdownErr
}

// Shutdowns reports how often Shutdown was called.
func (g *Globals) Shutdowns() int {
	return int(g.shutdowns.Load())
}

// NewServer builds a server for router with quiet logging and two event
// loops.
func NewServer(t testing.TB, router *http.Router) (*http.Server, *Globals) {
	t.Helper()
	globals := NewGlobals(t)
	srv := http.NewServer("test", router, globals)
	srv.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv.Workers = 2
	return srv, globals
}

// Running is a server started by Start.
type Running struct {
	Server *http.Server
	Addr   http.Address

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Start runs srv in the background and waits until it accepts connections.
// The server is stopped when the test ends.
func Start(t testing.TB, srv *http.Server) *Running {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	r := &Running{
		Server: srv,
		Addr:   srv.Globals.BindAddress(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		err := srv.Run(ctx)
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)
	}()
	t.Cleanup(func() { _ = r.Stop(5 * time.Second) })

	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case <-r.done:
			t.Fatalf("httptest: server exited during startup: %v", r.Err())
		default:
		}
		conn, err := net.Dial(r.Addr.Network, r.Addr.Addr)
		if err == nil {
			conn.Close()
			return r
		}
		if time.Now().After(deadline) {
			t.Fatalf("httptest: server did not start: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Stop cancels the run context, which begins a graceful shutdown, and waits
// for Run to return.
func (r *Running) Stop(timeout time.Duration) error {
	r.cancel()
	return r.Wait(timeout)
}

// Wait blocks until Run returns and hands back its error.
func (r *Running) Wait(timeout time.Duration) error {
	select {
	case <-r.done:
		return r.Err()
	case <-time.After(timeout):
		return errors.New("httptest: server did not stop in time")
	}
}

// Done is closed when Run has returned.
func (r *Running) Done() <-chan struct{} {
	return r.done
}

func (r *Running) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Dial opens a client connection to the server.
func (r *Running) Dial(t testing.TB) *Client {
	t.Helper()
	conn, err := net.Dial(r.Addr.Network, r.Addr.Addr)
	if err != nil {
		t.Fatalf("httptest: dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &Client{conn: conn, br: bufio.NewReader(conn)}
}

// Client speaks HTTP/1.1 over one connection. It is not safe for concurrent
// use.
type Client struct {
	conn net.Conn
	br   *bufio.Reader
}

// Response is a response with its body read.
type Response struct {
	*nethttp.Response
	Body string
}

// Write sends raw bytes.
func (c *Client) Write(raw string) error {
	_, err := io.WriteString(c.conn, raw)
	return err
}

// Send writes a request with the given headers and body. A Content-Length
// header is added when body is not empty.
func (c *Client) Send(method, target string, headers map[string]string, body string) error {
	var sb strings.Builder
	sb.WriteString(method + " " + target + " HTTP/1.1\r\nHost: jet\r\n")
	for name, value := range headers {
		sb.WriteString(name + ": " + value + "\r\n")
	}
	if body != "" {
		sb.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return c.Write(sb.String())
}

// Read reads the next response; method is the method of the request it
// answers.
func (c *Client) Read(method string) (*Response, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	res, err := nethttp.ReadResponse(c.br, &nethttp.Request{Method: method})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Response: res, Body: string(body)}, nil
}

// Do sends a request and reads its response.
func (c *Client) Do(method, target string, headers map[string]string, body string) (*Response, error) {
	if err := c.Send(method, target, headers, body); err != nil {
		return nil, err
	}
	return c.Read(method)
}

// Closed reports whether the server closed the connection within timeout.
// Any bytes received in the meantime are returned.
func (c *Client) Closed(timeout time.Duration) (bool, []byte) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	data, err := io.ReadAll(c.br)
	if err == nil {
		return true, data
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false, data
	}
	// Reset by peer also counts as closed.
	return true, data
}
