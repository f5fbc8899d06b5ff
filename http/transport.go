package http

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/gnet/v2"
	"github.com/panjf2000/gnet/v2/pkg/logging"
)

// engine adapts a Server to gnet's event callbacks. Each accepted connection
// gets a connHandler stored as the gnet connection context; gnet pins the
// connection to one event loop, so the handler's loop-side methods never run
// concurrently.
type engine struct {
	gnet.BuiltinEventEngine

	srv    *Server
	pool   *handlerPool
	eng    gnet.Engine
	booted chan struct{}

	mu    sync.Mutex
	conns map[gnet.Conn]struct{}
}

func newEngine(srv *Server) *engine {
	return &engine{
		srv:    srv,
		pool:   newHandlerPool(),
		booted: make(chan struct{}),
		conns:  make(map[gnet.Conn]struct{}),
	}
}

func (e *engine) OnBoot(eng gnet.Engine) gnet.Action {
	e.eng = eng
	close(e.booted)
	return gnet.None
}

func (e *engine) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if e.srv.inflight.isDraining() {
		return nil, gnet.Close
	}

	h := e.pool.get()
	h.attach(e.srv, gnetConn{c: c})
	c.SetContext(h)

	e.mu.Lock()
	e.conns[c] = struct{}{}
	e.mu.Unlock()

	e.srv.log().Debug("connection opened", "remote", addrString(c))
	return nil, gnet.None
}

func (e *engine) OnClose(c gnet.Conn, err error) gnet.Action {
	e.mu.Lock()
	delete(e.conns, c)
	e.mu.Unlock()

	if h, ok := c.Context().(*connHandler); ok {
		c.SetContext(nil)
		if h.closed() {
			e.pool.put(h)
		}
	}

	if err != nil {
		e.srv.log().Debug("connection closed", "remote", addrString(c), "error", err)
	}
	return gnet.None
}

func (e *engine) OnTraffic(c gnet.Conn) gnet.Action {
	h, ok := c.Context().(*connHandler)
	if !ok {
		return gnet.Close
	}

	buf, err := c.Next(-1)
	if err != nil {
		e.srv.log().Debug("read failed", "remote", addrString(c), "error", err)
		return gnet.Close
	}
	if len(buf) > 0 {
		if err := h.feed(buf); err != nil {
			e.srv.log().Debug("closing connection", "remote", addrString(c), "error", err)
			return gnet.Close
		}
	}

	if e.srv.inflight.isDraining() && h.idle() {
		return gnet.Close
	}
	return gnet.None
}

// wakeAll nudges every open connection so idle ones notice the server is
// draining.
func (e *engine) wakeAll() {
	e.mu.Lock()
	conns := make([]gnet.Conn, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		_ = c.Wake(nil)
	}
}

func (e *engine) stop(ctx context.Context) error {
	return e.eng.Stop(ctx)
}

func addrString(c gnet.Conn) string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// gnetConn satisfies conn. gnet runs the AsyncWrite callback on the event
// loop that owns c.
type gnetConn struct {
	c gnet.Conn
}

func (g gnetConn) AsyncWrite(b []byte, done func(err error)) error {
	if done == nil {
		return g.c.AsyncWrite(b, nil)
	}
	return g.c.AsyncWrite(b, func(_ gnet.Conn, err error) error {
		done(err)
		return nil
	})
}

func (g gnetConn) Close() error {
	return g.c.Close()
}

// gnetLogger routes gnet's internal logging onto slog.
type gnetLogger struct {
	logger *slog.Logger
}

var _ logging.Logger = gnetLogger{}

func (l gnetLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "gnet")
}

func (l gnetLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "gnet")
}

func (l gnetLogger) Warnf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "gnet")
}

func (l gnetLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "gnet")
}

func (l gnetLogger) Fatalf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "gnet", "fatal", true)
}
