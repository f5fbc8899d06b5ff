package http

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freekieb7/jet/json"
	"github.com/panjf2000/gnet/v2"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const name = "github.com/freekieb7/jet/http"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
	logger = otelslog.NewLogger(name)

	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
)

func init() {
	var err error
	requestCount, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Number of completed requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		panic(err)
	}

	requestDuration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Time from a complete request to its response being ready"),
		metric.WithUnit("s"))
	if err != nil {
		panic(err)
	}
}

// Address is a listening endpoint: a TCP host:port or a unix socket path.
type Address struct {
	Network string
	Addr    string
}

func TCPAddress(host string, port int) Address {
	return Address{Network: "tcp", Addr: net.JoinHostPort(host, strconv.Itoa(port))}
}

func UnixAddress(path string) Address {
	return Address{Network: "unix", Addr: path}
}

func (a Address) String() string {
	return a.Network + "://" + a.Addr
}

// Globals is the deployment a Server runs in. Shutdown is called exactly once,
// after all in-flight requests have drained, to release deployment resources
// such as database pools.
type Globals interface {
	BindAddress() Address
	Shutdown(ctx context.Context) error
}

type Server struct {
	Name    string
	Router  *Router
	Globals Globals

	// Codec serializes payloads and typed bodies. Defaults to the json codec.
	Codec  Codec
	Logger *slog.Logger

	MaxBodyBytes   int
	MaxHeaderBytes int

	// Workers is the number of event loops. Zero means one per CPU.
	Workers int

	// Debug adds error detail to client-facing messages and pretty-prints
	// JSON. Not for production.
	Debug bool

	// DrainTimeout bounds how long shutdown waits for in-flight requests.
	// Zero waits for as long as they take.
	DrainTimeout time.Duration

	inflight     *drainGroup
	baseCtx      context.Context
	teardownOnce sync.Once
	teardownErr  error
	running      atomic.Bool
}

func NewServer(name string, router *Router, globals Globals) *Server {
	return &Server{
		Name:    name,
		Router:  router,
		Globals: globals,
	}
}

func (s *Server) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logger
}

// prepare fills in defaults and seals the router.
func (s *Server) prepare(ctx context.Context) {
	if s.Router == nil {
		s.Router = NewRouter()
	}
	s.Router.seal()
	if s.Codec == nil {
		s.Codec = json.Codec{Debug: s.Debug}
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.MaxHeaderBytes <= 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.Workers <= 0 {
		s.Workers = runtime.NumCPU()
	}
	s.inflight = newDrainGroup()
	s.baseCtx = context.WithoutCancel(ctx)
}

// Run serves until the process receives an interrupt, ctx is cancelled, or
// the listener fails. On interrupt it stops taking new connections, waits for
// in-flight requests, calls Globals.Shutdown and stops the event loops, in
// that order. A Server runs once.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("http: server already ran")
	}
	if s.Globals == nil {
		return errors.New("http: server has no globals")
	}
	s.prepare(ctx)

	addr := s.Globals.BindAddress()
	sig := newShutdownSignal(ctx)
	defer sig.release()

	if addr.Network == "unix" {
		if err := removeStaleSocket(addr.Addr); err != nil {
			return s.abort(&BindError{Addr: addr, Err: err})
		}
	}

	eng := newEngine(s)
	errCh := make(chan error, 1)
	go func() {
		errCh <- gnet.Run(eng, addr.String(),
			gnet.WithMulticore(true),
			gnet.WithNumEventLoop(s.Workers),
			gnet.WithTCPNoDelay(gnet.TCPNoDelay),
			gnet.WithLogger(gnetLogger{logger: s.log()}),
		)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			err = ErrListenerStopped
		}
		return s.abort(&BindError{Addr: addr, Err: err})
	case <-eng.booted:
	}

	if addr.Network == "unix" {
		// Let co-located processes such as a reverse proxy connect.
		if err := os.Chmod(addr.Addr, 0o666); err != nil {
			stopErr := s.stopEngine(eng, errCh)
			return errors.Join(s.abort(&BindError{Addr: addr, Err: err}), stopErr)
		}
	}

	s.log().Info("server listening", "name", s.Name, "address", addr.String(), "workers", s.Workers)

	go sig.watch(func() {
		s.log().Info("shutting down, draining connections", "name", s.Name)
		s.inflight.drain()
		eng.wakeAll()
	})

	select {
	case err := <-errCh:
		if err == nil {
			err = ErrListenerStopped
		} else {
			err = fmt.Errorf("%w: %w", ErrListenerStopped, err)
		}
		return errors.Join(err, s.teardown(context.Background()))
	case <-sig.quiesced:
	}

	return s.shutdown(eng, errCh)
}

func (s *Server) shutdown(eng *engine, errCh <-chan error) error {
	var errs []error

	drainCtx := context.Background()
	if s.DrainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(drainCtx, s.DrainTimeout)
		defer cancel()
	}
	if err := s.inflight.wait(drainCtx); err != nil {
		s.log().Warn("drain incomplete", "in_flight", s.inflight.pending(), "error", err)
		errs = append(errs, fmt.Errorf("http: drain: %w", err))
	}

	if err := s.teardown(context.Background()); err != nil {
		errs = append(errs, err)
	}

	if err := s.stopEngine(eng, errCh); err != nil {
		errs = append(errs, err)
	}

	s.log().Info("server stopped", "name", s.Name)
	return errors.Join(errs...)
}

// stopEngine stops the event loops and waits for gnet.Run to return.
func (s *Server) stopEngine(eng *engine, errCh <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := eng.stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: stop engine: %w", err))
	}
	select {
	case err := <-errCh:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("http: stop engine: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

// abort reports a startup failure after giving the deployment a chance to
// release what it already acquired.
func (s *Server) abort(err error) error {
	s.log().Error("server failed to start", "name", s.Name, "error", err)
	return errors.Join(err, s.teardown(context.Background()))
}

func (s *Server) teardown(ctx context.Context) error {
	s.teardownOnce.Do(func() {
		s.teardownErr = s.Globals.Shutdown(ctx)
	})
	return s.teardownErr
}

// shutdownSignal owns the interrupt subscription of one Run. It is created
// when Run starts and released when Run returns.
type shutdownSignal struct {
	ctx      context.Context
	stop     context.CancelFunc
	quiesced chan struct{}
	halt     chan struct{}
}

func newShutdownSignal(parent context.Context) *shutdownSignal {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	return &shutdownSignal{
		ctx:      ctx,
		stop:     stop,
		quiesced: make(chan struct{}),
		halt:     make(chan struct{}),
	}
}

// watch waits for an interrupt, runs quiesce and then closes quiesced.
func (sig *shutdownSignal) watch(quiesce func()) {
	select {
	case <-sig.ctx.Done():
		quiesce()
		close(sig.quiesced)
	case <-sig.halt:
	}
}

func (sig *shutdownSignal) release() {
	close(sig.halt)
	sig.stop()
}

// drainGroup counts requests between their head arriving and their response
// being written. Once draining it refuses new requests.
type drainGroup struct {
	mu       sync.Mutex
	count    int
	draining atomic.Bool
	idle     chan struct{}
	signaled bool
}

func newDrainGroup() *drainGroup {
	return &drainGroup{idle: make(chan struct{})}
}

func (g *drainGroup) add() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining.Load() {
		return false
	}
	g.count++
	return true
}

func (g *drainGroup) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count--
	g.signal()
}

func (g *drainGroup) drain() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.draining.Store(true)
	g.signal()
}

// signal must be called with mu held.
func (g *drainGroup) signal() {
	if g.draining.Load() && g.count == 0 && !g.signaled {
		g.signaled = true
		close(g.idle)
	}
}

func (g *drainGroup) isDraining() bool {
	return g.draining.Load()
}

func (g *drainGroup) pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

func (g *drainGroup) wait(ctx context.Context) error {
	select {
	case <-g.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// removeStaleSocket unlinks a socket left behind by a previous run. Anything
// other than a socket at path is left alone and reported.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode().Type() != os.ModeSocket {
		return fmt.Errorf("http: %s exists and is not a socket", path)
	}
	return os.Remove(path)
}
