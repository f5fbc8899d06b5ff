package http

import (
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
)

// PatternMatchTimeout bounds a single pattern evaluation. regexp2 backtracks,
// so a pathological pattern and path could otherwise pin a goroutine.
var PatternMatchTimeout = 100 * time.Millisecond

type patternRoute struct {
	source   string
	re       *regexp2.Regexp
	callback Callback
}

type methodRoutes struct {
	literal  map[string]Callback
	patterns []patternRoute
}

// Router maps (method, path) to a Callback. Paths starting with "/" are
// literal; paths starting with "^" are anchored, case-insensitive patterns
// whose groups are handed to the callback positionally. Patterns are tried in
// the order they were registered and the first match wins.
//
// A Router is filled during startup and becomes read-only once a Server runs
// it; lookups take no locks.
type Router struct {
	methods [methodCount]*methodRoutes
	sealed  atomic.Bool
}

func NewRouter() *Router {
	return &Router{}
}

// Register adds a route. Registering the same literal path or the same
// pattern string twice for one method is an error, as is registering after
// the router has been handed to a running Server.
func (router *Router) Register(method Method, path string, callback Callback) error {
	if router.sealed.Load() {
		return &ConfigError{Method: method, Path: path, Reason: "router is sealed"}
	}
	if !method.valid() {
		return &ConfigError{Method: method, Path: path, Reason: "unknown method"}
	}
	if callback == nil {
		return &ConfigError{Method: method, Path: path, Reason: "nil callback"}
	}
	if path == "" {
		return &ConfigError{Method: method, Path: path, Reason: "empty path"}
	}

	routes := router.methods[method]
	if routes == nil {
		routes = &methodRoutes{literal: make(map[string]Callback)}
		router.methods[method] = routes
	}

	switch path[0] {
	case '/':
		if _, ok := routes.literal[path]; ok {
			return &ConfigError{Method: method, Path: path, Reason: "duplicate literal route"}
		}
		routes.literal[path] = callback
	case '^':
		for _, p := range routes.patterns {
			if p.source == path {
				return &ConfigError{Method: method, Path: path, Reason: "duplicate pattern route"}
			}
		}
		re, err := regexp2.Compile(path, regexp2.IgnoreCase)
		if err != nil {
			return &ConfigError{Method: method, Path: path, Reason: "invalid pattern", Err: err}
		}
		re.MatchTimeout = PatternMatchTimeout
		routes.patterns = append(routes.patterns, patternRoute{source: path, re: re, callback: callback})
	default:
		return &ConfigError{Method: method, Path: path, Reason: `path must start with "/" or "^"`}
	}
	return nil
}

// Match resolves a request. It fails with ErrMethodNotAllowed when nothing at
// all is registered for method, and with ErrNotFound when the method is known
// but no route accepts path. Literal routes are returned with no captures.
func (router *Router) Match(method Method, path string) (Callback, []string, error) {
	return router.match(method, path, nil)
}

// match appends pattern captures to dst so a connection can reuse its buffer.
func (router *Router) match(method Method, path string, dst []string) (Callback, []string, error) {
	if !method.valid() {
		return nil, dst, ErrMethodNotAllowed
	}
	routes := router.methods[method]
	if routes == nil {
		return nil, dst, ErrMethodNotAllowed
	}

	if callback, ok := routes.literal[path]; ok {
		return callback, dst, nil
	}

	for _, p := range routes.patterns {
		m, err := p.re.FindStringMatch(path)
		if err != nil {
			// Match timeout; treat the pattern as not matching.
			logger.Warn("pattern evaluation failed", "pattern", p.source, "error", err)
			continue
		}
		if m == nil || m.Index != 0 {
			continue
		}
		for _, g := range m.Groups() {
			if len(g.Captures) == 0 {
				dst = append(dst, "")
				continue
			}
			dst = append(dst, g.String())
		}
		return p.callback, dst, nil
	}

	return nil, dst, ErrNotFound
}

func (router *Router) seal() {
	router.sealed.Store(true)
}

// Routes lists the registered routes per method, literal paths first and
// then patterns in registration order. Useful for startup logging.
func (router *Router) Routes() map[Method][]string {
	out := make(map[Method][]string)
	for m := MethodGet; m < methodCount; m++ {
		routes := router.methods[m]
		if routes == nil {
			continue
		}
		paths := make([]string, 0, len(routes.literal)+len(routes.patterns))
		for path := range routes.literal {
			paths = append(paths, path)
		}
		for _, p := range routes.patterns {
			paths = append(paths, p.source)
		}
		out[m] = paths
	}
	return out
}

func (router *Router) mustRegister(method Method, path string, callback Callback) {
	if err := router.Register(method, path, callback); err != nil {
		panic(err)
	}
}

func (router *Router) GET(path string, callback Callback) {
	router.mustRegister(MethodGet, path, callback)
}

func (router *Router) HEAD(path string, callback Callback) {
	router.mustRegister(MethodHead, path, callback)
}

func (router *Router) POST(path string, callback Callback) {
	router.mustRegister(MethodPost, path, callback)
}

func (router *Router) PUT(path string, callback Callback) {
	router.mustRegister(MethodPut, path, callback)
}

func (router *Router) PATCH(path string, callback Callback) {
	router.mustRegister(MethodPatch, path, callback)
}

func (router *Router) DELETE(path string, callback Callback) {
	router.mustRegister(MethodDelete, path, callback)
}

func (router *Router) OPTIONS(path string, callback Callback) {
	router.mustRegister(MethodOptions, path, callback)
}
