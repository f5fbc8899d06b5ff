package http

import (
	"net/url"
	"strconv"
)

type headerField struct {
	name  string
	value string
}

// Request is the view of one request that callbacks receive. A Request is
// owned by its connection handler and is reused for the next request on the
// same connection once the response has been written, so callbacks must not
// retain it after returning.
type Request struct {
	Method Method
	Path   string
	Proto  string

	// ID identifies the request in logs and spans.
	ID string

	// Body holds the complete request body, at most the server's body limit.
	Body []byte

	headers  []headerField
	query    map[string]string
	captures []string

	keepAlive bool
	expect    bool
}

// Query returns the value of the query parameter key, or "" when absent.
// When a key repeats, the last occurrence wins.
func (req *Request) Query(key string) string {
	return req.query[key]
}

// QueryInt returns the query parameter key as an int, or def when it is
// absent or not a number.
func (req *Request) QueryInt(key string, def int) int {
	v, ok := req.query[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Match returns capture group i of the matched pattern route. Index 0 is the
// whole match. Groups that did not participate, and indices out of range,
// yield "".
func (req *Request) Match(i int) string {
	if i < 0 || i >= len(req.captures) {
		return ""
	}
	return req.captures[i]
}

// MatchInt64 returns Match(i) parsed as an int64, or 0.
func (req *Request) MatchInt64(i int) int64 {
	n, err := strconv.ParseInt(req.Match(i), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Captures returns all capture groups of the matched pattern route; it is
// empty for literal routes.
func (req *Request) Captures() []string {
	return req.captures
}

// Header returns the first value of the named header. Names compare
// case-insensitively.
func (req *Request) Header(name string) (string, bool) {
	for _, h := range req.headers {
		if equalFold(h.name, name) {
			return h.value, true
		}
	}
	return "", false
}

// KeepAlive reports whether the connection may carry another request after
// this one.
func (req *Request) KeepAlive() bool {
	return req.keepAlive
}

func (req *Request) reset() {
	req.Method = MethodUnknown
	req.Path = ""
	req.Proto = ""
	req.ID = ""
	req.Body = req.Body[:0]
	req.headers = req.headers[:0]
	clear(req.query)
	req.captures = req.captures[:0]
	req.keepAlive = false
	req.expect = false
}

// setTarget splits the request target into the decoded path and the query.
func (req *Request) setTarget(target string) error {
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return err
	}

	req.Path = u.Path
	if req.Path == "" {
		req.Path = "/"
	}

	if u.RawQuery == "" {
		return nil
	}
	// ParseQuery keeps the pairs it could parse; a bad pair does not
	// invalidate the request.
	values, _ := url.ParseQuery(u.RawQuery)
	if req.query == nil {
		req.query = make(map[string]string, len(values))
	}
	for k, vv := range values {
		if len(vv) > 0 {
			req.query[k] = vv[len(vv)-1]
		}
	}
	return nil
}

// keepAliveFor decides persistence from the protocol version and the
// Connection header.
func keepAliveFor(proto, connection string) bool {
	switch proto {
	case "HTTP/1.1":
		return !equalFold(connection, "close")
	case "HTTP/1.0":
		return equalFold(connection, "keep-alive")
	}
	return false
}
