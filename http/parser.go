package http

import (
	"bytes"
	"strings"
)

const (
	DefaultMaxHeaderBytes = 8 << 10
	DefaultMaxBodyBytes   = 1_000_000

	maxChunkLineBytes = 4 << 10
)

type frameKind uint8

const (
	frameNone frameKind = iota
	frameHead
	frameBody
	frameEnd
)

// frame is one parsed unit of a request. Body data aliases the input buffer
// and is only valid until the next call to parse.
type frame struct {
	kind frameKind
	data []byte
}

type parseState uint8

const (
	stateHead parseState = iota
	stateFixedBody
	stateChunkSize
	stateChunkData
	stateChunkCRLF
	stateTrailer
	stateEnd
)

// requestHead is the parsed request line and header section.
type requestHead struct {
	method  string
	target  string
	proto   string
	headers []headerField

	// contentLength is -1 for chunked bodies.
	contentLength int64
}

func (h *requestHead) header(name string) (string, bool) {
	for _, f := range h.headers {
		if equalFold(f.name, name) {
			return f.value, true
		}
	}
	return "", false
}

// parser splits an HTTP/1.x byte stream into head, body and end frames. It
// never blocks: when the buffer holds too little to make progress it returns
// frameNone with nothing consumed, and the caller retries once more bytes
// arrive.
type parser struct {
	state          parseState
	maxHeaderBytes int
	remain         int64
	head           requestHead
}

func (p *parser) reset() {
	p.state = stateHead
	p.remain = 0
	p.head.method = ""
	p.head.target = ""
	p.head.proto = ""
	p.head.headers = p.head.headers[:0]
	p.head.contentLength = 0
}

// parse consumes at most one frame from buf and reports how many bytes it
// used. Chunk framing bytes are consumed without producing a frame, so the
// caller loops until it gets frameNone with n == 0.
func (p *parser) parse(buf []byte) (frame, int, error) {
	switch p.state {
	case stateHead:
		return p.parseHead(buf)

	case stateFixedBody, stateChunkData:
		if len(buf) == 0 {
			return frame{}, 0, nil
		}
		n := int64(len(buf))
		if n > p.remain {
			n = p.remain
		}
		p.remain -= n
		if p.remain == 0 {
			if p.state == stateFixedBody {
				p.state = stateEnd
			} else {
				p.state = stateChunkCRLF
			}
		}
		return frame{kind: frameBody, data: buf[:n]}, int(n), nil

	case stateChunkSize:
		line, n, err := nextLine(buf, maxChunkLineBytes)
		if err != nil || n == 0 {
			return frame{}, 0, err
		}
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		size, err := parseHex(strings.TrimSpace(line))
		if err != nil {
			return frame{}, 0, ErrMalformed
		}
		if size == 0 {
			p.state = stateTrailer
		} else {
			p.remain = size
			p.state = stateChunkData
		}
		return frame{}, n, nil

	case stateChunkCRLF:
		if len(buf) < 2 {
			return frame{}, 0, nil
		}
		if buf[0] != '\r' || buf[1] != '\n' {
			return frame{}, 0, ErrMalformed
		}
		p.state = stateChunkSize
		return frame{}, 2, nil

	case stateTrailer:
		// Trailer fields are read and dropped.
		line, n, err := nextLine(buf, p.maxHeaderBytes)
		if err != nil || n == 0 {
			return frame{}, 0, err
		}
		if line == "" {
			p.state = stateEnd
		}
		return frame{}, n, nil

	case stateEnd:
		p.state = stateHead
		return frame{kind: frameEnd}, 0, nil
	}
	return frame{}, 0, ErrMalformed
}

var headTerminator = []byte("\r\n\r\n")

func (p *parser) parseHead(buf []byte) (frame, int, error) {
	// Empty lines ahead of a request line are ignored (RFC 9112, 2.2).
	skip := 0
	for len(buf)-skip >= 2 && buf[skip] == '\r' && buf[skip+1] == '\n' {
		skip += 2
	}
	rest := buf[skip:]

	end := bytes.Index(rest, headTerminator)
	if end < 0 {
		if len(rest) > p.maxHeaderBytes {
			return frame{}, 0, ErrHeaderTooLarge
		}
		return frame{}, 0, nil
	}
	if end+len(headTerminator) > p.maxHeaderBytes {
		return frame{}, 0, ErrHeaderTooLarge
	}

	if err := p.readHead(string(rest[:end])); err != nil {
		return frame{}, 0, err
	}

	switch {
	case p.head.contentLength < 0:
		p.state = stateChunkSize
	case p.head.contentLength > 0:
		p.remain = p.head.contentLength
		p.state = stateFixedBody
	default:
		p.state = stateEnd
	}
	return frame{kind: frameHead}, skip + end + len(headTerminator), nil
}

func (p *parser) readHead(section string) error {
	line, section, _ := strings.Cut(section, "\r\n")

	method, rest, ok := strings.Cut(line, " ")
	if !ok || method == "" {
		return ErrMalformed
	}
	target, proto, ok := strings.Cut(rest, " ")
	if !ok || target == "" {
		return ErrMalformed
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return ErrMalformed
	}
	p.head.method = method
	p.head.target = target
	p.head.proto = proto
	p.head.headers = p.head.headers[:0]

	var (
		contentLength       int64
		haveLength, chunked bool
	)
	for section != "" {
		line, section, _ = strings.Cut(section, "\r\n")
		if line == "" {
			continue
		}
		// Obsolete line folding is rejected (RFC 9112, 5.2).
		if line[0] == ' ' || line[0] == '\t' {
			return ErrMalformed
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return ErrMalformed
		}
		value = strings.Trim(value, " \t")
		p.head.headers = append(p.head.headers, headerField{name: name, value: value})

		switch {
		case equalFold(name, "Content-Length"):
			n, err := parseDecimal(value)
			if err != nil {
				return ErrMalformed
			}
			if haveLength && n != contentLength {
				return ErrMalformed
			}
			contentLength, haveLength = n, true
		case equalFold(name, "Transfer-Encoding"):
			codings := strings.Split(value, ",")
			if !equalFold(strings.TrimSpace(codings[len(codings)-1]), "chunked") {
				return ErrMalformed
			}
			chunked = true
		}
	}

	if chunked {
		if haveLength {
			return ErrMalformed
		}
		p.head.contentLength = -1
		return nil
	}
	p.head.contentLength = contentLength
	return nil
}

// nextLine returns the first CRLF terminated line in buf without the CRLF,
// and the number of bytes it spans including the terminator. n is 0 when buf
// holds no complete line yet.
func nextLine(buf []byte, limit int) (string, int, error) {
	i := bytes.Index(buf, []byte("\r\n"))
	if i < 0 {
		if len(buf) > limit {
			return "", 0, ErrMalformed
		}
		return "", 0, nil
	}
	if i > limit {
		return "", 0, ErrMalformed
	}
	return string(buf[:i]), i + 2, nil
}
