package http

const (
	MIMEJSON = "application/json"
	MIMEText = "text/plain; charset=utf-8"
)

// Response is what a callback hands back to the connection handler. The zero
// value is an empty 200.
type Response struct {
	Status int
	MIME   string

	// Payload is serialized by the server's Codec. Raw, when set, is written
	// as-is and Payload is ignored.
	Payload any
	Raw     []byte
}

// JSON returns a 200 response carrying payload as JSON.
func JSON(payload any) Response {
	return Response{Status: StatusOK, MIME: MIMEJSON, Payload: payload}
}

func Text(text string) Response {
	return Response{Status: StatusOK, MIME: MIMEText, Raw: []byte(text)}
}

func Empty(status int) Response {
	return Response{Status: status}
}

func (r Response) WithStatus(status int) Response {
	r.Status = status
	return r
}

func (r Response) WithMIME(mime string) Response {
	r.MIME = mime
	return r
}

func (r Response) status() int {
	if r.Status == 0 {
		return StatusOK
	}
	return r.Status
}

// body serializes the response payload. A nil result means no body.
func (r Response) body(codec Codec) ([]byte, error) {
	if r.Raw != nil {
		return r.Raw, nil
	}
	if r.Payload == nil {
		return nil, nil
	}
	return codec.Encode(r.Payload)
}

// responseHead describes how one response is framed on the wire.
type responseHead struct {
	proto     string
	keepAlive bool
	omitBody  bool
}

// writeResponse appends a complete HTTP/1.x response to dst.
func writeResponse(dst []byte, head responseHead, status int, mime string, body []byte) []byte {
	proto := head.proto
	if proto != "HTTP/1.0" {
		proto = "HTTP/1.1"
	}

	dst = append(dst, proto...)
	dst = append(dst, ' ')
	dst = appendDecimal(dst, status)
	dst = append(dst, ' ')
	dst = append(dst, StatusText(status)...)
	dst = append(dst, "\r\n"...)

	if mime != "" {
		dst = append(dst, "Content-Type: "...)
		dst = appendHeaderValue(dst, mime)
		dst = append(dst, "\r\n"...)
	}

	dst = append(dst, "Content-Length: "...)
	dst = appendDecimal(dst, len(body))
	dst = append(dst, "\r\n"...)

	if head.keepAlive {
		dst = append(dst, "Connection: keep-alive\r\n"...)
	} else {
		dst = append(dst, "Connection: close\r\n"...)
	}
	dst = append(dst, "\r\n"...)

	if !head.omitBody {
		dst = append(dst, body...)
	}
	return dst
}

// appendHeaderValue drops CR, LF and other control bytes except HTAB.
func appendHeaderValue(dst []byte, v string) []byte {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == 0x7f || (c < 0x20 && c != '\t') {
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

var continueResponse = []byte("HTTP/1.1 100 Continue\r\n\r\n")
