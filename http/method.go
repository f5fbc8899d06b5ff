package http

// Method is one of the fixed set of request methods the router dispatches on.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodPatch
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace

	methodCount
)

var methodNames = [methodCount]string{
	MethodUnknown: "",
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodPatch:   "PATCH",
	MethodDelete:  "DELETE",
	MethodConnect: "CONNECT",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
}

// ParseMethod maps a wire token to a Method. Tokens are case-sensitive
// (RFC 9110, 9.1); anything outside the set yields MethodUnknown.
func ParseMethod(token string) Method {
	switch token {
	case "GET":
		return MethodGet
	case "HEAD":
		return MethodHead
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "PATCH":
		return MethodPatch
	case "DELETE":
		return MethodDelete
	case "CONNECT":
		return MethodConnect
	case "OPTIONS":
		return MethodOptions
	case "TRACE":
		return MethodTrace
	}
	return MethodUnknown
}

func (m Method) String() string {
	if m >= methodCount {
		return ""
	}
	return methodNames[m]
}

func (m Method) valid() bool {
	return m > MethodUnknown && m < methodCount
}
