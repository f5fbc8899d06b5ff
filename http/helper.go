package http

import (
	"errors"
	"math"
)

var errInvalidNumber = errors.New("http: invalid number")

// parseDecimal parses a non-negative Content-Length style value.
func parseDecimal(s string) (int64, error) {
	if s == "" {
		return 0, errInvalidNumber
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, errInvalidNumber
		}
		if n > (math.MaxInt64-int64(c-'0'))/10 {
			return 0, errInvalidNumber
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}

// parseHex parses a chunk-size token.
func parseHex(s string) (int64, error) {
	if s == "" || len(s) > 15 {
		return 0, errInvalidNumber
	}
	var n int64
	for i := 0; i < len(s); i++ {
		v := hexToByte(s[i])
		if v == 255 {
			return 0, errInvalidNumber
		}
		n = n<<4 | int64(v)
	}
	return n, nil
}

// appendDecimal writes n to dst without going through strconv.
func appendDecimal(dst []byte, n int) []byte {
	if n == 0 {
		return append(dst, '0')
	}

	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = '0' + byte(n%10)
		n /= 10
	}

	return append(dst, buf[i:]...)
}

func hexToByte(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 255 // Invalid hex
}

func toLower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

// equalFold reports whether a and b are equal under ASCII case folding.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if toLower(a[i]) != toLower(b[i]) {
			return false
		}
	}
	return true
}
