package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSetTarget(t *testing.T) {
	var req Request
	require.NoError(t, req.setTarget("/items/a%20b?limit=5&limit=7&name=x+y&empty="))

	assert.Equal(t, "/items/a b", req.Path)
	assert.Equal(t, "7", req.Query("limit"))
	assert.Equal(t, 7, req.QueryInt("limit", 1))
	assert.Equal(t, "x y", req.Query("name"))
	assert.Equal(t, "", req.Query("empty"))
	assert.Equal(t, "", req.Query("missing"))
	assert.Equal(t, 3, req.QueryInt("missing", 3))

	req.reset()
	require.NoError(t, req.setTarget("/version"))
	assert.Equal(t, "", req.Query("limit"))

	assert.Error(t, req.setTarget("not a path"))
}

func TestRequestMatch(t *testing.T) {
	req := Request{captures: []string{"/items/42", "42", ""}}
	assert.Equal(t, "42", req.Match(1))
	assert.Equal(t, int64(42), req.MatchInt64(1))
	assert.Equal(t, "", req.Match(2))
	assert.Equal(t, "", req.Match(9))
	assert.Equal(t, "", req.Match(-1))
	assert.Equal(t, int64(0), req.MatchInt64(2))
}

func TestRequestHeader(t *testing.T) {
	req := Request{headers: []headerField{
		{name: "Accept", value: "text/plain"},
		{name: "accept", value: "application/json"},
	}}
	v, ok := req.Header("ACCEPT")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)

	_, ok = req.Header("Cookie")
	assert.False(t, ok)
}

func TestKeepAliveFor(t *testing.T) {
	assert.True(t, keepAliveFor("HTTP/1.1", ""))
	assert.True(t, keepAliveFor("HTTP/1.1", "keep-alive"))
	assert.False(t, keepAliveFor("HTTP/1.1", "Close"))
	assert.False(t, keepAliveFor("HTTP/1.0", ""))
	assert.True(t, keepAliveFor("HTTP/1.0", "keep-alive"))
	assert.False(t, keepAliveFor("HTTP/2.0", ""))
}

func TestWriteResponse(t *testing.T) {
	out := writeResponse(nil, responseHead{proto: "HTTP/1.1", keepAlive: true}, StatusCreated, MIMEJSON, []byte(`{}`))
	assert.Equal(t, "HTTP/1.1 201 Created\r\nContent-Type: application/json\r\nContent-Length: 2\r\nConnection: keep-alive\r\n\r\n{}", string(out))

	out = writeResponse(nil, responseHead{proto: "HTTP/1.0", omitBody: true}, StatusOK, "text/plain\r\nX-Injected: 1", []byte("hello"))
	assert.Equal(t, "HTTP/1.0 200 OK\r\nContent-Type: text/plainX-Injected: 1\r\nContent-Length: 5\r\nConnection: close\r\n\r\n", string(out))
}

func TestResponseBody(t *testing.T) {
	codec := failingCodec{}

	body, err := Text("raw").body(codec)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(body))

	body, err = Empty(StatusNoContent).body(codec)
	require.NoError(t, err)
	assert.Nil(t, body)

	_, err = JSON(1).body(codec)
	assert.Error(t, err)

	assert.Equal(t, StatusOK, Response{}.status())
}

func TestParseDecimal(t *testing.T) {
	n, err := parseDecimal("1000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), n)

	for _, bad := range []string{"", "-1", "1a", " 1", "99999999999999999999"} {
		_, err := parseDecimal(bad)
		assert.ErrorIs(t, err, errInvalidNumber, bad)
	}
}

func TestParseMethod(t *testing.T) {
	for m := MethodGet; m < methodCount; m++ {
		assert.Equal(t, m, ParseMethod(m.String()))
	}
	assert.Equal(t, MethodUnknown, ParseMethod("get"))
	assert.Equal(t, MethodUnknown, ParseMethod("BREW"))
}
