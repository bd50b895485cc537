package httpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, req *Request) string {
	buf, err := writeRequest(req)
	require.NoError(t, err)
	s := string(buf.ToBytes())
	buf.Free()
	return s
}

func TestSplitURL(t *testing.T) {
	testCases := []struct {
		resource string
		host     string
		page     string
	}{
		{"http://example.com/hello", "example.com", "/hello"},
		{"http://www.example.com/hello", "example.com", "/hello"},
		{"example.com", "example.com", ""},
		{"example.com?x=1", "example.com", "?x=1"},
		{"http://example.com:8080/a/b?q=1", "example.com:8080", "/a/b?q=1"},
	}
	for _, tc := range testCases {
		host, page := splitURL(tc.resource)
		assert.Equal(t, tc.host, host, tc.resource)
		assert.Equal(t, tc.page, page, tc.resource)
	}
}

func TestWriteRequestGet(t *testing.T) {
	req := &Request{method: "GET", resource: "http://example.com/hello"}
	s := render(t, req)
	assert.Equal(t,
		"GET /hello HTTP/1.1\r\n"+
			"User-Agent: pistache/0.1\r\n"+
			"Host: example.com\r\n"+
			"\r\n", s)
}

func TestWriteRequestPostBody(t *testing.T) {
	req := &Request{method: "POST", resource: "http://h/p", body: []byte("abc")}
	s := render(t, req)
	assert.Equal(t,
		"POST /p HTTP/1.1\r\n"+
			"User-Agent: pistache/0.1\r\n"+
			"Host: h\r\n"+
			"Content-Length: 3\r\n"+
			"\r\n"+
			"abc", s)
}

func TestWriteRequestPathNormalized(t *testing.T) {
	for _, resource := range []string{"example.com", "http://example.com", "example.com?x=1"} {
		req := &Request{method: "GET", resource: resource}
		s := render(t, req)
		require.True(t, len(s) > 4)
		assert.Equal(t, "GET /", s[:5], resource)
	}
}

func TestWriteRequestHeaderOrder(t *testing.T) {
	req := &Request{
		method:   "GET",
		resource: "http://example.com/",
		header:   []headerField{{"X-A", "1"}, {"X-B", "2"}},
		cookies:  []Cookie{{"sid", "42"}, {"lang", "en"}},
	}
	s := render(t, req)
	assert.Equal(t,
		"GET / HTTP/1.1\r\n"+
			"Cookie: sid=42; lang=en\r\n"+
			"X-A: 1\r\n"+
			"X-B: 2\r\n"+
			"User-Agent: pistache/0.1\r\n"+
			"Host: example.com\r\n"+
			"\r\n", s)
}

func TestWriteRequestNoCookieHeaderWhenEmpty(t *testing.T) {
	req := &Request{method: "GET", resource: "http://example.com/"}
	s := render(t, req)
	assert.NotContains(t, s, "Cookie:")
}

func TestWriteRequestQueryParams(t *testing.T) {
	req := &Request{
		method:   "GET",
		resource: "http://example.com/search",
		query:    []queryParam{{"a", "1"}, {"b", "2"}},
	}
	s := render(t, req)
	assert.Contains(t, s, "GET /search?a=1&b=2 HTTP/1.1\r\n")
}

func TestWriteRequestStable(t *testing.T) {
	req := &Request{
		method:   "GET",
		resource: "http://example.com/x",
		header:   []headerField{{"X-A", "1"}},
		cookies:  []Cookie{{"a", "1"}},
		body:     []byte("body"),
	}
	first := render(t, req)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, render(t, req))
	}
}

func TestStripUserAgent(t *testing.T) {
	req := &Request{
		method:   "GET",
		resource: "http://example.com/",
		header:   []headerField{{"User-Agent", "custom"}, {"X-A", "1"}, {"user-agent", "other"}},
	}
	stripUserAgent(req)
	s := render(t, req)
	assert.NotContains(t, s, "custom")
	assert.NotContains(t, s, "other")
	assert.Equal(t, 1, countOccurrences(s, "User-Agent:"))
}

func TestWriteRequestBadResource(t *testing.T) {
	req := &Request{method: "GET", resource: "/just/a/path"}
	_, err := writeRequest(req)
	assert.ErrorIs(t, err, ErrBadResource)
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
