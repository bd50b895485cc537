package httpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserSimple(t *testing.T) {
	p := NewParser()
	err := p.Feed([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"))
	require.NoError(t, err)
	require.True(t, p.Done())
	rsp := p.Response()
	assert.Equal(t, 200, rsp.StatusCode)
	assert.Equal(t, "OK", rsp.Status)
	assert.Equal(t, "2", rsp.Header.Get("Content-Length"))
	assert.Equal(t, "hi", string(rsp.Body))
}

func TestParserNoBody(t *testing.T) {
	p := NewParser()
	err := p.Feed([]byte("HTTP/1.1 204 No Content\r\nX-A: 1\r\n\r\n"))
	require.NoError(t, err)
	require.True(t, p.Done())
	rsp := p.Response()
	assert.Equal(t, 204, rsp.StatusCode)
	assert.Equal(t, "No Content", rsp.Status)
	assert.Empty(t, rsp.Body)
}

// 字节流被任意切分也要能解析出来
func TestParserSplitDelivery(t *testing.T) {
	raw := "HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\nX-Reason: gone\r\n\r\nnot found"
	for _, chunk := range []int{1, 2, 3, 7} {
		p := NewParser()
		for i := 0; i < len(raw); i += chunk {
			end := i + chunk
			if end > len(raw) {
				end = len(raw)
			}
			require.NoError(t, p.Feed([]byte(raw[i:end])))
		}
		require.True(t, p.Done(), "chunk=%d", chunk)
		rsp := p.Response()
		assert.Equal(t, 404, rsp.StatusCode)
		assert.Equal(t, "Not Found", rsp.Status)
		assert.Equal(t, "gone", rsp.Header.Get("X-Reason"))
		assert.Equal(t, "not found", string(rsp.Body))
	}
}

func TestParserChunked(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"3\r\nabc\r\n4\r\ndefg\r\n0\r\n\r\n"
	p := NewParser()
	require.NoError(t, p.Feed([]byte(raw)))
	require.True(t, p.Done())
	assert.Equal(t, "abcdefg", string(p.Response().Body))
}

func TestParserReset(t *testing.T) {
	p := NewParser()
	require.NoError(t, p.Feed([]byte("HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\na")))
	require.True(t, p.Done())
	p.Reset()
	require.False(t, p.Done())
	require.NoError(t, p.Feed([]byte("HTTP/1.1 500 Oops\r\nContent-Length: 1\r\n\r\nb")))
	require.True(t, p.Done())
	rsp := p.Response()
	assert.Equal(t, 500, rsp.StatusCode)
	assert.Equal(t, "b", string(rsp.Body))
}

func TestParserMalformed(t *testing.T) {
	p := NewParser()
	assert.Error(t, p.Feed([]byte("BOGUS 200 OK\r\n\r\n")))

	p = NewParser()
	assert.Error(t, p.Feed([]byte("HTTP/1.1 abc OK\r\n\r\n")))
}
