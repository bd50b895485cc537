package httpc

import (
	"strconv"
	"strings"

	"github.com/huangxin96/pistache/bpool"
)

// 资源形如 [http://][www.]HOST[PATH_AND_QUERY]
func splitURL(resource string) (host, page string) {
	s := strings.TrimPrefix(resource, "http://")
	s = strings.TrimPrefix(s, "www.")
	i := strings.IndexAny(s, "/?")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func appendStr(b *bpool.Buff, s string) *bpool.Buff {
	return b.Append([]byte(s)...)
}

func queryString(query []queryParam) string {
	if len(query) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('?')
	for i, q := range query {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(q.key)
		sb.WriteByte('=')
		sb.WriteString(q.value)
	}
	return sb.String()
}

// 渲染一条完整的HTTP/1.1请求报文
// 头部顺序固定：Cookie、调用方头部、User-Agent、Host、Content-Length
func writeRequest(req *Request) (*bpool.Buff, error) {
	host, path := splitURL(req.resource)
	if host == "" {
		return nil, ErrBadResource
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}

	buf := bpool.New(256 + len(req.body))

	buf = appendStr(buf, req.method)
	buf = appendStr(buf, " ")
	buf = appendStr(buf, path)
	buf = appendStr(buf, queryString(req.query))
	buf = appendStr(buf, " HTTP/1.1"+crlf)

	if len(req.cookies) > 0 {
		buf = appendStr(buf, "Cookie: ")
		for i, ck := range req.cookies {
			if i > 0 {
				buf = appendStr(buf, "; ")
			}
			buf = appendStr(buf, ck.Name)
			buf = appendStr(buf, "=")
			buf = appendStr(buf, ck.Value)
		}
		buf = appendStr(buf, crlf)
	}

	for _, h := range req.header {
		buf = appendStr(buf, h.key)
		buf = appendStr(buf, ": ")
		buf = appendStr(buf, h.value)
		buf = appendStr(buf, crlf)
	}

	buf = appendStr(buf, "User-Agent: "+UA+crlf)
	buf = appendStr(buf, "Host: ")
	buf = appendStr(buf, host)
	buf = appendStr(buf, crlf)

	if len(req.body) > 0 {
		buf = appendStr(buf, "Content-Length: ")
		buf = appendStr(buf, strconv.Itoa(len(req.body)))
		buf = appendStr(buf, crlf)
	}

	buf = appendStr(buf, crlf)

	if len(req.body) > 0 {
		buf = buf.Append(req.body...)
	}
	return buf, nil
}
