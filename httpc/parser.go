// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpc

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/huangxin96/pistache/bpool"
)

const (
	transferEncodingHeader = "Transfer-Encoding"
	contentLengthHeader    = "Content-Length"

	// DefaultReadLimit 单个响应的最大长度
	DefaultReadLimit = 20 * 1024 * 1024
)

var (
	ErrClosed                  = errors.New("parser closed")
	ErrTooLong                 = errors.New("message too long")
	ErrLFExpected              = errors.New("LF expected")
	ErrCRExpected              = errors.New("CR expected")
	ErrInvalidProto            = errors.New("invalid proto")
	ErrInvalidStatusCode       = errors.New("invalid status code")
	ErrInvalidCharInHeader     = errors.New("invalid char in header")
	ErrInvalidChunkSize        = errors.New("invalid chunk size")
	ErrUnexpectedContentLength = errors.New("unexpected content length")
)

const (
	stateProtoBefore int8 = iota
	stateProto
	stateStatusCodeBefore
	stateStatusCode
	stateStatusBefore
	stateStatus
	stateStatusLF
	stateHeaderKeyBefore
	stateHeaderKey
	stateHeaderValueBefore
	stateHeaderValue
	stateHeaderValueLF
	stateHeaderOverLF
	stateBodyContentLength
	stateBodyChunkSizeBefore
	stateBodyChunkSize
	stateBodyChunkSizeLF
	stateBodyChunkData
	stateBodyChunkDataCR
	stateBodyChunkDataLF
	stateTailCR
	stateTailLF
	stateDone
	stateClose
)

// 可恢复的响应解析器，每个Connection持有一个，响应完成后Reset复用
type Parser struct {
	cache *bpool.Buff
	body  *bpool.Buff

	proto     string
	status    string
	headerKey string

	header http.Header

	statusCode    int
	contentLength int
	chunkSize     int
	chunked       bool

	rsp *Response

	state     int8
	readLimit int
}

func NewParser() *Parser {
	return &Parser{
		state:         stateProtoBefore,
		readLimit:     DefaultReadLimit,
		contentLength: -1,
	}
}

func (p *Parser) nextState(state int8) {
	switch p.state {
	case stateClose:
	default:
		p.state = state
	}
}

// Done 是否已经解析出一个完整响应
func (p *Parser) Done() bool {
	return p.state == stateDone
}

// Response 只在Done之后有效
func (p *Parser) Response() *Response {
	return p.rsp
}

func (p *Parser) Reset() {
	if p.cache != nil {
		p.cache.Free()
		p.cache = nil
	}
	if p.body != nil {
		p.body.Free()
		p.body = nil
	}
	p.proto = ""
	p.status = ""
	p.headerKey = ""
	p.header = nil
	p.statusCode = 0
	p.contentLength = -1
	p.chunkSize = 0
	p.chunked = false
	p.rsp = nil
	p.state = stateProtoBefore
}

func (p *Parser) Close() {
	if p.state == stateClose {
		return
	}
	p.Reset()
	p.state = stateClose
}

func parseAndValidateChunkSize(originalStr string) (int, error) {
	chunkSize, err := strconv.ParseInt(originalStr, 16, 63)
	if err != nil {
		return -1, fmt.Errorf("chunk size parse error %v: %w", originalStr, err)
	}
	if chunkSize < 0 {
		return -1, ErrInvalidChunkSize
	}
	return int(chunkSize), nil
}

// Feed 喂入收到的字节，不完整的部分会被缓存，下次继续
func (p *Parser) Feed(data []byte) error {
	if p.state == stateClose {
		return ErrClosed
	}
	if len(data) == 0 {
		return nil
	}

	var c byte
	var start = 0
	var offset int
	if p.cache != nil {
		offset = p.cache.Size()
	}
	if offset > 0 {
		if offset+len(data) > p.readLimit {
			return ErrTooLong
		}
		p.cache = p.cache.Append(data...)
		data = p.cache.ToBytes()
	}

	for i := offset; i < len(data); i++ {
		c = data[i]
		switch p.state {
		case stateClose:
			return ErrClosed
		case stateDone:
			// 一次只解析一个响应，多余的数据丢弃
			start = len(data)
			goto Exit
		case stateProtoBefore:
			if c == 'H' {
				start = i
				p.nextState(stateProto)
				continue
			}
			return ErrInvalidProto
		case stateProto:
			if c == ' ' {
				if p.proto == "" {
					p.proto = string(data[start:i])
				}
				if _, _, ok := http.ParseHTTPVersion(p.proto); !ok {
					return ErrInvalidProto
				}
				p.nextState(stateStatusCodeBefore)
			}
		case stateStatusCodeBefore:
			switch c {
			case ' ':
			default:
				if isNum(c) {
					start = i
					p.nextState(stateStatusCode)
					continue
				}
				return ErrInvalidStatusCode
			}
		case stateStatusCode:
			switch c {
			case ' ', '\r':
				cs := string(data[start:i])
				code, err := strconv.Atoi(cs)
				if err != nil {
					return ErrInvalidStatusCode
				}
				p.statusCode = code
				if c == '\r' {
					p.status = ""
					p.nextState(stateStatusLF)
				} else {
					p.nextState(stateStatusBefore)
				}
				continue
			}
			if !isNum(c) {
				return ErrInvalidStatusCode
			}
		case stateStatusBefore:
			switch c {
			case ' ':
			case '\r':
				p.status = ""
				p.nextState(stateStatusLF)
			default:
				start = i
				p.nextState(stateStatus)
			}
		case stateStatus:
			if c == '\r' {
				if p.status == "" {
					p.status = string(data[start:i])
				}
				p.nextState(stateStatusLF)
			}
		case stateStatusLF:
			if c == '\n' {
				start = i + 1
				p.nextState(stateHeaderKeyBefore)
				continue
			}
			return ErrLFExpected
		case stateHeaderValueLF:
			if c == '\n' {
				start = i + 1
				p.nextState(stateHeaderKeyBefore)
				continue
			}
			return ErrLFExpected
		case stateHeaderKeyBefore:
			switch c {
			case '\r':
				if err := p.finishHeader(); err != nil {
					return err
				}
				start = i + 1
				p.nextState(stateHeaderOverLF)
			case '\n', ' ':
				return ErrInvalidCharInHeader
			default:
				if isAlpha(c) {
					start = i
					p.nextState(stateHeaderKey)
					continue
				}
				return ErrInvalidCharInHeader
			}
		case stateHeaderKey:
			switch c {
			case ':':
				p.headerKey = http.CanonicalHeaderKey(string(data[start:i]))
				start = i + 1
				p.nextState(stateHeaderValueBefore)
			case '\r', '\n':
				return ErrInvalidCharInHeader
			}
		case stateHeaderValueBefore:
			switch c {
			case ' ':
			case '\r':
				p.onHeader(p.headerKey, "")
				start = i + 1
				p.nextState(stateHeaderValueLF)
			case '\n':
				return ErrInvalidCharInHeader
			default:
				start = i
				p.nextState(stateHeaderValue)
			}
		case stateHeaderValue:
			switch c {
			case '\r':
				p.onHeader(p.headerKey, string(data[start:i]))
				p.headerKey = ""
				start = i + 1
				p.nextState(stateHeaderValueLF)
			case '\n':
				return ErrInvalidCharInHeader
			}
		case stateHeaderOverLF:
			if c == '\n' {
				start = i + 1
				if p.chunked {
					p.nextState(stateBodyChunkSizeBefore)
				} else if p.contentLength > 0 {
					p.nextState(stateBodyContentLength)
				} else {
					p.oneMessage()
				}
				continue
			}
			return ErrLFExpected
		case stateBodyContentLength:
			left := p.contentLength
			if p.body != nil {
				left -= p.body.Size()
			}
			avail := len(data) - start
			if avail > left {
				avail = left
			}
			p.onBody(data[start : start+avail])
			start += avail
			i = start - 1
			if p.body.Size() == p.contentLength {
				p.oneMessage()
			} else {
				goto Exit
			}
		case stateBodyChunkSizeBefore:
			if isHex(c) {
				p.chunkSize = -1
				start = i
				p.nextState(stateBodyChunkSize)
				continue
			}
			return ErrInvalidChunkSize
		case stateBodyChunkSize:
			switch c {
			case '\r':
				if p.chunkSize < 0 {
					chunkSize, err := parseAndValidateChunkSize(string(data[start:i]))
					if err != nil {
						return err
					}
					p.chunkSize = chunkSize
				}
				start = i + 1
				p.nextState(stateBodyChunkSizeLF)
			default:
				if !isHex(c) && p.chunkSize < 0 {
					chunkSize, err := parseAndValidateChunkSize(string(data[start:i]))
					if err != nil {
						return err
					}
					p.chunkSize = chunkSize
				}
			}
		case stateBodyChunkSizeLF:
			if c == '\n' {
				start = i + 1
				if p.chunkSize > 0 {
					p.nextState(stateBodyChunkData)
				} else {
					// 最后一个chunk
					p.nextState(stateTailCR)
				}
				continue
			}
			return ErrLFExpected
		case stateBodyChunkData:
			left := p.chunkSize
			avail := len(data) - start
			if avail > left {
				avail = left
			}
			p.onBody(data[start : start+avail])
			p.chunkSize -= avail
			start += avail
			i = start - 1
			if p.chunkSize == 0 {
				p.nextState(stateBodyChunkDataCR)
			} else {
				goto Exit
			}
		case stateBodyChunkDataCR:
			if c == '\r' {
				p.nextState(stateBodyChunkDataLF)
				continue
			}
			return ErrCRExpected
		case stateBodyChunkDataLF:
			if c == '\n' {
				p.nextState(stateBodyChunkSizeBefore)
				continue
			}
			return ErrLFExpected
		case stateTailCR:
			if c == '\r' {
				p.nextState(stateTailLF)
				continue
			}
			return ErrCRExpected
		case stateTailLF:
			if c == '\n' {
				start = i + 1
				p.oneMessage()
				continue
			}
			return ErrLFExpected
		default:
		}
	}

Exit:
	left := len(data) - start
	if left > 0 {
		if p.cache == nil {
			p.cache = bpool.NewBuf(data[start:])
		} else if start > 0 {
			oldCache := p.cache
			p.cache = bpool.NewBuf(data[start:])
			oldCache.Free()
		}
	} else if p.cache != nil {
		p.cache.Free()
		p.cache = nil
	}

	return nil
}

func (p *Parser) onHeader(key, value string) {
	if p.header == nil {
		p.header = http.Header{}
	}
	p.header.Add(key, value)
}

func (p *Parser) onBody(data []byte) {
	if len(data) == 0 {
		return
	}
	if p.body == nil {
		p.body = bpool.NewBuf(data)
	} else {
		p.body = p.body.Append(data...)
	}
}

// 头部读完，确定body的读取方式
func (p *Parser) finishHeader() error {
	if err := p.parseTransferEncoding(); err != nil {
		return err
	}
	return p.parseContentLength()
}

func (p *Parser) parseTransferEncoding() error {
	raw, present := p.header[transferEncodingHeader]
	if !present {
		return nil
	}
	if len(raw) != 1 {
		return fmt.Errorf("too many transfer encodings: %q", raw)
	}
	if strings.ToLower(textproto.TrimString(raw[0])) != "chunked" {
		return fmt.Errorf("unsupported transfer encoding: %q", raw[0])
	}
	p.chunked = true
	return nil
}

func (p *Parser) parseContentLength() error {
	cl := p.header.Get(contentLengthHeader)
	if cl == "" {
		p.contentLength = -1
		return nil
	}
	if p.chunked {
		return ErrUnexpectedContentLength
	}
	l, err := strconv.ParseInt(textproto.TrimString(cl), 10, 63)
	if err != nil || l < 0 {
		return fmt.Errorf("%s %q", "bad Content-Length", cl)
	}
	if int64(p.readLimit) < l {
		return ErrTooLong
	}
	p.contentLength = int(l)
	return nil
}

// 一个完整的响应
func (p *Parser) oneMessage() {
	rsp := &Response{
		StatusCode: p.statusCode,
		Status:     p.status,
		Header:     p.header,
	}
	if p.body != nil {
		rsp.Body = append([]byte(nil), p.body.ToBytes()...)
		p.body.Free()
		p.body = nil
	}
	p.rsp = rsp
	p.nextState(stateDone)
}

func isNum(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isHex(c byte) bool {
	return isNum(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
