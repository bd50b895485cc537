package httpc

import (
	"net/http"
	"time"

	"github.com/huangxin96/pistache/poller"
)

// 固定UA，调用方设置的User-Agent会被覆盖
const UA = "pistache/0.1"

const crlf = "\r\n"

type Cookie struct {
	Name  string
	Value string
}

type headerField struct {
	key, value string
}

type queryParam struct {
	key, value string
}

// 一次提交期间不可变
type Request struct {
	method   string
	resource string
	query    []queryParam
	header   []headerField
	cookies  []Cookie
	body     []byte
}

type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// 挂在Connection上的在途请求，完成时消费且只消费一次
type requestEntry struct {
	comp   *Completion
	timer  *poller.Timer
	onDone func()
}

// 进入deferred/pending队列的请求
type requestData struct {
	comp    *Completion
	request *Request
	timeout time.Duration
	onDone  func()
}

type connState = int32

const (
	stateNotConnected connState = iota
	stateConnecting
	stateConnected
)

const (
	leaseIdle int32 = iota
	leaseUsed
)
