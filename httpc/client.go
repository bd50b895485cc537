package httpc

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/huangxin96/pistache/ringbuffer"
)

const (
	defaultThreads          = 1
	defaultMaxConnsPerHost  = 8
	defaultPendingQueueSize = 128
)

type options struct {
	threads          int
	maxConnsPerHost  int
	pendingQueueSize int
	keepAlive        bool
	resolver         AddrResolver
}

type Option func(*options)

func WithThreads(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.threads = n
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConnsPerHost = n
		}
	}
}

// 接受但暂不影响行为，连接总是尝试复用
func WithKeepAlive(b bool) Option {
	return func(o *options) {
		o.keepAlive = b
	}
}

func WithPendingQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pendingQueueSize = n
		}
	}
}

func WithResolver(r AddrResolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

/*
	客户端入口
	doRequest只负责找到或者排队一个连接，之后的一切都在transport上异步进行
	必须显式调用Shutdown
*/
type Client struct {
	pool       *ConnectionPool
	transports []*Transport
	resolver   AddrResolver
	keepAlive  bool

	ioIndex uint32

	queuesLock  sync.Mutex
	pending     map[string]*ringbuffer.Queue
	pendingSize int
	stopped     bool
}

func NewClient(opt ...Option) (*Client, error) {
	o := options{
		threads:          defaultThreads,
		maxConnsPerHost:  defaultMaxConnsPerHost,
		pendingQueueSize: defaultPendingQueueSize,
		resolver:         defaultResolver{},
	}
	for _, f := range opt {
		f(&o)
	}
	c := &Client{
		pool:        NewConnectionPool(o.maxConnsPerHost),
		resolver:    o.resolver,
		keepAlive:   o.keepAlive,
		pending:     make(map[string]*ringbuffer.Queue),
		pendingSize: o.pendingQueueSize,
	}
	for i := 0; i < o.threads; i++ {
		t, err := newTransport()
		if err != nil {
			c.Shutdown()
			return nil, err
		}
		c.transports = append(c.transports, t)
	}
	return c, nil
}

func (c *Client) Shutdown() {
	c.queuesLock.Lock()
	c.stopped = true
	c.queuesLock.Unlock()
	for _, t := range c.transports {
		t.shutdown()
	}
}

func (c *Client) Get(resource string) *RequestBuilder {
	return c.prepareRequest(resource, "GET")
}

func (c *Client) Post(resource string) *RequestBuilder {
	return c.prepareRequest(resource, "POST")
}

func (c *Client) Put(resource string) *RequestBuilder {
	return c.prepareRequest(resource, "PUT")
}

func (c *Client) Patch(resource string) *RequestBuilder {
	return c.prepareRequest(resource, "PATCH")
}

func (c *Client) Del(resource string) *RequestBuilder {
	return c.prepareRequest(resource, "DELETE")
}

func (c *Client) prepareRequest(resource, method string) *RequestBuilder {
	return &RequestBuilder{
		client:  c,
		request: &Request{method: method, resource: resource},
	}
}

func (c *Client) doRequest(req *Request, timeout time.Duration) *Completion {
	stripUserAgent(req)
	host, _ := splitURL(req.resource)
	if host == "" {
		return rejected(ErrBadResource)
	}
	conn := c.pool.PickConnection(host)
	if conn == nil {
		comp := newCompletion()
		c.queuesLock.Lock()
		q, ok := c.pending[host]
		if !ok {
			q = ringbuffer.New(c.pendingSize)
			c.pending[host] = q
		}
		if q.Size() >= c.pendingSize || !q.Put(&requestData{comp: comp, request: req, timeout: timeout}) {
			c.queuesLock.Unlock()
			comp.reject(ErrQueueFull)
			return comp
		}
		c.queuesLock.Unlock()
		// 入队和释放连接之间有窗口，补一次drain避免请求滞留
		c.processPendingQueues()
		return comp
	}
	comp := newCompletion()
	c.submit(conn, &requestData{comp: comp, request: req, timeout: timeout})
	return comp
}

// conn已经租到，按link状态分发
// 不能在持有queuesLock的情况下调用
func (c *Client) submit(conn *Connection, data *requestData) {
	if !conn.hasTransport() {
		idx := atomic.AddUint32(&c.ioIndex, 1) - 1
		conn.associateTransport(c.transports[int(idx)%len(c.transports)])
	}
	onDone := func() {
		c.pool.ReleaseConnection(conn)
		c.processPendingQueues()
	}
	switch atomic.LoadInt32(&conn.linkState) {
	case stateConnected:
		conn.performImpl(data.request, data.timeout, data.comp, onDone, false)
	case stateConnecting:
		conn.asyncPerformData(data, onDone)
	default:
		conn.asyncPerformData(data, onDone)
		host, _ := splitURL(data.request.resource)
		addrs, err := c.resolver.Resolve(host)
		if err != nil {
			conn.failConnect(err)
			return
		}
		if err = conn.connect(addrs); err != nil {
			conn.failConnect(err)
		}
	}
}

// 连接归还后驱动排队的请求，每个host FIFO
func (c *Client) processPendingQueues() {
	for {
		var conn *Connection
		var data *requestData
		c.queuesLock.Lock()
		if c.stopped {
			c.queuesLock.Unlock()
			return
		}
		for host, q := range c.pending {
			if q.Size() == 0 {
				continue
			}
			cn := c.pool.PickConnection(host)
			if cn == nil {
				continue
			}
			v, ok := q.Pop()
			if !ok {
				c.pool.ReleaseConnection(cn)
				continue
			}
			conn = cn
			data = v.(*requestData)
			break
		}
		c.queuesLock.Unlock()
		if conn == nil {
			return
		}
		c.submit(conn, data)
	}
}

func stripUserAgent(req *Request) {
	n := 0
	for _, h := range req.header {
		if !strings.EqualFold(h.key, "User-Agent") {
			req.header[n] = h
			n++
		}
	}
	req.header = req.header[:n]
}

// 链式构造一个请求，Send提交
type RequestBuilder struct {
	client  *Client
	request *Request
	timeout time.Duration
}

func (b *RequestBuilder) Method(method string) *RequestBuilder {
	b.request.method = method
	return b
}

func (b *RequestBuilder) Resource(resource string) *RequestBuilder {
	b.request.resource = resource
	return b
}

func (b *RequestBuilder) Param(key, value string) *RequestBuilder {
	b.request.query = append(b.request.query, queryParam{key: key, value: value})
	return b
}

// map没有顺序，这里排序保证序列化稳定
func (b *RequestBuilder) Params(params map[string]string) *RequestBuilder {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Param(k, params[k])
	}
	return b
}

func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	b.request.header = append(b.request.header, headerField{key: key, value: value})
	return b
}

func (b *RequestBuilder) Cookie(name, value string) *RequestBuilder {
	b.request.cookies = append(b.request.cookies, Cookie{Name: name, Value: value})
	return b
}

func (b *RequestBuilder) Body(body []byte) *RequestBuilder {
	b.request.body = body
	return b
}

func (b *RequestBuilder) BodyString(body string) *RequestBuilder {
	b.request.body = []byte(body)
	return b
}

func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	b.timeout = d
	return b
}

func (b *RequestBuilder) Send() *Completion {
	return b.client.doRequest(b.request, b.timeout)
}
