package httpc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/huangxin96/pistache/poller"
	"github.com/huangxin96/pistache/ringbuffer"
	"golang.org/x/sys/unix"
)

const deferredQueueSize = 64

/*
	一条到某个host的TCP连接
	lease由池管理，link是连接本身的状态，两者独立
	连接建立后所有IO都发生在绑定的transport协程上
*/
type Connection struct {
	fd        int32 // -1表示没有socket
	lease     int32
	linkState int32

	localAddr unix.Sockaddr

	transport *Transport

	// 在途请求，同一时刻最多一个，租借期内由当前持有者独占
	inFlight *requestEntry

	// Connecting期间积累的请求，连上后FIFO下发
	deferred *ringbuffer.Queue

	parser *Parser
}

func newConnection() *Connection {
	return &Connection{
		fd:       -1,
		deferred: ringbuffer.New(deferredQueueSize),
		parser:   NewParser(),
	}
}

func (c *Connection) fdGet() int {
	return int(atomic.LoadInt32(&c.fd))
}

func (c *Connection) isIdle() bool {
	return atomic.LoadInt32(&c.lease) == leaseIdle
}

func (c *Connection) isConnected() bool {
	return atomic.LoadInt32(&c.linkState) == stateConnected
}

// 只允许绑定一次
func (c *Connection) associateTransport(t *Transport) {
	if c.transport != nil {
		panic("httpc: a transport has already been associated to the connection")
	}
	c.transport = t
}

func (c *Connection) hasTransport() bool {
	return c.transport != nil
}

// 逐个尝试候选地址建socket，全部失败返回ErrSocketCreation
// 真正的connect由transport在自己的协程上发起
func (c *Connection) connect(addrs []unix.Sockaddr) error {
	for _, addr := range addrs {
		family := unix.AF_INET
		if _, ok := addr.(*unix.SockaddrInet6); ok {
			family = unix.AF_INET6
		}
		fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			continue
		}
		atomic.StoreInt32(&c.linkState, stateConnecting)
		atomic.StoreInt32(&c.fd, int32(fd))
		c.transport.asyncConnect(c, addr)
		return nil
	}
	return ErrSocketCreation
}

// connect完成，transport协程回调
func (c *Connection) onConnected() {
	if fd := c.fdGet(); fd >= 0 {
		if sa, err := unix.Getsockname(fd); err == nil {
			c.localAddr = sa
		}
	}
	atomic.StoreInt32(&c.linkState, stateConnected)
	c.processDeferred()
}

// connect失败，拒绝所有积累的请求
func (c *Connection) failConnect(err error) {
	for {
		v, ok := c.deferred.Pop()
		if !ok {
			break
		}
		d := v.(*requestData)
		d.comp.reject(err)
		if d.onDone != nil {
			d.onDone()
		}
	}
	c.close()
}

// 只能在Connected状态调用
func (c *Connection) perform(req *Request, timeout time.Duration, onDone func()) *Completion {
	comp := newCompletion()
	c.performImpl(req, timeout, comp, onDone, false)
	return comp
}

// Connecting状态下入deferred队列，不序列化不发送
func (c *Connection) asyncPerform(req *Request, timeout time.Duration, onDone func()) *Completion {
	comp := newCompletion()
	c.asyncPerformData(&requestData{comp: comp, request: req, timeout: timeout}, onDone)
	return comp
}

func (c *Connection) asyncPerformData(data *requestData, onDone func()) {
	data.onDone = onDone
	if !c.deferred.Put(data) {
		data.comp.reject(ErrQueueFull)
		if onDone != nil {
			onDone()
		}
		return
	}
	// Put和connect完成之间存在窗口，连上了就补一次drain
	if c.isConnected() {
		c.transport.asyncDrain(c)
	}
}

func (c *Connection) performImpl(req *Request, timeout time.Duration, comp *Completion, onDone func(), direct bool) {
	buf, err := writeRequest(req)
	if err != nil {
		comp.reject(err)
		if onDone != nil {
			onDone()
		}
		return
	}
	var timer *poller.Timer
	if timeout > 0 {
		timer, err = c.transport.timers.Pick()
		if err != nil {
			buf.Free()
			comp.reject(err)
			if onDone != nil {
				onDone()
			}
			return
		}
		timer.Arm(timeout)
	}
	c.inFlight = &requestEntry{comp: comp, timer: timer, onDone: onDone}
	e := &sendEntry{conn: c, timer: timer, buf: buf}
	if direct {
		c.transport.performSend(e)
	} else {
		c.transport.asyncSendRequest(e)
	}
}

// 连上之后FIFO下发积累的请求，transport协程
func (c *Connection) processDeferred() {
	for {
		v, ok := c.deferred.Pop()
		if !ok {
			break
		}
		d := v.(*requestData)
		c.performImpl(d.request, d.timeout, d.comp, d.onDone, true)
	}
}

// 收到的响应字节进解析器，transport协程
func (c *Connection) handleResponsePacket(data []byte) {
	if err := c.parser.Feed(data); err != nil {
		c.parser.Reset()
		c.handleError(fmt.Errorf("%w: %s", ErrRecvFailed, err))
		return
	}
	if !c.parser.Done() {
		return
	}
	rsp := c.parser.Response()
	c.parser.Reset()
	entry := c.inFlight
	if entry == nil {
		return
	}
	c.releaseTimer(entry)
	c.inFlight = nil
	entry.comp.resolve(rsp)
	if entry.onDone != nil {
		entry.onDone()
	}
}

func (c *Connection) handleError(err error) {
	entry := c.inFlight
	if entry == nil {
		return
	}
	c.releaseTimer(entry)
	c.inFlight = nil
	entry.comp.reject(err)
	if entry.onDone != nil {
		entry.onDone()
	}
}

func (c *Connection) handleTimeout() {
	c.handleError(ErrTimeout)
}

func (c *Connection) releaseTimer(entry *requestEntry) {
	if entry.timer != nil {
		c.transport.releaseTimer(entry.timer)
		entry.timer = nil
	}
}

func (c *Connection) close() {
	atomic.StoreInt32(&c.linkState, stateNotConnected)
	fd := atomic.SwapInt32(&c.fd, -1)
	if fd >= 0 {
		unix.Close(int(fd))
	}
	c.parser.Reset()
}

func (c *Connection) Dump() string {
	port := 0
	switch sa := c.localAddr.(type) {
	case *unix.SockaddrInet4:
		port = sa.Port
	case *unix.SockaddrInet6:
		port = sa.Port
	}
	return fmt.Sprintf("Connection(fd = %d, src_port = %d)", c.fdGet(), port)
}
