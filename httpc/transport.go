package httpc

import (
	"fmt"
	"sync"

	"github.com/huangxin96/pistache/bpool"
	"github.com/huangxin96/pistache/poller"
	"github.com/huangxin96/pistache/ringbuffer"
	"github.com/lesismal/nbio/logging"
	"golang.org/x/sys/unix"
)

const (
	maxBuffer       = 16 * 1024 // 单次收包缓冲
	submitQueueSize = 1024
)

// 待发送的请求报文，written记录已写出的字节，EAGAIN后靠writable事件续写
type sendEntry struct {
	conn    *Connection
	timer   *poller.Timer
	buf     *bpool.Buff
	written int
}

type connectRequest struct {
	conn *Connection
	addr unix.Sockaddr
}

// transport持有的连接表项，覆盖Connecting/Connected两个阶段
type connEntry struct {
	conn      *Connection
	send      *sendEntry
	connected bool
}

/*
	IO worker，独占一个epoll实例
	外部协程通过submitQ/connectQ投递，eventfd唤醒
	conns只在loop协程读写；timeouts有跨协程访问，加锁
*/
type Transport struct {
	loop   *poller.EventLoop
	timers *poller.TimerPool

	submitQ  *ringbuffer.Queue
	connectQ *ringbuffer.Queue
	submitN  *poller.Notifier
	connectN *poller.Notifier

	conns map[int]*connEntry

	timeoutsLock sync.Mutex
	timeouts     map[int]*Connection

	done chan struct{}
}

func newTransport() (*Transport, error) {
	loop, err := poller.NewEventLoop()
	if err != nil {
		return nil, err
	}
	submitN, err := poller.NewNotifier()
	if err != nil {
		loop.Close()
		return nil, err
	}
	connectN, err := poller.NewNotifier()
	if err != nil {
		loop.Close()
		submitN.Close()
		return nil, err
	}
	t := &Transport{
		loop:     loop,
		timers:   poller.NewTimerPool(),
		submitQ:  ringbuffer.New(submitQueueSize),
		connectQ: ringbuffer.New(submitQueueSize),
		submitN:  submitN,
		connectN: connectN,
		conns:    make(map[int]*connEntry),
		timeouts: make(map[int]*Connection),
		done:     make(chan struct{}),
	}
	if err = loop.Register(submitN.Fd(), poller.Read); err == nil {
		err = loop.Register(connectN.Fd(), poller.Read)
	}
	if err != nil {
		loop.Close()
		submitN.Close()
		connectN.Close()
		return nil, err
	}
	go t.run()
	return t, nil
}

func (t *Transport) run() {
	t.loop.Run(t)
	close(t.done)
}

func (t *Transport) shutdown() {
	t.loop.Shutdown()
	<-t.done
	t.loop.Close()
	t.submitN.Close()
	t.connectN.Close()
}

// 任意协程调用
func (t *Transport) asyncConnect(c *Connection, addr unix.Sockaddr) {
	if !t.connectQ.Put(&connectRequest{conn: c, addr: addr}) {
		c.failConnect(ErrQueueFull)
		return
	}
	t.connectN.Notify()
}

// 任意协程调用
func (t *Transport) asyncSendRequest(e *sendEntry) {
	if !t.submitQ.Put(e) {
		e.buf.Free()
		e.conn.handleError(ErrQueueFull)
		return
	}
	t.submitN.Notify()
}

// 补发一次deferred drain
func (t *Transport) asyncDrain(c *Connection) {
	if t.submitQ.Put(c) {
		t.submitN.Notify()
	}
}

// poller.Handler

func (t *Transport) OnReadable(fd int) {
	switch fd {
	case t.connectN.Fd():
		t.connectN.Drain()
		t.processConnectQueue()
	case t.submitN.Fd():
		t.submitN.Drain()
		t.processSubmitQueue()
	default:
		if entry, ok := t.conns[fd]; ok {
			t.handleIncoming(entry)
			return
		}
		t.handleTimerFire(fd)
	}
}

func (t *Transport) OnWritable(fd int) {
	entry, ok := t.conns[fd]
	if !ok {
		panic(fmt.Sprintf("httpc: unknown fd %d in writable event", fd))
	}
	if entry.send != nil {
		t.performSend(entry.send)
		return
	}
	if !entry.connected {
		t.finishConnect(fd, entry, true)
		return
	}
	t.loop.Modify(fd, poller.Read)
}

func (t *Transport) OnHangup(fd int) {
	entry, ok := t.conns[fd]
	if !ok {
		panic(fmt.Sprintf("httpc: unknown fd %d in hangup event", fd))
	}
	if !entry.connected {
		delete(t.conns, fd)
		entry.conn.failConnect(ErrConnFailed)
		return
	}
	// 已连接的挂断走读取路径，recv=0的分支统一清理
	t.handleIncoming(entry)
}

func (t *Transport) processConnectQueue() {
	for {
		v, ok := t.connectQ.Pop()
		if !ok {
			break
		}
		r := v.(*connectRequest)
		conn := r.conn
		fd := conn.fdGet()
		if fd < 0 {
			conn.failConnect(ErrConnFailed)
			continue
		}
		err := unix.Connect(fd, r.addr)
		entry := &connEntry{conn: conn}
		switch err {
		case nil:
			// 本地立刻连上，等价于收到writable
			t.conns[fd] = entry
			t.finishConnect(fd, entry, false)
		case unix.EINPROGRESS:
			t.conns[fd] = entry
			if rerr := t.loop.Register(fd, poller.Write|poller.Hangup|poller.OneShot); rerr != nil {
				delete(t.conns, fd)
				conn.failConnect(fmt.Errorf("%w: %s", ErrConnFailed, rerr))
			}
		default:
			conn.failConnect(fmt.Errorf("%w: %s", ErrConnFailed, err))
		}
	}
}

func (t *Transport) finishConnect(fd int, entry *connEntry, registered bool) {
	entry.connected = true
	var err error
	if registered {
		err = t.loop.Modify(fd, poller.Read)
	} else {
		err = t.loop.Register(fd, poller.Read)
	}
	if err != nil {
		delete(t.conns, fd)
		entry.conn.failConnect(fmt.Errorf("%w: %s", ErrConnFailed, err))
		return
	}
	entry.conn.onConnected()
}

func (t *Transport) processSubmitQueue() {
	for {
		v, ok := t.submitQ.Pop()
		if !ok {
			break
		}
		switch e := v.(type) {
		case *sendEntry:
			t.performSend(e)
		case *Connection:
			e.processDeferred()
		}
	}
}

// loop协程，direct提交时也可能从调用方经performImpl进来（仅限已在loop上的路径）
func (t *Transport) performSend(e *sendEntry) {
	conn := e.conn
	fd := conn.fdGet()
	if fd < 0 || !conn.isConnected() {
		e.buf.Free()
		conn.handleError(ErrSendFailed)
		return
	}
	data := e.buf.ToBytes()
	for e.written < len(data) {
		n, err := unix.Write(fd, data[e.written:])
		if n > 0 {
			e.written += n
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// 内核缓冲满，挂起续写
			entry, ok := t.conns[fd]
			if !ok {
				e.buf.Free()
				conn.handleError(ErrSendFailed)
				return
			}
			entry.send = e
			t.loop.Modify(fd, poller.Read|poller.Write|poller.ET)
			return
		}
		e.buf.Free()
		conn.handleError(fmt.Errorf("%w: %s", ErrSendFailed, err))
		return
	}
	if entry, ok := t.conns[fd]; ok && entry.send != nil {
		entry.send = nil
		t.loop.Modify(fd, poller.Read)
	}
	e.buf.Free()
	if e.timer != nil {
		t.timeoutsLock.Lock()
		t.timeouts[e.timer.Fd()] = conn
		t.timeoutsLock.Unlock()
		if err := e.timer.Register(t.loop); err != nil {
			logging.Error("httpc: register timer failed: %v", err)
		}
	}
}

func (t *Transport) handleIncoming(entry *connEntry) {
	conn := entry.conn
	fd := conn.fdGet()
	if fd < 0 {
		return
	}
	buf := bpool.New(maxBuffer)
	buf.SetSize(buf.Cap())
	b := buf.ToBytes()
	total := 0
	for {
		n, err := unix.Read(fd, b[total:])
		if n > 0 {
			total += n
			if total == len(b) {
				// 缓冲满，先喂给解析器再继续收
				conn.handleResponsePacket(b[:total])
				total = 0
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			if total > 0 {
				conn.handleResponsePacket(b[:total])
			}
			break
		}
		if n == 0 && err == nil {
			if total > 0 {
				conn.handleResponsePacket(b[:total])
			} else {
				conn.handleError(ErrPeerClosed)
			}
			delete(t.conns, fd)
			conn.close()
			break
		}
		conn.handleError(fmt.Errorf("%w: %s", ErrRecvFailed, err))
		break
	}
	buf.Free()
}

func (t *Transport) handleTimerFire(fd int) {
	t.timeoutsLock.Lock()
	conn, ok := t.timeouts[fd]
	if ok && !poller.Expired(fd) {
		// disarm或者重新arm之后的残留事件
		ok = false
	}
	if ok {
		delete(t.timeouts, fd)
	}
	t.timeoutsLock.Unlock()
	if !ok {
		logging.Debug("httpc: stale timer event, fd=%d", fd)
		return
	}
	conn.handleTimeout()
}

func (t *Transport) releaseTimer(timer *poller.Timer) {
	t.timeoutsLock.Lock()
	delete(t.timeouts, timer.Fd())
	t.timeoutsLock.Unlock()
	t.loop.Unregister(timer.Fd())
	t.timers.Release(timer)
}
