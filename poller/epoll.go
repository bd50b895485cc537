package poller

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type Mask uint32

const (
	Read Mask = 1 << iota
	Write
	Hangup
	OneShot
	ET
)

// 事件回调，全部在loop协程触发
type Handler interface {
	OnReadable(fd int)
	OnWritable(fd int)
	OnHangup(fd int)
}

type EventLoop struct {
	epfd    int
	wake    *Notifier
	stopped int32
}

func NewEventLoop() (*EventLoop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wake, err := NewNotifier()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	l := &EventLoop{epfd: epfd, wake: wake}
	if err = l.Register(wake.Fd(), Read); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func events(m Mask) uint32 {
	var ev uint32
	if m&Read != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if m&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	if m&Hangup != 0 {
		ev |= unix.EPOLLHUP | unix.EPOLLRDHUP
	}
	if m&OneShot != 0 {
		ev |= unix.EPOLLONESHOT
	}
	if m&ET != 0 {
		ev |= uint32(unix.EPOLLET)
	}
	return ev
}

func (l *EventLoop) ctl(op int, fd int, m Mask) error {
	ev := unix.EpollEvent{Events: events(m), Fd: int32(fd)}
	return unix.EpollCtl(l.epfd, op, fd, &ev)
}

func (l *EventLoop) Register(fd int, m Mask) error {
	return l.ctl(unix.EPOLL_CTL_ADD, fd, m)
}

func (l *EventLoop) Modify(fd int, m Mask) error {
	return l.ctl(unix.EPOLL_CTL_MOD, fd, m)
}

func (l *EventLoop) Unregister(fd int) error {
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// 阻塞运行，直到Shutdown
func (l *EventLoop) Run(h Handler) {
	evs := make([]unix.EpollEvent, 128)
	for atomic.LoadInt32(&l.stopped) == 0 {
		n, err := unix.EpollWait(l.epfd, evs, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		for i := 0; i < n; i++ {
			fd := int(evs[i].Fd)
			ev := evs[i].Events
			if fd == l.wake.Fd() {
				l.wake.Drain()
				continue
			}
			// 连接失败是ERR|HUP|OUT，所以hangup要先于writable判断
			switch {
			case ev&unix.EPOLLIN != 0:
				h.OnReadable(fd)
			case ev&(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0:
				h.OnHangup(fd)
			case ev&unix.EPOLLOUT != 0:
				h.OnWritable(fd)
			}
		}
	}
}

func (l *EventLoop) Shutdown() {
	atomic.StoreInt32(&l.stopped, 1)
	l.wake.Notify()
}

func (l *EventLoop) Close() {
	l.wake.Close()
	unix.Close(l.epfd)
}
