package poller

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// 一次性定时器，timerfd实现，不要跨协程共享
type Timer struct {
	fd int
}

func (t *Timer) Fd() int {
	return t.fd
}

func (t *Timer) Arm(d time.Duration) error {
	if d <= 0 {
		d = time.Nanosecond
	}
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(d.Nanoseconds()),
	}
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// Disarm返回后定时器不会再触发；已经进入epoll的事件由transport的timeouts表过滤
func (t *Timer) Disarm() error {
	var spec unix.ItimerSpec
	return unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

// 读取timerfd的到期计数，没到期返回false
// 同时清掉计数，水平触发下必须读
func Expired(fd int) bool {
	var b [8]byte
	n, _ := unix.Read(fd, b[:])
	return n == 8
}

// 注册到指定loop的读事件，必须在该loop所属的transport上使用
func (t *Timer) Register(l *EventLoop) error {
	return l.Register(t.fd, Read)
}

func (t *Timer) Close() {
	unix.Close(t.fd)
}

// 定时器复用池
type TimerPool struct {
	mu   sync.Mutex
	free []*Timer
}

func NewTimerPool() *TimerPool {
	return &TimerPool{}
}

func (p *TimerPool) Pick() (*Timer, error) {
	p.mu.Lock()
	n := len(p.free)
	if n > 0 {
		t := p.free[n-1]
		p.free[n-1] = nil // gc
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return t, nil
	}
	p.mu.Unlock()
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Timer{fd: fd}, nil
}

func (p *TimerPool) Release(t *Timer) {
	t.Disarm()
	p.mu.Lock()
	p.free = append(p.free, t)
	p.mu.Unlock()
}
