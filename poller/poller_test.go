package poller

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifier(t *testing.T) {
	n, err := NewNotifier()
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	n.Notify()
	n.Notify()
	n.Drain()
	// 清空之后eventfd不可读
	if Expired(n.Fd()) {
		t.Fatal("notifier readable after drain")
	}
}

func TestTimerExpire(t *testing.T) {
	p := NewTimerPool()
	tm, err := p.Pick()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(tm)
	if err = tm.Arm(10 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if Expired(tm.Fd()) {
		t.Fatal("timer expired early")
	}
	time.Sleep(50 * time.Millisecond)
	if !Expired(tm.Fd()) {
		t.Fatal("timer did not expire")
	}
}

func TestTimerDisarm(t *testing.T) {
	p := NewTimerPool()
	tm, err := p.Pick()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(tm)
	tm.Arm(10 * time.Millisecond)
	tm.Disarm()
	time.Sleep(50 * time.Millisecond)
	if Expired(tm.Fd()) {
		t.Fatal("disarmed timer expired")
	}
}

func TestTimerReuse(t *testing.T) {
	p := NewTimerPool()
	t1, _ := p.Pick()
	p.Release(t1)
	t2, _ := p.Pick()
	if t1 != t2 {
		t.Fatal("pool did not reuse timer")
	}
	p.Release(t2)
}

type countHandler struct {
	readable int32
}

func (h *countHandler) OnReadable(fd int) { atomic.AddInt32(&h.readable, 1) }
func (h *countHandler) OnWritable(fd int) {}
func (h *countHandler) OnHangup(fd int)   {}

func TestEventLoopDispatch(t *testing.T) {
	l, err := NewEventLoop()
	if err != nil {
		t.Fatal(err)
	}
	n, err := NewNotifier()
	if err != nil {
		t.Fatal(err)
	}
	if err = l.Register(n.Fd(), Read); err != nil {
		t.Fatal(err)
	}
	h := &countHandler{}
	done := make(chan struct{})
	go func() {
		l.Run(h)
		close(done)
	}()

	n.Notify()
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&h.readable) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("readable event not delivered")
		}
		time.Sleep(time.Millisecond)
	}

	l.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	l.Close()
	n.Close()
}
