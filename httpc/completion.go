package httpc

import (
	"sync/atomic"
	"time"
)

// 请求结果的交付句柄，resolve/reject只会生效一次
type Completion struct {
	done  chan struct{}
	fired int32
	rsp   *Response
	err   error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) resolve(rsp *Response) {
	if atomic.CompareAndSwapInt32(&c.fired, 0, 1) {
		c.rsp = rsp
		close(c.done)
	}
}

func (c *Completion) reject(err error) {
	if atomic.CompareAndSwapInt32(&c.fired, 0, 1) {
		c.err = err
		close(c.done)
	}
}

// select用
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// 阻塞直到完成
func (c *Completion) Result() (*Response, error) {
	<-c.done
	return c.rsp, c.err
}

// 最多等待d，超时返回ErrTimeout，不影响请求本身
func (c *Completion) Wait(d time.Duration) (*Response, error) {
	select {
	case <-c.done:
		return c.rsp, c.err
	case <-time.After(d):
		return nil, ErrTimeout
	}
}

func rejected(err error) *Completion {
	c := newCompletion()
	c.reject(err)
	return c
}
