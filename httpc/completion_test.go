package httpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompletionResolveOnce(t *testing.T) {
	c := newCompletion()
	c.resolve(&Response{StatusCode: 200})
	c.reject(ErrTimeout) // 晚到的reject被丢弃
	rsp, err := c.Result()
	assert.NoError(t, err)
	assert.Equal(t, 200, rsp.StatusCode)
}

func TestCompletionRejectOnce(t *testing.T) {
	c := newCompletion()
	c.reject(ErrQueueFull)
	c.resolve(&Response{StatusCode: 200})
	rsp, err := c.Result()
	assert.Nil(t, rsp)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestCompletionWait(t *testing.T) {
	c := newCompletion()
	rsp, err := c.Wait(10 * time.Millisecond)
	assert.Nil(t, rsp)
	assert.ErrorIs(t, err, ErrTimeout)

	c.resolve(&Response{StatusCode: 200})
	rsp, err = c.Wait(10 * time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 200, rsp.StatusCode)
}

func TestCompletionDone(t *testing.T) {
	c := newCompletion()
	select {
	case <-c.Done():
		t.Fatal("done before completion")
	default:
	}
	c.resolve(nil)
	select {
	case <-c.Done():
	default:
		t.Fatal("not done after resolve")
	}
}
