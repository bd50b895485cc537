package ringbuffer

import (
	"sync/atomic"
)

/*
	通用无锁环形队列，固定容量
	满了不会扩容，Put直接返回false，交给上层做背压
	每个槽位带一个seq，标记当前是否写入完成
*/

type slot struct {
	seq   uint32
	value interface{}
}

type Queue struct {
	cap   uint32
	mask  uint32
	tail  uint32
	head  uint32
	cache []slot
}

// 容量会向上取整到2的指数倍，最小为2
func New(size int) *Queue {
	c := 2
	for c < size {
		c <<= 1
	}
	q := &Queue{
		cap:   uint32(c),
		mask:  uint32(c - 1),
		cache: make([]slot, c, c),
	}
	for i := range q.cache {
		q.cache[i].seq = uint32(i)
	}
	return q
}

func (q *Queue) Cap() int {
	return int(q.cap)
}

// 满了返回false
func (q *Queue) Put(v interface{}) bool {
	for {
		tail := atomic.LoadUint32(&q.tail)
		s := &q.cache[tail&q.mask]
		seq := atomic.LoadUint32(&s.seq)
		dif := int32(seq - tail)
		if dif == 0 {
			if atomic.CompareAndSwapUint32(&q.tail, tail, tail+1) {
				s.value = v
				atomic.StoreUint32(&s.seq, tail+1)
				return true
			}
		} else if dif < 0 {
			return false
		}
	}
}

func (q *Queue) Pop() (interface{}, bool) {
	for {
		head := atomic.LoadUint32(&q.head)
		s := &q.cache[head&q.mask]
		seq := atomic.LoadUint32(&s.seq)
		dif := int32(seq - (head + 1))
		if dif == 0 {
			if atomic.CompareAndSwapUint32(&q.head, head, head+1) {
				v := s.value
				s.value = nil // gc
				atomic.StoreUint32(&s.seq, head+q.cap)
				return v, true
			}
		} else if dif < 0 {
			return nil, false
		}
	}
}

// 只是一个快照，并发下不精确
func (q *Queue) Size() int {
	tail := atomic.LoadUint32(&q.tail)
	head := atomic.LoadUint32(&q.head)
	if tail < head {
		return 0
	}
	return int(tail - head)
}

func (q *Queue) Empty() bool {
	return q.Size() == 0
}
