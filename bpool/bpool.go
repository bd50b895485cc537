package bpool

import (
	"math/bits"
	"sync"
)

/*
	接收网络数据的缓冲池
	小于64k的数据会被重用
*/
const (
	min_size  = 32
	max_size  = 64 * 1024
	pool_size = 12 // 32,64,128,256,512,1k,2k,4k,8k,16k,32k,64k
)

var pool [pool_size]sync.Pool

type Buff struct {
	b       []byte
	poolIdx int8
}

func init() {
	for i := 0; i < pool_size; i++ {
		size := getSize(i)
		idx := i
		pool[i].New = func() interface{} {
			return &Buff{poolIdx: int8(idx), b: make([]byte, size)}
		}
	}
}

func New(size int) *Buff {
	if size >= max_size {
		// 很少这么大，重用意义不大，直接申请
		b := make([]byte, 0, size)
		return &Buff{poolIdx: -1, b: b}
	}
	idx := getIndex(size)
	buf := pool[idx].Get().(*Buff)
	buf.b = buf.b[0:0]
	return buf
}

func NewBuf(buf []byte) *Buff {
	size := len(buf)
	b := New(size)
	copy(b.b[0:size], buf)
	b.b = b.b[:size]
	return b
}

func getIndex(size int) int {
	if size < min_size {
		return 0
	}
	return bits.Len32(uint32(size-1)) - 5
}

// 调用后不能继续使用buff
func (b *Buff) Free() {
	if b.poolIdx < 0 {
		return
	}
	pool[b.poolIdx].Put(b)
}

func (b *Buff) Size() int {
	return len(b.b)
}

func (b *Buff) Cap() int {
	return cap(b.b)
}

func (b *Buff) Append(buf ...byte) *Buff {
	totalSize := len(buf) + b.Size()
	if totalSize > b.Cap() {
		newCache := New(totalSize)
		newCache = newCache.Append(b.b...).Append(buf...)
		b.Free()
		return newCache
	}
	b.b = append(b.b, buf...)
	return b
}

func (b *Buff) ToBytes() []byte {
	return b.b
}

func (b *Buff) SetSize(size int) {
	b.b = b.b[:size]
}

func getSize(i int) int {
	return min_size << i
}
