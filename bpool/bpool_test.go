package bpool

import "testing"

func TestNewAppend(t *testing.T) {
	b := New(16)
	if b.Size() != 0 {
		t.Fatalf("size = %d", b.Size())
	}
	b = b.Append([]byte("hello")...)
	if string(b.ToBytes()) != "hello" {
		t.Fatalf("bytes = %q", b.ToBytes())
	}
	// 超过容量触发搬迁
	big := make([]byte, 1024)
	b = b.Append(big...)
	if b.Size() != 5+1024 {
		t.Fatalf("size = %d", b.Size())
	}
	b.Free()
}

func TestNewBuf(t *testing.T) {
	b := NewBuf([]byte("abc"))
	if string(b.ToBytes()) != "abc" {
		t.Fatalf("bytes = %q", b.ToBytes())
	}
	b.Free()
}

func BenchmarkNewAndFree(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := New(128)
		buf.Free()
	}
}
