package ringbuffer

import (
	"sync"
	"testing"
)

func TestFIFO(t *testing.T) {
	q := New(8)
	for i := 0; i < 8; i++ {
		if !q.Put(i) {
			t.Fatalf("put %d failed", i)
		}
	}
	if q.Put(8) {
		t.Fatal("put on full queue succeeded")
	}
	for i := 0; i < 8; i++ {
		v, ok := q.Pop()
		if !ok || v.(int) != i {
			t.Fatalf("pop = %v %v, want %d", v, ok, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("pop on empty queue succeeded")
	}
}

func TestRoundUp(t *testing.T) {
	q := New(5)
	if q.Cap() != 8 {
		t.Fatalf("cap = %d", q.Cap())
	}
}

func TestConcurrent(t *testing.T) {
	const producers = 8
	const perProducer = 1000
	q := New(producers * perProducer)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if !q.Put(p*perProducer + i) {
					t.Error("put failed")
					return
				}
			}
		}(p)
	}
	wg.Wait()

	sum := 0
	count := 0
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		sum += v.(int)
		count++
	}
	total := producers * perProducer
	if count != total {
		t.Fatalf("count = %d, want %d", count, total)
	}
	if sum != total*(total-1)/2 {
		t.Fatalf("sum = %d", sum)
	}
}
