package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAfterFunc(t *testing.T) {
	tm := New("test")
	done := make(chan struct{})
	tm.AfterFunc(time.Millisecond*10, func() {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AfterFunc not fired")
	}
}

func TestAfterFuncPanic(t *testing.T) {
	tm := New("test")
	fired := make(chan struct{})
	tm.AfterFunc(time.Millisecond, func() {
		defer close(fired)
		panic("timer panic")
	})
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("panicking callback not fired")
	}
}

func TestAsyncOrder(t *testing.T) {
	tm := New("test")
	var mux sync.Mutex
	var got []int
	var wg sync.WaitGroup
	n := 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		tm.Async(func() {
			mux.Lock()
			got = append(got, i)
			mux.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if got[i] != i {
			t.Fatalf("out of order at %v: %v", i, got[i])
		}
	}
}

func TestAsyncPanic(t *testing.T) {
	tm := New("test")
	var cnt int32
	var wg sync.WaitGroup
	wg.Add(1)
	tm.Async(func() { panic("async panic") })
	tm.Async(func() {
		atomic.AddInt32(&cnt, 1)
		wg.Done()
	})
	wg.Wait()
	if atomic.LoadInt32(&cnt) != 1 {
		t.Fatalf("follow-up task not executed")
	}
}
