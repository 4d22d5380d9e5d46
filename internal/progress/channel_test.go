package progress

import (
	"sync"
	"testing"
	"time"
)

func TestChannel_burstThenReceive_yieldsLatestOnly(t *testing.T) {
	ch := New[int]()
	for i := 1; i <= 100; i++ {
		if !ch.TrySend(i) {
			t.Fatalf("TrySend(%d) on open channel returned false", i)
		}
	}

	v, ok := ch.Recv()
	if !ok || v != 100 {
		t.Fatalf("Recv = (%d, %v), want (100, true)", v, ok)
	}

	ch.Close()
	if v, ok := ch.Recv(); ok {
		t.Errorf("expected no further values after burst, got %d", v)
	}
}

func TestChannel_sendAfterDrain_succeeds(t *testing.T) {
	ch := New[string]()
	ch.TrySend("a")
	if v, _ := ch.Recv(); v != "a" {
		t.Fatalf("got %q want a", v)
	}
	ch.TrySend("b")
	if v, _ := ch.Recv(); v != "b" {
		t.Fatalf("got %q want b", v)
	}
}

func TestChannel_pendingValueDeliveredBeforeClose(t *testing.T) {
	ch := New[int]()
	ch.TrySend(7)
	ch.Close()

	v, ok := ch.Recv()
	if !ok || v != 7 {
		t.Fatalf("Recv = (%d, %v), want (7, true)", v, ok)
	}
	if _, ok := ch.Recv(); ok {
		t.Error("expected closed after pending value")
	}
}

func TestChannel_sendAfterClose_dropped(t *testing.T) {
	ch := New[int]()
	ch.Close()
	ch.Close()
	if ch.TrySend(1) {
		t.Error("TrySend after Close should return false")
	}
	if _, ok := ch.Recv(); ok {
		t.Error("Recv after Close should report closed")
	}
}

func TestChannel_recvBlocksUntilSend(t *testing.T) {
	ch := New[int]()
	got := make(chan int, 1)
	go func() {
		v, _ := ch.Recv()
		got <- v
	}()

	select {
	case v := <-got:
		t.Fatalf("Recv returned %d before any send", v)
	case <-time.After(20 * time.Millisecond):
	}

	ch.TrySend(42)
	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("got %d want 42", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not wake up after send")
	}
}

func TestChannel_recvWakesOnClose(t *testing.T) {
	ch := New[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := ch.Recv()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	ch.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected ok=false on close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not wake up on Close")
	}
}

func TestChannel_observedValuesNonDecreasing(t *testing.T) {
	ch := New[uint64]()
	var (
		wg       sync.WaitGroup
		observed []uint64
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			v, ok := ch.Recv()
			if !ok {
				return
			}
			observed = append(observed, v)
		}
	}()

	for i := uint64(1); i <= 10000; i++ {
		ch.TrySend(i)
	}
	ch.Close()
	wg.Wait()

	if len(observed) == 0 {
		t.Fatal("consumer observed nothing")
	}
	for i := 1; i < len(observed); i++ {
		if observed[i] < observed[i-1] {
			t.Fatalf("observed[%d]=%d < observed[%d]=%d", i, observed[i], i-1, observed[i-1])
		}
	}
	if last := observed[len(observed)-1]; last != 10000 {
		t.Errorf("last observed = %d, want 10000", last)
	}
}

func TestDiscard(t *testing.T) {
	s := Discard[int]()
	if !s.TrySend(1) {
		t.Error("Discard sink should accept values")
	}
}
