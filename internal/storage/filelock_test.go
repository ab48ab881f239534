package storage

import (
	"sync"
	"testing"
	"time"
)

func TestLeadLocker_SerializesSameLead(t *testing.T) {
	locker := NewLeadLocker(t.TempDir())

	unlock, err := locker.Lock("lead-1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Lock("lead-1")
		if err != nil {
			t.Errorf("second Lock: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		_ = second()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(100 * time.Millisecond):
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestLeadLocker_DifferentLeadsDoNotContend(t *testing.T) {
	locker := NewLeadLocker(t.TempDir())

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			unlock, err := locker.Lock(id)
			if err != nil {
				t.Errorf("Lock(%s): %v", id, err)
				return
			}
			defer unlock()
			time.Sleep(20 * time.Millisecond)
		}(id)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("locks for different leads blocked each other")
	}
}
