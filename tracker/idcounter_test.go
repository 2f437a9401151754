package tracker

import (
	"sync"
	"testing"
)

func TestIDCounter(t *testing.T) {

	c, err := NewIDCounter(1)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for want := 1; want <= 5; want++ {
		if got := c.NewID(); got != want {
			t.Errorf("expected id %d, got %d", want, got)
		}
	}

	c.Reset()

	if got := c.NewID(); got != 1 {
		t.Errorf("expected id 1 after reset, got %d", got)
	}
}

func TestIDCounterStartValidation(t *testing.T) {

	if _, err := NewIDCounter(NoID); err == nil {
		t.Errorf("expected error for start id %d", NoID)
	}

	if _, err := NewIDCounter(-5); err == nil {
		t.Errorf("expected error for start id -5")
	}

	if _, err := NewIDCounter(0); err != nil {
		t.Errorf("unexpected error for start id 0: %v", err)
	}
}

// TestIDCounterConcurrent allocates from many goroutines, every id must be
// unique
func TestIDCounterConcurrent(t *testing.T) {

	c, err := NewIDCounter(0)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const workers = 8
	const perWorker = 100

	ids := make(chan int, workers*perWorker)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- c.NewID()
			}
		}()
	}

	wg.Wait()
	close(ids)

	seen := make(map[int]bool)

	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique ids, got %d", workers*perWorker, len(seen))
	}
}
