package ident

import (
	"sync"
	"testing"
	"time"

	"snipbin/pkg/domain"

	"github.com/pkg/errors"
)

func TestGeneratorWorkerIDRange(t *testing.T) {
	if _, err := NewGenerator(-1); err == nil {
		t.Error("expected error for negative worker id")
	}
	if _, err := NewGenerator(MaxWorkerID + 1); err == nil {
		t.Error("expected error for worker id above max")
	}
	if _, err := NewGenerator(MaxWorkerID); err != nil {
		t.Errorf("worker id %d should be valid: %v", MaxWorkerID, err)
	}
}

func TestGeneratorUniqueAndMonotonic(t *testing.T) {
	g, err := NewGenerator(7)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	const n = 1_000_000
	seen := make(map[int64]struct{}, n)
	var last int64 = -1
	for i := 0; i < n; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatalf("Next failed at %d: %v", i, err)
		}
		if id < last {
			t.Fatalf("id %d issued after larger id %d", id, last)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d at iteration %d", id, i)
		}
		seen[id] = struct{}{}
		last = id
	}
}

func TestGeneratorConcurrentUnique(t *testing.T) {
	g, err := NewGenerator(3)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	const workers = 8
	const perWorker = 20000
	results := make([][]int64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				id, err := g.Next()
				if err != nil {
					t.Errorf("Next: %v", err)
					return
				}
				ids = append(ids, id)
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()
	seen := make(map[int64]struct{}, workers*perWorker)
	for _, ids := range results {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate id %d across goroutines", id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestGeneratorClockSkewPoisons(t *testing.T) {
	g, err := NewGenerator(1)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	base := time.Now()
	g.now = func() time.Time { return base }
	if _, err := g.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	g.now = func() time.Time { return base.Add(-5 * time.Millisecond) }
	if _, err := g.Next(); !errors.Is(err, domain.ErrClockSkew) {
		t.Fatalf("expected ErrClockSkew, got %v", err)
	}
	// The generator must stay dead even after the clock recovers.
	g.now = func() time.Time { return base.Add(time.Second) }
	if _, err := g.Next(); !errors.Is(err, domain.ErrClockSkew) {
		t.Fatalf("poisoned generator issued again: %v", err)
	}
}

func TestGeneratorSequenceRollsToNextTick(t *testing.T) {
	g, err := NewGenerator(0)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	base := time.Now()
	calls := 0
	g.now = func() time.Time {
		calls++
		// Hold the millisecond until the generator is forced to spin
		// past a full sequence, then advance.
		if calls > maxSequence+2 {
			return base.Add(time.Duration(calls-maxSequence) * time.Millisecond)
		}
		return base
	}
	var last int64 = -1
	for i := 0; i <= maxSequence+1; i++ {
		id, err := g.Next()
		if err != nil {
			t.Fatalf("Next at %d: %v", i, err)
		}
		if id <= last {
			t.Fatalf("id not increasing across sequence rollover: %d then %d", last, id)
		}
		last = id
	}
}

func TestOrdinalFieldDecomposition(t *testing.T) {
	g, err := NewGenerator(42)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	fixed := time.Now()
	g.now = func() time.Time { return fixed }
	id, err := g.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if w := Worker(id); w != 42 {
		t.Errorf("Worker = %d, want 42", w)
	}
	if s := Sequence(id); s != 0 {
		t.Errorf("Sequence = %d, want 0", s)
	}
	got := Timestamp(id)
	want := fixed.UTC().Truncate(time.Millisecond)
	if got.UnixMilli() != want.UnixMilli() {
		t.Errorf("Timestamp = %v, want %v", got, want)
	}
}
