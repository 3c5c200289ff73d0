package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/job"
)

type countingRunner struct {
	calls   int32
	active  int32
	overlap int32
	sleep   time.Duration
	errs    []error
	mu      sync.Mutex
}

func (r *countingRunner) Run(ctx context.Context) (*job.Report, error) {
	if atomic.AddInt32(&r.active, 1) > 1 {
		atomic.StoreInt32(&r.overlap, 1)
	}
	defer atomic.AddInt32(&r.active, -1)

	n := atomic.AddInt32(&r.calls, 1)
	time.Sleep(r.sleep)

	r.mu.Lock()
	defer r.mu.Unlock()
	if int(n) <= len(r.errs) {
		return &job.Report{}, r.errs[n-1]
	}
	return &job.Report{}, nil
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New(&countingRunner{}, 0); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	runner := &countingRunner{errs: []error{errors.New("load stage failed")}}
	s, err := New(runner, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var seen []error
	var mu sync.Mutex
	s.OnRun = func(_ *job.Report, err error) {
		mu.Lock()
		seen = append(seen, err)
		n := len(seen)
		mu.Unlock()
		if n == 3 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("runs = %d, want 3", len(seen))
	}
	if seen[0] == nil || seen[1] != nil {
		t.Fatalf("run errors = %v, want failure then success", seen)
	}
}

func TestSchedulerFirstRunIsImmediate(t *testing.T) {
	runner := &countingRunner{}
	s, err := New(runner, time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.OnRun = func(*job.Report, error) { cancel() }

	start := time.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("first run took %v", elapsed)
	}
	if got := atomic.LoadInt32(&runner.calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestSchedulerRunsNeverOverlap(t *testing.T) {
	runner := &countingRunner{sleep: 15 * time.Millisecond}
	s, err := New(runner, time.Millisecond)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if atomic.LoadInt32(&runner.overlap) != 0 {
		t.Fatalf("runs overlapped")
	}
	if atomic.LoadInt32(&runner.calls) < 2 {
		t.Fatalf("calls = %d, want at least 2", runner.calls)
	}
}
