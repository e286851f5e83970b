package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
)

func TestTryDispatchRunsTask(t *testing.T) {
	p := New(context.Background(), 2, 0, nil)
	done := make(chan struct{})

	err := p.TryDispatch("job-a", 1, func(ctx context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("TryDispatch: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	p.Shutdown(true)
}

func TestTryDispatchRejectsWhenPoolSaturated(t *testing.T) {
	p := New(context.Background(), 1, 0, nil)
	block := make(chan struct{})

	if err := p.TryDispatch("job-a", 5, func(ctx context.Context) error {
		<-block
		return nil
	}); err != nil {
		t.Fatalf("first TryDispatch: %v", err)
	}

	// Give the goroutine a moment to actually claim its slot.
	for i := 0; i < 100 && p.ActiveCount() == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	err := p.TryDispatch("job-b", 5, func(ctx context.Context) error { return nil })
	if !errors.Is(err, jobserr.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}

	close(block)
	p.Shutdown(true)
}

func TestTryDispatchRejectsOverMaxInstancesForSameJob(t *testing.T) {
	p := New(context.Background(), 5, 0, nil)
	block := make(chan struct{})

	if err := p.TryDispatch("job-a", 1, func(ctx context.Context) error {
		<-block
		return nil
	}); err != nil {
		t.Fatalf("first TryDispatch: %v", err)
	}
	for i := 0; i < 100 && p.ActiveForJob("job-a") == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	err := p.TryDispatch("job-a", 1, func(ctx context.Context) error { return nil })
	if !errors.Is(err, jobserr.ErrOverflow) {
		t.Fatalf("expected ErrOverflow for a second instance of job-a, got %v", err)
	}

	close(block)
	p.Shutdown(true)
}

func TestRecoversPanicWithoutCrashingPool(t *testing.T) {
	p := New(context.Background(), 2, 0, nil)
	var wg sync.WaitGroup
	wg.Add(1)

	if err := p.TryDispatch("job-a", 1, func(ctx context.Context) error {
		defer wg.Done()
		panic("boom")
	}); err != nil {
		t.Fatalf("TryDispatch: %v", err)
	}
	wg.Wait()

	ran := make(chan struct{})
	if err := p.TryDispatch("job-b", 1, func(ctx context.Context) error {
		close(ran)
		return nil
	}); err != nil {
		t.Fatalf("TryDispatch after panic: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("pool did not accept further work after a panicking task")
	}
}

func TestPerTaskTimeoutCancelsContext(t *testing.T) {
	p := New(context.Background(), 1, 20*time.Millisecond, nil)
	canceled := make(chan struct{})

	err := p.TryDispatch("job-a", 1, func(ctx context.Context) error {
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("TryDispatch: %v", err)
	}

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("expected context to be cancelled by the per-task timeout")
	}
}
