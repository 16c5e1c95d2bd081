package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDoRunsWork(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, Timeout: time.Second})

	ran := false
	err := p.Do(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Fatal("work did not run")
	}
	if p.InFlight() != 0 {
		t.Fatalf("in flight after Do = %d", p.InFlight())
	}
}

func TestShedAtCapacity(t *testing.T) {
	p := New(Config{MaxConcurrent: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := p.Do(context.Background(), func(context.Context) error {
		t.Error("shed request must not run")
		return nil
	})
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("err = %v, want ErrCapacity", err)
	}
	if p.Shed() != 1 {
		t.Fatalf("Shed() = %d, want 1", p.Shed())
	}

	close(release)
	wg.Wait()

	// Slot is free again.
	if err := p.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do after release: %v", err)
	}
}

func TestDeadline(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, Timeout: 20 * time.Millisecond})

	err := p.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if p.TimedOut() != 1 {
		t.Fatalf("TimedOut() = %d, want 1", p.TimedOut())
	}
}

func TestCallerCancelPassesThrough(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWorkErrorPassesThrough(t *testing.T) {
	p := New(Config{MaxConcurrent: 1, Timeout: time.Second})

	sentinel := errors.New("boom")
	err := p.Do(context.Background(), func(context.Context) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
}
