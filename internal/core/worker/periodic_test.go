package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPeriodic_RunsImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPeriodic("test", 10*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 3 {
			cancel()
		}
		return errors.New("ignored")
	}, nil)

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	if runs.Load() < 3 {
		t.Errorf("expected at least 3 runs, got %d", runs.Load())
	}
}

func TestPeriodic_DisabledWithoutInterval(t *testing.T) {
	called := false
	NewPeriodic("off", 0, func(context.Context) error {
		called = true
		return nil
	}, nil).Start(context.Background())

	if called {
		t.Error("disabled worker should not run its task")
	}
}
