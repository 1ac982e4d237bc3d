package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSubmit_ReturnsResult(t *testing.T) {
	b := New(nil)

	got, err := b.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %v", got)
	}
}

func TestSubmit_PropagatesError(t *testing.T) {
	b := New(nil)
	wantErr := errors.New("boom")

	_, err := b.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
}

func TestSubmit_ConcurrentCorrelation(t *testing.T) {
	b := New(nil)
	const n = 64

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("payload-%d", i)
			got, err := b.Submit(context.Background(), func(ctx context.Context) (any, error) {
				return want, nil
			})
			if err != nil {
				errs <- fmt.Errorf("caller %d: %v", i, err)
				return
			}
			if got != want {
				errs <- fmt.Errorf("caller %d: got %v, want %v", i, got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSubmitTimeout_DetachesWaiterNotWork(t *testing.T) {
	b := New(nil)

	started := make(chan struct{})
	finished := make(chan struct{})
	_, err := b.SubmitTimeout(func(ctx context.Context) (any, error) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		close(finished)
		return "late", nil
	}, 10*time.Millisecond)
	if !errors.Is(err, ErrSubmitTimeout) {
		t.Fatalf("expected ErrSubmitTimeout, got %v", err)
	}

	<-started
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("in-flight work was cancelled by waiter timeout")
	}

	// The loop must still serve later submissions.
	got, err := b.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "next", nil
	})
	if err != nil || got != "next" {
		t.Fatalf("loop unusable after detached waiter: %v %v", got, err)
	}
}

func TestSubmit_LazySingleStart(t *testing.T) {
	b := New(nil)

	// Hammer first use from many goroutines: exactly one loop must start
	// and every caller must still get its own result.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := b.Submit(context.Background(), func(ctx context.Context) (any, error) {
				return i, nil
			})
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			if got != i {
				t.Errorf("caller %d: got %v", i, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestSubmit_CancelledContext(t *testing.T) {
	b := New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Submit(ctx, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
