package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

type fakeThreads struct {
	mu    sync.Mutex
	count int
	err   error
}

func (f *fakeThreads) CreateThread(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return fmt.Sprintf("thread_%d", f.count), nil
}

func newTestManager(threads *fakeThreads) *Manager {
	return NewManager(NewMemoryStore(), threads, nil, nil, time.Second)
}

func TestManager_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	threads := &fakeThreads{}
	m := newTestManager(threads)

	created, err := m.GetOrCreate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ThreadID != "thread_1" || created.Generation != 1 {
		t.Errorf("unexpected session: %#v", created)
	}

	// Second lookup reuses the thread.
	again, err := m.GetOrCreate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ThreadID != "thread_1" || threads.count != 1 {
		t.Errorf("thread must be reused: %#v (created %d)", again, threads.count)
	}
}

func TestManager_GetOrCreate_GeneratesID(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeThreads{})

	session, err := m.GetOrCreate(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID == "" {
		t.Error("empty request must allocate a session ID")
	}
}

func TestManager_GetOrCreate_ThreadFailure(t *testing.T) {
	ctx := context.Background()
	wantErr := errors.New("runtime down")
	m := newTestManager(&fakeThreads{err: wantErr})

	if _, err := m.GetOrCreate(ctx, "sess-1"); !errors.Is(err, wantErr) {
		t.Errorf("expected thread error, got %v", err)
	}
}

func TestManager_Reset(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeThreads{})

	created, _ := m.GetOrCreate(ctx, "sess-1")
	reset, err := m.Reset(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reset.ID != created.ID {
		t.Error("reset must keep the session ID")
	}
	if reset.ThreadID == created.ThreadID {
		t.Error("reset must allocate a new thread")
	}
	if reset.Generation != 2 {
		t.Errorf("expected generation 2, got %d", reset.Generation)
	}
}

func TestManager_Reset_Missing(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeThreads{})

	if _, err := m.Reset(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_WithTurn_Serializes(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&fakeThreads{})
	m.GetOrCreate(ctx, "sess-1")

	var mu sync.Mutex
	var inFlight, maxInFlight int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithTurn(ctx, "sess-1", func(_ *models.Session) error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("turn failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("turns must serialize per session, saw %d in flight", maxInFlight)
	}
}

func TestLocker_Timeout(t *testing.T) {
	locker := NewLocker(20 * time.Millisecond)
	release, err := locker.Acquire(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	if _, err := locker.Acquire(context.Background(), "sess-1"); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
}

func TestLocker_IndependentSessions(t *testing.T) {
	locker := NewLocker(time.Second)
	releaseA, err := locker.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	releaseB, err := locker.Acquire(context.Background(), "b")
	if err != nil {
		t.Fatalf("sessions must not contend with each other: %v", err)
	}
	releaseB()
}

func TestLocker_ContextCancel(t *testing.T) {
	locker := NewLocker(time.Minute)
	release, _ := locker.Acquire(context.Background(), "sess-1")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "sess-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context error, got %v", err)
	}
}
