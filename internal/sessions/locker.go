package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when acquiring a session lock times out.
var ErrLockTimeout = errors.New("sessions: lock acquisition timeout")

// Locker serializes turns per session. At most one holder per session ID;
// a second caller blocks until the first releases or its context expires.
//
// Thread Safety:
// Locker is safe for concurrent use.
type Locker struct {
	mu      sync.Mutex
	held    map[string]chan struct{}
	timeout time.Duration
}

// NewLocker creates a Locker. timeout bounds how long Acquire waits for a
// busy session; zero or negative means 30 seconds.
func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Locker{held: make(map[string]chan struct{}), timeout: timeout}
}

// Acquire takes the lock for sessionID, waiting for the current holder if
// there is one. Returns a release function that must be called when done.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	for {
		l.mu.Lock()
		gate, busy := l.held[sessionID]
		if !busy {
			done := make(chan struct{})
			l.held[sessionID] = done
			l.mu.Unlock()

			var once sync.Once
			release := func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, sessionID)
					l.mu.Unlock()
					close(done)
				})
			}
			return release, nil
		}
		l.mu.Unlock()

		select {
		case <-gate:
			// Holder released; retry.
		case <-timer.C:
			return nil, ErrLockTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
