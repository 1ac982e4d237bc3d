package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// ThreadCreator allocates conversation threads on the remote runtime.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

// Manager owns session lifecycle: it maps session IDs to runtime threads,
// allocates threads lazily, and serializes turns per session.
type Manager struct {
	store   Store
	threads ThreadCreator
	locker  *Locker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewManager creates a Manager. lockTimeout bounds how long a turn waits
// for a busy session before failing.
func NewManager(store Store, threads ThreadCreator, metrics *observability.Metrics, logger *slog.Logger, lockTimeout time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		threads: threads,
		locker:  NewLocker(lockTimeout),
		logger:  logger,
		metrics: metrics,
	}
}

// GetOrCreate returns the session for id, creating it (and its backing
// thread) on first use. An empty id allocates a fresh session ID.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*models.Session, error) {
	if id != "" {
		session, err := m.store.Get(ctx, id)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	threadID, err := m.threads.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	session := &models.Session{ID: id, ThreadID: threadID}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Inc()
	}
	m.logger.Info("session created", "session_id", id, "thread_id", threadID)
	return session, nil
}

// Reset abandons the session's current thread and binds a fresh one. The
// session ID survives so clients keep their handle across resets.
func (m *Manager) Reset(ctx context.Context, id string) (*models.Session, error) {
	release, err := m.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	threadID, err := m.threads.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	session.ThreadID = threadID
	session.Generation++
	if err := m.store.Update(ctx, session); err != nil {
		return nil, err
	}
	m.logger.Info("session reset", "session_id", id,
		"thread_id", threadID, "generation", session.Generation)
	return session, nil
}

// Remove deletes the session. Its thread is abandoned on the runtime side.
func (m *Manager) Remove(ctx context.Context, id string) error {
	release, err := m.locker.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	m.logger.Info("session removed", "session_id", id)
	return nil
}

// WithTurn runs fn while holding the session's turn lock, so a session
// never has two turns in flight against its thread.
func (m *Manager) WithTurn(ctx context.Context, id string, fn func(session *models.Session) error) error {
	release, err := m.locker.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	session, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return fn(session)
}
