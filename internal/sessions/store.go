// Package sessions tracks the binding between client sessions and runtime
// threads, and serializes turns so each thread has at most one in flight.
package sessions

import (
	"context"
	"errors"

	"github.com/haasonsaas/relay/pkg/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Session, error)

	Close() error
}
