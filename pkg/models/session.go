package models

import "time"

// Session binds a client-visible session ID to the runtime thread that
// carries its conversation state. Resetting a session allocates a fresh
// thread and bumps Generation; the old thread is abandoned, not deleted.
type Session struct {
	// ID is the client-facing session identifier.
	ID string `json:"id"`

	// ThreadID is the runtime thread currently backing this session.
	ThreadID string `json:"thread_id"`

	// Generation counts thread resets, starting at 1.
	Generation int `json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
