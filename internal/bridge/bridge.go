// Package bridge multiplexes blocking callers onto a single long-lived
// worker loop.
//
// The agent runtime client and turn processing are only safe to drive from
// one execution context. The bridge is the concurrency contract that makes
// that usable from concurrent request handlers: any number of goroutines
// call Submit and block on their own correlated result, while the work
// itself runs sequentially on one loop goroutine that lives for the rest of
// the process.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSubmitTimeout is returned when a Submit call's timeout elapses before
// the loop produces a result. The timeout detaches the waiter, not the
// work: the submitted item keeps running on the loop to completion.
var ErrSubmitTimeout = errors.New("bridge: submit timed out")

// Work is one unit of work executed on the loop. The context passed in is
// the loop's own context, not the submitting caller's: a caller timing out
// must not cancel in-flight work.
type Work func(ctx context.Context) (any, error)

type result struct {
	value any
	err   error
}

type submission struct {
	ticket string
	work   Work
	done   chan result // buffered; the loop never blocks on a detached waiter
}

// Bridge owns the worker loop and its submission queue. The zero value is
// not usable; create one with New. All methods are safe for concurrent use.
type Bridge struct {
	logger *slog.Logger

	startOnce sync.Once
	queue     chan submission
	running   chan struct{} // closed once the loop is confirmed running
}

// New creates a Bridge. The worker loop starts lazily on first Submit.
func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		logger:  logger,
		queue:   make(chan submission),
		running: make(chan struct{}),
	}
}

// start launches the worker loop exactly once. Concurrent first callers all
// block until the loop is confirmed running, so no submission can race the
// startup.
func (b *Bridge) start() {
	b.startOnce.Do(func() {
		go b.runLoop()
	})
	<-b.running
}

// runLoop is the single execution context for all submitted work. It has
// no shutdown path: the loop lives for the lifetime of the process.
func (b *Bridge) runLoop() {
	close(b.running)
	ctx := context.Background()
	for sub := range b.queue {
		value, err := b.runOne(ctx, sub)
		sub.done <- result{value: value, err: err}
	}
}

func (b *Bridge) runOne(ctx context.Context, sub submission) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bridge work panicked", "ticket", sub.ticket, "panic", r)
			err = errors.New("bridge: work panicked")
		}
	}()
	start := time.Now()
	value, err = sub.work(ctx)
	b.logger.Debug("bridge work finished",
		"ticket", sub.ticket,
		"duration", time.Since(start),
		"error", err)
	return value, err
}

// Submit enqueues work on the loop and blocks until the loop produces its
// result or the caller's context is done. Each call is correlated by a
// generated ticket; results never cross between callers.
func (b *Bridge) Submit(ctx context.Context, work Work) (any, error) {
	b.start()

	sub := submission{
		ticket: uuid.NewString(),
		work:   work,
		done:   make(chan result, 1),
	}

	select {
	case b.queue <- sub:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSubmitTimeout
		}
		return nil, ctx.Err()
	}

	select {
	case res := <-sub.done:
		return res.value, res.err
	case <-ctx.Done():
		// Detach the waiter only. The buffered done channel lets the
		// loop publish the eventual result without blocking.
		b.logger.Warn("bridge waiter detached", "ticket", sub.ticket, "cause", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSubmitTimeout
		}
		return nil, ctx.Err()
	}
}

// SubmitTimeout is Submit bounded by a fixed timeout. A zero timeout waits
// indefinitely.
func (b *Bridge) SubmitTimeout(work Work, timeout time.Duration) (any, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return b.Submit(ctx, work)
}
