// Package orchestrator drives one query turn end to end: submit to the
// remote runtime through the bridge, drain the stream, resolve mid-turn
// approval requests, reconcile artifacts, and clean the user-visible text.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/bridge"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/reconcile"
	"github.com/haasonsaas/relay/internal/runtime"
	"github.com/haasonsaas/relay/internal/stream"
	"github.com/haasonsaas/relay/pkg/models"
)

var (
	// ErrAgentUnavailable is returned when no runtime client has been
	// configured or initialization has not completed.
	ErrAgentUnavailable = errors.New("agent runtime not initialized")

	// ErrApprovalLoopExceeded is returned when the runtime keeps
	// requesting approval past the resubmission cap. Exceeding the cap
	// fails the turn.
	ErrApprovalLoopExceeded = errors.New("approval resubmission cap exceeded")
)

// defaultMaxApprovalRounds bounds the auto-approve/resubmit cycle.
const defaultMaxApprovalRounds = 8

// TurnState names the phases of one turn, for logging and metrics.
type TurnState string

const (
	StateSubmitted     TurnState = "submitted"
	StateStreaming     TurnState = "streaming"
	StateNeedsApproval TurnState = "needs_approval"
	StateReconciling   TurnState = "reconciling"
	StateDone          TurnState = "done"
	StateFailed        TurnState = "failed"
)

// TurnResult is the reconciled outcome of one turn, handed to the caller
// by value.
type TurnResult struct {
	Response string
	Outputs  models.TurnOutputs
}

// Config tunes orchestrator behavior.
type Config struct {
	// MaxApprovalRounds caps approval resubmission (default: 8).
	MaxApprovalRounds int

	// SubmitTimeout bounds how long a caller blocks on the bridge for
	// one turn. Zero waits indefinitely.
	SubmitTimeout time.Duration
}

// Orchestrator runs turns. All turn processing executes on the bridge's
// worker loop; the orchestrator itself holds no per-turn state and is safe
// for concurrent use.
type Orchestrator struct {
	runtime runtime.Client
	bridge  *bridge.Bridge
	rec     *reconcile.Reconciler
	logger  *slog.Logger
	metrics *observability.Metrics
	config  Config
}

// New creates an Orchestrator. runtime may be nil, in which case RunTurn
// fails with ErrAgentUnavailable until one is configured.
func New(rt runtime.Client, b *bridge.Bridge, rec *reconcile.Reconciler, metrics *observability.Metrics, logger *slog.Logger, config Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxApprovalRounds <= 0 {
		config.MaxApprovalRounds = defaultMaxApprovalRounds
	}
	return &Orchestrator{
		runtime: rt,
		bridge:  b,
		rec:     rec,
		logger:  logger,
		metrics: metrics,
		config:  config,
	}
}

// RunTurn processes one query against a conversation thread and blocks
// until the turn completes. Reconciliation degradation never fails the
// turn; runtime errors propagate verbatim.
func (o *Orchestrator) RunTurn(ctx context.Context, query, threadID string) (*TurnResult, error) {
	if o.runtime == nil {
		return nil, ErrAgentUnavailable
	}

	turnID := uuid.NewString()
	logger := o.logger.With("turn_id", turnID, "thread_id", threadID)
	logger.Info("turn submitted", "state", StateSubmitted)
	start := time.Now()

	submitCtx := ctx
	if o.config.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, o.config.SubmitTimeout)
		defer cancel()
	}

	value, err := o.bridge.Submit(submitCtx, func(loopCtx context.Context) (any, error) {
		return o.processTurn(loopCtx, logger, query, threadID)
	})
	if err != nil {
		logger.Error("turn failed", "state", StateFailed, "error", err)
		o.observeTurn(string(StateFailed), time.Since(start))
		return nil, err
	}

	result := value.(*TurnResult)
	logger.Info("turn complete", "state", StateDone,
		"tools", len(result.Outputs.ToolDetails),
		"files", len(result.Outputs.Files),
		"images", len(result.Outputs.Images))
	o.observeTurn(string(StateDone), time.Since(start))
	return result, nil
}

// processTurn runs on the bridge loop. It owns the stream draining,
// the approval cycle, and reconciliation for one turn.
func (o *Orchestrator) processTurn(ctx context.Context, logger *slog.Logger, query, threadID string) (*TurnResult, error) {
	inputs := []runtime.Input{runtime.Query(query)}

	var chunks []models.Chunk
	var raw stream.RawOutputs
	for round := 0; ; round++ {
		logger.Debug("streaming turn", "state", StateStreaming, "round", round)

		s, err := o.runtime.RunStream(ctx, threadID, inputs, true)
		if err != nil {
			return nil, fmt.Errorf("runtime: %w", err)
		}
		roundChunks, err := runtime.DrainStream(s)
		if err != nil {
			return nil, fmt.Errorf("runtime: %w", err)
		}
		chunks = append(chunks, roundChunks...)
		o.observeChunks(len(roundChunks))

		raw = stream.Aggregate(chunks)
		if len(raw.Approvals) == 0 {
			break
		}
		if round+1 >= o.config.MaxApprovalRounds {
			return nil, fmt.Errorf("%w after %d rounds", ErrApprovalLoopExceeded, round+1)
		}

		// Fixed policy: approve every pending request and resubmit.
		logger.Info("auto-approving tool calls", "state", StateNeedsApproval,
			"round", round, "pending", len(raw.Approvals))
		inputs = inputs[:0]
		for _, req := range raw.Approvals {
			inputs = append(inputs, runtime.Approve(req.Respond(true)))
		}
		// Answered requests must not re-trigger the loop next round.
		chunks = withoutApprovals(chunks)
	}

	logger.Debug("reconciling turn", "state", StateReconciling, "chunks", len(chunks))
	finalText := stream.FinalText(chunks)
	outputs := o.rec.Reconcile(ctx, raw, finalText, threadID)
	o.observeTools(len(outputs.ToolDetails))

	return &TurnResult{
		Response: CleanResponseText(finalText),
		Outputs:  outputs,
	}, nil
}

// withoutApprovals drops approval chunks that have been answered.
func withoutApprovals(chunks []models.Chunk) []models.Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if c.Kind == models.ChunkApproval {
			continue
		}
		out = append(out, c)
	}
	return out
}

var (
	// Labeled-link form: [Download the report](sandbox:/mnt/data/x.pdf)
	sandboxLinkPattern = regexp.MustCompile(`\[Download[^\]]*\]\(sandbox:/mnt/data/[^)]+\)`)

	// Bare-path form left over once links are gone.
	sandboxPathPattern = regexp.MustCompile(`sandbox:/mnt/data/[^\s)]+`)

	// Three or more consecutive line breaks (with stray whitespace)
	// collapse to one blank line.
	multiBlankPattern = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// CleanResponseText strips sandbox reference markup from the rendered
// text. The references survive as proper artifact downloads, so the inline
// links are noise for the user.
func CleanResponseText(text string) string {
	text = sandboxLinkPattern.ReplaceAllString(text, "")
	text = sandboxPathPattern.ReplaceAllString(text, "")
	for {
		collapsed := multiBlankPattern.ReplaceAllString(text, "\n\n")
		if collapsed == text {
			break
		}
		text = collapsed
	}
	return strings.TrimSpace(text)
}

func (o *Orchestrator) observeTurn(outcome string, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.TurnCounter.WithLabelValues(outcome).Inc()
	o.metrics.TurnDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (o *Orchestrator) observeChunks(n int) {
	if o.metrics == nil {
		return
	}
	o.metrics.ChunksAggregated.Add(float64(n))
}

func (o *Orchestrator) observeTools(n int) {
	if o.metrics == nil {
		return
	}
	o.metrics.ToolInvocations.Add(float64(n))
}
