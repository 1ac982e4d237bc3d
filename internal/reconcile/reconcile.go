// Package reconcile turns the raw evidence gathered from one turn's stream
// into coherent TurnOutputs: a single current image, a deduplicated file
// list with backfilled identifiers, and an ordered tool invocation list
// whose derived label list stays index-aligned by construction.
package reconcile

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/stream"
	"github.com/haasonsaas/relay/pkg/models"
)

// sandboxRefPattern matches sandbox file references the runtime embeds in
// rendered text instead of exposing structurally, e.g.
// "sandbox:/mnt/data/report.pdf". The extension set is fixed: anything
// else is not a downloadable artifact.
var sandboxRefPattern = regexp.MustCompile(
	`(?i)sandbox:/mnt/data/([^\s)]+\.(pptx|xlsx|csv|pdf|docx|txt|json|png|jpg))`)

// HistoryLister is the out-of-band lookup against persisted conversation
// history, used only by identifier backfill.
type HistoryLister interface {
	// ListMessages returns the thread's messages in the store's
	// traversal order.
	ListMessages(ctx context.Context, threadID string) ([]models.ThreadMessage, error)
}

// Reconciler runs after a turn's stream completes. It never fails the
// turn: backfill problems degrade to unresolved references.
type Reconciler struct {
	history HistoryLister
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Reconciler. history may be nil, in which case identifier
// backfill is skipped and text-scanned references stay unresolved.
func New(history HistoryLister, metrics *observability.Metrics, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{history: history, metrics: metrics, logger: logger}
}

// Reconcile produces the turn's final outputs from raw stream evidence,
// the turn's final rendered text, and the conversation thread to consult
// for identifier backfill.
//
// Reconcile is a pure function of its inputs plus the history lookup: it
// does not mutate raw, and running it twice yields identical outputs.
func (r *Reconciler) Reconcile(ctx context.Context, raw stream.RawOutputs, finalText, threadID string) models.TurnOutputs {
	images := latestImage(dedupImages(raw.Images))

	details := models.DedupToolInvocations(raw.Tools)
	labels := make([]string, len(details))
	for i, d := range details {
		labels[i] = d.Label()
	}

	files := append([]models.ArtifactReference(nil), raw.Files...)
	files = appendTextScanned(files, finalText)
	files = r.backfillFileIDs(ctx, files, threadID)
	files = mergeByName(files)

	return models.TurnOutputs{
		Images:      images,
		Files:       files,
		Tools:       labels,
		ToolDetails: details,
	}
}

// dedupImages removes repeated image IDs, preserving first-seen order.
func dedupImages(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}

// latestImage keeps only the most recent image when several distinct ones
// were produced: the agent replacing its prior visualization, not adding
// to it. Zero or one image passes through unchanged.
func latestImage(unique []string) []string {
	if len(unique) > 1 {
		return unique[len(unique)-1:]
	}
	return unique
}

// appendTextScanned adds an unresolved reference for each sandbox path in
// the final text not already present by file name.
func appendTextScanned(files []models.ArtifactReference, finalText string) []models.ArtifactReference {
	known := make(map[string]bool, len(files))
	for _, f := range files {
		if f.FileName != "" {
			known[f.FileName] = true
		}
	}
	for _, match := range sandboxRefPattern.FindAllStringSubmatch(finalText, -1) {
		name, ext := match[1], strings.ToLower(match[2])
		if known[name] {
			continue
		}
		known[name] = true
		files = append(files, models.ArtifactReference{
			FileName:    name,
			FileType:    ext,
			SandboxPath: "sandbox:/mnt/data/" + name,
			Origin:      models.OriginTextScan,
		})
	}
	return files
}

// backfillFileIDs resolves references without identifiers by positional
// consumption of the file IDs recorded against the thread after the turn
// completed. Best-effort: a failed or short lookup leaves the remaining
// references unresolved rather than failing the turn.
func (r *Reconciler) backfillFileIDs(ctx context.Context, files []models.ArtifactReference, threadID string) []models.ArtifactReference {
	unresolved := 0
	for _, f := range files {
		if !f.Resolved() {
			unresolved++
		}
	}
	if unresolved == 0 || r.history == nil || threadID == "" {
		return files
	}

	messages, err := r.history.ListMessages(ctx, threadID)
	if err != nil {
		r.logger.Warn("history lookup failed, leaving references unresolved",
			"thread_id", threadID, "unresolved", unresolved, "error", err)
		if r.metrics != nil {
			r.metrics.ReconcileDegradations.Inc()
		}
		return files
	}

	found := threadFileIDs(messages)
	if len(found) == 0 {
		return files
	}

	next := 0
	for i := range files {
		if files[i].Resolved() {
			continue
		}
		if next >= len(found) {
			break
		}
		files[i].FileID = found[next]
		next++
	}
	return files
}

// threadFileIDs extracts file IDs from thread messages in traversal
// order: each message's attachments first, then its direct ID list.
func threadFileIDs(messages []models.ThreadMessage) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, msg := range messages {
		for _, att := range msg.Attachments {
			add(att.FileID)
		}
		for _, id := range msg.FileIDs {
			add(id)
		}
	}
	return ids
}

// mergeByName collapses references to the same artifact. Matching is by
// exact file name; references without a name (bare structural IDs) are
// keyed by ID. When duplicates merge, a resolved identifier wins over an
// empty one.
func mergeByName(files []models.ArtifactReference) []models.ArtifactReference {
	index := make(map[string]int, len(files))
	out := make([]models.ArtifactReference, 0, len(files))
	for _, f := range files {
		key := f.FileName
		if key == "" {
			key = "\x00id:" + f.FileID
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, f)
			continue
		}
		if !out[i].Resolved() && f.Resolved() {
			out[i].FileID = f.FileID
		}
		if out[i].FileType == "" {
			out[i].FileType = f.FileType
		}
		if out[i].SandboxPath == "" {
			out[i].SandboxPath = f.SandboxPath
		}
	}
	return out
}
