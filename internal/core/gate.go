package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/TheLazyLemur/pathscope/internal/audit"
	"github.com/TheLazyLemur/pathscope/internal/intervention"
	"github.com/TheLazyLemur/pathscope/internal/scope"
	"github.com/pkg/errors"
)

var _ Evaluator = (*intervention.Evaluator)(nil)

// Request is one tool call as seen by the dispatch layer.
type Request struct {
	Tool      string          `json:"tool"`
	Arguments scope.Arguments `json:"arguments"`
	Metadata  scope.Metadata  `json:"metadata,omitempty"`
}

// Gate evaluates tool calls, records the outcome and notifies observers.
type Gate struct {
	evaluator  Evaluator
	recorder   Recorder
	defaultDir string

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewGate creates a gate. recorder may be nil to skip auditing.
func NewGate(evaluator Evaluator, recorder Recorder, notifiers ...Notifier) *Gate {
	return &Gate{
		evaluator: evaluator,
		recorder:  recorder,
		notifiers: notifiers,
	}
}

// WithDefaultWorkingDirectory sets the boundary used for requests whose
// metadata carries none.
func (g *Gate) WithDefaultWorkingDirectory(dir string) *Gate {
	g.defaultDir = dir
	return g
}

// AddNotifier registers an observer for subsequent decisions. It may be
// called while Check runs on other goroutines.
func (g *Gate) AddNotifier(n Notifier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notifiers = append(g.notifiers, n)
}

// Check evaluates req. The decision is always valid; a non-nil error means
// only that recording it failed.
func (g *Gate) Check(ctx context.Context, req Request) (intervention.Decision, error) {
	md := g.metadataFor(req.Metadata)
	d := g.evaluator.Evaluate(req.Tool, req.Arguments, md)

	slog.Debug("intervention decision", "tool", d.Tool, "required", d.Required, "reason", d.Reason)

	var recordErr error
	if g.recorder != nil {
		rec := &audit.Record{
			Tool:             d.Tool,
			Mode:             string(d.Mode),
			Resolver:         d.Resolver,
			Required:         d.Required,
			WorkingDirectory: d.WorkingDirectory,
			Paths:            d.OutsidePaths,
			Reason:           d.Reason,
		}
		if err := g.recorder.Save(ctx, rec); err != nil {
			slog.Warn("recording decision", "tool", d.Tool, "error", err)
			recordErr = errors.Wrap(err, "recording decision")
		}
	}

	g.mu.RLock()
	notifiers := g.notifiers
	g.mu.RUnlock()
	for _, n := range notifiers {
		n.NotifyDecision(d)
	}
	return d, recordErr
}

// metadataFor returns md, filling in the default working directory without
// mutating the caller's map.
func (g *Gate) metadataFor(md scope.Metadata) scope.Metadata {
	if g.defaultDir == "" || md.WorkingDirectory() != "" {
		return md
	}
	out := make(scope.Metadata, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	out[scope.WorkingDirectoryKey] = g.defaultDir
	return out
}
