package core

import (
	"context"

	"github.com/TheLazyLemur/pathscope/internal/audit"
	"github.com/TheLazyLemur/pathscope/internal/intervention"
	"github.com/TheLazyLemur/pathscope/internal/scope"
)

// Evaluator decides whether a tool call needs intervention.
type Evaluator interface {
	Evaluate(tool string, args scope.Arguments, md scope.Metadata) intervention.Decision
}

// Recorder persists decisions.
type Recorder interface {
	Save(ctx context.Context, rec *audit.Record) error
}

// Notifier is told about every decision after it has been recorded.
type Notifier interface {
	NotifyDecision(d intervention.Decision)
}
