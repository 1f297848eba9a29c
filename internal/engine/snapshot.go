package engine

import (
	"context"
	"errors"

	"github.com/BittieTasks/trust/internal/scoring"
)

// ErrInvalidSnapshot is returned when a snapshot lacks the identity needed
// to build a decision record. It is the only error Evaluate returns.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is an immutable, caller-owned view of the thing being judged.
type Snapshot interface {
	EntityID() string
	// SubjectID is the user the entity belongs to; it may be empty.
	SubjectID() string
	// Attributes is a flat, non-sensitive summary. It becomes the record's
	// inputs and the snapshot variable of configured override rules.
	Attributes() map[string]any
}

// Evaluator inspects a snapshot and emits signals for the factors it owns.
// It must not fail on missing data: absent fields mean not triggered.
type Evaluator[S Snapshot] interface {
	Name() string
	// Factors lists every factor name Evaluate may emit.
	Factors() []string
	Evaluate(ctx context.Context, s S) []scoring.Signal
}

// Defaulter is implemented by evaluators whose safe default is something
// other than "not triggered". The pipeline uses it when Evaluate outlives
// its timeout.
type Defaulter interface {
	SafeDefault() []scoring.Signal
}

type funcEvaluator[S Snapshot] struct {
	name    string
	factors []string
	fn      func(ctx context.Context, s S) []scoring.Signal
}

// EvaluatorFunc wraps a pure function as an Evaluator.
func EvaluatorFunc[S Snapshot](name string, factors []string, fn func(ctx context.Context, s S) []scoring.Signal) Evaluator[S] {
	return &funcEvaluator[S]{name: name, factors: factors, fn: fn}
}

func (f *funcEvaluator[S]) Name() string      { return f.name }
func (f *funcEvaluator[S]) Factors() []string { return f.factors }
func (f *funcEvaluator[S]) Evaluate(ctx context.Context, s S) []scoring.Signal {
	return f.fn(ctx, s)
}
