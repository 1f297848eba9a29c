package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BittieTasks/trust/internal/scoring"
)

// DefaultEvaluatorTimeout bounds one evaluator when the engine config
// leaves it unset.
const DefaultEvaluatorTimeout = 2 * time.Second

// Pipeline runs a fixed set of evaluators concurrently and collects their
// signals in declaration order.
type Pipeline[S Snapshot] struct {
	evaluators []Evaluator[S]
	timeout    time.Duration
	logger     *slog.Logger
}

func NewPipeline[S Snapshot](evaluators []Evaluator[S], timeout time.Duration, logger *slog.Logger) *Pipeline[S] {
	if timeout <= 0 {
		timeout = DefaultEvaluatorTimeout
	}
	return &Pipeline[S]{evaluators: evaluators, timeout: timeout, logger: logger}
}

// Run waits for every evaluator. An evaluator that outlives the timeout is
// abandoned and replaced by its safe default, as is one that panics.
func (p *Pipeline[S]) Run(ctx context.Context, s S) []scoring.Signal {
	results := make([][]scoring.Signal, len(p.evaluators))

	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range p.evaluators {
		g.Go(func() error {
			results[i] = p.runOne(gctx, ev, s)
			return nil
		})
	}
	_ = g.Wait()

	var out []scoring.Signal
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (p *Pipeline[S]) runOne(ctx context.Context, ev Evaluator[S], s S) []scoring.Signal {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan []scoring.Signal, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("evaluator panicked", "evaluator", ev.Name(), "entity_id", s.EntityID(), "panic", r)
				done <- fallback(ev, "failed")
			}
		}()
		done <- ev.Evaluate(ctx, s)
	}()

	select {
	case sigs := <-done:
		return sigs
	case <-ctx.Done():
		p.logger.Warn("evaluator abandoned", "evaluator", ev.Name(), "entity_id", s.EntityID(), "error", ctx.Err())
		return fallback(ev, "timed out")
	}
}

func fallback[S Snapshot](ev Evaluator[S], what string) []scoring.Signal {
	if d, ok := ev.(Defaulter); ok {
		return d.SafeDefault()
	}
	sigs := make([]scoring.Signal, 0, len(ev.Factors()))
	for _, name := range ev.Factors() {
		sigs = append(sigs, scoring.Degrade(name, false, ev.Name()+" "+what+"; "+name+" not triggered"))
	}
	return sigs
}
