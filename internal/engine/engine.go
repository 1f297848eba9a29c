// Package engine wires evaluators, the shared aggregator and classifier, and
// the audit journal into a decision engine for one snapshot type.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/metrics"
	"github.com/BittieTasks/trust/internal/scoring"
)

// Config is the fixed configuration of one engine.
type Config[S Snapshot] struct {
	Name       string
	Weights    scoring.WeightTable
	Tiers      scoring.TierTable
	Evaluators []Evaluator[S]
	// Overrides are checked in declaration order.
	Overrides []Override[S]
	// Scorer, when set, replaces the single aggregate and threshold scan.
	// Overrides are then weighed against the tier it returns.
	Scorer func(factors []scoring.Factor) Scored
	// Adjust, when set, runs after classification and may move the tier,
	// for example to keep a previously granted trust level.
	Adjust func(s S, v Verdict) Verdict

	EvaluatorTimeout time.Duration
	RecordTimeout    time.Duration
	Now              func() time.Time
}

// Verdict is the result of assessing a snapshot, before it is recorded.
type Verdict struct {
	Score          float64
	Factors        []scoring.Factor
	Classification scoring.Classification
	Tier           string
	Reasons        []string
	Details        map[string]any
}

// Scored is the base result of a custom Scorer. Reasons are kept only
// when no override decides the tier.
type Scored struct {
	Score   float64
	Tier    string
	Reasons []string
	Details map[string]any
}

// Outcome is what Evaluate hands back to the caller. Logged is true only
// when the record was durably appended.
type Outcome struct {
	Record         audit.Record
	Factors        []scoring.Factor
	Classification scoring.Classification
	Logged         bool
	RecordErr      error
}

type Engine[S Snapshot] struct {
	cfg        Config[S]
	classifier *scoring.Classifier
	pipeline   *Pipeline[S]
	journal    *Journal
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New validates cfg eagerly. Every problem is a *scoring.ConfigError.
func New[S Snapshot](cfg Config[S], recorder audit.Recorder, m *metrics.Metrics, logger *slog.Logger) (*Engine[S], error) {
	if cfg.Name == "" {
		return nil, &scoring.ConfigError{Field: "name", Problem: "engine has no name"}
	}
	if err := cfg.Weights.Validate(cfg.Name); err != nil {
		return nil, err
	}
	classifier, err := scoring.NewClassifier(cfg.Name, cfg.Tiers)
	if err != nil {
		return nil, err
	}
	if err := validateEvaluators(cfg.Name, cfg.Weights, cfg.Evaluators); err != nil {
		return nil, err
	}
	if err := validateOverrides(cfg.Name, classifier, cfg.Overrides); err != nil {
		return nil, err
	}
	if recorder == nil {
		return nil, &scoring.ConfigError{Engine: cfg.Name, Field: "recorder", Problem: "no audit recorder"}
	}
	if m == nil {
		m = metrics.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("engine", cfg.Name)

	return &Engine[S]{
		cfg:        cfg,
		classifier: classifier,
		pipeline:   NewPipeline(cfg.Evaluators, cfg.EvaluatorTimeout, logger),
		journal:    NewJournal(cfg.Name, recorder, m, logger, cfg.RecordTimeout),
		metrics:    m,
		logger:     logger,
	}, nil
}

func validateEvaluators[S Snapshot](engine string, weights scoring.WeightTable, evaluators []Evaluator[S]) error {
	if len(evaluators) == 0 {
		return &scoring.ConfigError{Engine: engine, Field: "evaluators", Problem: "no evaluators"}
	}
	owner := make(map[string]string)
	for _, ev := range evaluators {
		if err := weights.Require(engine, ev.Factors()...); err != nil {
			return err
		}
		for _, f := range ev.Factors() {
			if prev, dup := owner[f]; dup {
				return &scoring.ConfigError{Engine: engine, Field: "evaluators", Problem: fmt.Sprintf("factor %s emitted by both %s and %s", f, prev, ev.Name())}
			}
			owner[f] = ev.Name()
		}
	}
	return nil
}

func validateOverrides[S Snapshot](engine string, c *scoring.Classifier, overrides []Override[S]) error {
	seen := make(map[string]bool, len(overrides))
	for i, o := range overrides {
		if o.Name == "" {
			return &scoring.ConfigError{Engine: engine, Field: fmt.Sprintf("overrides[%d]", i), Problem: "override has no name"}
		}
		if seen[o.Name] {
			return &scoring.ConfigError{Engine: engine, Field: "overrides." + o.Name, Problem: "duplicate override"}
		}
		seen[o.Name] = true
		if o.When == nil {
			return &scoring.ConfigError{Engine: engine, Field: "overrides." + o.Name, Problem: "override has no condition"}
		}
		if !c.Has(o.Tier) {
			return &scoring.ConfigError{Engine: engine, Field: "overrides." + o.Name, Problem: "unknown tier " + o.Tier}
		}
	}
	return nil
}

func (e *Engine[S]) Name() string                    { return e.cfg.Name }
func (e *Engine[S]) Classifier() *scoring.Classifier { return e.classifier }

// Evaluate assesses s, records the decision and returns it. The only error
// is ErrInvalidSnapshot; recording failures are reported via Outcome.
func (e *Engine[S]) Evaluate(ctx context.Context, s S) (Outcome, error) {
	start := time.Now()
	if err := CheckSnapshot(s); err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", e.cfg.Name, err)
	}

	v := e.Assess(ctx, s)
	rec := v.Record(e.cfg.Name, s, e.cfg.Now())

	out := Outcome{
		Record:         rec,
		Factors:        v.Factors,
		Classification: v.Classification,
	}
	out.Logged, out.RecordErr = e.journal.Commit(ctx, rec)
	e.metrics.ObserveDecision(e.cfg.Name, rec.Tier, time.Since(start))

	e.logger.Debug("decision",
		"entity_id", rec.EntityID,
		"tier", rec.Tier,
		"score", rec.Score,
		"logged", out.Logged,
	)
	return out, nil
}

// Assess runs evaluators, aggregates and classifies without recording.
func (e *Engine[S]) Assess(ctx context.Context, s S) Verdict {
	factors := e.cfg.Weights.Apply(e.pipeline.Run(ctx, s))
	base := e.score(factors)

	var hits []scoring.OverrideHit
	for _, o := range e.cfg.Overrides {
		if o.When(s, base.Score) {
			hits = append(hits, scoring.OverrideHit{Name: o.Name, Tier: o.Tier, Reason: o.Reason, Force: o.Force})
		}
	}
	var cls scoring.Classification
	if e.cfg.Scorer == nil {
		cls = e.classifier.Classify(base.Score, hits)
	} else {
		cls = e.classifier.ClassifyFrom(base.Tier, hits)
	}

	for _, f := range factors {
		if f.Degraded {
			e.metrics.IncDegraded(e.cfg.Name, f.Name)
			e.logger.Warn("factor degraded to safe default", "entity_id", s.EntityID(), "factor", f.Name, "reason", f.Reason)
		}
	}

	reasons := Reasons(factors, hits)
	if cls.DecidedBy == "" {
		reasons = append(reasons, base.Reasons...)
	}
	details := make(map[string]any, len(base.Details)+2)
	for k, val := range base.Details {
		details[k] = val
	}
	details["threshold_tier"] = cls.ThresholdTier
	if cls.DecidedBy != "" {
		details["override"] = cls.DecidedBy
	}

	v := Verdict{
		Score:          base.Score,
		Factors:        factors,
		Classification: cls,
		Tier:           cls.Tier,
		Reasons:        reasons,
		Details:        details,
	}
	if e.cfg.Adjust != nil {
		v = e.cfg.Adjust(s, v)
		if !e.classifier.Has(v.Tier) {
			panic(fmt.Sprintf("engine %s: adjust produced unknown tier %q", e.cfg.Name, v.Tier))
		}
	}
	return v
}

func (e *Engine[S]) score(factors []scoring.Factor) Scored {
	if e.cfg.Scorer == nil {
		return Scored{Score: scoring.Aggregate(factors)}
	}
	b := e.cfg.Scorer(factors)
	scoring.CheckScore(b.Score)
	if !e.classifier.Has(b.Tier) {
		panic(fmt.Sprintf("engine %s: scorer produced unknown tier %q", e.cfg.Name, b.Tier))
	}
	return b
}

// CheckSnapshot reports ErrInvalidSnapshot when s carries no entity id.
func CheckSnapshot(s Snapshot) error {
	if strings.TrimSpace(s.EntityID()) == "" {
		return fmt.Errorf("%w: missing entity id", ErrInvalidSnapshot)
	}
	return nil
}

// Reasons lists the human-readable reasons behind a verdict: triggered and
// degraded factors first, then applied overrides. Weights never appear.
func Reasons(factors []scoring.Factor, hits []scoring.OverrideHit) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(r string) {
		if r != "" && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, f := range factors {
		if !f.Triggered && !f.Degraded {
			continue
		}
		if f.Reason != "" {
			add(f.Reason)
		} else {
			add(strings.ReplaceAll(f.Name, "_", " "))
		}
	}
	for _, h := range hits {
		add(h.Reason)
	}
	if len(out) == 0 {
		out = []string{"no factors triggered"}
	}
	return out
}

// Record builds the immutable audit record for v.
func (v Verdict) Record(engine string, s Snapshot, at time.Time) audit.Record {
	var inputs map[string]any
	if attrs := s.Attributes(); len(attrs) > 0 {
		inputs = make(map[string]any, len(attrs))
		for k, val := range attrs {
			inputs[k] = val
		}
	}
	var details map[string]any
	if len(v.Details) > 0 {
		details = make(map[string]any, len(v.Details))
		for k, val := range v.Details {
			details[k] = val
		}
	}
	return audit.Record{
		ID:        uuid.New(),
		EntityID:  s.EntityID(),
		SubjectID: s.SubjectID(),
		Engine:    engine,
		Score:     v.Score,
		Tier:      v.Tier,
		Reasons:   append([]string(nil), v.Reasons...),
		Factors:   scoring.Triggered(v.Factors),
		Inputs:    inputs,
		Details:   details,
		DecidedAt: at.UTC(),
		DecidedBy: audit.DecidedBySystem,
	}
}
