package verification

import (
	"context"
	"time"

	"github.com/BittieTasks/trust/internal/content"
	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/scoring"
)

func contactEvaluator() engine.Evaluator[Profile] {
	return engine.EvaluatorFunc("contact", []string{FactorEmail, FactorPhone}, func(_ context.Context, p Profile) []scoring.Signal {
		email, phone := scoring.Miss(FactorEmail), scoring.Miss(FactorPhone)
		if p.EmailVerified {
			email = scoring.Hit(FactorEmail, "email verified")
		}
		if p.PhoneVerified {
			phone = scoring.Hit(FactorPhone, "phone verified")
		}
		return []scoring.Signal{email, phone}
	})
}

func livenessEvaluator() engine.Evaluator[Profile] {
	return engine.EvaluatorFunc("liveness", []string{FactorFace}, func(_ context.Context, p Profile) []scoring.Signal {
		if p.FaceMatched {
			return []scoring.Signal{scoring.Hit(FactorFace, "face and liveness check passed")}
		}
		return []scoring.Signal{scoring.Miss(FactorFace)}
	})
}

// behaviorEvaluator credits established accounts with a clean record.
func behaviorEvaluator(cfg Config, now func() time.Time) engine.Evaluator[Profile] {
	return engine.EvaluatorFunc("behavior", []string{FactorBehavior}, func(_ context.Context, p Profile) []scoring.Signal {
		at := p.EvaluatedAt
		if at.IsZero() {
			at = now()
		}
		if p.JoinedAt.IsZero() || len(p.RiskFlags) > 0 || p.CompletedTasks < cfg.BehaviorMinTasks {
			return []scoring.Signal{scoring.Miss(FactorBehavior)}
		}
		if at.Sub(p.JoinedAt) < cfg.BehaviorMinAge() {
			return []scoring.Signal{scoring.Miss(FactorBehavior)}
		}
		return []scoring.Signal{scoring.Hit(FactorBehavior, "established account in good standing")}
	})
}

// documentEvaluator asks the document capability whether the submitted
// identity document is authentic. Failure counts as not verified.
type documentEvaluator struct {
	analyzer content.DocumentAnalyzer
	timeout  time.Duration
}

func (d *documentEvaluator) Name() string      { return "document" }
func (d *documentEvaluator) Factors() []string { return []string{FactorDocument} }

func (d *documentEvaluator) SafeDefault() []scoring.Signal {
	return []scoring.Signal{scoring.Degrade(FactorDocument, false, "document check unavailable; document not counted")}
}

func (d *documentEvaluator) Evaluate(ctx context.Context, p Profile) []scoring.Signal {
	if p.Document == nil || p.Document.ID == "" {
		return []scoring.Signal{scoring.Miss(FactorDocument)}
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	report, err := d.analyzer.Analyze(ctx, *p.Document)
	if err != nil || report == nil {
		return d.SafeDefault()
	}
	if report.Accepted() {
		return []scoring.Signal{scoring.Hit(FactorDocument, "identity document verified")}
	}
	return []scoring.Signal{{Name: FactorDocument, Reason: "identity document failed authenticity check"}}
}
