package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BittieTasks/trust/internal/content"
	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/history"
	"github.com/BittieTasks/trust/internal/scoring"
)

func payoutEvaluator(cfg Config) engine.Evaluator[Task] {
	return engine.EvaluatorFunc("payout", []string{FactorHighPayout}, func(_ context.Context, t Task) []scoring.Signal {
		if t.Payout > cfg.HighPayout {
			return []scoring.Signal{scoring.Hit(FactorHighPayout, fmt.Sprintf("payout %s exceeds %s", money(t.Payout), money(cfg.HighPayout)))}
		}
		return []scoring.Signal{scoring.Miss(FactorHighPayout)}
	})
}

// accountEvaluator judges the creator: account age plus recent history.
// When history is unavailable the creator is treated as a new account.
type accountEvaluator struct {
	lookup history.Lookup
	cfg    Config
	now    func() time.Time
}

func (a *accountEvaluator) Name() string { return "account" }

func (a *accountEvaluator) Factors() []string {
	return []string{FactorNewAccount, FactorRepeatedRejections, FactorTaskBurst}
}

func (a *accountEvaluator) SafeDefault() []scoring.Signal {
	return []scoring.Signal{
		scoring.Degrade(FactorNewAccount, true, "account history unavailable; treated as new account"),
		scoring.Miss(FactorRepeatedRejections),
		scoring.Miss(FactorTaskBurst),
	}
}

func (a *accountEvaluator) Evaluate(ctx context.Context, t Task) []scoring.Signal {
	at := t.SubmittedAt
	if at.IsZero() {
		at = a.now()
	}

	newAccount := scoring.Miss(FactorNewAccount)
	if age, ok := t.AccountAge(at); ok && age < a.cfg.NewAccountAge() {
		newAccount = scoring.Hit(FactorNewAccount, "account created less than "+humanDuration(a.cfg.NewAccountAge())+" ago")
	}
	if t.CreatorID == "" {
		return []scoring.Signal{newAccount, scoring.Miss(FactorRepeatedRejections), scoring.Miss(FactorTaskBurst)}
	}

	rejected, err := a.lookup.CountOutcomes(ctx, t.CreatorID, Name, []string{TierRejected}, at.Add(-a.cfg.RejectionWindow()))
	if err != nil {
		return a.SafeDefault()
	}
	recent, err := a.lookup.CountOutcomes(ctx, t.CreatorID, Name, nil, at.Add(-a.cfg.BurstWindow()))
	if err != nil {
		return a.SafeDefault()
	}

	sigs := []scoring.Signal{newAccount}
	if rejected >= a.cfg.RejectionLimit {
		sigs = append(sigs, scoring.Hit(FactorRepeatedRejections,
			fmt.Sprintf("%d tasks rejected in the last %s", rejected, humanDuration(a.cfg.RejectionWindow()))))
	} else {
		sigs = append(sigs, scoring.Miss(FactorRepeatedRejections))
	}
	if recent >= a.cfg.BurstLimit {
		sigs = append(sigs, scoring.Hit(FactorTaskBurst,
			fmt.Sprintf("%d tasks submitted in the last %s", recent, humanDuration(a.cfg.BurstWindow()))))
	} else {
		sigs = append(sigs, scoring.Miss(FactorTaskBurst))
	}
	return sigs
}

func contentEvaluator(cfg Config, prohibited, offPlatform *content.KeywordMatcher) engine.Evaluator[Task] {
	factors := []string{FactorProhibitedContent, FactorOffPlatformPayment, FactorContactInfo, FactorThinDescription}
	return engine.EvaluatorFunc("content", factors, func(_ context.Context, t Task) []scoring.Signal {
		text := t.Title + "\n" + t.Description
		sigs := make([]scoring.Signal, 0, len(factors))

		if hits := prohibited.Match(text); len(hits) > 0 {
			sigs = append(sigs, scoring.Hit(FactorProhibitedContent, "prohibited content: "+strings.Join(hits, ", ")))
		} else {
			sigs = append(sigs, scoring.Miss(FactorProhibitedContent))
		}

		if hits := offPlatform.Match(text); len(hits) > 0 {
			sigs = append(sigs, scoring.Hit(FactorOffPlatformPayment, "asks for off-platform payment: "+strings.Join(hits, ", ")))
		} else {
			sigs = append(sigs, scoring.Miss(FactorOffPlatformPayment))
		}

		if kind := content.ContactKind(text); kind != "" {
			sigs = append(sigs, scoring.Hit(FactorContactInfo, "contains a "+kind))
		} else {
			sigs = append(sigs, scoring.Miss(FactorContactInfo))
		}

		if n := len([]rune(strings.TrimSpace(t.Description))); n < cfg.MinDescription {
			sigs = append(sigs, scoring.Hit(FactorThinDescription, fmt.Sprintf("description shorter than %d characters", cfg.MinDescription)))
		} else {
			sigs = append(sigs, scoring.Miss(FactorThinDescription))
		}
		return sigs
	})
}
