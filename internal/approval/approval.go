// Package approval decides whether a newly created task is published
// automatically, held for review or rejected.
package approval

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/content"
	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/history"
	"github.com/BittieTasks/trust/internal/metrics"
	"github.com/BittieTasks/trust/internal/rules"
	"github.com/BittieTasks/trust/internal/scoring"
)

const Name = "task_approval"

const (
	TierAutoApprove     = "auto_approve"
	TierStandardReview  = "standard_review"
	TierEnhancedReview  = "enhanced_review"
	TierCorporateReview = "corporate_review"
	TierRejected        = "rejected"
)

const (
	FactorHighPayout         = "high_payout"
	FactorNewAccount         = "new_account"
	FactorProhibitedContent  = "prohibited_content"
	FactorRepeatedRejections = "repeated_rejections"
	FactorTaskBurst          = "task_burst"
	FactorOffPlatformPayment = "off_platform_payment"
	FactorContactInfo        = "contact_info"
	FactorThinDescription    = "thin_description"
)

// Task is the snapshot of a task as submitted.
type Task struct {
	ID          string  `json:"id"`
	CreatorID   string  `json:"creator_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	Payout      float64 `json:"payout"`
	SponsorID   string  `json:"sponsor_id,omitempty"`
	// CreatorJoinedAt is when the creator's account was created; zero when
	// unknown.
	CreatorJoinedAt time.Time `json:"creator_joined_at,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at,omitempty"`
}

func (t Task) EntityID() string  { return t.ID }
func (t Task) SubjectID() string { return t.CreatorID }

func (t Task) Attributes() map[string]any {
	attrs := map[string]any{
		"payout":             t.Payout,
		"sponsored":          strings.TrimSpace(t.SponsorID) != "",
		"category":           t.Category,
		"title_length":       int64(len([]rune(t.Title))),
		"description_length": int64(len([]rune(strings.TrimSpace(t.Description)))),
	}
	if age, ok := t.AccountAge(t.SubmittedAt); ok {
		attrs["account_age_hours"] = age.Hours()
	}
	return attrs
}

// AccountAge returns how old the creator's account was at at.
func (t Task) AccountAge(at time.Time) (time.Duration, bool) {
	if t.CreatorJoinedAt.IsZero() || at.IsZero() {
		return 0, false
	}
	return at.Sub(t.CreatorJoinedAt), true
}

type Config struct {
	Weights    scoring.WeightTable `yaml:"weights"`
	Thresholds []scoring.Threshold `yaml:"thresholds"`

	HighPayout          float64 `yaml:"high_payout"`
	ReviewPayout        float64 `yaml:"review_payout"`
	EnhancedScore       float64 `yaml:"enhanced_score"`
	NewAccountHours     int     `yaml:"new_account_hours"`
	RejectionLimit      int     `yaml:"rejection_limit"`
	RejectionWindowDays int     `yaml:"rejection_window_days"`
	BurstLimit          int     `yaml:"burst_limit"`
	BurstWindowHours    int     `yaml:"burst_window_hours"`
	MinDescription      int     `yaml:"min_description"`

	ProhibitedKeywords  []string `yaml:"prohibited_keywords"`
	OffPlatformKeywords []string `yaml:"off_platform_keywords"`

	Overrides          []rules.Spec `yaml:"overrides"`
	EvaluatorTimeoutMs int          `yaml:"evaluator_timeout_ms"`
	HistoryTimeoutMs   int          `yaml:"history_timeout_ms"`
}

func DefaultConfig() Config {
	return Config{
		Weights: scoring.WeightTable{
			FactorHighPayout:         15,
			FactorNewAccount:         10,
			FactorProhibitedContent:  40,
			FactorRepeatedRejections: 20,
			FactorTaskBurst:          15,
			FactorOffPlatformPayment: 25,
			FactorContactInfo:        10,
			FactorThinDescription:    5,
		},
		Thresholds: []scoring.Threshold{
			{Tier: TierAutoApprove, Min: 0},
			{Tier: TierStandardReview, Min: 10},
			{Tier: TierEnhancedReview, Min: 30},
			{Tier: TierRejected, Min: 70},
		},
		HighPayout:          100,
		ReviewPayout:        50,
		EnhancedScore:       30,
		NewAccountHours:     7 * 24,
		RejectionLimit:      3,
		RejectionWindowDays: 30,
		BurstLimit:          10,
		BurstWindowHours:    24,
		MinDescription:      20,
		ProhibitedKeywords: []string{
			"babysitting", "babysitter", "childcare", "nanny",
			"firearm", "firearms", "ammunition", "weapons",
			"prescription drugs", "escort", "gambling", "fake id",
		},
		OffPlatformKeywords: []string{
			"cash only", "venmo", "zelle", "cash app", "cashapp",
			"paypal me", "wire transfer", "western union", "gift card", "crypto",
		},
		EvaluatorTimeoutMs: 2000,
		HistoryTimeoutMs:   500,
	}
}

func (c Config) NewAccountAge() time.Duration {
	return time.Duration(c.NewAccountHours) * time.Hour
}

func (c Config) RejectionWindow() time.Duration {
	return time.Duration(c.RejectionWindowDays) * 24 * time.Hour
}

func (c Config) BurstWindow() time.Duration {
	return time.Duration(c.BurstWindowHours) * time.Hour
}

func (c Config) EvaluatorTimeout() time.Duration {
	return time.Duration(c.EvaluatorTimeoutMs) * time.Millisecond
}

func (c Config) HistoryTimeout() time.Duration {
	return time.Duration(c.HistoryTimeoutMs) * time.Millisecond
}

func (c Config) validate() error {
	switch {
	case c.HighPayout < 0:
		return &scoring.ConfigError{Engine: Name, Field: "high_payout", Problem: "must not be negative"}
	case c.ReviewPayout < 0:
		return &scoring.ConfigError{Engine: Name, Field: "review_payout", Problem: "must not be negative"}
	case c.EnhancedScore < 0 || c.EnhancedScore > scoring.MaxScore:
		return &scoring.ConfigError{Engine: Name, Field: "enhanced_score", Problem: "must be within [0, 100]"}
	case c.NewAccountHours <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "new_account_hours", Problem: "must be positive"}
	case c.RejectionLimit <= 0 || c.RejectionWindowDays <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "rejection_limit", Problem: "limit and window must be positive"}
	case c.BurstLimit <= 0 || c.BurstWindowHours <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "burst_limit", Problem: "limit and window must be positive"}
	case c.HistoryTimeoutMs <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "history_timeout_ms", Problem: "must be positive"}
	case c.MinDescription < 0:
		return &scoring.ConfigError{Engine: Name, Field: "min_description", Problem: "must not be negative"}
	}
	return nil
}

// Deps are the collaborators the engine needs at runtime.
type Deps struct {
	Recorder audit.Recorder
	History  history.Lookup
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Tiers is the task approval tier table, least to most scrutiny.
func Tiers(thresholds []scoring.Threshold) scoring.TierTable {
	return scoring.TierTable{
		Polarity:   scoring.PolarityRisk,
		Tiers:      []string{TierAutoApprove, TierStandardReview, TierEnhancedReview, TierCorporateReview, TierRejected},
		Thresholds: thresholds,
	}
}

func New(cfg Config, deps Deps) (*engine.Engine[Task], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.History == nil {
		return nil, &scoring.ConfigError{Engine: Name, Field: "history", Problem: "no history lookup"}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	configured, err := rules.Compile(Name, cfg.Overrides)
	if err != nil {
		return nil, err
	}

	lookup := history.WithTimeout(deps.History, cfg.HistoryTimeout())
	overrides := append(builtinOverrides(cfg), engine.RuleOverrides[Task](configured, deps.Logger)...)

	return engine.New(engine.Config[Task]{
		Name:    Name,
		Weights: cfg.Weights,
		Tiers:   Tiers(cfg.Thresholds),
		Evaluators: []engine.Evaluator[Task]{
			payoutEvaluator(cfg),
			&accountEvaluator{lookup: lookup, cfg: cfg, now: deps.Now},
			contentEvaluator(cfg, content.NewKeywordMatcher(cfg.ProhibitedKeywords), content.NewKeywordMatcher(cfg.OffPlatformKeywords)),
		},
		Overrides:        overrides,
		EvaluatorTimeout: cfg.EvaluatorTimeout(),
		Now:              deps.Now,
	}, deps.Recorder, deps.Metrics, deps.Logger)
}

// builtinOverrides are checked in this order, before any configured rule.
func builtinOverrides(cfg Config) []engine.Override[Task] {
	return []engine.Override[Task]{
		{
			Name:   "sponsored",
			Tier:   TierCorporateReview,
			Reason: "sponsored tasks require corporate review",
			Force:  true,
			When: func(t Task, _ float64) bool {
				return strings.TrimSpace(t.SponsorID) != ""
			},
		},
		{
			Name:   "payout_review",
			Tier:   TierStandardReview,
			Reason: "payouts above " + money(cfg.ReviewPayout) + " require review",
			When: func(t Task, _ float64) bool {
				return t.Payout > cfg.ReviewPayout
			},
		},
		{
			Name:   "risk_floor",
			Tier:   TierEnhancedReview,
			Reason: "risk score requires enhanced review",
			When: func(_ Task, score float64) bool {
				return score >= cfg.EnhancedScore
			},
		},
	}
}

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', -1, 64)
}

func humanDuration(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
