// Package verification grades how well a user account is verified. Levels
// gate features: basic, then standard, then premium.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/content"
	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/metrics"
	"github.com/BittieTasks/trust/internal/rules"
	"github.com/BittieTasks/trust/internal/scoring"
)

const Name = "human_verification"

const (
	TierPremium  = "premium"
	TierStandard = "standard"
	TierBasic    = "basic"
)

const (
	FactorEmail    = "email_verified"
	FactorPhone    = "phone_verified"
	FactorDocument = "document_verified"
	FactorFace     = "face_verified"
	FactorBehavior = "behavior_trusted"
)

// ErrNoAnalyzer is returned by the placeholder analyzer used when no
// document service is configured.
var ErrNoAnalyzer = errors.New("no document analyzer configured")

// Profile is the snapshot of a user's verification state.
type Profile struct {
	UserID         string            `json:"user_id"`
	EmailVerified  bool              `json:"email_verified"`
	PhoneVerified  bool              `json:"phone_verified"`
	Document       *content.Document `json:"document,omitempty"`
	FaceMatched    bool              `json:"face_matched"`
	CompletedTasks int               `json:"completed_tasks"`
	JoinedAt       time.Time         `json:"joined_at,omitempty"`
	RiskFlags      []string          `json:"risk_flags,omitempty"`
	// NewRiskFlags are flags raised since the previous verification.
	NewRiskFlags []string `json:"new_risk_flags,omitempty"`

	PreviousTier       string    `json:"previous_tier,omitempty"`
	PreviousVerifiedAt time.Time `json:"previous_verified_at,omitempty"`
	EvaluatedAt        time.Time `json:"evaluated_at,omitempty"`
}

func (p Profile) EntityID() string  { return p.UserID }
func (p Profile) SubjectID() string { return p.UserID }

func (p Profile) Attributes() map[string]any {
	return map[string]any{
		"email_verified":  p.EmailVerified,
		"phone_verified":  p.PhoneVerified,
		"has_document":    p.Document != nil,
		"face_matched":    p.FaceMatched,
		"completed_tasks": int64(p.CompletedTasks),
		"risk_flags":      append([]string{}, p.RiskFlags...),
		"previous_tier":   p.PreviousTier,
	}
}

type Config struct {
	Weights    scoring.WeightTable `yaml:"weights"`
	Thresholds []scoring.Threshold `yaml:"thresholds"`

	StaleAfterDays     int `yaml:"stale_after_days"`
	BehaviorMinAgeDays int `yaml:"behavior_min_age_days"`
	BehaviorMinTasks   int `yaml:"behavior_min_tasks"`

	Overrides          []rules.Spec `yaml:"overrides"`
	EvaluatorTimeoutMs int          `yaml:"evaluator_timeout_ms"`
	DocumentTimeoutMs  int          `yaml:"document_timeout_ms"`
}

func DefaultConfig() Config {
	return Config{
		Weights: scoring.WeightTable{
			FactorEmail:    20,
			FactorPhone:    25,
			FactorDocument: 25,
			FactorFace:     20,
			FactorBehavior: 10,
		},
		Thresholds: []scoring.Threshold{
			{Tier: TierPremium, Min: 85},
			{Tier: TierStandard, Min: 60},
			{Tier: TierBasic, Min: 0},
		},
		StaleAfterDays:     365,
		BehaviorMinAgeDays: 30,
		BehaviorMinTasks:   3,
		EvaluatorTimeoutMs: 3000,
		DocumentTimeoutMs:  2000,
	}
}

func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterDays) * 24 * time.Hour
}

func (c Config) BehaviorMinAge() time.Duration {
	return time.Duration(c.BehaviorMinAgeDays) * 24 * time.Hour
}

func (c Config) EvaluatorTimeout() time.Duration {
	return time.Duration(c.EvaluatorTimeoutMs) * time.Millisecond
}

func (c Config) DocumentTimeout() time.Duration {
	return time.Duration(c.DocumentTimeoutMs) * time.Millisecond
}

func (c Config) validate() error {
	switch {
	case c.StaleAfterDays <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "stale_after_days", Problem: "must be positive"}
	case c.DocumentTimeoutMs <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "document_timeout_ms", Problem: "must be positive"}
	case c.BehaviorMinAgeDays < 0 || c.BehaviorMinTasks < 0:
		return &scoring.ConfigError{Engine: Name, Field: "behavior_min_age_days", Problem: "must not be negative"}
	}
	return nil
}

type Deps struct {
	Recorder  audit.Recorder
	Documents content.DocumentAnalyzer
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Tiers is the verification table, most trusted first.
func Tiers(thresholds []scoring.Threshold) scoring.TierTable {
	return scoring.TierTable{
		Polarity:   scoring.PolarityTrust,
		Tiers:      []string{TierPremium, TierStandard, TierBasic},
		Thresholds: thresholds,
	}
}

func New(cfg Config, deps Deps) (*engine.Engine[Profile], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Documents == nil {
		deps.Documents = content.DocumentAnalyzerFunc(func(context.Context, content.Document) (*content.DocumentReport, error) {
			return nil, ErrNoAnalyzer
		})
	}
	table := Tiers(cfg.Thresholds)
	classifier, err := scoring.NewClassifier(Name, table)
	if err != nil {
		return nil, err
	}
	configured, err := rules.Compile(Name, cfg.Overrides)
	if err != nil {
		return nil, err
	}

	r := &ratchet{cfg: cfg, classifier: classifier, now: deps.Now}
	overrides := []engine.Override[Profile]{{
		Name:   "reverification",
		Tier:   TierBasic,
		Reason: reverificationReason,
		Force:  true,
		When: func(p Profile, _ float64) bool {
			return r.trigger(p) != ""
		},
	}}
	overrides = append(overrides, engine.RuleOverrides[Profile](configured, deps.Logger)...)

	return engine.New(engine.Config[Profile]{
		Name:    Name,
		Weights: cfg.Weights,
		Tiers:   table,
		Evaluators: []engine.Evaluator[Profile]{
			contactEvaluator(),
			&documentEvaluator{analyzer: deps.Documents, timeout: cfg.DocumentTimeout()},
			livenessEvaluator(),
			behaviorEvaluator(cfg, deps.Now),
		},
		Overrides:        overrides,
		Adjust:           r.adjust,
		EvaluatorTimeout: cfg.EvaluatorTimeout(),
		Now:              deps.Now,
	}, deps.Recorder, deps.Metrics, deps.Logger)
}

const reverificationReason = "re-verification required"

// ratchet keeps a previously granted level unless re-verification is due.
type ratchet struct {
	cfg        Config
	classifier *scoring.Classifier
	now        func() time.Time
}

func (r *ratchet) at(p Profile) time.Time {
	if !p.EvaluatedAt.IsZero() {
		return p.EvaluatedAt
	}
	return r.now()
}

// trigger explains why re-verification is due, or returns "".
func (r *ratchet) trigger(p Profile) string {
	if !r.classifier.Has(p.PreviousTier) {
		return ""
	}
	if len(p.NewRiskFlags) > 0 {
		return "re-verification required: new risk flags: " + strings.Join(p.NewRiskFlags, ", ")
	}
	if !p.PreviousVerifiedAt.IsZero() && r.at(p).Sub(p.PreviousVerifiedAt) > r.cfg.StaleAfter() {
		return fmt.Sprintf("re-verification required: last verified more than %d days ago", r.cfg.StaleAfterDays)
	}
	return ""
}

func (r *ratchet) adjust(p Profile, v engine.Verdict) engine.Verdict {
	if !r.classifier.Has(p.PreviousTier) {
		return v
	}
	v.Details["previous_tier"] = p.PreviousTier

	if why := r.trigger(p); why != "" {
		v.Details["reverification"] = true
		// The specific trigger replaces the override's generic reason.
		reasons := make([]string, 0, len(v.Reasons))
		for _, reason := range v.Reasons {
			if reason != reverificationReason {
				reasons = append(reasons, reason)
			}
		}
		v.Reasons = append(reasons, why)
		return v
	}
	// An override that lowered the level is an explicit trigger too.
	if v.Classification.DecidedBy != "" {
		return v
	}
	if r.classifier.Severity(p.PreviousTier) < r.classifier.Severity(v.Tier) {
		v.Tier = p.PreviousTier
		v.Details["retained"] = true
		v.Reasons = append(v.Reasons, "keeps previously granted "+p.PreviousTier+" level")
	}
	return v
}
