// Package workerclass judges whether a labor relationship looks like
// independent contract work or employment. Two competing scores are built
// from contractor and employee indicators; a side wins only by more than a
// fixed margin.
package workerclass

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/metrics"
	"github.com/BittieTasks/trust/internal/rules"
	"github.com/BittieTasks/trust/internal/scoring"
)

const Name = "worker_classification"

const (
	TierContractor = "independent_contractor"
	TierUnclear    = "unclear"
	TierEmployee   = "employee"
)

const (
	FactorOwnSchedule     = "sets_own_schedule"
	FactorOwnTools        = "uses_own_tools"
	FactorMultipleClients = "multiple_clients"
	FactorProjectPay      = "project_based_pay"
	FactorSubcontract     = "can_subcontract"
	FactorBusinessEntity  = "own_business_entity"
	FactorShortEngagement = "short_engagement"

	FactorRequiredHours     = "required_hours"
	FactorTraining          = "provides_training"
	FactorExclusive         = "exclusive_work"
	FactorHourlyPay         = "hourly_or_salary_pay"
	FactorLongTerm          = "long_term_engagement"
	FactorIntegral          = "integral_to_business"
	FactorCompanyEquipment  = "company_equipment"
	FactorBehavioralControl = "behavioral_control"
)

var (
	contractorFactors = []string{
		FactorOwnSchedule, FactorOwnTools, FactorMultipleClients, FactorProjectPay,
		FactorSubcontract, FactorBusinessEntity, FactorShortEngagement,
	}
	employeeFactors = []string{
		FactorRequiredHours, FactorTraining, FactorExclusive, FactorHourlyPay,
		FactorLongTerm, FactorIntegral, FactorCompanyEquipment, FactorBehavioralControl,
	}
)

// Engagement is the snapshot of one worker/client relationship.
type Engagement struct {
	ID                 string `json:"id"`
	WorkerID           string `json:"worker_id"`
	ClientID           string `json:"client_id,omitempty"`
	SetsOwnSchedule    bool   `json:"sets_own_schedule"`
	UsesOwnTools       bool   `json:"uses_own_tools"`
	ClientCount        int    `json:"client_count"`
	PayBasis           string `json:"pay_basis,omitempty"` // project, hourly, salary, commission
	CanSubcontract     bool   `json:"can_subcontract"`
	HasBusinessEntity  bool   `json:"has_business_entity"`
	DurationDays       int    `json:"duration_days"`
	RequiredHours      bool   `json:"required_hours"`
	ProvidesTraining   bool   `json:"provides_training"`
	Exclusive          bool   `json:"exclusive"`
	IntegralToBusiness bool   `json:"integral_to_business"`
	CompanyEquipment   bool   `json:"company_equipment"`
	BehavioralControl  bool   `json:"behavioral_control"`
}

func (g Engagement) EntityID() string  { return g.ID }
func (g Engagement) SubjectID() string { return g.WorkerID }

func (g Engagement) Attributes() map[string]any {
	return map[string]any{
		"client_id":     g.ClientID,
		"client_count":  int64(g.ClientCount),
		"pay_basis":     strings.ToLower(g.PayBasis),
		"duration_days": int64(g.DurationDays),
		"exclusive":     g.Exclusive,
	}
}

type Config struct {
	Weights scoring.WeightTable `yaml:"weights"`

	Margin              float64 `yaml:"margin"`
	MaxConfidence       float64 `yaml:"max_confidence"`
	ShortEngagementDays int     `yaml:"short_engagement_days"`
	LongTermDays        int     `yaml:"long_term_days"`

	Overrides          []rules.Spec `yaml:"overrides"`
	EvaluatorTimeoutMs int          `yaml:"evaluator_timeout_ms"`
}

func DefaultConfig() Config {
	return Config{
		Weights: scoring.WeightTable{
			FactorOwnSchedule:     3,
			FactorOwnTools:        2,
			FactorMultipleClients: 3,
			FactorProjectPay:      3,
			FactorSubcontract:     2,
			FactorBusinessEntity:  3,
			FactorShortEngagement: 2,

			FactorRequiredHours:     3,
			FactorTraining:          2,
			FactorExclusive:         3,
			FactorHourlyPay:         2,
			FactorLongTerm:          2,
			FactorIntegral:          3,
			FactorCompanyEquipment:  2,
			FactorBehavioralControl: 3,
		},
		Margin:              2,
		MaxConfidence:       0.95,
		ShortEngagementDays: 90,
		LongTermDays:        365,
		EvaluatorTimeoutMs:  1000,
	}
}

func (c Config) EvaluatorTimeout() time.Duration {
	return time.Duration(c.EvaluatorTimeoutMs) * time.Millisecond
}

func (c Config) validate() error {
	switch {
	case math.IsNaN(c.Margin) || c.Margin < 0:
		return &scoring.ConfigError{Engine: Name, Field: "margin", Problem: "must not be negative"}
	case math.IsNaN(c.MaxConfidence) || c.MaxConfidence <= 0.5 || c.MaxConfidence > 1:
		return &scoring.ConfigError{Engine: Name, Field: "max_confidence", Problem: "must be within (0.5, 1]"}
	case c.ShortEngagementDays <= 0 || c.LongTermDays <= c.ShortEngagementDays:
		return &scoring.ConfigError{Engine: Name, Field: "long_term_days", Problem: "must exceed short_engagement_days, both positive"}
	}
	return nil
}

type Deps struct {
	Recorder audit.Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Tiers orders outcomes by compliance scrutiny. Only overrides use it; the
// margin rule picks the tier.
func Tiers() scoring.TierTable {
	return scoring.TierTable{
		Polarity:   scoring.PolarityRisk,
		Tiers:      []string{TierContractor, TierUnclear, TierEmployee},
		Thresholds: []scoring.Threshold{{Tier: TierContractor, Min: 0}},
	}
}

// Result adds the competing scores to the recorded outcome.
type Result struct {
	engine.Outcome
	ContractorScore float64
	EmployeeScore   float64
	Confidence      float64
}

// Engine runs the shared decision flow with a two-sided scorer in place of
// the threshold scan.
type Engine struct {
	inner *engine.Engine[Engagement]
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Weights.Validate(Name); err != nil {
		return nil, err
	}
	if err := cfg.Weights.Require(Name, append(append([]string{}, contractorFactors...), employeeFactors...)...); err != nil {
		return nil, err
	}
	configured, err := rules.Compile(Name, cfg.Overrides)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	inner, err := engine.New(engine.Config[Engagement]{
		Name:    Name,
		Weights: cfg.Weights,
		Tiers:   Tiers(),
		Evaluators: []engine.Evaluator[Engagement]{
			contractorEvaluator(cfg),
			employeeEvaluator(cfg),
		},
		Overrides:        engine.RuleOverrides[Engagement](configured, deps.Logger),
		Scorer:           marginScorer(cfg),
		EvaluatorTimeout: cfg.EvaluatorTimeout(),
		Now:              deps.Now,
	}, deps.Recorder, deps.Metrics, deps.Logger)
	if err != nil {
		return nil, err
	}
	return &Engine{inner: inner}, nil
}

func (e *Engine) Name() string { return Name }

// Decide applies the margin rule. Within the margin the result is unclear
// with confidence 0.5; otherwise confidence is the winner's share of the
// combined score, capped at maxConfidence.
func Decide(contractor, employee, margin, maxConfidence float64) (string, float64) {
	if math.Abs(contractor-employee) <= margin {
		return TierUnclear, 0.5
	}
	tier, winner := TierContractor, contractor
	if employee > contractor {
		tier, winner = TierEmployee, employee
	}
	return tier, math.Min(winner/(contractor+employee), maxConfidence)
}

// marginScorer aggregates each side separately and lets the margin rule
// pick the base tier. The recorded score is the larger side.
func marginScorer(cfg Config) func([]scoring.Factor) engine.Scored {
	contractorSide := make(map[string]bool, len(contractorFactors))
	for _, f := range contractorFactors {
		contractorSide[f] = true
	}
	return func(factors []scoring.Factor) engine.Scored {
		var cf, ef []scoring.Factor
		for _, f := range factors {
			if contractorSide[f.Name] {
				cf = append(cf, f)
			} else {
				ef = append(ef, f)
			}
		}
		cScore, eScore := scoring.Aggregate(cf), scoring.Aggregate(ef)
		tier, confidence := Decide(cScore, eScore, cfg.Margin, cfg.MaxConfidence)

		out := engine.Scored{
			Score: math.Max(cScore, eScore),
			Tier:  tier,
			Details: map[string]any{
				"contractor_score": cScore,
				"employee_score":   eScore,
				"confidence":       confidence,
				"margin":           cfg.Margin,
			},
		}
		if tier == TierUnclear {
			out.Reasons = []string{fmt.Sprintf("contractor and employee indicators within %g points (%g vs %g)", cfg.Margin, cScore, eScore)}
		}
		return out
	}
}

func (e *Engine) Evaluate(ctx context.Context, g Engagement) (Result, error) {
	out, err := e.inner.Evaluate(ctx, g)
	if err != nil {
		return Result{}, err
	}
	res := Result{Outcome: out}
	res.ContractorScore, _ = out.Record.Details["contractor_score"].(float64)
	res.EmployeeScore, _ = out.Record.Details["employee_score"].(float64)
	res.Confidence, _ = out.Record.Details["confidence"].(float64)
	return res, nil
}
