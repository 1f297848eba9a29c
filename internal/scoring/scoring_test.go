package scoring

import (
	"errors"
	"math"
	"testing"
)

func approvalTable() TierTable {
	return TierTable{
		Polarity: PolarityRisk,
		Tiers:    []string{"auto_approve", "standard_review", "enhanced_review", "corporate_review", "rejected"},
		Thresholds: []Threshold{
			{Tier: "auto_approve", Min: 0},
			{Tier: "standard_review", Min: 10},
			{Tier: "enhanced_review", Min: 30},
			{Tier: "rejected", Min: 70},
		},
	}
}

func verificationTable() TierTable {
	return TierTable{
		Polarity: PolarityTrust,
		Tiers:    []string{"premium", "standard", "basic"},
		Thresholds: []Threshold{
			{Tier: "premium", Min: 85},
			{Tier: "standard", Min: 60},
			{Tier: "basic", Min: 0},
		},
	}
}

func mustClassifier(t *testing.T, table TierTable) *Classifier {
	t.Helper()
	c, err := NewClassifier("test", table)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func TestWeightTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights WeightTable
		wantErr bool
	}{
		{"valid", WeightTable{"high_payout": 15, "new_account": 10}, false},
		{"zero weight allowed", WeightTable{"noop": 0}, false},
		{"empty", WeightTable{}, true},
		{"negative", WeightTable{"bad": -1}, true},
		{"nan", WeightTable{"bad": math.NaN()}, true},
		{"too large", WeightTable{"bad": 101}, true},
		{"empty name", WeightTable{"": 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate("test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected *ConfigError, got %T", err)
				}
			}
		})
	}
}

func TestWeightTableRequire(t *testing.T) {
	w := WeightTable{"a": 1}
	if err := w.Require("test", "a"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := w.Require("test", "a", "b"); err == nil {
		t.Error("expected error for missing factor b")
	}
}

func TestWeightTableApply(t *testing.T) {
	w := WeightTable{"high_payout": 15, "new_account": 10}
	factors := w.Apply([]Signal{
		Hit("high_payout", "payout above cap"),
		Miss("new_account"),
	})
	if len(factors) != 2 {
		t.Fatalf("expected 2 factors, got %d", len(factors))
	}
	if factors[0].Weight != 15 || !factors[0].Triggered {
		t.Errorf("unexpected factor: %+v", factors[0])
	}
	if factors[1].Weight != 10 || factors[1].Triggered {
		t.Errorf("unexpected factor: %+v", factors[1])
	}
}

func TestWeightTableApplyUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown factor")
		}
	}()
	WeightTable{"a": 1}.Apply([]Signal{Hit("b", "")})
}

func TestWeightTableSubset(t *testing.T) {
	w := WeightTable{"a": 1, "b": 2, "c": 3}
	sub := w.Subset("a", "c", "missing")
	if len(sub) != 2 || sub["a"] != 1 || sub["c"] != 3 {
		t.Errorf("unexpected subset: %v", sub)
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		factors []Factor
		want    float64
	}{
		{"empty", nil, 0},
		{"none triggered", []Factor{{Name: "a", Weight: 40}}, 0},
		{"sum", []Factor{{Name: "a", Weight: 15, Triggered: true}, {Name: "b", Weight: 10, Triggered: true}}, 25},
		{"only triggered", []Factor{{Name: "a", Weight: 15, Triggered: true}, {Name: "b", Weight: 10}}, 15},
		{"clamped", []Factor{{Name: "a", Weight: 60, Triggered: true}, {Name: "b", Weight: 60, Triggered: true}}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.factors); got != tt.want {
				t.Errorf("Aggregate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregateNegativeWeightPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for negative weight")
		}
	}()
	Aggregate([]Factor{{Name: "a", Weight: -5, Triggered: true}})
}

func TestTriggered(t *testing.T) {
	names := Triggered([]Factor{
		{Name: "a", Triggered: true},
		{Name: "b"},
		{Name: "c", Triggered: true},
	})
	if len(names) != 2 || names[0] != "a" || names[1] != "c" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestNewClassifierRejectsMalformedTables(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TierTable)
	}{
		{"unknown polarity", func(tt *TierTable) { tt.Polarity = "sideways" }},
		{"no tiers", func(tt *TierTable) { tt.Tiers = nil }},
		{"duplicate tier", func(tt *TierTable) { tt.Tiers = append(tt.Tiers, "rejected") }},
		{"no thresholds", func(tt *TierTable) { tt.Thresholds = nil }},
		{"unknown threshold tier", func(tt *TierTable) { tt.Thresholds[1].Tier = "mystery" }},
		{"duplicate threshold", func(tt *TierTable) { tt.Thresholds[1].Tier = "auto_approve" }},
		{"no zero bound", func(tt *TierTable) { tt.Thresholds[0].Min = 5 }},
		{"bound above max", func(tt *TierTable) { tt.Thresholds[3].Min = 150 }},
		{"non-monotonic", func(tt *TierTable) { tt.Thresholds[2].Min = 5 }},
		{"equal bounds", func(tt *TierTable) { tt.Thresholds[2].Min = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := approvalTable()
			table.Tiers = append([]string(nil), table.Tiers...)
			table.Thresholds = append([]Threshold(nil), table.Thresholds...)
			tt.mutate(&table)
			_, err := NewClassifier("task_approval", table)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Engine != "task_approval" {
				t.Errorf("expected engine name in error, got %q", cfgErr.Engine)
			}
		})
	}
}

func TestNewClassifierTrustPolarity(t *testing.T) {
	mustClassifier(t, verificationTable())

	bad := verificationTable()
	bad.Thresholds = []Threshold{{Tier: "premium", Min: 0}, {Tier: "basic", Min: 60}}
	if _, err := NewClassifier("human_verification", bad); err == nil {
		t.Error("expected error: trust tiers must lose bound as severity rises")
	}
}

func TestThresholdTier(t *testing.T) {
	c := mustClassifier(t, approvalTable())
	tests := []struct {
		score float64
		want  string
	}{
		{0, "auto_approve"},
		{9.99, "auto_approve"},
		{10, "standard_review"},
		{25, "standard_review"},
		{30, "enhanced_review"},
		{40, "enhanced_review"},
		{69.9, "enhanced_review"},
		{70, "rejected"},
		{100, "rejected"},
	}
	for _, tt := range tests {
		if got := c.ThresholdTier(tt.score); got != tt.want {
			t.Errorf("ThresholdTier(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestThresholdTierTrust(t *testing.T) {
	c := mustClassifier(t, verificationTable())
	tests := []struct {
		score float64
		want  string
	}{
		{0, "basic"},
		{45, "basic"},
		{60, "standard"},
		{84, "standard"},
		{85, "premium"},
		{100, "premium"},
	}
	for _, tt := range tests {
		if got := c.ThresholdTier(tt.score); got != tt.want {
			t.Errorf("ThresholdTier(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassifyOverrideForcesTier(t *testing.T) {
	c := mustClassifier(t, approvalTable())
	got := c.Classify(0, []OverrideHit{{Name: "sponsored", Tier: "corporate_review", Reason: "sponsored task"}})
	if got.Tier != "corporate_review" {
		t.Errorf("expected corporate_review, got %s", got.Tier)
	}
	if got.ThresholdTier != "auto_approve" {
		t.Errorf("expected threshold tier auto_approve, got %s", got.ThresholdTier)
	}
	if got.DecidedBy != "sponsored" {
		t.Errorf("expected decided_by sponsored, got %q", got.DecidedBy)
	}
}

func TestClassifyMostSevereWins(t *testing.T) {
	c := mustClassifier(t, approvalTable())

	got := c.Classify(25, []OverrideHit{
		{Name: "payout_floor", Tier: "standard_review"},
		{Name: "sponsored", Tier: "corporate_review"},
	})
	if got.Tier != "corporate_review" || got.DecidedBy != "sponsored" {
		t.Errorf("expected corporate_review by sponsored, got %s by %q", got.Tier, got.DecidedBy)
	}

	// Threshold tier more severe than any override.
	got = c.Classify(80, []OverrideHit{{Name: "sponsored", Tier: "corporate_review"}})
	if got.Tier != "rejected" || got.DecidedBy != "" {
		t.Errorf("expected rejected by threshold, got %s by %q", got.Tier, got.DecidedBy)
	}

	// Reordering overrides never changes the outcome.
	a := c.Classify(5, []OverrideHit{{Name: "x", Tier: "standard_review"}, {Name: "y", Tier: "enhanced_review"}})
	b := c.Classify(5, []OverrideHit{{Name: "y", Tier: "enhanced_review"}, {Name: "x", Tier: "standard_review"}})
	if a.Tier != b.Tier || a.DecidedBy != b.DecidedBy {
		t.Errorf("override order changed result: %+v vs %+v", a, b)
	}
}

func TestClassifyForcingOverrideIgnoresThreshold(t *testing.T) {
	c := mustClassifier(t, approvalTable())

	got := c.Classify(100, []OverrideHit{{Name: "sponsored", Tier: "corporate_review", Force: true}})
	if got.Tier != "corporate_review" || got.DecidedBy != "sponsored" {
		t.Errorf("expected corporate_review by sponsored, got %s by %q", got.Tier, got.DecidedBy)
	}
	if got.ThresholdTier != "rejected" {
		t.Errorf("expected threshold tier rejected, got %s", got.ThresholdTier)
	}

	// Among overrides the more severe still wins, forcing or not.
	got = c.Classify(100, []OverrideHit{
		{Name: "sponsored", Tier: "corporate_review", Force: true},
		{Name: "risk_floor", Tier: "enhanced_review"},
	})
	if got.Tier != "corporate_review" {
		t.Errorf("expected corporate_review, got %s", got.Tier)
	}
	got = c.Classify(0, []OverrideHit{
		{Name: "sponsored", Tier: "corporate_review", Force: true},
		{Name: "banned", Tier: "rejected"},
	})
	if got.Tier != "rejected" || got.DecidedBy != "banned" {
		t.Errorf("expected rejected by banned, got %s by %q", got.Tier, got.DecidedBy)
	}
}

func TestClassifyTrustOverrideLowersTrust(t *testing.T) {
	c := mustClassifier(t, verificationTable())
	got := c.Classify(95, []OverrideHit{{Name: "reverification", Tier: "basic"}})
	if got.Tier != "basic" {
		t.Errorf("expected basic, got %s", got.Tier)
	}
}

func TestClassifyPanicsOnBadInput(t *testing.T) {
	c := mustClassifier(t, approvalTable())
	cases := map[string]func(){
		"negative score": func() { c.Classify(-1, nil) },
		"score above max": func() { c.Classify(100.5, nil) },
		"nan score":      func() { c.Classify(math.NaN(), nil) },
		"unknown tier":   func() { c.Classify(0, []OverrideHit{{Name: "x", Tier: "nope"}}) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			fn()
		})
	}
}

func TestMoreSevere(t *testing.T) {
	c := mustClassifier(t, approvalTable())
	if got := c.MoreSevere("auto_approve", "enhanced_review"); got != "enhanced_review" {
		t.Errorf("got %s", got)
	}
	if got := c.MoreSevere("rejected", "standard_review"); got != "rejected" {
		t.Errorf("got %s", got)
	}
	if c.Severity("unknown") != -1 {
		t.Error("expected -1 for unknown tier")
	}
}
