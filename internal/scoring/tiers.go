package scoring

import (
	"fmt"
	"math"
	"sort"
)

// Polarity says whether a higher score means more scrutiny or more trust.
type Polarity string

const (
	PolarityRisk  Polarity = "risk"
	PolarityTrust Polarity = "trust"
)

// Threshold is the lower score bound at which a tier applies.
type Threshold struct {
	Tier string  `yaml:"tier" json:"tier"`
	Min  float64 `yaml:"min" json:"min"`
}

// TierTable describes an engine's tiers.
//
// Tiers lists every label from least to most severe, where severe means more
// scrutiny for risk engines and less trust for trust engines. Thresholds may
// cover a subset; tiers without a threshold are reachable only via overrides.
type TierTable struct {
	Polarity   Polarity
	Tiers      []string
	Thresholds []Threshold
}

// OverrideHit is an override rule that applied to one evaluation. A forcing
// hit sets the tier regardless of score; any other hit is a floor the
// threshold tier may still exceed.
type OverrideHit struct {
	Name   string `json:"name"`
	Tier   string `json:"tier"`
	Reason string `json:"reason"`
	Force  bool   `json:"force,omitempty"`
}

// Classification is the classifier's verdict for one score.
type Classification struct {
	Tier          string        `json:"tier"`
	ThresholdTier string        `json:"threshold_tier"`
	Overrides     []OverrideHit `json:"overrides,omitempty"`
	// DecidedBy names the override that set the final tier, or is empty
	// when the threshold scan did.
	DecidedBy string `json:"decided_by,omitempty"`
}

// Classifier maps scores to tiers for one validated TierTable.
type Classifier struct {
	table    TierTable
	severity map[string]int
	byMin    []Threshold // highest lower bound first
}

// NewClassifier validates the table and returns a classifier for it.
//
// A table is valid when every score in [0, MaxScore] maps to exactly one
// tier: some threshold starts at 0, bounds are distinct, and bounds are
// monotonic in severity for the table's polarity.
func NewClassifier(engine string, table TierTable) (*Classifier, error) {
	if table.Polarity != PolarityRisk && table.Polarity != PolarityTrust {
		return nil, &ConfigError{Engine: engine, Field: "polarity", Problem: fmt.Sprintf("unknown polarity %q", table.Polarity)}
	}
	if len(table.Tiers) == 0 {
		return nil, &ConfigError{Engine: engine, Field: "tiers", Problem: "no tiers defined"}
	}
	severity := make(map[string]int, len(table.Tiers))
	for i, t := range table.Tiers {
		if t == "" {
			return nil, &ConfigError{Engine: engine, Field: "tiers", Problem: "empty tier name"}
		}
		if _, dup := severity[t]; dup {
			return nil, &ConfigError{Engine: engine, Field: "tiers", Problem: "duplicate tier " + t}
		}
		severity[t] = i
	}
	if len(table.Thresholds) == 0 {
		return nil, &ConfigError{Engine: engine, Field: "thresholds", Problem: "no thresholds defined"}
	}

	seen := make(map[string]bool, len(table.Thresholds))
	hasZero := false
	for _, th := range table.Thresholds {
		if _, ok := severity[th.Tier]; !ok {
			return nil, &ConfigError{Engine: engine, Field: "thresholds", Problem: "unknown tier " + th.Tier}
		}
		if seen[th.Tier] {
			return nil, &ConfigError{Engine: engine, Field: "thresholds", Problem: "duplicate threshold for " + th.Tier}
		}
		seen[th.Tier] = true
		if math.IsNaN(th.Min) || th.Min < 0 || th.Min > MaxScore {
			return nil, &ConfigError{Engine: engine, Field: "thresholds." + th.Tier, Problem: fmt.Sprintf("bound %v outside [0, %v]", th.Min, MaxScore)}
		}
		if th.Min == 0 {
			hasZero = true
		}
	}
	if !hasZero {
		return nil, &ConfigError{Engine: engine, Field: "thresholds", Problem: "no threshold starts at 0"}
	}

	bySeverity := append([]Threshold(nil), table.Thresholds...)
	sort.Slice(bySeverity, func(i, j int) bool {
		return severity[bySeverity[i].Tier] < severity[bySeverity[j].Tier]
	})
	for i := 1; i < len(bySeverity); i++ {
		prev, cur := bySeverity[i-1], bySeverity[i]
		ok := cur.Min > prev.Min
		if table.Polarity == PolarityTrust {
			ok = cur.Min < prev.Min
		}
		if !ok {
			return nil, &ConfigError{
				Engine:  engine,
				Field:   "thresholds",
				Problem: fmt.Sprintf("bounds not monotonic for %s polarity: %s=%v, %s=%v", table.Polarity, prev.Tier, prev.Min, cur.Tier, cur.Min),
			}
		}
	}

	byMin := append([]Threshold(nil), table.Thresholds...)
	sort.Slice(byMin, func(i, j int) bool { return byMin[i].Min > byMin[j].Min })

	return &Classifier{table: table, severity: severity, byMin: byMin}, nil
}

// Table returns the table the classifier was built from.
func (c *Classifier) Table() TierTable { return c.table }

// Has reports whether tier is part of the table.
func (c *Classifier) Has(tier string) bool {
	_, ok := c.severity[tier]
	return ok
}

// Severity returns the position of tier in the severity order, or -1.
func (c *Classifier) Severity(tier string) int {
	if s, ok := c.severity[tier]; ok {
		return s
	}
	return -1
}

// MoreSevere returns whichever of a and b is more severe; ties return a.
func (c *Classifier) MoreSevere(a, b string) string {
	if c.Severity(b) > c.Severity(a) {
		return b
	}
	return a
}

// ThresholdTier scans bounds from highest to lowest and returns the first
// tier whose bound score meets.
func (c *Classifier) ThresholdTier(score float64) string {
	checkScore(score)
	for _, th := range c.byMin {
		if score >= th.Min {
			return th.Tier
		}
	}
	// unreachable: validated tables always carry a zero bound
	panic(fmt.Sprintf("scoring: no threshold for score %v", score))
}

// Classify resolves the final tier for score. Overrides are considered
// first, in the order given, and the most severe applicable override tier
// wins, so ties resolve toward more scrutiny. When any forcing override
// applied, that tier is final and the threshold scan cannot raise it.
// Otherwise the threshold tier wins if it is more severe than every floor.
func (c *Classifier) Classify(score float64, hits []OverrideHit) Classification {
	checkScore(score)
	return c.ClassifyFrom(c.ThresholdTier(score), hits)
}

// ClassifyFrom resolves overrides against a base tier chosen by some rule
// other than the threshold scan, such as a margin between two scores.
func (c *Classifier) ClassifyFrom(base string, hits []OverrideHit) Classification {
	if !c.Has(base) {
		panic(fmt.Sprintf("scoring: unknown base tier %q", base))
	}

	tier := ""
	decidedBy := ""
	forced := false
	for _, h := range hits {
		if !c.Has(h.Tier) {
			panic(fmt.Sprintf("scoring: override %q names unknown tier %q", h.Name, h.Tier))
		}
		forced = forced || h.Force
		if tier == "" || c.Severity(h.Tier) > c.Severity(tier) {
			tier = h.Tier
			decidedBy = h.Name
		}
	}

	if !forced && (tier == "" || c.Severity(base) > c.Severity(tier)) {
		tier = base
		decidedBy = ""
	}

	return Classification{
		Tier:          tier,
		ThresholdTier: base,
		Overrides:     hits,
		DecidedBy:     decidedBy,
	}
}

// CheckScore panics when score lies outside [0, MaxScore].
func CheckScore(score float64) { checkScore(score) }

func checkScore(score float64) {
	if math.IsNaN(score) || score < 0 || score > MaxScore {
		panic(fmt.Sprintf("scoring: score %v outside [0, %v]", score, MaxScore))
	}
}
