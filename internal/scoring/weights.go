package scoring

import (
	"fmt"
	"math"
	"sort"
)

// WeightTable maps every factor an engine can emit to the weight it
// contributes when triggered. A name always carries the same weight.
type WeightTable map[string]float64

// Validate checks the table is non-empty and every weight is a finite,
// non-negative number no larger than MaxScore.
func (w WeightTable) Validate(engine string) error {
	if len(w) == 0 {
		return &ConfigError{Engine: engine, Field: "weights", Problem: "no factors defined"}
	}
	for _, name := range w.Names() {
		v := w[name]
		if name == "" {
			return &ConfigError{Engine: engine, Field: "weights", Problem: "empty factor name"}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ConfigError{Engine: engine, Field: "weights." + name, Problem: "weight is not a finite number"}
		}
		if v < 0 {
			return &ConfigError{Engine: engine, Field: "weights." + name, Problem: fmt.Sprintf("negative weight: %f", v)}
		}
		if v > MaxScore {
			return &ConfigError{Engine: engine, Field: "weights." + name, Problem: fmt.Sprintf("weight %f exceeds %v", v, MaxScore)}
		}
	}
	return nil
}

// Names returns the factor names in sorted order.
func (w WeightTable) Names() []string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require reports a ConfigError for the first name missing from the table.
func (w WeightTable) Require(engine string, names ...string) error {
	for _, name := range names {
		if _, ok := w[name]; !ok {
			return &ConfigError{Engine: engine, Field: "weights." + name, Problem: "factor has no weight"}
		}
	}
	return nil
}

// Apply attaches table weights to evaluator signals. A signal naming a
// factor outside the table is a wiring bug and panics.
func (w WeightTable) Apply(signals []Signal) []Factor {
	factors := make([]Factor, 0, len(signals))
	for _, s := range signals {
		weight, ok := w[s.Name]
		if !ok {
			panic(fmt.Sprintf("scoring: factor %q has no weight", s.Name))
		}
		factors = append(factors, Factor{
			Name:      s.Name,
			Triggered: s.Triggered,
			Weight:    weight,
			Reason:    s.Reason,
			Degraded:  s.Degraded,
		})
	}
	return factors
}

// Subset returns a copy of the table restricted to names.
func (w WeightTable) Subset(names ...string) WeightTable {
	out := make(WeightTable, len(names))
	for _, name := range names {
		if v, ok := w[name]; ok {
			out[name] = v
		}
	}
	return out
}
