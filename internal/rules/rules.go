// Package rules compiles operator-supplied override rules written in CEL.
//
// A rule sees two variables: snapshot, the entity's attribute map, and
// score, the aggregated score. It must evaluate to a bool.
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/BittieTasks/trust/internal/scoring"
)

// Spec is a rule as it appears in configuration.
type Spec struct {
	Name   string `yaml:"name"`
	When   string `yaml:"when"`
	Tier   string `yaml:"tier"`
	Reason string `yaml:"reason"`
	// Force makes Tier final regardless of score instead of a floor.
	Force bool `yaml:"force"`
}

// Rule is a compiled Spec.
type Rule struct {
	Name   string
	Tier   string
	Reason string
	Force  bool
	Expr   string

	program cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("snapshot", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("score", cel.DoubleType),
	)
}

// Compile compiles every spec eagerly. Any problem is reported as a
// *scoring.ConfigError naming the offending rule.
func Compile(engine string, specs []Spec) ([]*Rule, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	out := make([]*Rule, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		field := fmt.Sprintf("overrides[%d]", i)
		if s.Name == "" {
			return nil, &scoring.ConfigError{Engine: engine, Field: field, Problem: "rule has no name"}
		}
		field = "overrides." + s.Name
		if seen[s.Name] {
			return nil, &scoring.ConfigError{Engine: engine, Field: field, Problem: "duplicate rule name"}
		}
		seen[s.Name] = true
		if s.Tier == "" {
			return nil, &scoring.ConfigError{Engine: engine, Field: field, Problem: "rule has no tier"}
		}

		ast, issues := env.Compile(s.When)
		if issues != nil && issues.Err() != nil {
			return nil, &scoring.ConfigError{Engine: engine, Field: field, Problem: "compile: " + issues.Err().Error()}
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, &scoring.ConfigError{Engine: engine, Field: field, Problem: fmt.Sprintf("expression yields %s, want bool", ast.OutputType())}
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, &scoring.ConfigError{Engine: engine, Field: field, Problem: "program: " + err.Error()}
		}

		reason := s.Reason
		if reason == "" {
			reason = "matched rule " + s.Name
		}
		out = append(out, &Rule{Name: s.Name, Tier: s.Tier, Reason: reason, Force: s.Force, Expr: s.When, program: prg})
	}
	return out, nil
}

// Match evaluates the rule against one snapshot's attributes.
func (r *Rule) Match(attrs map[string]any, score float64) (bool, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	out, _, err := r.program.Eval(map[string]any{
		"snapshot": attrs,
		"score":    score,
	})
	if err != nil {
		return false, fmt.Errorf("rule %s: eval: %w", r.Name, err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %s: result not bool", r.Name)
	}
	return val, nil
}
