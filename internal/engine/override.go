package engine

import (
	"log/slog"

	"github.com/BittieTasks/trust/internal/rules"
)

// Override is a hard rule that applies Tier when When holds. By default Tier
// is a floor; with Force set it is the final tier whatever the score. When
// receives the aggregated score so rules like "score >= 30" can be written.
type Override[S Snapshot] struct {
	Name   string
	Tier   string
	Reason string
	Force  bool
	When   func(s S, score float64) bool
}

// RuleOverrides adapts compiled configuration rules. A rule that fails to
// evaluate is logged and treated as not matching.
func RuleOverrides[S Snapshot](rs []*rules.Rule, logger *slog.Logger) []Override[S] {
	out := make([]Override[S], 0, len(rs))
	for _, r := range rs {
		out = append(out, Override[S]{
			Name:   r.Name,
			Tier:   r.Tier,
			Reason: r.Reason,
			Force:  r.Force,
			When: func(s S, score float64) bool {
				ok, err := r.Match(s.Attributes(), score)
				if err != nil {
					logger.Warn("override rule failed", "rule", r.Name, "entity_id", s.EntityID(), "error", err)
					return false
				}
				return ok
			},
		})
	}
	return out
}
