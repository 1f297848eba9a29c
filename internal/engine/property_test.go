package engine

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/scoring"
)

// Property: the order evaluators are declared in never changes the verdict,
// and evaluating one snapshot twice yields the same score and tier.
func TestVerdictIgnoresEvaluatorOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("evaluator order and repetition are irrelevant", prop.ForAll(
		func(weights []float64, flags []bool, seed int64) bool {
			if len(weights) == 0 {
				return true
			}
			table := scoring.WeightTable{}
			attrs := map[string]any{}
			var evs []Evaluator[testSnapshot]
			for i, w := range weights {
				name := fmt.Sprintf("f%d", i)
				table[name] = w
				evs = append(evs, flagEvaluator(name))
				attrs[name] = i < len(flags) && flags[i]
			}
			shuffled := append([]Evaluator[testSnapshot](nil), evs...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			build := func(evs []Evaluator[testSnapshot]) *Engine[testSnapshot] {
				e, err := New(Config[testSnapshot]{Name: "prop", Weights: table, Tiers: riskTable(), Evaluators: evs}, audit.NewMemoryLog(), nil, testLogger())
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				return e
			}
			s := testSnapshot{id: "x", attrs: attrs}
			a := build(evs).Assess(context.Background(), s)
			b := build(shuffled).Assess(context.Background(), s)
			c := build(evs).Assess(context.Background(), s)
			return a.Score == b.Score && a.Tier == b.Tier && a.Score == c.Score && a.Tier == c.Tier
		},
		gen.SliceOfN(8, gen.Float64Range(0, 30)),
		gen.SliceOf(gen.Bool()),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
