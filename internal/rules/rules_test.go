package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BittieTasks/trust/internal/scoring"
)

func TestCompileAndMatch(t *testing.T) {
	rs, err := Compile("task_approval", []Spec{
		{Name: "big_payout", When: `double(snapshot.payout) > 1000.0`, Tier: "enhanced_review", Reason: "payout above $1000"},
		{Name: "high_score", When: `score >= 50.0`, Tier: "rejected"},
		{Name: "category", When: `"category" in snapshot && snapshot.category == "childcare"`, Tier: "corporate_review"},
	})
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, "matched rule high_score", rs[1].Reason)
	assert.False(t, rs[0].Force)

	tests := []struct {
		rule  int
		attrs map[string]any
		score float64
		want  bool
	}{
		{0, map[string]any{"payout": 1500.0}, 0, true},
		{0, map[string]any{"payout": 20.0}, 0, false},
		{1, nil, 55, true},
		{1, nil, 10, false},
		{2, map[string]any{"category": "childcare"}, 0, true},
		{2, map[string]any{}, 0, false},
	}
	for _, tt := range tests {
		got, err := rs[tt.rule].Match(tt.attrs, tt.score)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "rule %s attrs %v", rs[tt.rule].Name, tt.attrs)
	}
}

func TestMatchMissingKeyIsError(t *testing.T) {
	rs, err := Compile("fraud_check", []Spec{{Name: "ua", When: `snapshot.user_agent == "curl"`, Tier: "block"}})
	require.NoError(t, err)
	_, err = rs[0].Match(map[string]any{}, 0)
	assert.Error(t, err)
}

func TestCompileRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"no name", Spec{When: "true", Tier: "block"}},
		{"no tier", Spec{Name: "x", When: "true"}},
		{"syntax", Spec{Name: "x", When: "score >=", Tier: "block"}},
		{"not bool", Spec{Name: "x", When: "score + 1.0", Tier: "block"}},
		{"unknown variable", Spec{Name: "x", When: "request.ip == ''", Tier: "block"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("fraud_check", []Spec{tt.spec})
			var cfgErr *scoring.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, "fraud_check", cfgErr.Engine)
		})
	}
}

func TestCompileRejectsDuplicateNames(t *testing.T) {
	_, err := Compile("fraud_check", []Spec{
		{Name: "x", When: "true", Tier: "block"},
		{Name: "x", When: "false", Tier: "block"},
	})
	assert.Error(t, err)
}

func TestCompileEmpty(t *testing.T) {
	rs, err := Compile("fraud_check", nil)
	assert.NoError(t, err)
	assert.Nil(t, rs)
}

func TestCompileKeepsForce(t *testing.T) {
	rs, err := Compile("task_approval", []Spec{
		{Name: "partner", When: `"partner" in snapshot`, Tier: "corporate_review", Force: true},
	})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].Force)
}
