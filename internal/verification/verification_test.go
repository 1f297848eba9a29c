package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/content"
	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/scoring"
)

var now = time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func acceptAll() content.DocumentAnalyzer {
	return content.DocumentAnalyzerFunc(func(_ context.Context, doc content.Document) (*content.DocumentReport, error) {
		if doc.ID == "forged" {
			return &content.DocumentReport{Authentic: true, Altered: true}, nil
		}
		return &content.DocumentReport{Authentic: true, Confidence: 0.98}, nil
	})
}

func newEngine(t *testing.T, docs content.DocumentAnalyzer) *engine.Engine[Profile] {
	t.Helper()
	e, err := New(DefaultConfig(), Deps{
		Recorder:  audit.NewMemoryLog(),
		Documents: docs,
		Logger:    testLogger(),
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)
	return e
}

func TestEmailAndPhoneIsBasic(t *testing.T) {
	e := newEngine(t, acceptAll())
	out, err := e.Evaluate(context.Background(), Profile{UserID: "u1", EmailVerified: true, PhoneVerified: true})
	require.NoError(t, err)
	assert.Equal(t, 45.0, out.Record.Score)
	assert.Equal(t, TierBasic, out.Record.Tier)
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		score   float64
		tier    string
	}{
		{"nothing", Profile{UserID: "u1"}, 0, TierBasic},
		{"email phone document", Profile{UserID: "u1", EmailVerified: true, PhoneVerified: true, Document: &content.Document{ID: "d1"}}, 70, TierStandard},
		{"all but behavior", Profile{UserID: "u1", EmailVerified: true, PhoneVerified: true, Document: &content.Document{ID: "d1"}, FaceMatched: true}, 90, TierPremium},
		{"forged document", Profile{UserID: "u1", EmailVerified: true, PhoneVerified: true, Document: &content.Document{ID: "forged"}, FaceMatched: true}, 65, TierStandard},
		{"everything", Profile{
			UserID: "u1", EmailVerified: true, PhoneVerified: true, Document: &content.Document{ID: "d1"}, FaceMatched: true,
			JoinedAt: now.AddDate(0, -3, 0), CompletedTasks: 12,
		}, 100, TierPremium},
		{"flagged account gets no behavior credit", Profile{
			UserID: "u1", JoinedAt: now.AddDate(0, -3, 0), CompletedTasks: 12, RiskFlags: []string{"chargeback"},
		}, 0, TierBasic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, acceptAll())
			out, err := e.Evaluate(context.Background(), tt.profile)
			require.NoError(t, err)
			assert.Equal(t, tt.score, out.Record.Score)
			assert.Equal(t, tt.tier, out.Record.Tier)
		})
	}
}

func TestDocumentFailureCountsAsUnverified(t *testing.T) {
	failing := content.DocumentAnalyzerFunc(func(context.Context, content.Document) (*content.DocumentReport, error) {
		return nil, errors.New("provider timeout")
	})
	for name, docs := range map[string]content.DocumentAnalyzer{"failing": failing, "unconfigured": nil} {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, docs)
			out, err := e.Evaluate(context.Background(), Profile{
				UserID: "u1", EmailVerified: true, PhoneVerified: true, FaceMatched: true, Document: &content.Document{ID: "d1"},
			})
			require.NoError(t, err)
			assert.Equal(t, 65.0, out.Record.Score)
			assert.Equal(t, TierStandard, out.Record.Tier)
			assert.Contains(t, out.Record.Reasons, "document check unavailable; document not counted")
		})
	}
}

func TestPreviousLevelIsKept(t *testing.T) {
	e := newEngine(t, acceptAll())
	out, err := e.Evaluate(context.Background(), Profile{
		UserID: "u1", EmailVerified: true, PhoneVerified: true,
		PreviousTier: TierPremium, PreviousVerifiedAt: now.AddDate(0, 0, -10),
	})
	require.NoError(t, err)
	assert.Equal(t, 45.0, out.Record.Score)
	assert.Equal(t, TierPremium, out.Record.Tier)
	assert.Equal(t, TierBasic, out.Classification.ThresholdTier)
	assert.Contains(t, out.Record.Reasons, "keeps previously granted premium level")
	assert.Equal(t, true, out.Record.Details["retained"])
}

func TestLevelAdvances(t *testing.T) {
	e := newEngine(t, acceptAll())
	out, err := e.Evaluate(context.Background(), Profile{
		UserID: "u1", EmailVerified: true, PhoneVerified: true, Document: &content.Document{ID: "d1"},
		PreviousTier: TierBasic, PreviousVerifiedAt: now.AddDate(0, 0, -10),
	})
	require.NoError(t, err)
	assert.Equal(t, TierStandard, out.Record.Tier)
}

func TestStaleVerificationResetsToBasic(t *testing.T) {
	e := newEngine(t, acceptAll())
	out, err := e.Evaluate(context.Background(), Profile{
		UserID: "u1", EmailVerified: true, PhoneVerified: true, Document: &content.Document{ID: "d1"}, FaceMatched: true,
		PreviousTier: TierPremium, PreviousVerifiedAt: now.AddDate(0, 0, -400),
	})
	require.NoError(t, err)
	assert.Equal(t, 90.0, out.Record.Score)
	assert.Equal(t, TierBasic, out.Record.Tier)
	assert.Equal(t, "reverification", out.Classification.DecidedBy)
	assert.Contains(t, out.Record.Reasons, "re-verification required: last verified more than 365 days ago")
}

func TestNewRiskFlagsResetToBasic(t *testing.T) {
	e := newEngine(t, acceptAll())
	out, err := e.Evaluate(context.Background(), Profile{
		UserID: "u1", EmailVerified: true, PhoneVerified: true,
		PreviousTier: TierStandard, PreviousVerifiedAt: now.AddDate(0, 0, -5),
		NewRiskFlags: []string{"disputed_payment"},
	})
	require.NoError(t, err)
	assert.Equal(t, TierBasic, out.Record.Tier)
	assert.Contains(t, out.Record.Reasons, "re-verification required: new risk flags: disputed_payment")
	assert.NotContains(t, out.Record.Reasons, "re-verification required")
	assert.Equal(t, true, out.Record.Details["reverification"])

	n := 0
	for _, reason := range out.Record.Reasons {
		if strings.HasPrefix(reason, "re-verification required") {
			n++
		}
	}
	assert.Equal(t, 1, n, "one re-verification reason per record")
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds = []scoring.Threshold{{Tier: TierBasic, Min: 0}, {Tier: TierStandard, Min: 90}, {Tier: TierPremium, Min: 60}}
	_, err := New(cfg, Deps{Recorder: audit.NewMemoryLog(), Logger: testLogger()})
	var cfgErr *scoring.ConfigError
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)

	cfg = DefaultConfig()
	cfg.StaleAfterDays = 0
	_, err = New(cfg, Deps{Recorder: audit.NewMemoryLog(), Logger: testLogger()})
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}

// Property: without a re-verification trigger the level never drops below
// the previously granted one.
func TestLevelNeverDropsWithoutTrigger(t *testing.T) {
	e := newEngine(t, acceptAll())
	c, err := scoring.NewClassifier(Name, Tiers(DefaultConfig().Thresholds))
	require.NoError(t, err)
	tiers := []string{TierPremium, TierStandard, TierBasic}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ratchet holds", prop.ForAll(
		func(email, phone, doc, face bool, prev int, ageDays int, flagged bool) bool {
			p := Profile{
				UserID: "u1", EmailVerified: email, PhoneVerified: phone, FaceMatched: face,
				PreviousTier: tiers[prev], PreviousVerifiedAt: now.AddDate(0, 0, -ageDays),
			}
			if doc {
				p.Document = &content.Document{ID: "d1"}
			}
			if flagged {
				p.NewRiskFlags = []string{"chargeback"}
			}
			out, err := e.Evaluate(context.Background(), p)
			if err != nil {
				return false
			}
			triggered := flagged || ageDays > 365
			if triggered {
				return out.Record.Tier == TierBasic
			}
			return c.Severity(out.Record.Tier) <= c.Severity(p.PreviousTier)
		},
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
		gen.IntRange(0, 2),
		gen.IntRange(0, 800),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
