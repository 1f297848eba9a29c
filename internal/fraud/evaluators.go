package fraud

import (
	"context"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/history"
	"github.com/BittieTasks/trust/internal/scoring"
	"github.com/BittieTasks/trust/internal/velocity"
)

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\b.+\bselect\b`),
	regexp.MustCompile(`(?i)'\s*or\s+'?\d*'?\s*=\s*'?\d*`),
	regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`),
	regexp.MustCompile(`(?i);\s*(drop|delete|truncate)\s+table\b`),
	regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep)\s*\(`),
	regexp.MustCompile(`(?i)<\s*script\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`\.\./`),
}

func networkEvaluator(prefixes []netip.Prefix) engine.Evaluator[Request] {
	return engine.EvaluatorFunc("network", []string{FactorBlockedIP}, func(_ context.Context, r Request) []scoring.Signal {
		if inPrefixes(r.IP, prefixes) {
			return []scoring.Signal{scoring.Hit(FactorBlockedIP, "request from a blocked network")}
		}
		return []scoring.Signal{scoring.Miss(FactorBlockedIP)}
	})
}

func clientEvaluator(cfg Config) engine.Evaluator[Request] {
	agents := make([]string, len(cfg.AutomatedAgents))
	for i, a := range cfg.AutomatedAgents {
		agents[i] = strings.ToLower(a)
	}
	return engine.EvaluatorFunc("client", []string{FactorMissingUserAgent, FactorAutomatedClient}, func(_ context.Context, r Request) []scoring.Signal {
		ua := strings.ToLower(strings.TrimSpace(r.UserAgent))
		if ua == "" {
			return []scoring.Signal{
				scoring.Hit(FactorMissingUserAgent, "request has no user agent"),
				scoring.Miss(FactorAutomatedClient),
			}
		}
		for _, a := range agents {
			if a != "" && strings.Contains(ua, a) {
				return []scoring.Signal{
					scoring.Miss(FactorMissingUserAgent),
					scoring.Hit(FactorAutomatedClient, "automated client detected"),
				}
			}
		}
		return []scoring.Signal{scoring.Miss(FactorMissingUserAgent), scoring.Miss(FactorAutomatedClient)}
	})
}

func payloadEvaluator(cfg Config) engine.Evaluator[Request] {
	probes := make([]string, len(cfg.ProbePaths))
	for i, p := range cfg.ProbePaths {
		probes[i] = strings.ToLower(p)
	}
	return engine.EvaluatorFunc("payload", []string{FactorProbePath, FactorInjection}, func(_ context.Context, r Request) []scoring.Signal {
		sigs := make([]scoring.Signal, 0, 2)

		path := strings.ToLower(r.Path)
		probe := scoring.Miss(FactorProbePath)
		for _, p := range probes {
			if p != "" && strings.HasPrefix(path, p) {
				probe = scoring.Hit(FactorProbePath, "request probes a known attack path")
				break
			}
		}
		sigs = append(sigs, probe)

		injection := scoring.Miss(FactorInjection)
		for _, s := range []string{r.Path, r.Query} {
			if looksInjected(s) {
				injection = scoring.Hit(FactorInjection, "request contains an injection pattern")
				break
			}
		}
		return append(sigs, injection)
	})
}

func looksInjected(s string) bool {
	if s == "" {
		return false
	}
	candidates := []string{s}
	if decoded, err := url.QueryUnescape(s); err == nil && decoded != s {
		candidates = append(candidates, decoded)
	}
	for _, c := range candidates {
		for _, re := range injectionPatterns {
			if re.MatchString(c) {
				return true
			}
		}
	}
	return false
}

// velocityEvaluator fails open: an unreachable counter never blocks. Each
// request is counted once by id, so re-evaluating it sees the same count.
type velocityEvaluator struct {
	counter velocity.Counter
	cfg     Config
	now     func() time.Time
}

func (v *velocityEvaluator) Name() string      { return "velocity" }
func (v *velocityEvaluator) Factors() []string { return []string{FactorHighVelocity} }

func (v *velocityEvaluator) SafeDefault() []scoring.Signal {
	return []scoring.Signal{scoring.Degrade(FactorHighVelocity, false, "request counter unavailable; velocity not checked")}
}

func (v *velocityEvaluator) Evaluate(ctx context.Context, r Request) []scoring.Signal {
	ip := strings.TrimSpace(r.IP)
	if ip == "" {
		return []scoring.Signal{scoring.Miss(FactorHighVelocity)}
	}
	at := r.ReceivedAt
	if at.IsZero() {
		at = v.now()
	}
	ctx, cancel := context.WithTimeout(ctx, v.cfg.CollaboratorTimeout())
	defer cancel()

	n, err := v.counter.Observe(ctx, "ip:"+ip, r.ID, at, v.cfg.VelocityWindow())
	if err != nil {
		return v.SafeDefault()
	}
	if n > int64(v.cfg.VelocityLimit) {
		return []scoring.Signal{scoring.Hit(FactorHighVelocity, fmt.Sprintf("more than %d requests in %s", v.cfg.VelocityLimit, v.cfg.VelocityWindow()))}
	}
	return []scoring.Signal{scoring.Miss(FactorHighVelocity)}
}

// blockHistoryEvaluator also fails open.
type blockHistoryEvaluator struct {
	lookup history.Lookup
	cfg    Config
	now    func() time.Time
}

func (b *blockHistoryEvaluator) Name() string      { return "block_history" }
func (b *blockHistoryEvaluator) Factors() []string { return []string{FactorRecentBlocks} }

func (b *blockHistoryEvaluator) SafeDefault() []scoring.Signal {
	return []scoring.Signal{scoring.Degrade(FactorRecentBlocks, false, "block history unavailable; not checked")}
}

func (b *blockHistoryEvaluator) Evaluate(ctx context.Context, r Request) []scoring.Signal {
	if r.UserID == "" {
		return []scoring.Signal{scoring.Miss(FactorRecentBlocks)}
	}
	at := r.ReceivedAt
	if at.IsZero() {
		at = b.now()
	}
	n, err := b.lookup.CountOutcomes(ctx, r.UserID, Name, []string{TierBlock}, at.Add(-b.cfg.RecentBlockWindow()))
	if err != nil {
		return b.SafeDefault()
	}
	if n >= b.cfg.RecentBlockLimit {
		return []scoring.Signal{scoring.Hit(FactorRecentBlocks, fmt.Sprintf("%d requests blocked recently", n))}
	}
	return []scoring.Signal{scoring.Miss(FactorRecentBlocks)}
}
