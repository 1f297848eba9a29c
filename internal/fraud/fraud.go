// Package fraud screens live requests and decides whether to block them.
package fraud

import (
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/history"
	"github.com/BittieTasks/trust/internal/metrics"
	"github.com/BittieTasks/trust/internal/rules"
	"github.com/BittieTasks/trust/internal/scoring"
	"github.com/BittieTasks/trust/internal/velocity"
)

const Name = "fraud_check"

const (
	TierAllow = "allow"
	TierBlock = "block"
)

const (
	FactorBlockedIP        = "blocked_ip"
	FactorMissingUserAgent = "missing_user_agent"
	FactorAutomatedClient  = "automated_client"
	FactorProbePath        = "probe_path"
	FactorInjection        = "injection_pattern"
	FactorHighVelocity     = "high_velocity"
	FactorRecentBlocks     = "recent_blocks"
)

// Request is the snapshot of one inbound request.
type Request struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	IP         string    `json:"ip"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Query      string    `json:"query,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

func (r Request) EntityID() string  { return r.ID }
func (r Request) SubjectID() string { return r.UserID }

func (r Request) Attributes() map[string]any {
	return map[string]any{
		"ip":            r.IP,
		"method":        r.Method,
		"path":          r.Path,
		"user_agent":    r.UserAgent,
		"authenticated": r.UserID != "",
	}
}

type Config struct {
	Weights    scoring.WeightTable `yaml:"weights"`
	Thresholds []scoring.Threshold `yaml:"thresholds"`

	BlockedCIDRs    []string `yaml:"blocked_cidrs"`
	AutomatedAgents []string `yaml:"automated_agents"`
	ProbePaths      []string `yaml:"probe_paths"`

	VelocityLimit          int `yaml:"velocity_limit"`
	VelocityWindowSeconds  int `yaml:"velocity_window_seconds"`
	RecentBlockLimit       int `yaml:"recent_block_limit"`
	RecentBlockWindowHours int `yaml:"recent_block_window_hours"`

	Overrides             []rules.Spec `yaml:"overrides"`
	EvaluatorTimeoutMs    int          `yaml:"evaluator_timeout_ms"`
	CollaboratorTimeoutMs int          `yaml:"collaborator_timeout_ms"`
}

func DefaultConfig() Config {
	return Config{
		Weights: scoring.WeightTable{
			FactorBlockedIP:        60,
			FactorMissingUserAgent: 20,
			FactorAutomatedClient:  30,
			FactorProbePath:        25,
			FactorInjection:        40,
			FactorHighVelocity:     35,
			FactorRecentBlocks:     25,
		},
		Thresholds: []scoring.Threshold{
			{Tier: TierAllow, Min: 0},
			{Tier: TierBlock, Min: 50},
		},
		AutomatedAgents: []string{
			"curl/", "wget/", "python-requests", "python-urllib", "go-http-client",
			"scrapy", "sqlmap", "nikto", "nmap", "masscan", "zgrab", "headlesschrome", "phantomjs",
		},
		ProbePaths: []string{
			"/wp-admin", "/wp-login.php", "/xmlrpc.php", "/.env", "/.git", "/phpmyadmin",
			"/cgi-bin", "/server-status", "/actuator", "/.aws",
		},
		VelocityLimit:          120,
		VelocityWindowSeconds:  60,
		RecentBlockLimit:       3,
		RecentBlockWindowHours: 24,
		EvaluatorTimeoutMs:     500,
		CollaboratorTimeoutMs:  200,
	}
}

func (c Config) VelocityWindow() time.Duration {
	return time.Duration(c.VelocityWindowSeconds) * time.Second
}

func (c Config) RecentBlockWindow() time.Duration {
	return time.Duration(c.RecentBlockWindowHours) * time.Hour
}

func (c Config) EvaluatorTimeout() time.Duration {
	return time.Duration(c.EvaluatorTimeoutMs) * time.Millisecond
}

func (c Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutMs) * time.Millisecond
}

func (c Config) prefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.BlockedCIDRs))
	for _, s := range c.BlockedCIDRs {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, &scoring.ConfigError{Engine: Name, Field: "blocked_cidrs", Problem: fmt.Sprintf("bad address %q", s)}
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, &scoring.ConfigError{Engine: Name, Field: "blocked_cidrs", Problem: fmt.Sprintf("bad prefix %q", s)}
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func (c Config) validate() error {
	switch {
	case c.VelocityLimit <= 0 || c.VelocityWindowSeconds <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "velocity_limit", Problem: "limit and window must be positive"}
	case c.CollaboratorTimeoutMs <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "collaborator_timeout_ms", Problem: "must be positive"}
	case c.RecentBlockLimit <= 0 || c.RecentBlockWindowHours <= 0:
		return &scoring.ConfigError{Engine: Name, Field: "recent_block_limit", Problem: "limit and window must be positive"}
	}
	return nil
}

type Deps struct {
	Recorder audit.Recorder
	History  history.Lookup
	Counter  velocity.Counter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

func Tiers(thresholds []scoring.Threshold) scoring.TierTable {
	return scoring.TierTable{
		Polarity:   scoring.PolarityRisk,
		Tiers:      []string{TierAllow, TierBlock},
		Thresholds: thresholds,
	}
}

func New(cfg Config, deps Deps) (*engine.Engine[Request], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	prefixes, err := cfg.prefixes()
	if err != nil {
		return nil, err
	}
	if deps.History == nil {
		return nil, &scoring.ConfigError{Engine: Name, Field: "history", Problem: "no history lookup"}
	}
	if deps.Counter == nil {
		return nil, &scoring.ConfigError{Engine: Name, Field: "counter", Problem: "no velocity counter"}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	configured, err := rules.Compile(Name, cfg.Overrides)
	if err != nil {
		return nil, err
	}

	overrides := []engine.Override[Request]{{
		Name:   "blocked_ip",
		Tier:   TierBlock,
		Reason: "address is on the block list",
		When: func(r Request, _ float64) bool {
			return inPrefixes(r.IP, prefixes)
		},
	}}
	overrides = append(overrides, engine.RuleOverrides[Request](configured, deps.Logger)...)

	return engine.New(engine.Config[Request]{
		Name:    Name,
		Weights: cfg.Weights,
		Tiers:   Tiers(cfg.Thresholds),
		Evaluators: []engine.Evaluator[Request]{
			networkEvaluator(prefixes),
			clientEvaluator(cfg),
			payloadEvaluator(cfg),
			&velocityEvaluator{counter: deps.Counter, cfg: cfg, now: deps.Now},
			&blockHistoryEvaluator{lookup: history.WithTimeout(deps.History, cfg.CollaboratorTimeout()), cfg: cfg, now: deps.Now},
		},
		Overrides:        overrides,
		EvaluatorTimeout: cfg.EvaluatorTimeout(),
		Now:              deps.Now,
	}, deps.Recorder, deps.Metrics, deps.Logger)
}

func inPrefixes(ip string, prefixes []netip.Prefix) bool {
	if len(prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
