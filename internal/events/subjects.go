package events

import (
	"strings"
	"time"
)

const (
	SubjectDecisionWildcard = "trust.decision.>"

	StreamName   = "TRUST_DECISIONS"
	StreamMaxAge = 90 * 24 * time.Hour
)

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_", "\n", "_")

// SubjectDecision returns the subject a decision about entityID is
// published on. Characters NATS treats as separators or wildcards are
// replaced so the entity always occupies one token.
func SubjectDecision(engine, entityID string) string {
	if entityID == "" {
		entityID = "_"
	}
	return "trust.decision." + tokenReplacer.Replace(engine) + "." + tokenReplacer.Replace(entityID)
}
