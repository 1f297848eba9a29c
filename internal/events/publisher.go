package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BittieTasks/trust/internal/audit"
)

// DecisionEvent is the payload published for every recorded decision.
// Inputs are omitted; subscribers that need them read the audit log.
type DecisionEvent struct {
	RecordID  uuid.UUID `json:"record_id"`
	Engine    string    `json:"engine"`
	EntityID  string    `json:"entity_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	Tier      string    `json:"tier"`
	Score     float64   `json:"score"`
	Reasons   []string  `json:"reasons"`
	Factors   []string  `json:"factors,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

func NewDecisionEvent(rec audit.Record) DecisionEvent {
	return DecisionEvent{
		RecordID:  rec.ID,
		Engine:    rec.Engine,
		EntityID:  rec.EntityID,
		SubjectID: rec.SubjectID,
		Tier:      rec.Tier,
		Score:     rec.Score,
		Reasons:   rec.Reasons,
		Factors:   rec.Factors,
		DecidedAt: rec.DecidedAt,
	}
}

// DecisionPublisher is an audit.Recorder that fans decisions out to NATS.
// It is meant as a secondary sink behind audit.Tee.
type DecisionPublisher struct {
	client Client
}

func NewDecisionPublisher(client Client) *DecisionPublisher {
	return &DecisionPublisher{client: client}
}

func (p *DecisionPublisher) Record(ctx context.Context, rec audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := SubjectDecision(rec.Engine, rec.EntityID)
	if err := p.client.Publish(subject, NewDecisionEvent(rec)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

var _ audit.Recorder = (*DecisionPublisher)(nil)
