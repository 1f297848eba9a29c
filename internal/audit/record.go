package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("decision record not found")

// DecidedBySystem marks records produced by an engine rather than a person.
const DecidedBySystem = "system"

// Record is the immutable output of one evaluation. A re-evaluation appends
// a new record; existing records are never updated.
type Record struct {
	ID        uuid.UUID      `json:"id"`
	EntityID  string         `json:"entity_id"`
	SubjectID string         `json:"subject_id,omitempty"`
	Engine    string         `json:"engine"`
	Score     float64        `json:"score"`
	Tier      string         `json:"tier"`
	Reasons   []string       `json:"reasons"`
	Factors   []string       `json:"factors,omitempty"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	DecidedAt time.Time      `json:"decided_at"`
	DecidedBy string         `json:"decided_by"`
}

// Clone returns a copy that shares no slices or maps with r.
func (r Record) Clone() Record {
	out := r
	out.Reasons = append([]string(nil), r.Reasons...)
	out.Factors = append([]string(nil), r.Factors...)
	out.Inputs = cloneMap(r.Inputs)
	out.Details = cloneMap(r.Details)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Recorder appends decision records. Implementations must be safe for
// concurrent use and must never update or delete prior records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Reader reads back the audit trail for one entity, newest first.
type Reader interface {
	ListByEntity(ctx context.Context, entityID string, limit int) ([]Record, error)
}

// Getter fetches a single record by id.
type Getter interface {
	Get(ctx context.Context, id uuid.UUID) (Record, error)
}

// Log is a recorder that can also be read back.
type Log interface {
	Recorder
	Reader
	Getter
}
