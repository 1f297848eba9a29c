package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Tee records to a durable primary and, once that succeeds, forwards the
// record to best-effort secondaries such as event publishers. Only the
// primary's result is reported to the caller.
type Tee struct {
	primary     Recorder
	secondaries []Recorder
	logger      *slog.Logger
}

func NewTee(primary Recorder, logger *slog.Logger, secondaries ...Recorder) *Tee {
	return &Tee{primary: primary, secondaries: secondaries, logger: logger}
}

func (t *Tee) Record(ctx context.Context, rec Record) error {
	if err := t.primary.Record(ctx, rec); err != nil {
		return err
	}
	for _, s := range t.secondaries {
		if err := s.Record(ctx, rec); err != nil {
			t.logger.Warn("secondary audit sink failed", "engine", rec.Engine, "entity_id", rec.EntityID, "error", err)
		}
	}
	return nil
}

// ListByEntity reads from the primary when it supports reads.
func (t *Tee) ListByEntity(ctx context.Context, entityID string, limit int) ([]Record, error) {
	if r, ok := t.primary.(Reader); ok {
		return r.ListByEntity(ctx, entityID, limit)
	}
	return nil, nil
}

// Get reads from the primary when it supports lookups by id.
func (t *Tee) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	if g, ok := t.primary.(Getter); ok {
		return g.Get(ctx, id)
	}
	return Record{}, ErrNotFound
}

var _ Log = (*Tee)(nil)
