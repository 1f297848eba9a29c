package audit

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an append-only in-process audit log.
type MemoryLog struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Record(_ context.Context, rec Record) error {
	if rec.EntityID == "" {
		return errors.New("audit: record without entity id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec.Clone())
	return nil
}

func (l *MemoryLog) ListByEntity(_ context.Context, entityID string, limit int) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].EntityID != entityID {
			continue
		}
		out = append(out, l.records[i].Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (l *MemoryLog) Get(_ context.Context, id uuid.UUID) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.records {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return Record{}, ErrNotFound
}

// CountOutcomes counts decisions for subjectID by engine at or after since,
// restricted to tiers when any are given.
func (l *MemoryLog) CountOutcomes(_ context.Context, subjectID, engine string, tiers []string, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, r := range l.records {
		if r.SubjectID != subjectID || r.Engine != engine || r.DecidedAt.Before(since) {
			continue
		}
		if len(tiers) > 0 && !slices.Contains(tiers, r.Tier) {
			continue
		}
		n++
	}
	return n, nil
}

// All returns every record in append order.
func (l *MemoryLog) All() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	for i, r := range l.records {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of records appended so far.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

var _ Log = (*MemoryLog)(nil)
