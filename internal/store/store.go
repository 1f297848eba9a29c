// Package store persists decision records and answers history lookups
// against them.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/history"
)

// Store is a durable audit log that can also serve history lookups.
type Store interface {
	audit.Log
	history.Lookup
	Close() error
}

// DefaultListLimit caps ListByEntity when the caller passes no limit.
const DefaultListLimit = 100

const postgresSchema = `
CREATE TABLE IF NOT EXISTS trust_decisions (
	id          UUID PRIMARY KEY,
	entity_id   TEXT NOT NULL,
	subject_id  TEXT NOT NULL DEFAULT '',
	engine      TEXT NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	tier        TEXT NOT NULL,
	reasons     JSONB NOT NULL DEFAULT '[]',
	factors     JSONB NOT NULL DEFAULT '[]',
	inputs      JSONB,
	details     JSONB,
	decided_at  TIMESTAMPTZ NOT NULL,
	decided_by  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS trust_decisions_entity_idx ON trust_decisions (entity_id, decided_at DESC);
CREATE INDEX IF NOT EXISTS trust_decisions_subject_idx ON trust_decisions (subject_id, engine, decided_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trust_decisions (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	entity_id   TEXT NOT NULL,
	subject_id  TEXT NOT NULL DEFAULT '',
	engine      TEXT NOT NULL,
	score       REAL NOT NULL,
	tier        TEXT NOT NULL,
	reasons     TEXT NOT NULL DEFAULT '[]',
	factors     TEXT NOT NULL DEFAULT '[]',
	inputs      TEXT,
	details     TEXT,
	decided_at  INTEGER NOT NULL,
	decided_by  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS trust_decisions_entity_idx ON trust_decisions (entity_id, decided_at DESC);
CREATE INDEX IF NOT EXISTS trust_decisions_subject_idx ON trust_decisions (subject_id, engine, decided_at);
`

// encoded holds the JSON columns of one record.
type encoded struct {
	reasons []byte
	factors []byte
	inputs  []byte
	details []byte
}

func encodeRecord(rec audit.Record) (encoded, error) {
	var e encoded
	var err error
	reasons := rec.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	factors := rec.Factors
	if factors == nil {
		factors = []string{}
	}
	if e.reasons, err = json.Marshal(reasons); err != nil {
		return e, fmt.Errorf("encode reasons: %w", err)
	}
	if e.factors, err = json.Marshal(factors); err != nil {
		return e, fmt.Errorf("encode factors: %w", err)
	}
	if rec.Inputs != nil {
		if e.inputs, err = json.Marshal(rec.Inputs); err != nil {
			return e, fmt.Errorf("encode inputs: %w", err)
		}
	}
	if rec.Details != nil {
		if e.details, err = json.Marshal(rec.Details); err != nil {
			return e, fmt.Errorf("encode details: %w", err)
		}
	}
	return e, nil
}

func decodeInto(rec *audit.Record, e encoded) error {
	if len(e.reasons) > 0 {
		if err := json.Unmarshal(e.reasons, &rec.Reasons); err != nil {
			return fmt.Errorf("decode reasons: %w", err)
		}
	}
	if len(e.factors) > 0 {
		if err := json.Unmarshal(e.factors, &rec.Factors); err != nil {
			return fmt.Errorf("decode factors: %w", err)
		}
	}
	if len(e.inputs) > 0 {
		if err := json.Unmarshal(e.inputs, &rec.Inputs); err != nil {
			return fmt.Errorf("decode inputs: %w", err)
		}
	}
	if len(e.details) > 0 {
		if err := json.Unmarshal(e.details, &rec.Details); err != nil {
			return fmt.Errorf("decode details: %w", err)
		}
	}
	return nil
}

func checkRecord(rec audit.Record) error {
	if rec.EntityID == "" {
		return fmt.Errorf("store: record without entity id")
	}
	if rec.Engine == "" {
		return fmt.Errorf("store: record without engine")
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
