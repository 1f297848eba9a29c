package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/BittieTasks/trust/internal/audit"
)

// SQLStore keeps decisions in an embedded SQLite database. It suits single
// node deployments and tests; PostgresStore is the production backend.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at dsn and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent evaluations.
	db.SetMaxOpenConns(1)

	s := NewSQLStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

const sqlRecordColumns = `id, entity_id, subject_id, engine, score, tier,
	reasons, factors, inputs, details, decided_at, decided_by`

func (s *SQLStore) Record(ctx context.Context, rec audit.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	e, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO trust_decisions (`+sqlRecordColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.EntityID, rec.SubjectID, rec.Engine, rec.Score, rec.Tier,
		string(e.reasons), string(e.factors), nullText(e.inputs), nullText(e.details),
		rec.DecidedAt.UnixNano(), rec.DecidedBy,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (audit.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqlRecordColumns+`
FROM trust_decisions WHERE id = ?`, id.String())
	rec, err := scanSQLRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.Record{}, err
	}
	return rec, nil
}

func (s *SQLStore) ListByEntity(ctx context.Context, entityID string, limit int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqlRecordColumns+`
FROM trust_decisions
WHERE entity_id = ?
ORDER BY decided_at DESC, seq DESC
LIMIT ?`, entityID, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		rec, err := scanSQLRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountOutcomes(ctx context.Context, subjectID, engine string, tiers []string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM trust_decisions
WHERE subject_id = ? AND engine = ? AND decided_at >= ?`
	args := []any{subjectID, engine, since.UnixNano()}
	if len(tiers) > 0 {
		query += ` AND tier IN (?` + strings.Repeat(", ?", len(tiers)-1) + `)`
		for _, t := range tiers {
			args = append(args, t)
		}
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLRecord(row scanner) (audit.Record, error) {
	var rec audit.Record
	var id, reasons, factors string
	var inputs, details sql.NullString
	var decidedAt int64
	err := row.Scan(
		&id, &rec.EntityID, &rec.SubjectID, &rec.Engine, &rec.Score, &rec.Tier,
		&reasons, &factors, &inputs, &details, &decidedAt, &rec.DecidedBy,
	)
	if err != nil {
		return audit.Record{}, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return audit.Record{}, fmt.Errorf("parse record id: %w", err)
	}
	rec.DecidedAt = time.Unix(0, decidedAt).UTC()

	e := encoded{reasons: []byte(reasons), factors: []byte(factors)}
	if inputs.Valid {
		e.inputs = []byte(inputs.String)
	}
	if details.Valid {
		e.details = []byte(details.String)
	}
	if err := decodeInto(&rec, e); err != nil {
		return audit.Record{}, err
	}
	return rec, nil
}

func nullText(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

var _ Store = (*SQLStore)(nil)
