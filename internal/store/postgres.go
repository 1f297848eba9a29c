package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BittieTasks/trust/internal/audit"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the decisions table and its indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const recordColumns = `id, entity_id, subject_id, engine, score, tier,
	reasons, factors, inputs, details, decided_at, decided_by`

func (s *PostgresStore) Record(ctx context.Context, rec audit.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	e, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trust_decisions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.EntityID, rec.SubjectID, rec.Engine, rec.Score, rec.Tier,
		e.reasons, e.factors, e.inputs, e.details, rec.DecidedAt.UTC(), rec.DecidedBy,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (audit.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM trust_decisions WHERE id = $1`, id)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Record{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entityID string, limit int) ([]audit.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM trust_decisions
		WHERE entity_id = $1
		ORDER BY decided_at DESC, id
		LIMIT $2`, entityID, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountOutcomes(ctx context.Context, subjectID, engine string, tiers []string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM trust_decisions
		WHERE subject_id = $1 AND engine = $2 AND decided_at >= $3`
	args := []any{subjectID, engine, since.UTC()}
	if len(tiers) > 0 {
		query += ` AND tier = ANY($4)`
		args = append(args, tiers)
	}

	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return n, nil
}

func scanPostgresRecord(row pgx.Row) (audit.Record, error) {
	var rec audit.Record
	var e encoded
	err := row.Scan(
		&rec.ID, &rec.EntityID, &rec.SubjectID, &rec.Engine, &rec.Score, &rec.Tier,
		&e.reasons, &e.factors, &e.inputs, &e.details, &rec.DecidedAt, &rec.DecidedBy,
	)
	if err != nil {
		return audit.Record{}, err
	}
	if err := decodeInto(&rec, e); err != nil {
		return audit.Record{}, err
	}
	return rec, nil
}

var _ Store = (*PostgresStore)(nil)
