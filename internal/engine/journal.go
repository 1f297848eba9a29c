package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/metrics"
)

// DefaultRecordTimeout bounds one audit append.
const DefaultRecordTimeout = 2 * time.Second

// Journal appends decision records on behalf of an engine. Failures are
// logged and counted, never returned as evaluation errors.
type Journal struct {
	engine   string
	recorder audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	timeout  time.Duration
}

func NewJournal(engine string, recorder audit.Recorder, m *metrics.Metrics, logger *slog.Logger, timeout time.Duration) *Journal {
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Journal{engine: engine, recorder: recorder, metrics: m, logger: logger, timeout: timeout}
}

// Commit appends rec and reports whether it was durably logged.
func (j *Journal) Commit(ctx context.Context, rec audit.Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if err := j.recorder.Record(ctx, rec); err != nil {
		j.metrics.IncRecordingFailure(j.engine)
		j.logger.Error("failed to record decision",
			"engine", j.engine,
			"entity_id", rec.EntityID,
			"record_id", rec.ID,
			"tier", rec.Tier,
			"error", err,
		)
		return false, err
	}
	return true, nil
}
