package storage

import (
	"context"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var sampleColumns = []string{
	"id", "workspace", "ts", "operator_id", "machine_id", "operation_type", "order_id", "step_id",
	"target_qty", "completed_qty", "defect_qty", "cycle_time", "standard_time", "temperature", "humidity", "late",
}

// PgxSampleStore keeps metric samples in PostgreSQL. Ingestion uses COPY since samples
// arrive in bursts from the shop floor.
type PgxSampleStore struct {
	pool *pgxpool.Pool
}

func NewPgxSampleStore(ctx context.Context, connStr string) (*PgxSampleStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgxSampleStore{pool: pool}, nil
}

func (s *PgxSampleStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *PgxSampleStore) AppendSamples(ctx context.Context, samples []models.MetricSample) error {
	rows := make([][]any, len(samples))
	for i, m := range samples {
		rows[i] = []any{
			m.ID, m.Workspace, m.Timestamp, m.OperatorID, m.MachineID, m.OperationType, m.OrderID, m.StepID,
			m.TargetQty, m.CompletedQty, m.DefectQty, m.CycleTime, m.StandardTime, m.Temperature, m.Humidity, m.Late,
		}
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"metric_samples"}, sampleColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return errors.Wrap(err, "copy metric samples")
	}
	if int(n) != len(samples) {
		return errors.Errorf("copied %d of %d metric samples", n, len(samples))
	}
	return nil
}

func (s *PgxSampleStore) ListSamples(ctx context.Context, workspace string, since time.Time) ([]models.MetricSample, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, workspace, ts, operator_id, machine_id, operation_type, order_id, step_id,
		target_qty, completed_qty, defect_qty, cycle_time, standard_time, temperature, humidity, late
		FROM metric_samples WHERE workspace = $1 AND ts >= $2 ORDER BY ts, id`, workspace, since)
	if err != nil {
		return nil, errors.Wrapf(err, "list samples of %s", workspace)
	}
	samples, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.MetricSample])
	if err != nil {
		return nil, errors.Wrapf(err, "scan samples of %s", workspace)
	}
	return samples, nil
}

func (s *PgxSampleStore) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM metric_samples WHERE ts < $1", before)
	if err != nil {
		return 0, errors.Wrap(err, "prune metric samples")
	}
	return tag.RowsAffected(), nil
}
