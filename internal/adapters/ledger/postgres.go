package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/types"
	"github.com/highleverage/momentum/pkg/metrics"
)

// PostgreSQL-backed Ledger implementation. The schema is created on
// construction; all writes go through single statements so the append-once
// invariants are enforced by primary keys rather than application locks.

// Default connection pool configuration.
const (
	defaultQueryTimeout    = 5 * time.Second
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	connectTimeout         = 10 * time.Second
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS mss_results (
		moment_id      TEXT NOT NULL,
		player_id      TEXT NOT NULL,
		role           TEXT NOT NULL,
		weight_version TEXT NOT NULL,
		score          DOUBLE PRECISION NOT NULL,
		baseline       DOUBLE PRECISION NOT NULL,
		breakdown      JSONB NOT NULL,
		flags          TEXT[],
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (moment_id, player_id)
	)`,
	`CREATE INDEX IF NOT EXISTS mss_results_magnitude_idx
		ON mss_results ((ABS(score)) DESC, moment_id, player_id)`,
	`CREATE TABLE IF NOT EXISTS mss_predictions (
		moment_id      TEXT NOT NULL,
		player_id      TEXT NOT NULL,
		model_version  TEXT NOT NULL,
		weight_version TEXT NOT NULL,
		score          DOUBLE PRECISION NOT NULL,
		baseline       DOUBLE PRECISION NOT NULL,
		predicted      JSONB NOT NULL,
		observed       DOUBLE PRECISION[],
		eval           JSONB,
		status         TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (moment_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS mss_weights (
		seq        BIGSERIAL PRIMARY KEY,
		version    TEXT NOT NULL UNIQUE,
		w1         DOUBLE PRECISION NOT NULL,
		w2         DOUBLE PRECISION NOT NULL,
		origin     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mss_reports (
		seq          BIGSERIAL PRIMARY KEY,
		run_id       TEXT NOT NULL UNIQUE,
		generated_at TIMESTAMPTZ NOT NULL,
		report       JSONB NOT NULL
	)`,
}

// PostgresLedger persists ledger state in PostgreSQL.
type PostgresLedger struct {
	db              *sqlx.DB
	queryTimeout    time.Duration
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// PostgresOption applies a configuration option to the PostgresLedger.
type PostgresOption func(*PostgresLedger)

// WithQueryTimeout sets the per-statement timeout.
func WithQueryTimeout(timeout time.Duration) PostgresOption {
	return func(l *PostgresLedger) {
		if timeout > 0 {
			l.queryTimeout = timeout
		}
	}
}

// WithMaxOpenConns sets the connection pool's open connection limit.
func WithMaxOpenConns(n int) PostgresOption {
	return func(l *PostgresLedger) {
		if n > 0 {
			l.maxOpenConns = n
		}
	}
}

// WithMaxIdleConns sets the connection pool's idle connection limit.
func WithMaxIdleConns(n int) PostgresOption {
	return func(l *PostgresLedger) {
		if n > 0 {
			l.maxIdleConns = n
		}
	}
}

// WithConnMaxLifetime sets how long a pooled connection may be reused.
func WithConnMaxLifetime(d time.Duration) PostgresOption {
	return func(l *PostgresLedger) {
		if d > 0 {
			l.connMaxLifetime = d
		}
	}
}

// NewPostgresLedger opens a connection pool, verifies connectivity and
// creates the schema if it does not exist yet.
func NewPostgresLedger(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresLedger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	l := &PostgresLedger{
		queryTimeout:    defaultQueryTimeout,
		maxOpenConns:    defaultMaxOpenConns,
		maxIdleConns:    defaultMaxIdleConns,
		connMaxLifetime: defaultConnMaxLifetime,
	}
	for _, opt := range opts {
		opt(l)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(l.maxOpenConns)
	db.SetMaxIdleConns(l.maxIdleConns)
	db.SetConnMaxLifetime(l.connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	l.db = db
	if err := l.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *PostgresLedger) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (l *PostgresLedger) Close() error {
	return l.db.Close()
}

// isUniqueViolation reports whether err is a primary key or unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// AppendResult stores a scored result.
func (l *PostgresLedger) AppendResult(ctx context.Context, res model.MSSResult) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerUpdateLatency(float64(latency))
	}()

	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	breakdown, err := json.Marshal(res.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	query := `
		INSERT INTO mss_results (moment_id, player_id, role, weight_version, score, baseline, breakdown, flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = l.db.ExecContext(ctx, query,
		res.MomentID, res.PlayerID, string(res.Role), res.WeightVersion,
		res.Score, res.Baseline, breakdown, pq.StringArray(res.Flags))
	if err != nil {
		if isUniqueViolation(err) {
			metrics.RecordErrorByComponent("ledger", "duplicate_result")
			return fmt.Errorf("result for %s/%s: %w", res.MomentID, res.PlayerID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// Result returns the stored result for a moment and player.
func (l *PostgresLedger) Result(ctx context.Context, momentID, playerID string) (model.MSSResult, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT moment_id, player_id, role, weight_version, score, baseline, breakdown, flags
		FROM mss_results
		WHERE moment_id = $1 AND player_id = $2`

	res, err := scanResult(l.db.QueryRowxContext(ctx, query, momentID, playerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.RecordErrorByComponent("ledger", "not_found")
			return model.MSSResult{}, ErrNotFound
		}
		return model.MSSResult{}, fmt.Errorf("failed to query result: %w", err)
	}
	return res, nil
}

// ResultsForMoment returns every per-player result for a moment.
func (l *PostgresLedger) ResultsForMoment(ctx context.Context, momentID string) ([]model.MSSResult, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT moment_id, player_id, role, weight_version, score, baseline, breakdown, flags
		FROM mss_results
		WHERE moment_id = $1
		ORDER BY player_id`

	rows, err := l.db.QueryxContext(ctx, query, momentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query moment results: %w", err)
	}
	defer rows.Close()

	var out []model.MSSResult
	for rows.Next() {
		res, err := scanResultRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	if len(out) == 0 {
		metrics.RecordErrorByComponent("ledger", "not_found")
		return nil, ErrNotFound
	}
	return out, nil
}

// TopShifts returns the n largest shifts by score magnitude.
func (l *PostgresLedger) TopShifts(ctx context.Context, n int) ([]types.RankedShift, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("ledger", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT moment_id, player_id, score
		FROM mss_results
		ORDER BY ABS(score) DESC, moment_id, player_id
		LIMIT $1`

	rows, err := l.db.QueryxContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query top shifts: %w", err)
	}
	defer rows.Close()

	out := make([]types.RankedShift, 0, n)
	for rows.Next() {
		var s types.RankedShift
		if err := rows.Scan(&s.MomentID, &s.PlayerID, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	assignRanks(out)
	return out, nil
}

// AppendPrediction stores a freshly issued prediction record.
func (l *PostgresLedger) AppendPrediction(ctx context.Context, rec model.PredictionRecord) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerUpdateLatency(float64(latency))
	}()

	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	predicted, err := json.Marshal(rec.Predicted)
	if err != nil {
		return fmt.Errorf("failed to marshal trajectory: %w", err)
	}
	var eval []byte
	if rec.Eval != nil {
		if eval, err = json.Marshal(rec.Eval); err != nil {
			return fmt.Errorf("failed to marshal eval metrics: %w", err)
		}
	}

	query := `
		INSERT INTO mss_predictions (moment_id, player_id, model_version, weight_version, score, baseline, predicted, observed, eval, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = l.db.ExecContext(ctx, query,
		rec.MomentID, rec.PlayerID, rec.ModelVersion, rec.WeightVersion,
		rec.Score, rec.Baseline, predicted, pq.Float64Array(rec.Observed),
		eval, string(rec.Status))
	if err != nil {
		if isUniqueViolation(err) {
			metrics.RecordErrorByComponent("ledger", "duplicate_prediction")
			return fmt.Errorf("prediction for %s/%s: %w", rec.MomentID, rec.PlayerID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// Prediction returns the stored prediction for a moment and player.
func (l *PostgresLedger) Prediction(ctx context.Context, momentID, playerID string) (model.PredictionRecord, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT moment_id, player_id, model_version, weight_version, score, baseline, predicted, observed, eval, status
		FROM mss_predictions
		WHERE moment_id = $1 AND player_id = $2`

	rec, err := scanPrediction(l.db.QueryRowxContext(ctx, query, momentID, playerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.RecordErrorByComponent("ledger", "not_found")
			return model.PredictionRecord{}, ErrNotFound
		}
		return model.PredictionRecord{}, fmt.Errorf("failed to query prediction: %w", err)
	}
	return rec, nil
}

// PendingPredictions returns unsettled records ordered by moment then player.
func (l *PostgresLedger) PendingPredictions(ctx context.Context) ([]model.PredictionRecord, error) {
	return l.predictionsByStatus(ctx, model.PredictionPending)
}

// SettledPredictions returns evaluated records ordered by moment then player.
func (l *PostgresLedger) SettledPredictions(ctx context.Context) ([]model.PredictionRecord, error) {
	return l.predictionsByStatus(ctx, model.PredictionEvaluated)
}

func (l *PostgresLedger) predictionsByStatus(ctx context.Context, status model.PredictionStatus) ([]model.PredictionRecord, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerQueryLatency(float64(latency))
	}()

	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT moment_id, player_id, model_version, weight_version, score, baseline, predicted, observed, eval, status
		FROM mss_predictions
		WHERE status = $1
		ORDER BY moment_id, player_id`

	rows, err := l.db.QueryxContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s predictions: %w", status, err)
	}
	defer rows.Close()

	out := make([]model.PredictionRecord, 0)
	for rows.Next() {
		rec, err := scanPredictionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// SettlePrediction attaches observations and metrics to a pending record.
func (l *PostgresLedger) SettlePrediction(ctx context.Context, momentID, playerID string, observed []float64, eval model.EvalMetrics) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordLedgerUpdateLatency(float64(latency))
	}()

	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	evalJSON, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to marshal eval metrics: %w", err)
	}

	query := `
		UPDATE mss_predictions
		SET observed = $3, eval = $4, status = $5
		WHERE moment_id = $1 AND player_id = $2 AND status = $6`

	result, err := l.db.ExecContext(ctx, query,
		momentID, playerID, pq.Float64Array(observed), evalJSON,
		string(model.PredictionEvaluated), string(model.PredictionPending))
	if err != nil {
		return fmt.Errorf("failed to settle prediction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read settle outcome: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing updated: either the record is missing or it settled earlier.
	var status string
	err = l.db.QueryRowxContext(ctx,
		`SELECT status FROM mss_predictions WHERE moment_id = $1 AND player_id = $2`,
		momentID, playerID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("ledger", "not_found")
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check prediction status: %w", err)
	}
	metrics.RecordErrorByComponent("ledger", "already_settled")
	return ErrAlreadySettled
}

// PutWeightSet stores an immutable weight version.
func (l *PostgresLedger) PutWeightSet(ctx context.Context, ws model.WeightSet) error {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		INSERT INTO mss_weights (version, w1, w2, origin, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := l.db.ExecContext(ctx, query,
		ws.Version, ws.W1, ws.W2, string(ws.Origin), ws.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			metrics.RecordErrorByComponent("ledger", "duplicate_weights")
			return fmt.Errorf("weight set %s: %w", ws.Version, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert weight set: %w", err)
	}
	return nil
}

// WeightSet returns the weight set stored under version.
func (l *PostgresLedger) WeightSet(ctx context.Context, version string) (model.WeightSet, error) {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT version, w1, w2, origin, created_at
		FROM mss_weights
		WHERE version = $1`

	var ws model.WeightSet
	err := l.db.QueryRowxContext(ctx, query, version).
		Scan(&ws.Version, &ws.W1, &ws.W2, &ws.Origin, &ws.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("ledger", "not_found")
		return model.WeightSet{}, ErrNotFound
	}
	if err != nil {
		return model.WeightSet{}, fmt.Errorf("failed to query weight set: %w", err)
	}
	return ws, nil
}

// LatestWeightSet returns the most recently stored weight set.
func (l *PostgresLedger) LatestWeightSet(ctx context.Context) (model.WeightSet, error) {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT version, w1, w2, origin, created_at
		FROM mss_weights
		ORDER BY seq DESC
		LIMIT 1`

	var ws model.WeightSet
	err := l.db.QueryRowxContext(ctx, query).
		Scan(&ws.Version, &ws.W1, &ws.W2, &ws.Origin, &ws.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeightSet{}, ErrNoWeights
	}
	if err != nil {
		return model.WeightSet{}, fmt.Errorf("failed to query latest weight set: %w", err)
	}
	return ws, nil
}

// WeightHistory returns every stored weight set, oldest first.
func (l *PostgresLedger) WeightHistory(ctx context.Context) ([]model.WeightSet, error) {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT version, w1, w2, origin, created_at
		FROM mss_weights
		ORDER BY seq`

	rows, err := l.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight history: %w", err)
	}
	defer rows.Close()

	var out []model.WeightSet
	for rows.Next() {
		var ws model.WeightSet
		if err := rows.Scan(&ws.Version, &ws.W1, &ws.W2, &ws.Origin, &ws.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan weight set: %w", err)
		}
		out = append(out, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// PutReport stores a calibration report.
func (l *PostgresLedger) PutReport(ctx context.Context, rep model.CalibrationReport) error {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO mss_reports (run_id, generated_at, report)
		VALUES ($1, $2, $3)`

	_, err = l.db.ExecContext(ctx, query, rep.RunID, rep.GeneratedAt, body)
	if err != nil {
		if isUniqueViolation(err) {
			metrics.RecordErrorByComponent("ledger", "duplicate_report")
			return fmt.Errorf("report %s: %w", rep.RunID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// LatestReport returns the most recently stored calibration report.
func (l *PostgresLedger) LatestReport(ctx context.Context) (model.CalibrationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	query := `
		SELECT report
		FROM mss_reports
		ORDER BY seq DESC
		LIMIT 1`

	var body []byte
	err := l.db.QueryRowxContext(ctx, query).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CalibrationReport{}, ErrNoReport
	}
	if err != nil {
		return model.CalibrationReport{}, fmt.Errorf("failed to query latest report: %w", err)
	}

	var rep model.CalibrationReport
	if err := json.Unmarshal(body, &rep); err != nil {
		return model.CalibrationReport{}, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return rep, nil
}

// ResultCount returns the number of stored results.
func (l *PostgresLedger) ResultCount(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	var count int
	if err := l.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM mss_results`).Scan(&count); err != nil {
		metrics.RecordErrorByComponent("ledger", "count_failed")
		return 0
	}
	return count
}

// PredictionCount returns the number of stored prediction records.
func (l *PostgresLedger) PredictionCount(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	var count int
	if err := l.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM mss_predictions`).Scan(&count); err != nil {
		metrics.RecordErrorByComponent("ledger", "count_failed")
		return 0
	}
	return count
}

// Scan helpers.

func scanResult(row *sqlx.Row) (model.MSSResult, error) {
	var res model.MSSResult
	var breakdown []byte
	var flags pq.StringArray

	err := row.Scan(&res.MomentID, &res.PlayerID, &res.Role, &res.WeightVersion,
		&res.Score, &res.Baseline, &breakdown, &flags)
	if err != nil {
		return model.MSSResult{}, err
	}
	if err := json.Unmarshal(breakdown, &res.Breakdown); err != nil {
		return model.MSSResult{}, fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}
	res.Flags = []string(flags)
	return res, nil
}

func scanResultRows(rows *sqlx.Rows) (model.MSSResult, error) {
	var res model.MSSResult
	var breakdown []byte
	var flags pq.StringArray

	err := rows.Scan(&res.MomentID, &res.PlayerID, &res.Role, &res.WeightVersion,
		&res.Score, &res.Baseline, &breakdown, &flags)
	if err != nil {
		return model.MSSResult{}, fmt.Errorf("failed to scan result: %w", err)
	}
	if err := json.Unmarshal(breakdown, &res.Breakdown); err != nil {
		return model.MSSResult{}, fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}
	res.Flags = []string(flags)
	return res, nil
}

func scanPrediction(row *sqlx.Row) (model.PredictionRecord, error) {
	var rec model.PredictionRecord
	var predicted, eval []byte
	var observed pq.Float64Array

	err := row.Scan(&rec.MomentID, &rec.PlayerID, &rec.ModelVersion, &rec.WeightVersion,
		&rec.Score, &rec.Baseline, &predicted, &observed, &eval, &rec.Status)
	if err != nil {
		return model.PredictionRecord{}, err
	}
	return decodePrediction(rec, predicted, observed, eval)
}

func scanPredictionRows(rows *sqlx.Rows) (model.PredictionRecord, error) {
	var rec model.PredictionRecord
	var predicted, eval []byte
	var observed pq.Float64Array

	err := rows.Scan(&rec.MomentID, &rec.PlayerID, &rec.ModelVersion, &rec.WeightVersion,
		&rec.Score, &rec.Baseline, &predicted, &observed, &eval, &rec.Status)
	if err != nil {
		return model.PredictionRecord{}, fmt.Errorf("failed to scan prediction: %w", err)
	}
	return decodePrediction(rec, predicted, observed, eval)
}

func decodePrediction(rec model.PredictionRecord, predicted []byte, observed pq.Float64Array, eval []byte) (model.PredictionRecord, error) {
	if err := json.Unmarshal(predicted, &rec.Predicted); err != nil {
		return model.PredictionRecord{}, fmt.Errorf("failed to unmarshal trajectory: %w", err)
	}
	rec.Observed = []float64(observed)
	if len(eval) > 0 {
		rec.Eval = &model.EvalMetrics{}
		if err := json.Unmarshal(eval, rec.Eval); err != nil {
			return model.PredictionRecord{}, fmt.Errorf("failed to unmarshal eval metrics: %w", err)
		}
	}
	return rec, nil
}
