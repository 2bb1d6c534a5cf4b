package export

import (
	"context"
	"database/sql"
	_ "embed"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/tieravm/aggregate"
	"github.com/YuminosukeSato/tieravm/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// RunInfo describes one pipeline execution.
type RunInfo struct {
	RunID       string
	StartedAt   time.Time
	Elapsed     time.Duration
	InputPath   string
	NumRecords  int
	NumFeatures int
}

// SQLiteSink stores run results in a SQLite database file.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the results database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &SQLiteSink{db: db}, nil
}

// Close closes the database handle.
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for read queries.
func (s *SQLiteSink) DB() *sql.DB {
	return s.db
}

// WriteRun stores one run in a single transaction.
func (s *SQLiteSink) WriteRun(ctx context.Context, run RunInfo, res *aggregate.Result) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, elapsed_ms, input_path, n_records, n_features, mae, mape, r2)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UTC().UnixMilli(), run.Elapsed.Milliseconds(), run.InputPath,
		run.NumRecords, run.NumFeatures, res.Overall.MAE, res.Overall.MAPE, res.Overall.R2,
	); err != nil {
		return errors.Wrap(err, "insert run")
	}

	if err = insertMany(ctx, tx, `INSERT INTO predictions (run_id, tier, actual, predicted) VALUES (?, ?, ?, ?)`,
		len(res.Predictions), func(i int) []any {
			p := res.Predictions[i]
			return []any{run.RunID, p.Tier, p.Actual, p.Predicted}
		}); err != nil {
		return errors.Wrap(err, "insert predictions")
	}

	if err = insertMany(ctx, tx, `INSERT INTO tier_metrics (run_id, tier, n_train, n_test, mae, mape, r2, best_depth)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		len(res.TierMetrics), func(i int) []any {
			m := res.TierMetrics[i]
			return []any{run.RunID, m.Tier, m.NTrain, m.NTest, m.MAE, m.MAPE, m.R2, m.BestDepth}
		}); err != nil {
		return errors.Wrap(err, "insert tier metrics")
	}

	if err = insertMany(ctx, tx, `INSERT INTO depth_trace (run_id, tier, depth, mae, mape, r2) VALUES (?, ?, ?, ?, ?, ?)`,
		len(res.DepthTrace), func(i int) []any {
			d := res.DepthTrace[i]
			return []any{run.RunID, d.Tier, d.Depth, d.MAE, d.MAPE, d.R2}
		}); err != nil {
		return errors.Wrap(err, "insert depth trace")
	}

	const importanceSQL = `INSERT INTO feature_importance (run_id, tier, feature, importance) VALUES (?, ?, ?, ?)`
	if err = insertMany(ctx, tx, importanceSQL, len(res.Importance), func(i int) []any {
		fi := res.Importance[i]
		return []any{run.RunID, nil, fi.Feature, fi.Importance}
	}); err != nil {
		return errors.Wrap(err, "insert feature importance")
	}
	if err = insertMany(ctx, tx, importanceSQL, len(res.TierImportance), func(i int) []any {
		fi := res.TierImportance[i]
		return []any{run.RunID, fi.Tier, fi.Feature, fi.Importance}
	}); err != nil {
		return errors.Wrap(err, "insert tier feature importance")
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func insertMany(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return nil
}
