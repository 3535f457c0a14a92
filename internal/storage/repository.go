package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stock-analytics/internal/dataset"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createRunsTableSQL = `CREATE TABLE IF NOT EXISTS ingestion_runs (
        id            UUID PRIMARY KEY,
        started_at    TIMESTAMPTZ NOT NULL,
        finished_at   TIMESTAMPTZ NOT NULL,
        files_total   INTEGER NOT NULL,
        files_failed  INTEGER NOT NULL,
        rows_cleaned  INTEGER NOT NULL,
        rows_enriched INTEGER NOT NULL,
        status        TEXT NOT NULL,
        error         TEXT
    );`

	createAnalyticsTableSQL = `CREATE TABLE IF NOT EXISTS stock_analytics (
        company       TEXT NOT NULL,
        trade_date    DATE NOT NULL,
        sector        TEXT NOT NULL,
        open          DOUBLE PRECISION NOT NULL,
        high          DOUBLE PRECISION NOT NULL,
        low           DOUBLE PRECISION NOT NULL,
        close         DOUBLE PRECISION NOT NULL,
        volume        DOUBLE PRECISION NOT NULL,
        daily_return  DOUBLE PRECISION,
        ma_short      DOUBLE PRECISION,
        ma_long       DOUBLE PRECISION,
        volatility    DOUBLE PRECISION
    );`

	insertRunSQL = `INSERT INTO ingestion_runs (
        id,
        started_at,
        finished_at,
        files_total,
        files_failed,
        rows_cleaned,
        rows_enriched,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9, '')
    );`

	listRecentRunsSQL = `SELECT
        id::text,
        started_at,
        finished_at,
        files_total,
        files_failed,
        rows_cleaned,
        rows_enriched,
        status,
        COALESCE(error, '')
    FROM ingestion_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	truncateAnalyticsSQL = `DELETE FROM stock_analytics;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_xact_lock($1);`
)

var analyticsTable = pgx.Identifier{"stock_analytics"}

var analyticsColumns = []string{
	"company", "trade_date", "sector", "open", "high", "low", "close", "volume",
	"daily_return", "ma_short", "ma_long", "volatility",
}

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// RunStore defines operations for run auditing.
type RunStore interface {
	InsertRun(ctx context.Context, run RunRecord) error
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AnalyticsStore persists the enriched dataset.
type AnalyticsStore interface {
	ReplaceAnalytics(ctx context.Context, rows []dataset.Enriched) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to runs and analytics rows.
type Store struct {
	db DB
}

// NewStore wires a pool (or any DB) into a Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

func (s *Store) getDB() (DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureSchema creates the tables when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createRunsTableSQL, createAnalyticsTableSQL} {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock takes a transaction-scoped advisory lock. The lock is held
// until unlock rolls the transaction back.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin lock transaction: %w", err)
	}

	var acquired bool
	if err := tx.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		_ = tx.Rollback(ctx)
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = tx.Rollback(ctx)
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// rollback releases the xact lock; errors leave it to the session end
		_ = tx.Rollback(ctxUnlock)
	}
	return unlock, true, nil
}

// InsertRun persists a run audit row.
func (s *Store) InsertRun(ctx context.Context, run RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, execErr := db.Exec(ctx, insertRunSQL,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.FilesTotal,
		run.FilesFailed,
		run.RowsCleaned,
		run.RowsEnriched,
		run.Status,
		run.Error,
	)
	if execErr != nil {
		return fmt.Errorf("insert run: %w", execErr)
	}
	return nil
}

// ListRecentRuns lists the most recent runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.StartedAt,
			&rec.FinishedAt,
			&rec.FilesTotal,
			&rec.FilesFailed,
			&rec.RowsCleaned,
			&rec.RowsEnriched,
			&rec.Status,
			&rec.Error,
		); err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// ReplaceAnalytics swaps the stored enriched dataset for rows in a single
// transaction.
func (s *Store) ReplaceAnalytics(ctx context.Context, rows []dataset.Enriched) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin replace analytics: %w", err)
	}
	if _, err := tx.Exec(ctx, truncateAnalyticsSQL); err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("clear analytics: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, analyticsTable, analyticsColumns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		row := rows[i]
		return []any{
			row.Company,
			row.Date,
			row.Sector,
			row.Open,
			row.High,
			row.Low,
			row.Close,
			row.Volume,
			nullable(row.DailyReturn),
			nullable(row.MAShort),
			nullable(row.MALong),
			nullable(row.Volatility),
		}, nil
	}))
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("copy analytics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit analytics: %w", err)
	}
	return copied, nil
}

func nullable(f dataset.Float) any {
	if !f.Valid {
		return nil
	}
	return f.Value
}

var (
	_ RunStore       = (*Store)(nil)
	_ AnalyticsStore = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
