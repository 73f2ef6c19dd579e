package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/abtest-go/pkg/config"
	"github.com/XiaoConstantine/abtest-go/pkg/errors"
	"github.com/XiaoConstantine/abtest-go/pkg/experiment"
	"github.com/XiaoConstantine/abtest-go/pkg/logging"
)

// SQLiteRepository implements experiment.Repository using SQLite as storage.
// Records are serialized to JSON only at this boundary; the core never
// interprets the payloads.
type SQLiteRepository struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteRepository opens (or creates) the database file and initializes
// the schema.
func NewSQLiteRepository(cfg config.StorageConfig) (*SQLiteRepository, error) {
	path := cfg.Path
	if path == "" {
		path = "abtest.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to open sqlite database")
	}

	// Set connection pool settings
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	} else {
		db.SetMaxOpenConns(10)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	repo := &SQLiteRepository{
		db:     db,
		logger: logging.GetLogger(),
	}

	if err := repo.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	// Enable WAL mode for better concurrent performance
	if cfg.EnableWAL {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to enable WAL mode")
		}
	}

	// Set other pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			repo.logger.Warn(context.Background(), "failed to set pragma %s: %v", pragma, err)
		}
	}

	return repo, nil
}

func (r *SQLiteRepository) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS tests (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		record BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS variants (
		id TEXT PRIMARY KEY,
		test_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		record BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_variants_test ON variants(test_id);

	CREATE TABLE IF NOT EXISTS results (
		test_id TEXT NOT NULL,
		variant_id TEXT NOT NULL,
		request_id TEXT NOT NULL,
		record BLOB NOT NULL,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (test_id, variant_id, request_id)
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		test_id TEXT NOT NULL,
		record BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_test ON analyses(test_id);
	`

	if _, err := r.db.Exec(query); err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to initialize schema")
	}
	return nil
}

func (r *SQLiteRepository) SaveTest(ctx context.Context, test *experiment.Test) error {
	record, err := json.Marshal(test)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to serialize test")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tests (id, status, record, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, record=excluded.record, updated_at=excluded.updated_at`,
		test.ID, string(test.Status), record, time.Now().UnixNano())
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to save test")
	}
	return nil
}

func (r *SQLiteRepository) LoadTest(ctx context.Context, id string) (*experiment.Test, error) {
	var record []byte
	err := r.db.QueryRowContext(ctx, "SELECT record FROM tests WHERE id = ?", id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "test not found"),
			errors.Fields{"test_id": id})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to load test")
	}

	var test experiment.Test
	if err := json.Unmarshal(record, &test); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to deserialize test")
	}
	return &test, nil
}

func (r *SQLiteRepository) SaveVariant(ctx context.Context, variant *experiment.Variant) error {
	record, err := json.Marshal(variant)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to serialize variant")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO variants (id, test_id, position, record) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET record=excluded.record, position=excluded.position`,
		variant.ID, variant.TestID, variant.Position, record)
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to save variant")
	}
	return nil
}

func (r *SQLiteRepository) LoadVariants(ctx context.Context, testID string) ([]*experiment.Variant, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT record FROM variants WHERE test_id = ? ORDER BY position", testID)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to load variants")
	}
	defer rows.Close()

	var variants []*experiment.Variant
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to scan variant")
		}
		var variant experiment.Variant
		if err := json.Unmarshal(record, &variant); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to deserialize variant")
		}
		variants = append(variants, &variant)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.StorageUnavailable, "failed to load variants")
	}
	return variants, nil
}

// AppendResult stores one result row. The primary key on
// (test_id, variant_id, request_id) makes replays of the same request ID
// no-ops, so a timed-out append can be retried safely.
func (r *SQLiteRepository) AppendResult(ctx context.Context, result *experiment.Result) error {
	record, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to serialize result")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO results (test_id, variant_id, request_id, record, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		result.TestID, result.VariantID, result.RequestID, record, result.RecordedAt.UnixNano())
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to append result")
	}
	return nil
}

func (r *SQLiteRepository) SaveAnalysis(ctx context.Context, analysis *experiment.Analysis) error {
	record, err := json.Marshal(analysis)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to serialize analysis")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analyses (id, test_id, record, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET record=excluded.record`,
		analysis.ID, analysis.TestID, record, analysis.CreatedAt.UnixNano())
	if err != nil {
		return errors.Wrap(err, errors.StorageUnavailable, "failed to save analysis")
	}
	return nil
}

// CountResults reports the stored result rows for a test.
func (r *SQLiteRepository) CountResults(ctx context.Context, testID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM results WHERE test_id = ?", testID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.StorageUnavailable, "failed to count results")
	}
	return count, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
