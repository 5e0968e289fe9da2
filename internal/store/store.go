package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/statewire/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - instances and dispatches
const currentSchemaVersion = 1

// Journal stores and reads dispatch records. Record makes any Journal usable
// as an engine.Recorder.
type Journal interface {
	Record(ctx context.Context, rec ir.DispatchRecord) error
	RegisterInstance(ctx context.Context, inst Instance) error
	ReadDispatches(ctx context.Context, instanceID string) ([]ir.DispatchRecord, error)
	ListInstances(ctx context.Context) ([]InstanceSummary, error)

	// GetInstance returns a registered instance or ErrInstanceNotFound.
	GetInstance(ctx context.Context, id string) (Instance, error)

	// LatestSeq returns the highest seq journaled for an instance, or 0.
	LatestSeq(ctx context.Context, instanceID string) (int64, error)

	Close() error
}

// Instance describes one machine instance whose dispatches are journaled.
type Instance struct {
	ID            string `json:"id"`
	Machine       string `json:"machine"`
	Fingerprint   string `json:"fingerprint"`
	ModelVersion  string `json:"model_version"`
	EngineVersion string `json:"engine_version"`
}

// NewInstance describes an instance of the named machine stamped with the
// current model and engine versions.
func NewInstance(id, machine, fingerprint string) Instance {
	return Instance{
		ID:            id,
		Machine:       machine,
		Fingerprint:   fingerprint,
		ModelVersion:  ir.ModelVersion,
		EngineVersion: ir.EngineVersion,
	}
}

// InstanceSummary is an instance plus the extent of its journal.
type InstanceSummary struct {
	Instance
	Dispatches int   `json:"dispatches"`
	FirstSeq   int64 `json:"first_seq"`
	LastSeq    int64 `json:"last_seq"`
}

// Store is the SQLite journal.
// Uses WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

var _ Journal = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
