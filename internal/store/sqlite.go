package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/onlyscans/scanproxy/internal/errors"
	"github.com/onlyscans/scanproxy/internal/logging"
	_ "modernc.org/sqlite"
)

// DefaultRetain is how many snapshots are kept per key.
const DefaultRetain = 10

// ErrNoSnapshot is returned by Latest when nothing has been saved for a key.
var ErrNoSnapshot = stderrors.New("no snapshot stored")

// Snapshot is one stored payload.
type Snapshot struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// SQLiteStore keeps the last good upstream payloads in SQLite with WAL mode.
// It is safe for concurrent use.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *logging.Logger
	retain int
	now    func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithRetain sets how many snapshots are kept per key.
func WithRetain(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.retain = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		logger: logging.Discard(),
		retain: DefaultRetain,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS snapshots (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					key TEXT NOT NULL,
					payload BLOB NOT NULL,
					created_at INTEGER NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_snapshots_key_created ON snapshots(key, created_at);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}
	return nil
}

// Save stores payload under key and prunes older snapshots beyond the retain count.
func (s *SQLiteStore) Save(ctx context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin save", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (key, payload, created_at) VALUES (?, ?, ?)",
		key, payload, s.now().UnixNano(),
	); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "insert snapshot", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE key = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE key = ? ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, key, key, s.retain); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "prune snapshots", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit snapshot", Err: err}
	}
	s.logger.Debug("snapshot saved", "key", key, "bytes", len(payload))
	return nil
}

// Latest returns the newest snapshot for key, or ErrNoSnapshot.
func (s *SQLiteStore) Latest(ctx context.Context, key string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		payload []byte
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, created_at FROM snapshots WHERE key = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		key,
	).Scan(&payload, &created)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, &errors.ErrDatabaseQuery{Operation: "select latest snapshot", Err: err}
	}

	return Snapshot{Key: key, Payload: payload, CreatedAt: time.Unix(0, created)}, nil
}

// Count returns how many snapshots are stored for key.
func (s *SQLiteStore) Count(ctx context.Context, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE key = ?", key).Scan(&n); err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "count snapshots", Err: err}
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
