// Package registry implements the persistent, versioned schema registry
// for gridsync.
//
// It uses SQLite to store application, table, and schema-version rows,
// fronted by an in-memory read-through cache. Schema versions are
// append-only and checksum-gated: a new version is written only when the
// canonicalized schema content actually changed.
package registry

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound signals that a table or application has never been synced
// into the registry. It is the caller's cue to sync first, not a
// registry failure.
var ErrNotFound = errors.New("registry: not found")

// sqliteTimeLayout matches SQLite's datetime('now') output (UTC).
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Now returns the current time formatted for SQLite.
func Now() string {
	return time.Now().UTC().Format(sqliteTimeLayout)
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds registry configuration.
type Config struct {
	DataDir string
	Logger  *slog.Logger
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".gridsync")}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the schema registry backed by SQLite.
type Store struct {
	db     *sql.DB
	cfg    Config
	log    *slog.Logger
	hooks  storeHooks
	notify notifier

	// mu guards the read-through cache. The cache is a derived view of
	// the persisted rows: populated on load and after each committed
	// sync, never written to by any other component.
	mu      sync.RWMutex
	apps    map[string]Application
	schemas map[string]Schema
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(db execer, query string, args ...any) (sql.Result, error) {
			return db.Exec(query, args...)
		},
		beginTx: func(db *sql.DB) (*sql.Tx, error) {
			return db.Begin()
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, runs migrations, and
// warms the in-memory cache from the persisted rows. Safe to call once
// at process start; migrations are idempotent.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("registry: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "registry.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("registry: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("registry: pragma %q: %w", p, err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:      db,
		cfg:     cfg,
		log:     logger,
		hooks:   defaultStoreHooks(),
		apps:    make(map[string]Application),
		schemas: make(map[string]Schema),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("registry: migration: %w", err)
	}
	if err := s.warmCache(); err != nil {
		return nil, fmt.Errorf("registry: warm cache: %w", err)
	}

	return s, nil
}

// Close closes the database connection and clears the cache.
func (s *Store) Close() error {
	s.mu.Lock()
	s.apps = make(map[string]Application)
	s.schemas = make(map[string]Schema)
	s.mu.Unlock()
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS applications (
			app_id      TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			url         TEXT,
			status      TEXT,
			last_synced TEXT,
			metadata    TEXT,
			created_at  TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS tables (
			table_id        TEXT PRIMARY KEY,
			app_id          TEXT NOT NULL,
			name            TEXT NOT NULL,
			type            TEXT NOT NULL DEFAULT 'table',
			primary_display TEXT,
			schema          TEXT NOT NULL,
			last_synced     TEXT,
			created_at      TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at      TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (app_id) REFERENCES applications(app_id)
		);

		CREATE INDEX IF NOT EXISTS idx_tables_app ON tables(app_id);

		CREATE TABLE IF NOT EXISTS schema_versions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			app_id     TEXT    NOT NULL,
			table_id   TEXT    NOT NULL,
			version    INTEGER NOT NULL,
			schema     TEXT    NOT NULL,
			checksum   TEXT    NOT NULL,
			created_at TEXT    NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (app_id)   REFERENCES applications(app_id),
			FOREIGN KEY (table_id) REFERENCES tables(table_id)
		);

		CREATE INDEX IF NOT EXISTS idx_versions_table ON schema_versions(table_id);
		CREATE INDEX IF NOT EXISTS idx_versions_app   ON schema_versions(app_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_unique ON schema_versions(table_id, version);
	`
	if _, err := s.execHook(s.db, schema); err != nil {
		return err
	}
	return nil
}

// warmCache loads all known applications and table schemas into memory.
func (s *Store) warmCache() error {
	apps, err := s.ListApplications()
	if err != nil {
		return err
	}

	rows, err := s.db.Query(`SELECT table_id, schema FROM tables`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	schemas := make(map[string]Schema)
	for rows.Next() {
		var tableID, raw string
		if err := rows.Scan(&tableID, &raw); err != nil {
			return err
		}
		var sch Schema
		if err := json.Unmarshal([]byte(raw), &sch); err != nil {
			// Integrity: a corrupt row is treated as absent, not fatal.
			s.log.Warn("registry: stored schema unreadable, skipping", "table_id", tableID, "error", err)
			continue
		}
		schemas[tableID] = sch
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	for _, a := range apps {
		s.apps[a.ID] = a
	}
	s.schemas = schemas
	s.mu.Unlock()
	return nil
}

// ─── Sync ────────────────────────────────────────────────────────────────────

// SyncApplication transactionally upserts an application and its tables.
//
// For each table the schema is canonicalized and checksummed; only when
// the checksum differs from the latest stored version (or none exists)
// is the table row updated and a new version appended. The whole
// per-application operation is all-or-nothing: any failure rolls back
// every write. Change notifications are published, in append order,
// only after the transaction commits.
func (s *Store) SyncApplication(app Application, tables []Table) ([]SchemaChange, error) {
	tx, err := s.beginTxHook()
	if err != nil {
		return nil, fmt.Errorf("registry: begin sync tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var metadata *string
	if len(app.Metadata) > 0 {
		raw, err := json.Marshal(app.Metadata)
		if err != nil {
			return nil, fmt.Errorf("registry: marshal app metadata: %w", err)
		}
		str := string(raw)
		metadata = &str
	}

	if _, err := s.execHook(tx,
		`INSERT INTO applications (app_id, name, url, status, metadata, last_synced)
		 VALUES (?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(app_id) DO UPDATE SET
		 	name        = excluded.name,
		 	url         = excluded.url,
		 	status      = excluded.status,
		 	metadata    = excluded.metadata,
		 	last_synced = excluded.last_synced,
		 	updated_at  = datetime('now')`,
		app.ID, app.Name, nullableString(app.URL), nullableString(app.Status), metadata,
	); err != nil {
		return nil, fmt.Errorf("registry: upsert application %q: %w", app.ID, err)
	}

	var changes []SchemaChange
	unchanged := make(map[string]Schema)

	for _, t := range tables {
		sum, err := Checksum(t.Schema)
		if err != nil {
			return nil, err
		}

		var prevVersion int
		var prevChecksum, prevRaw string
		err = tx.QueryRow(
			`SELECT version, checksum, schema FROM schema_versions
			 WHERE table_id = ? ORDER BY version DESC LIMIT 1`, t.ID,
		).Scan(&prevVersion, &prevChecksum, &prevRaw)
		hasPrev := err == nil
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("registry: latest version of %q: %w", t.ID, err)
		}

		if hasPrev && prevChecksum == sum {
			// Structurally identical: no writes, no notification.
			unchanged[t.ID] = t.Schema
			continue
		}

		schemaRaw, err := json.Marshal(t.Schema)
		if err != nil {
			return nil, fmt.Errorf("registry: marshal schema of %q: %w", t.ID, err)
		}

		if _, err := s.execHook(tx,
			`INSERT INTO tables (table_id, app_id, name, type, primary_display, schema, last_synced)
			 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
			 ON CONFLICT(table_id) DO UPDATE SET
			 	app_id          = excluded.app_id,
			 	name            = excluded.name,
			 	type            = excluded.type,
			 	primary_display = excluded.primary_display,
			 	schema          = excluded.schema,
			 	last_synced     = excluded.last_synced,
			 	updated_at      = datetime('now')`,
			t.ID, app.ID, t.Name, string(t.Kind), nullableString(t.PrimaryDisplay), string(schemaRaw),
		); err != nil {
			return nil, fmt.Errorf("registry: upsert table %q: %w", t.ID, err)
		}

		if _, err := s.execHook(tx,
			`INSERT INTO schema_versions (app_id, table_id, version, schema, checksum)
			 VALUES (?, ?, ?, ?, ?)`,
			app.ID, t.ID, prevVersion+1, string(schemaRaw), sum,
		); err != nil {
			return nil, fmt.Errorf("registry: append version %d of %q: %w", prevVersion+1, t.ID, err)
		}

		var prev Schema
		if hasPrev {
			if err := json.Unmarshal([]byte(prevRaw), &prev); err != nil {
				s.log.Warn("registry: previous schema unreadable", "table_id", t.ID, "error", err)
				prev = nil
			}
		}

		changes = append(changes, SchemaChange{
			AppID:    app.ID,
			TableID:  t.ID,
			Version:  prevVersion + 1,
			Previous: prev,
			New:      t.Schema,
		})
	}

	if err := s.commitHook(tx); err != nil {
		return nil, fmt.Errorf("registry: commit sync of %q: %w", app.ID, err)
	}
	committed = true

	// Cache updates happen only after commit so the cache never holds
	// state the store rolled back.
	s.mu.Lock()
	cached := app
	cached.LastSynced = Now()
	s.apps[app.ID] = cached
	for id, sch := range unchanged {
		s.schemas[id] = sch
	}
	for _, c := range changes {
		s.schemas[c.TableID] = c.New
	}
	s.mu.Unlock()

	s.notify.publish(changes)
	return changes, nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// GetTableSchema returns the current schema for a table, read-through:
// cache first, then the persisted row. Returns ErrNotFound when the
// table has never been synced — the caller's signal to sync first.
func (s *Store) GetTableSchema(tableID string) (Schema, error) {
	s.mu.RLock()
	sch, ok := s.schemas[tableID]
	s.mu.RUnlock()
	if ok {
		return sch, nil
	}

	var raw string
	err := s.db.QueryRow(`SELECT schema FROM tables WHERE table_id = ?`, tableID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: load schema of %q: %w", tableID, err)
	}

	if err := json.Unmarshal([]byte(raw), &sch); err != nil {
		// Integrity: corrupt content reads as absent rather than crashing.
		s.log.Warn("registry: stored schema unreadable", "table_id", tableID, "error", err)
		return nil, ErrNotFound
	}

	s.mu.Lock()
	s.schemas[tableID] = sch
	s.mu.Unlock()
	return sch, nil
}

// GetApplication returns a persisted application row.
func (s *Store) GetApplication(appID string) (*Application, error) {
	row := s.db.QueryRow(
		`SELECT app_id, name, url, status, last_synced, metadata, created_at, updated_at
		 FROM applications WHERE app_id = ?`, appID,
	)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: load application %q: %w", appID, err)
	}
	return app, nil
}

// ListApplications returns every persisted application, ordered by name.
func (s *Store) ListApplications() ([]Application, error) {
	rows, err := s.db.Query(
		`SELECT app_id, name, url, status, last_synced, metadata, created_at, updated_at
		 FROM applications ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("registry: list applications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var apps []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// GetApplicationTables lists all persisted tables for an application,
// straight from the store. It deliberately bypasses the cache so other
// processes' writes are visible.
func (s *Store) GetApplicationTables(appID string) ([]Table, error) {
	rows, err := s.db.Query(
		`SELECT table_id, app_id, name, type, primary_display, schema, last_synced, created_at, updated_at
		 FROM tables WHERE app_id = ? ORDER BY name`, appID,
	)
	if err != nil {
		return nil, fmt.Errorf("registry: list tables of %q: %w", appID, err)
	}
	defer func() { _ = rows.Close() }()

	var tables []Table
	for rows.Next() {
		var t Table
		var kind, raw string
		var primary, lastSynced sql.NullString
		if err := rows.Scan(&t.ID, &t.AppID, &t.Name, &kind, &primary, &raw, &lastSynced, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Kind = TableKind(kind)
		t.PrimaryDisplay = primary.String
		t.LastSynced = lastSynced.String
		if err := json.Unmarshal([]byte(raw), &t.Schema); err != nil {
			s.log.Warn("registry: stored schema unreadable, skipping", "table_id", t.ID, "error", err)
			continue
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// GetSchemaHistory returns all schema versions for a table, newest
// first. Audit and debugging surface — runtime decisions never read it.
func (s *Store) GetSchemaHistory(tableID string) ([]SchemaVersion, error) {
	rows, err := s.db.Query(
		`SELECT id, app_id, table_id, version, schema, checksum, created_at
		 FROM schema_versions WHERE table_id = ? ORDER BY version DESC`, tableID,
	)
	if err != nil {
		return nil, fmt.Errorf("registry: history of %q: %w", tableID, err)
	}
	defer func() { _ = rows.Close() }()

	var versions []SchemaVersion
	for rows.Next() {
		var v SchemaVersion
		var raw string
		if err := rows.Scan(&v.ID, &v.AppID, &v.TableID, &v.Version, &raw, &v.Checksum, &v.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &v.Schema); err != nil {
			s.log.Warn("registry: stored version unreadable", "table_id", tableID, "version", v.Version, "error", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// NeedsSync reports whether an application has never been synced or its
// last sync is older than maxAge. Pure predicate: it never triggers a
// sync itself.
func (s *Store) NeedsSync(appID string, maxAge time.Duration) (bool, error) {
	var last sql.NullString
	err := s.db.QueryRow(`SELECT last_synced FROM applications WHERE app_id = ?`, appID).Scan(&last)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("registry: last sync of %q: %w", appID, err)
	}
	if !last.Valid || last.String == "" {
		return true, nil
	}

	ts, err := time.Parse(sqliteTimeLayout, last.String)
	if err != nil {
		s.log.Warn("registry: unparseable last_synced", "app_id", appID, "value", last.String)
		return true, nil
	}
	return time.Since(ts) > maxAge, nil
}

// SetLastSynced rewrites an application's last_synced timestamp, for
// staleness tests.
func (s *Store) SetLastSynced(appID string, ts time.Time) error {
	_, err := s.db.Exec(
		`UPDATE applications SET last_synced = ? WHERE app_id = ?`,
		ts.UTC().Format(sqliteTimeLayout), appID,
	)
	return err
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*Application, error) {
	var app Application
	var url, status, lastSynced, metadata sql.NullString
	if err := row.Scan(&app.ID, &app.Name, &url, &status, &lastSynced, &metadata, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}
	app.URL = url.String
	app.Status = status.String
	app.LastSynced = lastSynced.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &app.Metadata); err != nil {
			slog.Warn("registry: stored metadata unreadable", "app_id", app.ID, "error", err)
		}
	}
	return &app, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
