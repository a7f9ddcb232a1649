// Package journal keeps a SQLite log of backup runs next to the store.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	_ "modernc.org/sqlite"
)

// FileName is the journal database inside a backup root.
const FileName = ".codi-journal.db"

const (
	busyTimeoutMS = 5000
	maxOpenConns  = 1
	timeLayout    = "2006-01-02T15:04:05.000000000Z07:00"
)

// Run is one journaled invocation.
type Run struct {
	ID         string
	Command    string
	Started    time.Time
	Finished   time.Time
	Record     string
	Files      int
	Tombstones int
	Touched    int
	Promotions int
	Merges     int
	Skipped    bool
	Error      string
}

// Duration of the run, zero while unfinished.
func (r Run) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Journal is a handle to the run database.
type Journal struct {
	db *sql.DB
}

type migration struct {
	version     int
	description string
	sql         string
}

var migrations = []migration{
	{
		version:     1,
		description: "runs table",
		sql: `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  command TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT,
  record TEXT,
  files INTEGER NOT NULL DEFAULT 0,
  tombstones INTEGER NOT NULL DEFAULT 0,
  touched INTEGER NOT NULL DEFAULT 0,
  promotions INTEGER NOT NULL DEFAULT 0,
  merges INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  error TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`,
	},
}

// Path returns the journal location for a backup root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.NotValidf("empty journal path")
	}
	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, errors.Annotatef(err, "open journal %s", path)
	}
	if err := configure(db); err != nil {
		_ = db.Close()
		return nil, errors.Annotatef(err, "configure journal %s", path)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, errors.Annotatef(err, "migrate journal %s", path)
	}
	return &Journal{db: db}, nil
}

func configure(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Trace(err)
		}
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	return nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
)`); err != nil {
		return errors.Annotate(err, "create migrations table")
	}
	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return errors.Annotate(err, "current version")
	}

	sorted := append([]migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].version < sorted[j].version })
	for _, m := range sorted {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return errors.Annotatef(err, "begin migration %d", m.version)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return errors.Annotatef(err, "apply migration %d (%s)", m.version, m.description)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.version); err != nil {
			_ = tx.Rollback()
			return errors.Annotatef(err, "record migration %d", m.version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Annotatef(err, "commit migration %d", m.version)
		}
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Start returns a fresh run with a new id. Nothing is written until Save.
func Start(command string, at time.Time) Run {
	return Run{ID: uuid.NewString(), Command: command, Started: at.UTC()}
}

// Save inserts or replaces run.
func (j *Journal) Save(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.NotValidf("run without id")
	}
	var finished any
	if !run.Finished.IsZero() {
		finished = run.Finished.UTC().Format(timeLayout)
	}
	_, err := j.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
  (id, command, started_at, finished_at, record, files, tombstones, touched, promotions, merges, skipped, error)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.Started.UTC().Format(timeLayout), finished, nullable(run.Record),
		run.Files, run.Tombstones, run.Touched, run.Promotions, run.Merges, boolInt(run.Skipped), nullable(run.Error))
	return errors.Annotatef(err, "save run %s", run.ID)
}

// Recent returns up to limit runs, newest first. limit < 1 returns all.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, command, started_at, finished_at, record, files, tombstones, touched, promotions, merges, skipped, error
  FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Annotate(err, "list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                Run
			started          string
			finished, record sql.NullString
			runErr           sql.NullString
			skipped          int
		)
		if err := rows.Scan(&r.ID, &r.Command, &started, &finished, &record,
			&r.Files, &r.Tombstones, &r.Touched, &r.Promotions, &r.Merges, &skipped, &runErr); err != nil {
			return nil, errors.Annotate(err, "scan run")
		}
		if r.Started, err = time.Parse(timeLayout, started); err != nil {
			return nil, errors.Annotatef(err, "run %s start", r.ID)
		}
		if finished.Valid {
			if r.Finished, err = time.Parse(timeLayout, finished.String); err != nil {
				return nil, errors.Annotatef(err, "run %s finish", r.ID)
			}
		}
		r.Record = record.String
		r.Error = runErr.String
		r.Skipped = skipped != 0
		out = append(out, r)
	}
	return out, errors.Trace(rows.Err())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
