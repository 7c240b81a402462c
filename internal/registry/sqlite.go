package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/devildex/devildex/internal/docset"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based registry.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the scheduler and HTTP readers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		root_path TEXT NOT NULL,
		interpreter TEXT NOT NULL,
		registered_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS packages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		source TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		project_urls TEXT,
		source_path TEXT NOT NULL DEFAULT '',
		vcs_url TEXT NOT NULL DEFAULT '',
		doc_tool TEXT NOT NULL DEFAULT '',
		UNIQUE(project_id, name)
	);
	CREATE TABLE IF NOT EXISTS docsets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package_name TEXT NOT NULL,
		package_version TEXT NOT NULL,
		backend TEXT NOT NULL,
		build_id INTEGER NOT NULL DEFAULT 0,
		output_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'unknown',
		last_error TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		UNIQUE(package_name, package_version, backend)
	);
	CREATE TABLE IF NOT EXISTS build_tasks (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		package_name TEXT NOT NULL,
		package_version TEXT NOT NULL,
		backend TEXT NOT NULL,
		state TEXT NOT NULL,
		enqueued_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		output_path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		retries INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_build_tasks_fingerprint ON build_tasks(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_build_tasks_target ON build_tasks(package_name, package_version, backend);
	CREATE INDEX IF NOT EXISTS idx_packages_name ON packages(name, version);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RegisterProject creates or updates a project row by name.
func (s *SQLiteStore) RegisterProject(ctx context.Context, p docset.Project) (docset.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, root_path, interpreter, registered_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET root_path = excluded.root_path, interpreter = excluded.interpreter`,
		p.Name, p.RootPath, p.Interpreter, p.RegisteredAt.Unix(),
	)
	if err != nil {
		return docset.Project{}, fmt.Errorf("register project: %w", err)
	}
	return s.getProjectLocked(ctx, p.Name)
}

// GetProject returns a project by name.
func (s *SQLiteStore) GetProject(ctx context.Context, name string) (docset.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProjectLocked(ctx, name)
}

func (s *SQLiteStore) getProjectLocked(ctx context.Context, name string) (docset.Project, error) {
	var p docset.Project
	var registered int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, root_path, interpreter, registered_at FROM projects WHERE name = ?", name,
	).Scan(&p.ID, &p.Name, &p.RootPath, &p.Interpreter, &registered)
	if err == sql.ErrNoRows {
		return docset.Project{}, ErrNotFound
	}
	if err != nil {
		return docset.Project{}, fmt.Errorf("get project: %w", err)
	}
	p.RegisteredAt = time.Unix(registered, 0).UTC()
	return p, nil
}

// ListProjects returns all registered projects.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]docset.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, root_path, interpreter, registered_at FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []docset.Project
	for rows.Next() {
		var p docset.Project
		var registered int64
		if err := rows.Scan(&p.ID, &p.Name, &p.RootPath, &p.Interpreter, &registered); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.RegisteredAt = time.Unix(registered, 0).UTC()
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ReplacePackages supersedes the whole package snapshot for a project.
func (s *SQLiteStore) ReplacePackages(ctx context.Context, projectID int64, pkgs []docset.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace packages: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM packages WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("clear packages: %w", err)
	}
	for _, pkg := range pkgs {
		urls, err := marshalURLs(pkg.ProjectURLs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO packages (project_id, name, version, source, summary, project_urls, source_path, vcs_url, doc_tool)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, pkg.Name, pkg.Version, string(pkg.Source), pkg.Summary, urls, pkg.SourcePath, pkg.VCSURL, pkg.DocTool,
		); err != nil {
			return fmt.Errorf("insert package %s: %w", pkg.Name, err)
		}
	}
	return tx.Commit()
}

// ListPackages returns the current package snapshot for a project.
func (s *SQLiteStore) ListPackages(ctx context.Context, projectID int64) ([]docset.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, source, summary, project_urls, source_path, vcs_url, doc_tool
		 FROM packages WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()
	return scanPackages(rows)
}

// FindPackage looks up a package by normalized name and version across all
// project snapshots (shared dependencies resolve to the same row content).
func (s *SQLiteStore) FindPackage(ctx context.Context, name, version string) (docset.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, source, summary, project_urls, source_path, vcs_url, doc_tool
		 FROM packages WHERE name = ? AND version = ? LIMIT 1`, docset.NormalizeName(name), version)
	if err != nil {
		return docset.Package{}, fmt.Errorf("find package: %w", err)
	}
	defer rows.Close()
	pkgs, err := scanPackages(rows)
	if err != nil {
		return docset.Package{}, err
	}
	if len(pkgs) == 0 {
		return docset.Package{}, ErrNotFound
	}
	return pkgs[0], nil
}

func scanPackages(rows *sql.Rows) ([]docset.Package, error) {
	var pkgs []docset.Package
	for rows.Next() {
		var pkg docset.Package
		var source string
		var urls sql.NullString
		if err := rows.Scan(&pkg.Name, &pkg.Version, &source, &pkg.Summary, &urls, &pkg.SourcePath, &pkg.VCSURL, &pkg.DocTool); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		pkg.Source = docset.SourceKind(source)
		if urls.Valid && urls.String != "" {
			if err := json.Unmarshal([]byte(urls.String), &pkg.ProjectURLs); err != nil {
				return nil, fmt.Errorf("decode project urls for %s: %w", pkg.Name, err)
			}
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, rows.Err()
}

func marshalURLs(urls map[string]string) (any, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(urls)
	if err != nil {
		return nil, fmt.Errorf("marshal project urls: %w", err)
	}
	return string(raw), nil
}

// RecordSuccess upserts the docset row, bumps the monotonic build id and
// persists the terminal task record, all in one transaction. Returns the new
// build id.
func (s *SQLiteStore) RecordSuccess(ctx context.Context, rec BuildRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin record success: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Unix()
	t := rec.Target
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO docsets (package_name, package_version, backend, build_id, output_path, status, last_error, updated_at)
		 VALUES (?, ?, ?, 1, ?, 'available', '', ?)
		 ON CONFLICT(package_name, package_version, backend) DO UPDATE SET
			build_id = build_id + 1,
			output_path = excluded.output_path,
			status = 'available',
			last_error = '',
			updated_at = excluded.updated_at`,
		t.PackageName, t.Version, string(t.Backend), rec.OutputPath, now,
	); err != nil {
		return 0, fmt.Errorf("upsert docset: %w", err)
	}

	var buildID int64
	if err := tx.QueryRowContext(ctx,
		"SELECT build_id FROM docsets WHERE package_name = ? AND package_version = ? AND backend = ?",
		t.PackageName, t.Version, string(t.Backend),
	).Scan(&buildID); err != nil {
		return 0, fmt.Errorf("read build id: %w", err)
	}

	if err := saveTaskTx(ctx, tx, rec); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit record success: %w", err)
	}
	return buildID, nil
}

// RecordFailure records a terminal failure. The previous successful output
// path and build id are preserved so a stale-but-valid docset stays visible.
func (s *SQLiteStore) RecordFailure(ctx context.Context, rec BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record failure: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Unix()
	t := rec.Target
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO docsets (package_name, package_version, backend, build_id, output_path, status, last_error, updated_at)
		 VALUES (?, ?, ?, 0, '', 'failed', ?, ?)
		 ON CONFLICT(package_name, package_version, backend) DO UPDATE SET
			status = 'failed',
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		t.PackageName, t.Version, string(t.Backend), rec.Error, now,
	); err != nil {
		return fmt.Errorf("upsert docset failure: %w", err)
	}
	if err := saveTaskTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveTask persists or updates a task record outside a terminal transition
// (queued/running snapshots, cancellations).
func (s *SQLiteStore) SaveTask(ctx context.Context, rec BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := saveTaskTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func saveTaskTx(ctx context.Context, tx *sql.Tx, rec BuildRecord) error {
	var started, completed any
	if rec.StartedAt != nil {
		started = rec.StartedAt.Unix()
	}
	if rec.CompletedAt != nil {
		completed = rec.CompletedAt.Unix()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO build_tasks (id, fingerprint, package_name, package_version, backend, state, enqueued_at, started_at, completed_at, output_path, error, retries)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			output_path = excluded.output_path,
			error = excluded.error,
			retries = excluded.retries`,
		rec.ID, string(rec.Fingerprint), rec.Target.PackageName, rec.Target.Version, string(rec.Target.Backend),
		string(rec.State), rec.EnqueuedAt.Unix(), started, completed, rec.OutputPath, rec.Error, rec.Retries,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", rec.ID, err)
	}
	return nil
}

// GetDocset returns the docset view for a target.
func (s *SQLiteStore) GetDocset(ctx context.Context, target docset.Target) (Docset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d Docset
	var updated int64
	var backend string
	err := s.db.QueryRowContext(ctx,
		`SELECT package_name, package_version, backend, build_id, output_path, status, last_error, updated_at
		 FROM docsets WHERE package_name = ? AND package_version = ? AND backend = ?`,
		target.PackageName, target.Version, string(target.Backend),
	).Scan(&d.Target.PackageName, &d.Target.Version, &backend, &d.BuildID, &d.OutputPath, &d.Status, &d.LastError, &updated)
	if err == sql.ErrNoRows {
		return Docset{}, ErrNotFound
	}
	if err != nil {
		return Docset{}, fmt.Errorf("get docset: %w", err)
	}
	d.Target.Backend = docset.BackendKind(backend)
	d.UpdatedAt = time.Unix(updated, 0).UTC()
	return d, nil
}

// ListDocsets returns every docset record.
func (s *SQLiteStore) ListDocsets(ctx context.Context) ([]Docset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT package_name, package_version, backend, build_id, output_path, status, last_error, updated_at
		 FROM docsets ORDER BY package_name, package_version, backend`)
	if err != nil {
		return nil, fmt.Errorf("list docsets: %w", err)
	}
	defer rows.Close()
	return scanDocsets(rows)
}

// ListProjectDocsets returns docsets joined against a project's current
// package snapshot.
func (s *SQLiteStore) ListProjectDocsets(ctx context.Context, projectID int64) ([]Docset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT d.package_name, d.package_version, d.backend, d.build_id, d.output_path, d.status, d.last_error, d.updated_at
		 FROM docsets d
		 JOIN packages p ON p.name = d.package_name AND p.version = d.package_version
		 WHERE p.project_id = ?
		 ORDER BY d.package_name, d.package_version, d.backend`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project docsets: %w", err)
	}
	defer rows.Close()
	return scanDocsets(rows)
}

func scanDocsets(rows *sql.Rows) ([]Docset, error) {
	var out []Docset
	for rows.Next() {
		var d Docset
		var backend string
		var updated int64
		if err := rows.Scan(&d.Target.PackageName, &d.Target.Version, &backend, &d.BuildID, &d.OutputPath, &d.Status, &d.LastError, &updated); err != nil {
			return nil, fmt.Errorf("scan docset: %w", err)
		}
		d.Target.Backend = docset.BackendKind(backend)
		d.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocset removes the docset row for a target. Build task history is
// kept for audit.
func (s *SQLiteStore) DeleteDocset(ctx context.Context, target docset.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM docsets WHERE package_name = ? AND package_version = ? AND backend = ?",
		target.PackageName, target.Version, string(target.Backend))
	if err != nil {
		return fmt.Errorf("delete docset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBuildHistory returns the most recent task records for a target, newest
// first.
func (s *SQLiteStore) ListBuildHistory(ctx context.Context, target docset.Target, limit int) ([]BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, package_name, package_version, backend, state, enqueued_at, started_at, completed_at, output_path, error, retries
		 FROM build_tasks
		 WHERE package_name = ? AND package_version = ? AND backend = ?
		 ORDER BY enqueued_at DESC, id DESC LIMIT ?`,
		target.PackageName, target.Version, string(target.Backend), limit)
	if err != nil {
		return nil, fmt.Errorf("list build history: %w", err)
	}
	defer rows.Close()

	var records []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var fp, backend, state string
		var enqueued int64
		var started, completed sql.NullInt64
		if err := rows.Scan(&rec.ID, &fp, &rec.Target.PackageName, &rec.Target.Version, &backend, &state,
			&enqueued, &started, &completed, &rec.OutputPath, &rec.Error, &rec.Retries); err != nil {
			return nil, fmt.Errorf("scan build record: %w", err)
		}
		rec.Fingerprint = docset.Fingerprint(fp)
		rec.Target.Backend = docset.BackendKind(backend)
		rec.State = TaskState(state)
		rec.EnqueuedAt = time.Unix(enqueued, 0).UTC()
		if started.Valid {
			ts := time.Unix(started.Int64, 0).UTC()
			rec.StartedAt = &ts
		}
		if completed.Valid {
			ts := time.Unix(completed.Int64, 0).UTC()
			rec.CompletedAt = &ts
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
