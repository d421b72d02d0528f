// Package sqlite provides a SQLite-backed implementation of store.Store,
// using FTS5 (porter unicode61 tokenizer) for full-text search and a
// pure-Go trigram similarity scorer with pg_trgm semantics for fuzzy
// path matching.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/sourcelens/codekb/internal/store"
)

// querier is the subset of *sql.DB / *sql.Tx the store's statements run
// against, so every method works identically inside and outside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Store is a SQLite-backed store.Store. The zero-tx form issues statements
// directly against the pool; WithTx hands callers a view whose statements
// all run on one transaction.
type Store struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

// New opens (and, if needed, initializes) a SQLite-backed store. path may
// be ":memory:" for an ephemeral database or a file path for persistence.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For :memory: databases, pin the pool to a single connection so every
	// goroutine shares the same database instead of each getting its own.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repos (
		id INTEGER PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		default_branch TEXT NOT NULL DEFAULT 'main',
		updated_at INTEGER NOT NULL,
		UNIQUE(owner, name)
	);

	CREATE TABLE IF NOT EXISTS kb_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		commit_sha TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(repo_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_kb_files_repo_path ON kb_files(repo_id, path);

	CREATE TABLE IF NOT EXISTS kb_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
		file_id INTEGER NOT NULL REFERENCES kb_files(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		commit_sha TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		content TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kb_chunks_file_id ON kb_chunks(file_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS kb_chunks_fts USING fts5(
		content,
		content='kb_chunks',
		content_rowid='id',
		tokenize='porter unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS kb_chunks_ai AFTER INSERT ON kb_chunks BEGIN
		INSERT INTO kb_chunks_fts(rowid, content) VALUES (new.id, new.content);
	END;

	CREATE TRIGGER IF NOT EXISTS kb_chunks_ad AFTER DELETE ON kb_chunks BEGIN
		INSERT INTO kb_chunks_fts(kb_chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
	END;

	CREATE TRIGGER IF NOT EXISTS kb_chunks_au AFTER UPDATE ON kb_chunks BEGIN
		INSERT INTO kb_chunks_fts(kb_chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
		INSERT INTO kb_chunks_fts(rowid, content) VALUES (new.id, new.content);
	END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// WithTx implements store.Store: fn runs against a view of this store whose
// statements all execute on a single transaction, committed only when fn
// returns nil and rolled back otherwise. Calling WithTx on a view that is
// already transaction-scoped joins the enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetOrCreateRepo implements store.Store. It first looks up by id; on miss
// it falls back to (owner, name) so a later call carrying a repo's real
// code-host id can reconcile with a row previously inserted under a
// synthesized id (see package store doc on Repo.ID). Whichever row is
// found, its id is authoritative for the remainder of the caller's unit
// of work; only when neither lookup hits is a new row inserted under the
// provided id.
func (s *Store) GetOrCreateRepo(ctx context.Context, id int64, owner, name, defaultBranch string) (*store.Repo, error) {
	if r, err := s.getRepoByID(ctx, id); err == nil {
		return r, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup repo %d: %w", id, err)
	}

	if r, err := s.getRepoByOwnerName(ctx, owner, name); err == nil {
		return r, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup repo %s/%s: %w", owner, name, err)
	}

	if defaultBranch == "" {
		defaultBranch = "main"
	}
	now := time.Now().Unix()
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO repos (id, owner, name, default_branch, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, owner, name, defaultBranch, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert repo %d: %w", id, err)
	}

	return &store.Repo{ID: id, Owner: owner, Name: name, DefaultBranch: defaultBranch, UpdatedAt: time.Unix(now, 0)}, nil
}

func (s *Store) getRepoByID(ctx context.Context, id int64) (*store.Repo, error) {
	var r store.Repo
	var updatedAt int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id, owner, name, default_branch, updated_at FROM repos WHERE id = ?`, id,
	).Scan(&r.ID, &r.Owner, &r.Name, &r.DefaultBranch, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return &r, nil
}

func (s *Store) getRepoByOwnerName(ctx context.Context, owner, name string) (*store.Repo, error) {
	var r store.Repo
	var updatedAt int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id, owner, name, default_branch, updated_at FROM repos WHERE owner = ? AND name = ?`, owner, name,
	).Scan(&r.ID, &r.Owner, &r.Name, &r.DefaultBranch, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return &r, nil
}

// GetFileByPath implements store.Store.
func (s *Store) GetFileByPath(ctx context.Context, repoID int64, path string) (*store.KBFile, error) {
	var f store.KBFile
	var updatedAt int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id, repo_id, path, commit_sha, sha256, updated_at
		 FROM kb_files WHERE repo_id = ? AND path = ?`, repoID, path,
	).Scan(&f.ID, &f.RepoID, &f.Path, &f.CommitSHA, &f.SHA256, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup file %d/%s: %w", repoID, path, err)
	}
	f.UpdatedAt = time.Unix(updatedAt, 0)
	return &f, nil
}

// UpsertFile implements store.Store.
func (s *Store) UpsertFile(ctx context.Context, f *store.KBFile) (int64, error) {
	now := time.Now().Unix()

	if f.ID != 0 {
		_, err := s.q.ExecContext(ctx,
			`UPDATE kb_files SET commit_sha = ?, sha256 = ?, updated_at = ? WHERE id = ?`,
			f.CommitSHA, f.SHA256, now, f.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("update file %d: %w", f.ID, err)
		}
		return f.ID, nil
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO kb_files (repo_id, path, commit_sha, sha256, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(repo_id, path) DO UPDATE SET
		   commit_sha = excluded.commit_sha,
		   sha256 = excluded.sha256,
		   updated_at = excluded.updated_at`,
		f.RepoID, f.Path, f.CommitSHA, f.SHA256, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file %d/%s: %w", f.RepoID, f.Path, err)
	}

	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}

	existing, err := s.GetFileByPath(ctx, f.RepoID, f.Path)
	if err != nil {
		return 0, fmt.Errorf("resolve upserted file id: %w", err)
	}
	return existing.ID, nil
}

// DeleteFile implements store.Store.
func (s *Store) DeleteFile(ctx context.Context, fileID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM kb_files WHERE id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("delete file %d: %w", fileID, err)
	}
	return nil
}

// DeleteChunksByFileID implements store.Store.
func (s *Store) DeleteChunksByFileID(ctx context.Context, fileID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM kb_chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("delete chunks for file %d: %w", fileID, err)
	}
	return nil
}

// InsertChunks implements store.Store. Outside a WithTx unit of work the
// bulk insert opens its own transaction so a partial batch never persists.
func (s *Store) InsertChunks(ctx context.Context, chunks []store.KBChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if s.tx == nil {
		return s.WithTx(ctx, func(st store.Store) error {
			return st.InsertChunks(ctx, chunks)
		})
	}

	now := time.Now().Unix()
	stmt, err := s.q.PrepareContext(ctx,
		`INSERT INTO kb_chunks (repo_id, file_id, path, commit_sha, start_line, end_line, content, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert chunk: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.RepoID, c.FileID, c.Path, c.CommitSHA, c.StartLine, c.EndLine, c.Content, now); err != nil {
			return fmt.Errorf("insert chunk for file %d: %w", c.FileID, err)
		}
	}
	return nil
}

// HasAnyChunks implements store.Store.
func (s *Store) HasAnyChunks(ctx context.Context) (bool, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM kb_chunks LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check for chunks: %w", err)
	}
	return true, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
