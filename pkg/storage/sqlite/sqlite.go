// Package sqlite provides a file-backed credential store using the pure-Go
// modernc.org/sqlite driver. The schema is created on open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/rhuss/hawkgate/pkg/auth"
	"github.com/rhuss/hawkgate/pkg/storage"
)

const schema = `
	CREATE TABLE IF NOT EXISTS hawk_credentials (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		algorithm TEXT NOT NULL DEFAULT 'sha256',
		username TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// Store is a SQLite-backed CredentialStore.
type Store struct {
	db *sql.DB
}

// Ensure Store implements storage.CredentialStore at compile time.
var _ storage.CredentialStore = (*Store)(nil)

// New opens the database at path, creating parent directories and the
// schema as needed.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	slog.Info("sqlite credential store opened", "path", path)
	return &Store{db: db}, nil
}

// Resolve looks up a credential by id. An unknown id yields (nil, nil).
func (s *Store) Resolve(ctx context.Context, id string) (*auth.Credentials, error) {
	c := &auth.Credentials{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, key, algorithm, username FROM hawk_credentials WHERE id = ?",
		id,
	).Scan(&c.ID, &c.Key, &c.Algorithm, &c.User)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return c, nil
}

// Create inserts a credential.
func (s *Store) Create(ctx context.Context, creds *auth.Credentials) error {
	if err := storage.Check(creds); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO hawk_credentials (id, key, algorithm, username)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, creds.ID, creds.Key, creds.Algorithm, creds.User)
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// Put inserts or replaces a credential.
func (s *Store) Put(ctx context.Context, creds *auth.Credentials) error {
	if err := storage.Check(creds); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hawk_credentials (id, key, algorithm, username)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			key = excluded.key,
			algorithm = excluded.algorithm,
			username = excluded.username,
			updated_at = CURRENT_TIMESTAMP
	`, creds.ID, creds.Key, creds.Algorithm, creds.User)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// Delete removes a credential.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM hawk_credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all credentials ordered by id.
func (s *Store) List(ctx context.Context) ([]*auth.Credentials, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, key, algorithm, username FROM hawk_credentials ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []*auth.Credentials
	for rows.Next() {
		c := &auth.Credentials{}
		if err := rows.Scan(&c.ID, &c.Key, &c.Algorithm, &c.User); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
