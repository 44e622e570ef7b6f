// Package postgres provides a PostgreSQL credential store. It uses pgx/v5
// for connection pooling and applies its schema from embedded migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/hawkgate/pkg/auth"
	"github.com/rhuss/hawkgate/pkg/storage"
)

// Store is a PostgreSQL-backed CredentialStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.CredentialStore at compile time.
var _ storage.CredentialStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Resolve looks up a credential by id. An unknown id yields (nil, nil).
func (s *Store) Resolve(ctx context.Context, id string) (*auth.Credentials, error) {
	c := &auth.Credentials{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, key, algorithm, username FROM hawk_credentials WHERE id = $1",
		id,
	).Scan(&c.ID, &c.Key, &c.Algorithm, &c.User)
	if errors.Is(err, pgx.ErrNoRows) {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO hawk_credentials (id, key, algorithm, username)
		VALUES ($1, $2, $3, $4)
	`, creds.ID, creds.Key, creds.Algorithm, creds.User)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

// Put inserts or replaces a credential.
func (s *Store) Put(ctx context.Context, creds *auth.Credentials) error {
	if err := storage.Check(creds); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO hawk_credentials (id, key, algorithm, username)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			key = EXCLUDED.key,
			algorithm = EXCLUDED.algorithm,
			username = EXCLUDED.username,
			updated_at = now()
	`, creds.ID, creds.Key, creds.Algorithm, creds.User)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// Delete removes a credential.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM hawk_credentials WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns all credentials ordered by id.
func (s *Store) List(ctx context.Context) ([]*auth.Credentials, error) {
	rows, err := s.pool.Query(ctx,
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return out, nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
