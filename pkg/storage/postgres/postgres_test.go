package postgres

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/hawkgate/pkg/auth"
	"github.com/rhuss/hawkgate/pkg/storage"
)

func init() {
	// Point testcontainers at a podman machine socket when no Docker host is set.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if sock := strings.TrimSpace(string(out)); err == nil && sock != "" {
			os.Setenv("DOCKER_HOST", "unix://"+sock)
			os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
		}
	}
}

// setupTestDB starts a PostgreSQL container and returns a migrated Store.
// Tests are skipped when no container runtime is reachable.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("hawkgate_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func makeCredentials(id string) *auth.Credentials {
	return &auth.Credentials{
		ID:        id,
		Key:       "werxhqb98rpaxn39848xrunpaw3489ruxnpa98w4rxn",
		Algorithm: "sha256",
		User:      "steve",
	}
}

func TestPostgres_CreateAndResolve(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.Create(ctx, makeCredentials("dh37fgj492je")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Resolve(ctx, "dh37fgj492je")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got == nil {
		t.Fatal("Resolve returned nil for a known id")
	}
	if got.Key != "werxhqb98rpaxn39848xrunpaw3489ruxnpa98w4rxn" {
		t.Errorf("Key = %q", got.Key)
	}
	if got.User != "steve" {
		t.Errorf("User = %q, want steve", got.User)
	}
}

func TestPostgres_ResolveUnknown(t *testing.T) {
	store := setupTestDB(t)

	got, err := store.Resolve(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Resolve error = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("Resolve = %+v, want nil", got)
	}
}

func TestPostgres_CreateConflict(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.Create(ctx, makeCredentials("a")); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, makeCredentials("a")); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("Create duplicate = %v, want ErrConflict", err)
	}
}

func TestPostgres_PutReplaces(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.Put(ctx, makeCredentials("a")); err != nil {
		t.Fatal(err)
	}
	updated := makeCredentials("a")
	updated.Algorithm = "sha1"
	if err := store.Put(ctx, updated); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, _ := store.Resolve(ctx, "a")
	if got.Algorithm != "sha1" {
		t.Errorf("Algorithm = %q, want sha1", got.Algorithm)
	}
}

func TestPostgres_DeleteAndList(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if err := store.Put(ctx, makeCredentials(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Errorf("List = %+v, want [a c]", list)
	}
}

func TestPostgres_MigrateIdempotent(t *testing.T) {
	store := setupTestDB(t)

	if err := store.migrate(context.Background()); err != nil {
		t.Errorf("second migrate failed: %v", err)
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestPendingMigrations(t *testing.T) {
	migrations, err := pendingMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migrations) != 2 {
		t.Fatalf("len(migrations) = %d, want 2", len(migrations))
	}
	if migrations[0].version != 1 || migrations[1].version != 2 {
		t.Errorf("versions = %d, %d; want 1, 2", migrations[0].version, migrations[1].version)
	}
}
