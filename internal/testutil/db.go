package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB is a migrated routing database running in a throwaway postgres container.
type TestDB struct {
	DB        *sqlx.DB
	ConnStr   string
	container testcontainers.Container
}

type credentials struct {
	user, password, name, host string
}

func loadCredentials(t *testing.T) credentials {
	if err := godotenv.Load(); err != nil {
		t.Logf("No .env file loaded (%v), reading the environment", err)
	}
	c := credentials{
		user:     os.Getenv("DB_USERNAME"),
		password: os.Getenv("DB_PASSWORD"),
		name:     os.Getenv("DB_NAME"),
		host:     os.Getenv("DB_HOST"),
	}
	if c.user == "" || c.password == "" || c.name == "" || c.host == "" {
		t.Skip("DB_USERNAME, DB_PASSWORD, DB_NAME and DB_HOST are required for postgres tests")
	}
	return c
}

// SetupTestDB starts postgres, applies the embedded migrations and connects with sqlx.
// Tests are skipped when the DB_* variables are missing.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()
	creds := loadCredentials(t)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     creds.user,
				"POSTGRES_PASSWORD": creds.password,
				"POSTGRES_DB":       creds.name,
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	tdb := &TestDB{container: container}
	fail := func(format string, args ...interface{}) {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
		t.Fatalf(format, args...)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fail("Failed to read mapped port: %v", err)
	}
	tdb.ConnStr = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		creds.user, creds.password, creds.host, port.Port(), creds.name)

	tdb.DB, err = sqlx.Open("postgres", tdb.ConnStr)
	if err != nil {
		fail("Failed to open routing DB: %v", err)
	}
	if err := ping(tdb.DB, 10); err != nil {
		fail("Routing DB never became reachable: %v", err)
	}
	if err := migrations.Up(tdb.ConnStr); err != nil {
		fail("Failed to migrate routing schema: %v", err)
	}
	return tdb
}

func ping(db *sqlx.DB, attempts int) (err error) {
	for i := 0; i < attempts; i++ {
		if err = db.Ping(); err == nil {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return err
}

// Teardown closes the connection and removes the container.
func (td *TestDB) Teardown(t *testing.T) {
	if err := td.DB.Close(); err != nil {
		t.Errorf("Failed to close DB connection: %v", err)
	}
	if err := td.container.Terminate(context.Background()); err != nil {
		t.Fatalf("Failed to terminate container: %v", err)
	}
}
