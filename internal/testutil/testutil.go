package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/vault"
	"github.com/testcontainers/testcontainers-go/wait"

	"group-decision/internal/database"
	"group-decision/migrations"

	_ "github.com/lib/pq"
)

const VaultTestToken = "test-token"

// TestContainers holds references to test containers
type TestContainers struct {
	PostgresContainer *postgres.PostgresContainer
	VaultContainer    *vault.VaultContainer
	DB                *sql.DB
	DBConnString      string
	VaultToken        string
	VaultAddr         string
}

// SetupTestContainers starts PostgreSQL with the schema applied, plus Vault when
// withVault is set. Integration tests are skipped under go test -short.
func SetupTestContainers(t *testing.T, withVault bool) *TestContainers {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	tc := &TestContainers{}
	t.Cleanup(func() { tc.Cleanup(t) })

	postgresContainer, err := postgres.Run(ctx,
		"postgres:18",
		postgres.WithDatabase("groupdecision_test"),
		postgres.WithUsername("groupdecision_test"),
		postgres.WithPassword("groupdecision_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	tc.PostgresContainer = postgresContainer

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	tc.DBConnString = connStr

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	tc.DB = db

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := database.NewMigrationExecutor(db).RunMigrations(migrations.FS); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	if !withVault {
		return tc
	}

	vaultContainer, err := vault.Run(ctx,
		"hashicorp/vault:1.15",
		vault.WithToken(VaultTestToken),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Vault server started!").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start Vault container: %v", err)
	}
	tc.VaultContainer = vaultContainer

	vaultAddr, err := vaultContainer.HttpHostAddress(ctx)
	if err != nil {
		t.Fatalf("Failed to get Vault address: %v", err)
	}
	if !strings.HasPrefix(vaultAddr, "http") {
		vaultAddr = "http://" + vaultAddr
	}
	tc.VaultToken = VaultTestToken
	tc.VaultAddr = vaultAddr

	return tc
}

// Cleanup terminates all test containers. It runs automatically via t.Cleanup
// and is safe to call more than once.
func (tc *TestContainers) Cleanup(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if tc.DB != nil {
		tc.DB.Close()
		tc.DB = nil
	}

	if tc.PostgresContainer != nil {
		if err := tc.PostgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
		tc.PostgresContainer = nil
	}

	if tc.VaultContainer != nil {
		if err := tc.VaultContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate Vault container: %v", err)
		}
		tc.VaultContainer = nil
	}
}

// ResetDB removes all decision data while keeping the schema
func (tc *TestContainers) ResetDB(t *testing.T) {
	t.Helper()
	query := `TRUNCATE fairness_events, fairness_metrics, decision_results,
		constraint_submissions, decision_options, decisions, groups CASCADE`
	if _, err := tc.DB.Exec(query); err != nil {
		t.Fatalf("Failed to reset database: %v", err)
	}
}

// CountRows returns the number of rows in table matching an optional where clause
func (tc *TestContainers) CountRows(t *testing.T, table, where string, args ...any) int {
	t.Helper()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := tc.DB.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
