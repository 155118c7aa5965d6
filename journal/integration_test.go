//go:build integration
// +build integration

package journal_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/hedgerules/journal"
	"github.com/liamcoop/hedgerules/rules"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "hedgerules_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=hedgerules_test sslmode=disable", host, port.Port())

	// Wait for connection to be available
	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = journal.Open(ctx, connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestPostgresStore_RecordAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := journal.NewPostgresStore(db)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	entries := []*journal.Entry{
		{Time: base, Entity: "order 1", RuleSet: "OrderRules", Rule: "NewOrderUS", Action: "SendNewRouteBB", Status: rules.StatusSucceeded, Reference: "1.1"},
		{Time: base.Add(time.Second), Entity: "route 1.1", RuleSet: "RouteRules", Rule: "HedgeOnFill", Action: "SendHedgeOrder", Status: rules.StatusRejected, ErrorCode: 42, Message: "restricted"},
		{Time: base.Add(2 * time.Second), Entity: "route 1.1", RuleSet: "RouteRules", Rule: "RecordFill", Action: "RecordFill", Status: rules.StatusSucceeded},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
		if e.ID == "" {
			t.Error("Record() should assign an ID")
		}
	}

	all, err := store.List(ctx, journal.Filter{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 3 || all[0].Rule != "RecordFill" {
		t.Errorf("List() = %d entries, first %q; want 3 newest first", len(all), all[0].Rule)
	}

	routes, err := store.List(ctx, journal.Filter{Entity: "route 1.1", Limit: 1})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(routes) != 1 || routes[0].Action != "RecordFill" {
		t.Errorf("Filtered List() = %+v", routes)
	}

	rejected, _ := store.List(ctx, journal.Filter{Entity: "route 1.1"})
	if rejected[1].Status != rules.StatusRejected || rejected[1].ErrorCode != 42 || rejected[1].Message != "restricted" {
		t.Errorf("Rejected entry = %+v", rejected[1])
	}
}
