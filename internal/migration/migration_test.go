package migration

import (
	"strings"
	"testing"

	"github.com/smallbiznis/learnboard/pkg/db"
	"go.uber.org/zap"
)

func TestApplyAutoMigratesNonPostgres(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Apply(conn, zap.NewNop()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := Apply(conn, zap.NewNop()); err != nil {
		t.Fatalf("apply twice: %v", err)
	}

	for _, table := range []string{"teams", "employees", "learning_events", "learning_stats_projections", "stats_refresh_requests"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up and %d down", ups, downs)
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	if err := RunMigrations(nil, nil); err == nil {
		t.Fatalf("expected error for nil handle")
	}
}
