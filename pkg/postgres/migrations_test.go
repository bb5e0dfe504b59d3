package postgres

import (
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMigrationsIncludeCoreTables(t *testing.T) {
	migrations := getServiceMigrations("consumer")
	if len(migrations) != 5 {
		t.Fatalf("expected 5 migrations, got %d", len(migrations))
	}

	joined := strings.Join(migrations, "\n")
	for _, want := range []string{"users", "events", "kafka_offset", "retry_count", "idx_events_processed"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected migrations to mention %q", want)
		}
	}
}

func TestRunMigrationsExecutesAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	for range getServiceMigrations("api") {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := RunMigrations(db, "api"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}
