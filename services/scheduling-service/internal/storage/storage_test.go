package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/himsog/himsog/libs/db"
	"github.com/himsog/himsog/services/scheduling-service/internal/conflict"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsConflict(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"exclusion", &pgconn.PgError{Code: "23P01", ConstraintName: overlapConstraint}, true},
		{"wrapped exclusion", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01"}), true},
		{"unique on overlap constraint", &pgconn.PgError{Code: "23505", ConstraintName: overlapConstraint}, true},
		{"unique elsewhere", &pgconn.PgError{Code: "23505", ConstraintName: "appointments_appointment_number_key"}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := IsConflict(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("select: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to be not found")
	}
	if IsNotFound(errors.New("other")) {
		t.Fatal("unexpected not found")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := db.LoadMigrations(Migrations, MigrationsDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Fatalf("expected version %d, got %d (%s)", i+1, m.Version, m.Name)
		}
	}

	all := ""
	for _, m := range migrations {
		all += m.SQL
	}
	for _, want := range []string{
		"btree_gist",
		"EXCLUDE USING gist",
		"tstzrange(start_time, end_time, '[)')",
		overlapConstraint,
		"'HIM-' || lpad(nextval('appointment_number_seq')::text, 8, '0')",
		"booking_idempotency_keys",
		"outbox_events",
	} {
		if !strings.Contains(all, want) {
			t.Fatalf("migrations missing %q", want)
		}
	}
}

func quotedStatuses(keep func(model.Status) bool) string {
	var names []string
	for _, s := range []model.Status{
		model.StatusPending, model.StatusConfirmed, model.StatusCompleted,
		model.StatusCancelled, model.StatusNoShow,
	} {
		if keep(s) {
			names = append(names, "'"+string(s)+"'")
		}
	}
	return "status IN (" + strings.Join(names, ", ") + ")"
}

func TestMigrationStatusListsMatchModel(t *testing.T) {
	raw, err := Migrations.ReadFile(MigrationsDir + "/002_appointments.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	sql := string(raw)

	overlap := "WHERE (" + quotedStatuses(conflict.Blocks) + ")"
	if !strings.Contains(sql, overlap) {
		t.Fatalf("overlap constraint does not filter on %q", overlap)
	}
	terminal := "OLD." + quotedStatuses(model.Status.Terminal)
	if !strings.Contains(sql, terminal) {
		t.Fatalf("terminal guard does not check %q", terminal)
	}
	if got := statusNames(conflict.BlockingStatuses); len(got) != 3 || got[0] != "PENDING" {
		t.Fatalf("unexpected blocking status names %v", got)
	}
}

func TestTerminalGuardAllowsOnlyReviewLink(t *testing.T) {
	raw, err := Migrations.ReadFile(MigrationsDir + "/002_appointments.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	sql := string(raw)
	for _, want := range []string{
		"(to_jsonb(NEW) - 'review_id' - 'updated_at') IS DISTINCT FROM",
		"(to_jsonb(OLD) - 'review_id' - 'updated_at')",
		"BEFORE UPDATE ON appointments",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("terminal guard missing %q", want)
		}
	}
}
