package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/luggagedeposit-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func requireStatements(t *testing.T, content string, statements ...string) {
	t.Helper()
	for _, sub := range statements {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestBookingStatusEnumMigration(t *testing.T) {
	requireStatements(t, readMigration(t, "create_booking_status_enum"),
		"CREATE TYPE booking_status AS ENUM ('paid', 'checked_in', 'picked_up', 'cancelled')",
		"DROP TYPE IF EXISTS booking_status",
	)
}

func TestBookingsMigrationContainsConstraints(t *testing.T) {
	requireStatements(t, readMigration(t, "create_bookings"),
		"CREATE TABLE IF NOT EXISTS bookings",
		"CONSTRAINT bookings_booking_ref_key UNIQUE (booking_ref)",
		"CHECK (booking_ref ~ '^[A-Z0-9]{6,12}$')",
		"CHECK (bags_small >= 0 AND bags_medium >= 0 AND bags_large >= 0)",
		"version bigint NOT NULL DEFAULT 1",
		"checkin_token_issued_at timestamptz NULL",
		"DROP TABLE IF EXISTS bookings",
	)
}

func TestBookingsArchiveMigrationContainsConstraints(t *testing.T) {
	requireStatements(t, readMigration(t, "create_bookings_archive"),
		"CREATE TABLE IF NOT EXISTS bookings_archive",
		"archived_at timestamptz NOT NULL",
		"archived_by text NOT NULL",
		"CONSTRAINT bookings_archive_booking_ref_key UNIQUE (booking_ref)",
		"CHECK (status IN ('picked_up', 'cancelled'))",
		"BEFORE INSERT ON bookings",
		"BEFORE UPDATE ON bookings_archive",
		"DROP TABLE IF EXISTS bookings_archive",
	)
}

func TestOutboxMigrations(t *testing.T) {
	requireStatements(t, readMigration(t, "create_outbox_events"),
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"payload jsonb NOT NULL",
		"WHERE published_at IS NULL",
	)
	requireStatements(t, readMigration(t, "create_outbox_dlq"),
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"payload_json jsonb NOT NULL",
		"CHECK (error_reason IN ('max_attempts', 'non_retryable'))",
	)
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Booking Notes Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_booking_notes_index.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embedded, err := fs.Glob(migrate.Migrations(), "*.sql")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.Len(t, embedded, len(onDisk))
	require.NoError(t, migrate.ValidateFS(migrate.Migrations()))
}

func TestValidateFSRejectsBrokenMigrations(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"create_bookings.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"duplicate version": {
			"20260401090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260401090000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"20260401090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"unbalanced statements": {
			"20260401090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, migrate.ValidateFS(fsys))
		})
	}
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260401090300")
	require.NoError(t, err)
	require.Equal(t, int64(20260401090300), v)

	_, err = migrate.ParseVersion("2026-04-01")
	require.Error(t, err)
}
