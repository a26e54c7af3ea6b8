// Package dbtest opens throwaway SQLite databases that mirror the Postgres
// schema closely enough for repository and migrator tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const bookingColumns = `
	id TEXT PRIMARY KEY,
	booking_ref TEXT NOT NULL,
	stripe_session_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('paid','checked_in','picked_up','cancelled')),
	customer_name TEXT NOT NULL,
	customer_email TEXT NOT NULL,
	customer_phone TEXT NOT NULL,
	drop_off_date TEXT NOT NULL,
	drop_off_time TEXT NOT NULL,
	drop_off_at DATETIME NOT NULL,
	pick_up_date TEXT NOT NULL,
	pick_up_time TEXT NOT NULL,
	pick_up_at DATETIME NOT NULL,
	billable_days INTEGER NOT NULL,
	bags_small INTEGER NOT NULL DEFAULT 0,
	bags_medium INTEGER NOT NULL DEFAULT 0,
	bags_large INTEGER NOT NULL DEFAULT 0,
	amount_cents INTEGER NOT NULL,
	currency TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	checked_in_at DATETIME,
	checked_in_by TEXT,
	picked_up_at DATETIME,
	picked_up_by TEXT,
	cancelled_by TEXT,
	checkin_token_issued_at DATETIME,
	version INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL`

var schema = []string{
	`CREATE TABLE bookings (` + bookingColumns + `)`,
	`CREATE UNIQUE INDEX ux_bookings_booking_ref ON bookings (booking_ref)`,
	`CREATE TABLE bookings_archive (` + bookingColumns + `,
	archived_at DATETIME NOT NULL,
	archived_by TEXT NOT NULL)`,
	`CREATE UNIQUE INDEX ux_bookings_archive_booking_ref ON bookings_archive (booking_ref)`,
	`CREATE TABLE outbox_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at DATETIME,
	published_at DATETIME,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT)`,
	`CREATE TABLE outbox_dlq (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload_json BLOB NOT NULL,
	error_reason TEXT NOT NULL,
	error_message TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	failed_at DATETIME,
	created_at DATETIME)`,
}

// Open returns an isolated in-memory database with the booking schema applied.
// The pool is pinned to one connection so transactions never race each other.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
