package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DB{DB: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_id INTEGER NOT NULL,
            technician_id INTEGER NOT NULL DEFAULT 0,
            service_type TEXT NOT NULL,
            issue TEXT NOT NULL,
            urgency TEXT NOT NULL DEFAULT 'medium',
            scheduled_date DATETIME,
            completed_date DATETIME,
            status TEXT NOT NULL DEFAULT 'pending',
            has_bids BOOLEAN NOT NULL DEFAULT 0,
            selected_bid_id INTEGER NOT NULL DEFAULT 0,
            has_review BOOLEAN NOT NULL DEFAULT 0,
            review_id INTEGER NOT NULL DEFAULT 0,
            cancelled_by TEXT,
            cancel_reason TEXT,
            cancelled_at DATETIME,
            payment_status TEXT NOT NULL DEFAULT 'pending',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            event_seq INTEGER NOT NULL DEFAULT 1
        )`,

		// Append-only audit trail. Rows are inserted in the same transaction
		// as the status change they record, never updated or deleted.
		`CREATE TABLE IF NOT EXISTS booking_status_history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL,
            status TEXT NOT NULL,
            note TEXT,
            updated_by TEXT NOT NULL,
            forced BOOLEAN NOT NULL DEFAULT 0,
            seq INTEGER NOT NULL,
            created_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id INTEGER NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_customer_status ON bookings(customer_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_technician_status ON bookings(technician_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_scheduled_date ON bookings(scheduled_date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_history_booking_seq ON booking_status_history(booking_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
