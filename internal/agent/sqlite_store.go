package agent

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// Setting keys, matching the clinic application's settings table.
const (
	settingEnabled  = "cloud_enabled"
	settingClinicID = "cloud_clinic_id"
	settingAPIKey   = "cloud_api_key"
	settingBaseURL  = "cloud_base_url"
)

// SQLiteStore is the LocalStore used by a real clinic installation.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.db = db

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sync_settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS appointment_requests (
			message_id   TEXT PRIMARY KEY,
			patient_name TEXT NOT NULL,
			phone        TEXT NOT NULL,
			reason       TEXT NOT NULL DEFAULT '',
			slot_id      TEXT NOT NULL DEFAULT '',
			date         TEXT NOT NULL DEFAULT '',
			time         TEXT NOT NULL DEFAULT '',
			received_at  TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Settings(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM sync_settings`)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	defer rows.Close()

	var out Settings
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Settings{}, err
		}
		switch key {
		case settingEnabled:
			out.Enabled, _ = strconv.ParseBool(value)
		case settingClinicID:
			out.ClinicID = value
		case settingAPIKey:
			out.APIKey = value
		case settingBaseURL:
			out.BaseURL = value
		}
	}

	return out, rows.Err()
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, set Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pairs := map[string]string{
		settingEnabled:  strconv.FormatBool(set.Enabled),
		settingClinicID: set.ClinicID,
		settingAPIKey:   set.APIKey,
		settingBaseURL:  set.BaseURL,
	}
	for key, value := range pairs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) InsertAppointmentRequest(ctx context.Context, req AppointmentRequest) (bool, error) {
	// INSERT OR IGNORE on the message-id primary key is the idempotent
	// apply: redelivery of an already-stored message affects zero rows.
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO appointment_requests
			(message_id, patient_name, phone, reason, slot_id, date, time, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, req.MessageID, req.PatientName, req.Phone, req.Reason,
		req.SlotID, req.Date, req.Time, req.ReceivedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("insert appointment request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListAppointmentRequests(ctx context.Context) ([]AppointmentRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, patient_name, phone, reason, slot_id, date, time, received_at
		FROM appointment_requests
		ORDER BY received_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list appointment requests: %w", err)
	}
	defer rows.Close()

	var result []AppointmentRequest
	for rows.Next() {
		var req AppointmentRequest
		var received string
		if err := rows.Scan(&req.MessageID, &req.PatientName, &req.Phone, &req.Reason,
			&req.SlotID, &req.Date, &req.Time, &received); err != nil {
			return nil, err
		}
		req.ReceivedAt, _ = time.Parse(time.RFC3339, received)
		result = append(result, req)
	}

	return result, rows.Err()
}
