package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	var specialty *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.City,
		&specialty,
		&c.APIKeyHash,
		&c.CreatedAt,
		&c.LastSeen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}

	c.Specialty = specialty
	return &c, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.ClinicID,
		&s.Date,
		&s.Time,
		&s.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message

	err := row.Scan(
		&m.ID,
		&m.ClinicID,
		&m.Type,
		&m.Payload,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// Clinics

func (r *PgRepository) CreateClinic(ctx context.Context, c *Clinic) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clinics (id, name, city, specialty, api_key_hash, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, c.ID, c.Name, c.City, c.Specialty, c.APIKeyHash, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert clinic: %w", err)
	}
	return nil
}

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, city, specialty, api_key_hash, created_at, last_seen
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) ListClinics(ctx context.Context) ([]Clinic, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, city, specialty, api_key_hash, created_at, last_seen
		FROM clinics
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	return result, rows.Err()
}

func (r *PgRepository) TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE clinics SET last_seen = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("touch last_seen: %w", err)
	}
	return nil
}

// Slots

func (r *PgRepository) ReplaceSlots(ctx context.Context, clinicID uuid.UUID, dates []string, slots []SlotInput) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Booked slots survive a republish: the delete skips them and the insert
	// drops any incoming slot colliding with one.
	_, err = tx.Exec(ctx, `
		DELETE FROM slots
		WHERE clinic_id = $1
		  AND date = ANY($2)
		  AND status <> 'BOOKED'
	`, clinicID, dates)
	if err != nil {
		return fmt.Errorf("clear superseded slots: %w", err)
	}

	for _, s := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO slots (id, clinic_id, date, time, status)
			VALUES ($1, $2, $3, $4, 'AVAILABLE')
			ON CONFLICT (clinic_id, date, time) DO NOTHING
		`, uuid.New(), clinicID, s.Date, s.Time)
		if err != nil {
			return fmt.Errorf("insert slot %s %s: %w", s.Date, s.Time, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, clinicID uuid.UUID, date string) ([]Slot, error) {
	// Ordering is load-bearing: the booking page shows the first available
	// slot, so the scan must come back (date, time) ascending.
	query := `
		SELECT id, clinic_id, date, time, status
		FROM slots
		WHERE clinic_id = $1 AND status = 'AVAILABLE'
		ORDER BY date, time
	`
	args := []any{clinicID}
	if date != "" {
		query = `
			SELECT id, clinic_id, date, time, status
			FROM slots
			WHERE clinic_id = $1 AND status = 'AVAILABLE' AND date = $2
			ORDER BY date, time
		`
		args = append(args, date)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, date, time, status
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// BookSlot is the compare-and-swap: one conditional UPDATE, with the
// returned row as the success signal. Two concurrent bookings of the same
// slot race on the WHERE clause and exactly one wins.
func (r *PgRepository) BookSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'BOOKED'
		WHERE id = $1 AND status = 'AVAILABLE'
		RETURNING id, clinic_id, date, time, status
	`, id)

	s, err := scanSlot(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, err
	}

	// No row updated: distinguish "never existed" from "already taken".
	if _, err := r.GetSlotByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrSlotTaken
}

// Outbox

func (r *PgRepository) EnqueueMessage(ctx context.Context, m *Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, clinic_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.ClinicID, m.Type, m.Payload, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

func (r *PgRepository) ListMessages(ctx context.Context, clinicID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, type, payload, created_at
		FROM messages
		WHERE clinic_id = $1
		ORDER BY created_at ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}

	return result, rows.Err()
}

func (r *PgRepository) DeleteMessages(ctx context.Context, clinicID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	// The clinic_id predicate makes ack both idempotent and clinic-scoped: a
	// caller can never delete another clinic's messages, and re-acking a
	// deleted id simply affects zero rows.
	_, err := r.pool.Exec(ctx, `
		DELETE FROM messages
		WHERE clinic_id = $1 AND id = ANY($2)
	`, clinicID, ids)
	if err != nil {
		return fmt.Errorf("ack messages: %w", err)
	}
	return nil
}
