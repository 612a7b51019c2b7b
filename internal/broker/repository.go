package broker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClinicNotFound = errors.New("clinic not found")
	ErrSlotNotFound   = errors.New("slot not found")
	ErrSlotTaken      = errors.New("slot already taken")
)

// Repository contains all store interactions needed by the service.
//
// BookSlot is the load-bearing concurrency primitive of the subsystem: it
// must be a single conditional write (AVAILABLE -> BOOKED iff currently
// AVAILABLE) so that concurrent bookings for the same slot cannot both
// succeed. No caller adds locking around it.
type Repository interface {
	CreateClinic(ctx context.Context, c *Clinic) error
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	ListClinics(ctx context.Context) ([]Clinic, error)
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error

	// ReplaceSlots supersedes the clinic's slot set for the given dates:
	// non-BOOKED rows for those dates are removed and the new set inserted
	// as AVAILABLE. A BOOKED slot is never removed or reverted; an incoming
	// slot colliding with one is dropped.
	ReplaceSlots(ctx context.Context, clinicID uuid.UUID, dates []string, slots []SlotInput) error
	ListAvailableSlots(ctx context.Context, clinicID uuid.UUID, date string) ([]Slot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	BookSlot(ctx context.Context, id uuid.UUID) (*Slot, error)

	EnqueueMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, clinicID uuid.UUID) ([]Message, error)
	// DeleteMessages removes exactly the messages owned by clinicID whose id
	// is in ids. Unknown or already-deleted ids are a silent no-op.
	DeleteMessages(ctx context.Context, clinicID uuid.UUID, ids []uuid.UUID) error
}
