package agent

import (
	"context"
	"time"
)

// Settings is the clinic-local sync configuration. Enabled gates the whole
// agent; credentials are written once at onboarding.
type Settings struct {
	Enabled  bool
	ClinicID string
	APIKey   string
	BaseURL  string
}

// AppointmentRequest is the clinic's durable projection of a synced message,
// keyed by the originating message id. Re-delivery of the same message must
// hit the key and become a no-op.
type AppointmentRequest struct {
	MessageID   string
	PatientName string
	Phone       string
	Reason      string
	SlotID      string // empty for a general inquiry
	Date        string
	Time        string
	ReceivedAt  time.Time
}

// LocalStore is the agent's persistence collaborator inside the clinic
// process.
type LocalStore interface {
	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	// InsertAppointmentRequest persists idempotently by message id. It
	// reports true when the row was inserted and false when the id was
	// already present; both are success.
	InsertAppointmentRequest(ctx context.Context, req AppointmentRequest) (bool, error)
	ListAppointmentRequests(ctx context.Context) ([]AppointmentRequest, error)
}
