package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisync/cloudsync/internal/credential"
)

// OnlineWindow is how recently a clinic must have authenticated to count as
// online in the patient-facing directory.
const OnlineWindow = 5 * time.Minute

var (
	ErrUnauthorized = errors.New("invalid clinic credentials")
	ErrValidation   = errors.New("validation failed")
)

// Presence tracks which clinics have authenticated recently. Implemented on
// Redis in production; nil disables it and the directory falls back to the
// persisted last_seen column.
type Presence interface {
	Touch(ctx context.Context, clinicID uuid.UUID) error
	Online(ctx context.Context, clinicID uuid.UUID) (bool, error)
}

type Service struct {
	repo     Repository
	presence Presence
	log      zerolog.Logger
}

func NewService(repo Repository, presence Presence, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		presence: presence,
		log:      log,
	}
}

// Onboard registers a clinic installation and returns the identity together
// with the plain API key. The key is recoverable from nowhere else: only its
// salted hash is stored.
func (s *Service) Onboard(ctx context.Context, name, city string, specialty *string) (*Clinic, string, error) {
	if name == "" || city == "" {
		return nil, "", fmt.Errorf("%w: name and city are required", ErrValidation)
	}

	key, err := credential.GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}
	hash, err := credential.Hash(key)
	if err != nil {
		return nil, "", err
	}

	c := &Clinic{
		ID:         uuid.New(),
		Name:       name,
		City:       city,
		Specialty:  specialty,
		APIKeyHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateClinic(ctx, c); err != nil {
		return nil, "", fmt.Errorf("create clinic: %w", err)
	}

	s.log.Info().Stringer("clinic_id", c.ID).Str("city", city).Msg("clinic onboarded")
	return c, key, nil
}

// Authenticate verifies per-clinic credentials and refreshes last_seen. It
// returns ErrUnauthorized for every credential failure so the caller can
// never learn which part was wrong.
func (s *Service) Authenticate(ctx context.Context, clinicID uuid.UUID, apiKey string) (*Clinic, error) {
	c, err := s.repo.GetClinicByID(ctx, clinicID)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	ok, err := credential.Verify(apiKey, c.APIKeyHash)
	if err != nil {
		return nil, fmt.Errorf("verify api key: %w", err)
	}
	if !ok {
		return nil, ErrUnauthorized
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLastSeen(ctx, c.ID, now); err != nil {
		s.log.Warn().Err(err).Stringer("clinic_id", c.ID).Msg("touch last_seen failed")
	}
	if s.presence != nil {
		if err := s.presence.Touch(ctx, c.ID); err != nil {
			s.log.Warn().Err(err).Stringer("clinic_id", c.ID).Msg("presence touch failed")
		}
	}
	c.LastSeen = now

	return c, nil
}

// PublishSlots replaces the clinic's published availability for the given
// dates. Dates not listed are derived from the slots themselves.
func (s *Service) PublishSlots(ctx context.Context, clinicID uuid.UUID, dates []string, slots []SlotInput) error {
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		seen[d] = true
	}
	for _, in := range slots {
		if _, err := time.Parse("2006-01-02", in.Date); err != nil {
			return fmt.Errorf("%w: invalid date %q", ErrValidation, in.Date)
		}
		if _, err := time.Parse("15:04", in.Time); err != nil {
			return fmt.Errorf("%w: invalid time %q", ErrValidation, in.Time)
		}
		if !seen[in.Date] {
			seen[in.Date] = true
			dates = append(dates, in.Date)
		}
	}
	if len(dates) == 0 {
		return fmt.Errorf("%w: no dates to publish", ErrValidation)
	}

	if err := s.repo.ReplaceSlots(ctx, clinicID, dates, slots); err != nil {
		return fmt.Errorf("replace slots: %w", err)
	}

	s.log.Info().Stringer("clinic_id", clinicID).Int("slots", len(slots)).
		Strs("dates", dates).Msg("slots published")
	return nil
}

// ListAvailable returns the clinic's AVAILABLE slots ordered by (date, time)
// ascending, optionally filtered to one date.
func (s *Service) ListAvailable(ctx context.Context, clinicID uuid.UUID, date string) ([]Slot, error) {
	if _, err := s.repo.GetClinicByID(ctx, clinicID); err != nil {
		return nil, err
	}
	return s.repo.ListAvailableSlots(ctx, clinicID, date)
}

// BookingRequest is an anonymous patient's booking. SlotID nil with ClinicID
// set is a general inquiry; both nil is a validation error.
type BookingRequest struct {
	SlotID      *uuid.UUID
	ClinicID    *uuid.UUID
	PatientName string
	Phone       string
	Reason      string
}

// Book runs the public booking flow: compare-and-swap the slot when one is
// named, then enqueue an APPOINTMENT_REQUEST for the owning clinic. The
// booked slot is returned for slot-bound requests, nil for inquiries.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Slot, error) {
	if req.PatientName == "" || req.Phone == "" {
		return nil, fmt.Errorf("%w: patientName and phone are required", ErrValidation)
	}

	payload := AppointmentRequestPayload{
		Name:   req.PatientName,
		Phone:  req.Phone,
		Reason: req.Reason,
	}

	var clinicID uuid.UUID

	switch {
	case req.SlotID != nil:
		slot, err := s.repo.BookSlot(ctx, *req.SlotID)
		if err != nil {
			return nil, err
		}
		clinicID = slot.ClinicID
		payload.SlotID = &slot.ID
		payload.Date = slot.Date
		payload.Time = slot.Time

		if err := s.enqueue(ctx, clinicID, payload); err != nil {
			return nil, err
		}
		s.log.Info().Stringer("slot_id", slot.ID).Stringer("clinic_id", clinicID).Msg("slot booked")
		return slot, nil

	case req.ClinicID != nil:
		if _, err := s.repo.GetClinicByID(ctx, *req.ClinicID); err != nil {
			return nil, err
		}
		clinicID = *req.ClinicID

		if err := s.enqueue(ctx, clinicID, payload); err != nil {
			return nil, err
		}
		s.log.Info().Stringer("clinic_id", clinicID).Msg("general inquiry queued")
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: either slotId or clinicId is required", ErrValidation)
	}
}

func (s *Service) enqueue(ctx context.Context, clinicID uuid.UUID, payload AppointmentRequestPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	m := &Message{
		ID:        uuid.New(),
		ClinicID:  clinicID,
		Type:      MessageAppointmentRequest,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.EnqueueMessage(ctx, m); err != nil {
		return err
	}
	return nil
}

// Drain returns the clinic's undelivered messages oldest first. It never
// deletes: deletion happens only through Ack, after the agent has durably
// applied the messages.
func (s *Service) Drain(ctx context.Context, clinicID uuid.UUID) ([]Message, error) {
	return s.repo.ListMessages(ctx, clinicID)
}

// Ack deletes the named messages, scoped to the calling clinic. Unknown and
// already-deleted ids are silent no-ops so retried acks always succeed.
func (s *Service) Ack(ctx context.Context, clinicID uuid.UUID, ids []uuid.UUID) error {
	if err := s.repo.DeleteMessages(ctx, clinicID, ids); err != nil {
		return err
	}
	s.log.Debug().Stringer("clinic_id", clinicID).Int("acked", len(ids)).Msg("messages acked")
	return nil
}

// DirectoryEntry is a clinic as shown on the public booking page.
type DirectoryEntry struct {
	ID        uuid.UUID
	Name      string
	City      string
	Specialty *string
	Online    bool
}

// ListClinics returns the public clinic directory with the online flag.
func (s *Service) ListClinics(ctx context.Context) ([]DirectoryEntry, error) {
	clinics, err := s.repo.ListClinics(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := make([]DirectoryEntry, 0, len(clinics))
	for _, c := range clinics {
		online := c.Online(now, OnlineWindow)
		if s.presence != nil {
			if ok, err := s.presence.Online(ctx, c.ID); err == nil {
				online = ok
			}
		}
		result = append(result, DirectoryEntry{
			ID:        c.ID,
			Name:      c.Name,
			City:      c.City,
			Specialty: c.Specialty,
			Online:    online,
		})
	}
	return result, nil
}
