package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	// SlotHeld is reserved for a temporary-reservation feature. No operation
	// enters it today; the only transition is AVAILABLE -> BOOKED.
	SlotHeld   SlotStatus = "HELD"
	SlotBooked SlotStatus = "BOOKED"
)

type MessageType string

const (
	MessageAppointmentRequest MessageType = "APPOINTMENT_REQUEST"
	// MessageOther is reserved for future message kinds.
	MessageOther MessageType = "OTHER"
)

// Clinic is the identity of an onboarded installation. APIKeyHash holds the
// salted one-way form only; the plain key is returned once at onboarding and
// never stored.
type Clinic struct {
	ID         uuid.UUID
	Name       string
	City       string
	Specialty  *string
	APIKeyHash string
	CreatedAt  time.Time
	LastSeen   time.Time
}

// Slot is one bookable time unit, unique per (clinic, date, time). Date is a
// calendar date "2006-01-02", Time a local time-of-day "15:04".
type Slot struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
	Date     string
	Time     string
	Status   SlotStatus
}

// SlotInput is a slot as published by a clinic.
type SlotInput struct {
	Date string
	Time string
}

// Message is one unit of work owed to a clinic. ID doubles as the
// idempotency key for the consumer: delivery is at-least-once and the agent
// applies messages keyed by it.
type Message struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Type      MessageType
	Payload   json.RawMessage
	CreatedAt time.Time
}

// AppointmentRequestPayload is the payload schema for APPOINTMENT_REQUEST.
// SlotID is nil for a general inquiry with no slot selected.
type AppointmentRequestPayload struct {
	Name   string     `json:"name"`
	Phone  string     `json:"phone"`
	Reason string     `json:"reason,omitempty"`
	SlotID *uuid.UUID `json:"slotId"`
	Date   string     `json:"date,omitempty"`
	Time   string     `json:"time,omitempty"`
}

// DecodePayload decodes the payload according to the message type. The set
// of variants is closed; consumers switch over the returned type and treat
// anything else as unknown.
func (m *Message) DecodePayload() (any, error) {
	switch m.Type {
	case MessageAppointmentRequest:
		var p AppointmentRequestPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", m.Type, err)
		}
		return p, nil
	case MessageOther:
		var p map[string]any
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", m.Type, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

// Online reports whether the clinic counts as online for the patient-facing
// directory.
func (c *Clinic) Online(now time.Time, window time.Duration) bool {
	return !c.LastSeen.IsZero() && now.Sub(c.LastSeen) < window
}
