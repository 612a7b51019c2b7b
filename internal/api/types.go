package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OnboardRequest struct {
	Name      string  `json:"name"`
	City      string  `json:"city"`
	Specialty *string `json:"specialty,omitempty"`
}

type OnboardResponse struct {
	ClinicID uuid.UUID `json:"clinicId"`
	APIKey   string    `json:"apiKey"`
}

type SlotPayload struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type PublishSlotsRequest struct {
	Slots []SlotPayload `json:"slots"`
	Dates []string      `json:"dates,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type SlotResponse struct {
	ID       uuid.UUID `json:"id"`
	ClinicID uuid.UUID `json:"clinicId"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
	Status   string    `json:"status"`
}

type BookRequest struct {
	SlotID      *uuid.UUID `json:"slotId,omitempty"`
	ClinicID    *uuid.UUID `json:"clinicId,omitempty"`
	PatientName string     `json:"patientName"`
	Phone       string     `json:"phone"`
	Reason      string     `json:"reason,omitempty"`
}

type MessageResponse struct {
	ID        uuid.UUID       `json:"id"`
	ClinicID  uuid.UUID       `json:"clinicId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

type AckRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

type AckResponse struct {
	Success bool `json:"success"`
}

type ClinicResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Specialty *string   `json:"specialty,omitempty"`
	Online    bool      `json:"online"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
