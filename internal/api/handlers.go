package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medisync/cloudsync/internal/broker"
)

func onboardHandler(svc *broker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OnboardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clinic, apiKey, err := svc.Onboard(r.Context(), req.Name, req.City, req.Specialty)
		if err != nil {
			if errors.Is(err, broker.ErrValidation) {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, OnboardResponse{
			ClinicID: clinic.ID,
			APIKey:   apiKey,
		})
	}
}

func publishSlotsHandler(svc *broker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := ClinicFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}

		var req PublishSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slots := make([]broker.SlotInput, 0, len(req.Slots))
		for _, s := range req.Slots {
			slots = append(slots, broker.SlotInput{Date: s.Date, Time: s.Time})
		}

		if err := svc.PublishSlots(r.Context(), clinic.ID, req.Dates, slots); err != nil {
			if errors.Is(err, broker.ErrValidation) {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func listSlotsHandler(svc *broker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(chi.URLParam(r, "clinicID"))
		if err != nil {
			writeError(w, http.StatusNotFound, "clinic_not_found", "unknown clinic")
			return
		}

		slots, err := svc.ListAvailable(r.Context(), clinicID, r.URL.Query().Get("date"))
		if err != nil {
			if errors.Is(err, broker.ErrClinicNotFound) {
				writeError(w, http.StatusNotFound, "clinic_not_found", "unknown clinic")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				ID:       s.ID,
				ClinicID: s.ClinicID,
				Date:     s.Date,
				Time:     s.Time,
				Status:   string(s.Status),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bookHandler(svc *broker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		_, err := svc.Book(r.Context(), broker.BookingRequest{
			SlotID:      req.SlotID,
			ClinicID:    req.ClinicID,
			PatientName: req.PatientName,
			Phone:       req.Phone,
			Reason:      req.Reason,
		})
		if err != nil {
			handleBookError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{Status: "queued"})
	}
}

func handleBookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot not found", "")
	case errors.Is(err, broker.ErrClinicNotFound):
		writeError(w, http.StatusNotFound, "clinic not found", "")
	case errors.Is(err, broker.ErrSlotTaken):
		writeError(w, http.StatusConflict, "Slot already taken", "please pick another time")
	case errors.Is(err, broker.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func syncHandler(svc *broker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := ClinicFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}

		msgs, err := svc.Drain(r.Context(), clinic.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]MessageResponse, 0, len(msgs))
		for _, m := range msgs {
			resp = append(resp, MessageResponse{
				ID:        m.ID,
				ClinicID:  m.ClinicID,
				Type:      string(m.Type),
				Payload:   m.Payload,
				CreatedAt: m.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func ackHandler(svc *broker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinic, ok := ClinicFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}

		var req AckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := svc.Ack(r.Context(), clinic.ID, req.IDs); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, AckResponse{Success: true})
	}
}

func listClinicsHandler(svc *broker.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinics, err := svc.ListClinics(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ClinicResponse, 0, len(clinics))
		for _, c := range clinics {
			resp = append(resp, ClinicResponse{
				ID:        c.ID,
				Name:      c.Name,
				City:      c.City,
				Specialty: c.Specialty,
				Online:    c.Online,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
