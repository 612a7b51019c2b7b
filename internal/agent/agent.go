package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var ErrNotOnboarded = errors.New("clinic is not onboarded")

// Agent runs inside the clinic process. It polls the broker for confirmed
// bookings, applies them idempotently to the local store, acks what it
// applied, and pushes local availability upstream.
//
// All polling state is private to the instance: Start/Stop/IsRunning are the
// only mutators and the timer never escapes.
type Agent struct {
	store    LocalStore
	client   *Client
	interval time.Duration
	log      zerolog.Logger

	mu   sync.Mutex
	stop chan struct{} // non-nil iff a recurring poll is scheduled

	// polling guards against overlapping cycles: a tick that fires while a
	// cycle is still running is skipped, not queued.
	polling atomic.Bool
}

func New(store LocalStore, client *Client, interval time.Duration, log zerolog.Logger) *Agent {
	return &Agent{
		store:    store,
		client:   client,
		interval: interval,
		log:      log,
	}
}

// Onboard registers this installation with the broker and persists the
// returned identity. Calling it again creates a fresh clinic identity and
// overwrites the stored one; the old identity is orphaned on the broker.
func (a *Agent) Onboard(ctx context.Context, installSecret, name, city string) error {
	res, err := a.client.Onboard(ctx, installSecret, name, city)
	if err != nil {
		return err
	}

	err = a.store.SaveSettings(ctx, Settings{
		Enabled:  true,
		ClinicID: res.ClinicID,
		APIKey:   res.APIKey,
		BaseURL:  a.client.BaseURL(),
	})
	if err != nil {
		return err
	}

	a.log.Info().Str("clinic_id", res.ClinicID).Msg("onboarded with broker")
	return nil
}

// SetEnabled persists the flag and starts or stops the recurring poll.
func (a *Agent) SetEnabled(ctx context.Context, enabled bool) error {
	st, err := a.store.Settings(ctx)
	if err != nil {
		return err
	}
	st.Enabled = enabled
	if err := a.store.SaveSettings(ctx, st); err != nil {
		return err
	}

	if enabled {
		a.StartPolling()
	} else {
		a.StopPolling()
	}
	return nil
}

// StartPolling schedules the recurring poll. An immediate cycle fires on
// start, then one per interval. Starting twice is a no-op.
func (a *Agent) StartPolling() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stop != nil {
		return
	}
	stop := make(chan struct{})
	a.stop = stop

	go a.run(stop)
}

// StopPolling cancels the recurring poll. A cycle already in flight is not
// interrupted; only future cycles stop. Stopping twice is a no-op.
func (a *Agent) StopPolling() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stop == nil {
		return
	}
	close(a.stop)
	a.stop = nil
}

func (a *Agent) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop != nil
}

func (a *Agent) run(stop chan struct{}) {
	a.pollOnce()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.pollOnce()
		}
	}
}

// pollOnce is the swallow boundary: a failed cycle is logged and the next
// tick runs as if nothing happened.
func (a *Agent) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), a.interval)
	defer cancel()

	if err := a.Poll(ctx); err != nil {
		a.log.Warn().Err(err).Msg("poll cycle failed")
	}
}

// Poll runs one sync cycle; safe to invoke manually or from the timer. If a
// cycle is already in flight it returns immediately. Messages are acked only
// after their local apply succeeded, so a crash between apply and ack costs
// a redelivery, never a booking.
func (a *Agent) Poll(ctx context.Context) error {
	if !a.polling.CompareAndSwap(false, true) {
		return nil
	}
	defer a.polling.Store(false)

	st, err := a.store.Settings(ctx)
	if err != nil {
		return err
	}
	if !st.Enabled || st.ClinicID == "" || st.APIKey == "" {
		return nil
	}
	creds := Credentials{ClinicID: st.ClinicID, APIKey: st.APIKey}

	msgs, err := a.client.Drain(ctx, creds)
	if err != nil {
		return err
	}

	var processed []string
	for _, m := range msgs {
		if m.Type != "APPOINTMENT_REQUEST" {
			a.log.Debug().Str("message_id", m.ID).Str("type", m.Type).Msg("skipping unhandled message type")
			continue
		}

		var p appointmentPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			a.log.Error().Err(err).Str("message_id", m.ID).Msg("malformed payload, leaving for redelivery")
			continue
		}

		req := AppointmentRequest{
			MessageID:   m.ID,
			PatientName: p.Name,
			Phone:       p.Phone,
			Reason:      p.Reason,
			Date:        p.Date,
			Time:        p.Time,
			ReceivedAt:  time.Now().UTC(),
		}
		if p.SlotID != nil {
			req.SlotID = *p.SlotID
		}

		inserted, err := a.store.InsertAppointmentRequest(ctx, req)
		if err != nil {
			// Not acked: the broker redelivers it next cycle.
			a.log.Error().Err(err).Str("message_id", m.ID).Msg("local apply failed")
			continue
		}
		if !inserted {
			a.log.Debug().Str("message_id", m.ID).Msg("duplicate delivery, already applied")
		}
		processed = append(processed, m.ID)
	}

	if len(processed) > 0 {
		if err := a.client.Ack(ctx, creds, processed); err != nil {
			return err
		}
		a.log.Info().Int("applied", len(processed)).Msg("sync cycle complete")
	}

	return nil
}

// PublishSlots pushes local availability to the broker, scoped by the stored
// credentials.
func (a *Agent) PublishSlots(ctx context.Context, slots []SlotPayload, dates []string) error {
	st, err := a.store.Settings(ctx)
	if err != nil {
		return err
	}
	if st.ClinicID == "" || st.APIKey == "" {
		return ErrNotOnboarded
	}
	return a.client.PublishSlots(ctx, Credentials{ClinicID: st.ClinicID, APIKey: st.APIKey}, slots, dates)
}

// PublishedSlots returns this clinic's bookable slots as the broker sees
// them. When sync is disabled or credentials are missing it returns an empty
// list, not an error: the booking page just shows nothing.
func (a *Agent) PublishedSlots(ctx context.Context, date string) ([]RemoteSlot, error) {
	st, err := a.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Enabled || st.ClinicID == "" {
		return []RemoteSlot{}, nil
	}
	return a.client.ListAvailable(ctx, st.ClinicID, date)
}
