package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory LocalStore for agent tests.
type memoryStore struct {
	mu        sync.Mutex
	settings  Settings
	requests  map[string]AppointmentRequest
	failIDs   map[string]bool // message ids whose insert should fail
	settErr   error
}

func newMemoryStore(s Settings) *memoryStore {
	return &memoryStore{
		settings: s,
		requests: make(map[string]AppointmentRequest),
		failIDs:  make(map[string]bool),
	}
}

func (m *memoryStore) Settings(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, m.settErr
}

func (m *memoryStore) SaveSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func (m *memoryStore) InsertAppointmentRequest(_ context.Context, req AppointmentRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[req.MessageID] {
		return false, errors.New("disk full")
	}
	if _, ok := m.requests[req.MessageID]; ok {
		return false, nil
	}
	m.requests[req.MessageID] = req
	return true, nil
}

func (m *memoryStore) ListAppointmentRequests(context.Context) ([]AppointmentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AppointmentRequest, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r)
	}
	return out, nil
}

// fakeBroker serves the wire contract endpoints the agent talks to and
// records what was acked.
type fakeBroker struct {
	mu       sync.Mutex
	messages []RemoteMessage
	acked    [][]string
	drains   int
	failSync bool
	failAck  bool

	// blockDrain, when non-nil, is closed by the test to release a /sync
	// response held open to keep a poll cycle in flight.
	blockDrain chan struct{}
}

func (f *fakeBroker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sync", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		block := f.blockDrain
		fail := f.failSync
		f.drains++
		msgs := append([]RemoteMessage(nil), f.messages...)
		f.mu.Unlock()

		if block != nil {
			<-block
		}
		if fail {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msgs)
	})
	mux.HandleFunc("POST /ack", func(w http.ResponseWriter, r *http.Request) {
		if f.failAck {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		var req struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.acked = append(f.acked, req.IDs)
		drop := make(map[string]bool, len(req.IDs))
		for _, id := range req.IDs {
			drop[id] = true
		}
		kept := f.messages[:0]
		for _, m := range f.messages {
			if !drop[m.ID] {
				kept = append(kept, m)
			}
		}
		f.messages = kept
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("POST /onboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-app-secret") != "install-secret" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clinicId":"11111111-2222-3333-4444-555555555555","apiKey":"fresh-key"}`))
	})
	return mux
}

func appointmentMessage(id, name string, slotID *string) RemoteMessage {
	payload, _ := json.Marshal(appointmentPayload{
		Name:   name,
		Phone:  "9998887777",
		SlotID: slotID,
		Date:   "2026-01-10",
		Time:   "10:00",
	})
	return RemoteMessage{
		ID:        id,
		ClinicID:  "c1",
		Type:      "APPOINTMENT_REQUEST",
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

func newTestAgent(t *testing.T, f *fakeBroker, store LocalStore) *Agent {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, 5*time.Second)
	// interval is long on purpose: tests drive cycles via Poll or the
	// immediate poll on start, never the ticker
	return New(store, client, time.Hour, zerolog.Nop())
}

func enabledSettings() Settings {
	return Settings{Enabled: true, ClinicID: "c1", APIKey: "k1"}
}

func TestPollAppliesAndAcks(t *testing.T) {
	slotID := "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	f := &fakeBroker{messages: []RemoteMessage{
		appointmentMessage("m1", "John Doe", &slotID),
		appointmentMessage("m2", "General Inquiry", nil),
	}}
	store := newMemoryStore(enabledSettings())
	a := newTestAgent(t, f, store)

	require.NoError(t, a.Poll(context.Background()))

	reqs, _ := store.ListAppointmentRequests(context.Background())
	require.Len(t, reqs, 2)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.acked, 1)
	assert.ElementsMatch(t, []string{"m1", "m2"}, f.acked[0])
	assert.Empty(t, f.messages)
}

func TestPollIdempotentOnRedelivery(t *testing.T) {
	f := &fakeBroker{messages: []RemoteMessage{appointmentMessage("m1", "John Doe", nil)}, failAck: true}
	store := newMemoryStore(enabledSettings())
	a := newTestAgent(t, f, store)

	// ack fails, so the broker keeps the message and redelivers it
	require.Error(t, a.Poll(context.Background()))

	f.failAck = false
	require.NoError(t, a.Poll(context.Background()))

	// applied exactly once despite two deliveries
	reqs, _ := store.ListAppointmentRequests(context.Background())
	assert.Len(t, reqs, 1)
}

func TestPollSkipsWhenDisabledOrUnonboarded(t *testing.T) {
	f := &fakeBroker{messages: []RemoteMessage{appointmentMessage("m1", "X", nil)}}

	for name, settings := range map[string]Settings{
		"disabled":       {Enabled: false, ClinicID: "c1", APIKey: "k1"},
		"no credentials": {Enabled: true},
	} {
		t.Run(name, func(t *testing.T) {
			store := newMemoryStore(settings)
			a := newTestAgent(t, f, store)

			require.NoError(t, a.Poll(context.Background()))

			reqs, _ := store.ListAppointmentRequests(context.Background())
			assert.Empty(t, reqs)
		})
	}
}

func TestPollLeavesFailedApplyUnacked(t *testing.T) {
	f := &fakeBroker{messages: []RemoteMessage{
		appointmentMessage("good", "John Doe", nil),
		appointmentMessage("bad", "Broken", nil),
	}}
	store := newMemoryStore(enabledSettings())
	store.failIDs["bad"] = true
	a := newTestAgent(t, f, store)

	require.NoError(t, a.Poll(context.Background()))

	f.mu.Lock()
	require.Len(t, f.acked, 1)
	assert.Equal(t, []string{"good"}, f.acked[0])
	remaining := len(f.messages)
	f.mu.Unlock()

	// the failed message stays queued for the next cycle
	assert.Equal(t, 1, remaining)
}

func TestPollAbortsBeforeAckOnDrainFailure(t *testing.T) {
	f := &fakeBroker{failSync: true}
	store := newMemoryStore(enabledSettings())
	a := newTestAgent(t, f, store)

	require.Error(t, a.Poll(context.Background()))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.acked)
}

func TestOverlappingPollIsSkipped(t *testing.T) {
	release := make(chan struct{})
	f := &fakeBroker{
		messages:   []RemoteMessage{appointmentMessage("m1", "X", nil)},
		blockDrain: release,
	}
	store := newMemoryStore(enabledSettings())
	a := newTestAgent(t, f, store)

	done := make(chan error, 1)
	go func() { done <- a.Poll(context.Background()) }()

	// wait until the first cycle is parked inside /sync
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.drains == 1
	}, time.Second, 5*time.Millisecond)

	// the second invocation must return immediately, not queue
	require.NoError(t, a.Poll(context.Background()))
	f.mu.Lock()
	assert.Equal(t, 1, f.drains)
	f.mu.Unlock()

	close(release)
	require.NoError(t, <-done)
}

func TestStartStopPolling(t *testing.T) {
	f := &fakeBroker{}
	store := newMemoryStore(enabledSettings())
	a := newTestAgent(t, f, store)

	assert.False(t, a.IsRunning())

	a.StartPolling()
	assert.True(t, a.IsRunning())
	a.StartPolling() // no-op

	// the immediate poll fires on start
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.drains >= 1
	}, time.Second, 5*time.Millisecond)

	a.StopPolling()
	assert.False(t, a.IsRunning())
	a.StopPolling() // no-op

	f.mu.Lock()
	after := f.drains
	f.mu.Unlock()
	time.Sleep(150 * time.Millisecond)
	f.mu.Lock()
	assert.Equal(t, after, f.drains, "no cycles after stop")
	f.mu.Unlock()
}

func TestSetEnabledControlsPolling(t *testing.T) {
	f := &fakeBroker{}
	store := newMemoryStore(Settings{ClinicID: "c1", APIKey: "k1"})
	a := newTestAgent(t, f, store)

	require.NoError(t, a.SetEnabled(context.Background(), true))
	assert.True(t, a.IsRunning())
	st, _ := store.Settings(context.Background())
	assert.True(t, st.Enabled)

	require.NoError(t, a.SetEnabled(context.Background(), false))
	assert.False(t, a.IsRunning())
	st, _ = store.Settings(context.Background())
	assert.False(t, st.Enabled)
}

func TestOnboardPersistsNewIdentity(t *testing.T) {
	f := &fakeBroker{}
	store := newMemoryStore(Settings{})
	a := newTestAgent(t, f, store)

	require.NoError(t, a.Onboard(context.Background(), "install-secret", "Riverside Clinic", "Pune"))

	st, err := store.Settings(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", st.ClinicID)
	assert.Equal(t, "fresh-key", st.APIKey)
	assert.NotEmpty(t, st.BaseURL)

	err = a.Onboard(context.Background(), "wrong-secret", "Riverside Clinic", "Pune")
	assert.Error(t, err)
}

func TestPublishedSlotsEmptyWhenDisabled(t *testing.T) {
	f := &fakeBroker{}
	store := newMemoryStore(Settings{Enabled: false})
	a := newTestAgent(t, f, store)

	slots, err := a.PublishedSlots(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestPublishSlotsRequiresOnboarding(t *testing.T) {
	f := &fakeBroker{}
	store := newMemoryStore(Settings{Enabled: true})
	a := newTestAgent(t, f, store)

	err := a.PublishSlots(context.Background(), []SlotPayload{{Date: "2026-01-10", Time: "10:00"}}, nil)
	assert.ErrorIs(t, err, ErrNotOnboarded)
}
