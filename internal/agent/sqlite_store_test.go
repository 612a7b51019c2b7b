package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "clinic.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteSettingsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// fresh database: zero-value settings
	st, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if st.Enabled || st.ClinicID != "" || st.APIKey != "" {
		t.Fatalf("expected zero settings, got %+v", st)
	}

	want := Settings{
		Enabled:  true,
		ClinicID: "0d5aa0cb-2a52-4a2e-8f16-3a0a9a5b9e01",
		APIKey:   "deadbeef",
		BaseURL:  "https://broker.example.com",
	}
	if err := store.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if got != want {
		t.Errorf("settings mismatch: got %+v, want %+v", got, want)
	}
}

func TestSQLiteSettingsOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := Settings{Enabled: true, ClinicID: "old-id", APIKey: "old-key", BaseURL: "https://a"}
	if err := store.SaveSettings(ctx, first); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	second := Settings{Enabled: false, ClinicID: "new-id", APIKey: "new-key", BaseURL: "https://b"}
	if err := store.SaveSettings(ctx, second); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, err := store.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if got != second {
		t.Errorf("settings mismatch: got %+v, want %+v", got, second)
	}
}

func TestSQLiteInsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	req := AppointmentRequest{
		MessageID:   "msg-1",
		PatientName: "John Doe",
		Phone:       "9998887777",
		Reason:      "checkup",
		SlotID:      "slot-1",
		Date:        "2026-01-10",
		Time:        "10:00",
		ReceivedAt:  time.Now().UTC(),
	}

	inserted, err := store.InsertAppointmentRequest(ctx, req)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if !inserted {
		t.Error("first insert reported not inserted")
	}

	// same message id again: no error, no new row
	inserted, err = store.InsertAppointmentRequest(ctx, req)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted {
		t.Error("duplicate insert reported inserted")
	}

	reqs, err := store.ListAppointmentRequests(ctx)
	if err != nil {
		t.Fatalf("ListAppointmentRequests failed: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].PatientName != "John Doe" || reqs[0].SlotID != "slot-1" {
		t.Errorf("stored request mismatch: %+v", reqs[0])
	}
}

func TestSQLiteListOrderedByReceipt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"msg-b", "msg-a", "msg-c"} {
		req := AppointmentRequest{
			MessageID:   id,
			PatientName: "Patient " + id,
			Phone:       "1",
			ReceivedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := store.InsertAppointmentRequest(ctx, req); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	reqs, err := store.ListAppointmentRequests(ctx)
	if err != nil {
		t.Fatalf("ListAppointmentRequests failed: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	for i, want := range []string{"msg-b", "msg-a", "msg-c"} {
		if reqs[i].MessageID != want {
			t.Errorf("position %d: got %s, want %s", i, reqs[i].MessageID, want)
		}
	}
}

func TestSQLiteInitCreatesDataDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "clinic.db")

	store := NewSQLiteStore(path)
	if err := store.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer store.Close()

	if _, err := store.Settings(context.Background()); err != nil {
		t.Fatalf("Settings on fresh database failed: %v", err)
	}
}
