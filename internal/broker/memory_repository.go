package broker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository. It backs the
// broker in dev mode (no POSTGRES_DSN) and the package tests. The mutex
// gives it the same single-writer CAS semantics the SQL implementation gets
// from the conditional UPDATE.
type MemoryRepository struct {
	mu       sync.Mutex
	clinics  map[uuid.UUID]*Clinic
	slots    map[uuid.UUID]*Slot
	messages []*Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clinics: make(map[uuid.UUID]*Clinic),
		slots:   make(map[uuid.UUID]*Slot),
	}
}

func (r *MemoryRepository) CreateClinic(_ context.Context, c *Clinic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	cp.LastSeen = c.CreatedAt
	r.clinics[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetClinicByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) ListClinics(_ context.Context) ([]Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Clinic, 0, len(r.clinics))
	for _, c := range r.clinics {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *MemoryRepository) TouchLastSeen(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clinics[id]; ok {
		c.LastSeen = at
	}
	return nil
}

func (r *MemoryRepository) ReplaceSlots(_ context.Context, clinicID uuid.UUID, dates []string, slots []SlotInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	targeted := make(map[string]bool, len(dates))
	for _, d := range dates {
		targeted[d] = true
	}

	taken := make(map[string]bool)
	for id, s := range r.slots {
		if s.ClinicID != clinicID || !targeted[s.Date] {
			continue
		}
		if s.Status == SlotBooked {
			taken[s.Date+" "+s.Time] = true
			continue
		}
		delete(r.slots, id)
	}

	for _, in := range slots {
		if taken[in.Date+" "+in.Time] {
			continue
		}
		id := uuid.New()
		r.slots[id] = &Slot{
			ID:       id,
			ClinicID: clinicID,
			Date:     in.Date,
			Time:     in.Time,
			Status:   SlotAvailable,
		}
	}

	return nil
}

func (r *MemoryRepository) ListAvailableSlots(_ context.Context, clinicID uuid.UUID, date string) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Slot
	for _, s := range r.slots {
		if s.ClinicID != clinicID || s.Status != SlotAvailable {
			continue
		}
		if date != "" && s.Date != date {
			continue
		}
		result = append(result, *s)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].Time < result[j].Time
	})

	return result, nil
}

func (r *MemoryRepository) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) BookSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != SlotAvailable {
		return nil, ErrSlotTaken
	}

	s.Status = SlotBooked
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) EnqueueMessage(_ context.Context, m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *m
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, clinicID uuid.UUID) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Message
	for _, m := range r.messages {
		if m.ClinicID == clinicID {
			result = append(result, *m)
		}
	}
	// Append order is creation order, which keeps ties on CreatedAt stable.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) DeleteMessages(_ context.Context, clinicID uuid.UUID, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := r.messages[:0]
	for _, m := range r.messages {
		if m.ClinicID == clinicID && drop[m.ID] {
			continue
		}
		kept = append(kept, m)
	}
	r.messages = kept
	return nil
}
