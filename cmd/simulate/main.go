package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Hammers the public /book endpoint with concurrent patients fighting over
// the same slots, then verifies the compare-and-swap held: every slot was
// booked at most once.

type simConfig struct {
	BaseURL    string
	ClinicID   string
	PerSlot    int
	SlotLimit  int
	HTTPClient *http.Client
}

type remoteSlot struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type slotResult struct {
	success  int64
	conflict int64
	errors   int64
}

type metrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *metrics) record(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func (m *metrics) report() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	fmt.Printf("requests=%d avg=%s p50=%s p95=%s max=%s\n",
		len(sorted),
		sum/time.Duration(len(sorted)),
		sorted[len(sorted)*50/100],
		sorted[len(sorted)*95/100],
		sorted[len(sorted)-1],
	)
}

func main() {
	cfg := simConfig{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	flag.StringVar(&cfg.BaseURL, "url", "http://127.0.0.1:8080", "broker base URL")
	flag.StringVar(&cfg.ClinicID, "clinic", "", "clinic id to book against (required)")
	flag.IntVar(&cfg.PerSlot, "per-slot", 10, "concurrent booking attempts per slot")
	flag.IntVar(&cfg.SlotLimit, "slots", 20, "max slots to contend on")
	flag.Parse()

	if cfg.ClinicID == "" {
		log.Fatal("-clinic is required")
	}

	slots, err := fetchSlots(cfg)
	if err != nil {
		log.Fatalf("fetch slots: %v", err)
	}
	if len(slots) > cfg.SlotLimit {
		slots = slots[:cfg.SlotLimit]
	}
	if len(slots) == 0 {
		log.Fatal("no available slots to contend on, seed first")
	}

	log.Printf("contending %d attempts on each of %d slots", cfg.PerSlot, len(slots))

	gofakeit.Seed(time.Now().UnixNano())

	var m metrics
	results := make([]slotResult, len(slots))

	var wg sync.WaitGroup
	for i, slot := range slots {
		for w := 0; w < cfg.PerSlot; w++ {
			wg.Add(1)
			go func(i int, slotID string) {
				defer wg.Done()

				start := time.Now()
				status, err := book(cfg, slotID)
				m.record(time.Since(start))

				switch {
				case err != nil:
					atomic.AddInt64(&results[i].errors, 1)
				case status == http.StatusOK:
					atomic.AddInt64(&results[i].success, 1)
				case status == http.StatusConflict:
					atomic.AddInt64(&results[i].conflict, 1)
				default:
					atomic.AddInt64(&results[i].errors, 1)
				}
			}(i, slot.ID)
		}
	}
	wg.Wait()

	var doubleBooked, totalSuccess, totalConflict, totalErrors int64
	for i, r := range results {
		totalSuccess += r.success
		totalConflict += r.conflict
		totalErrors += r.errors
		if r.success > 1 {
			doubleBooked++
			log.Printf("DOUBLE BOOKING on slot %s: %d successes", slots[i].ID, r.success)
		}
	}

	fmt.Printf("slots=%d success=%d conflict=%d errors=%d double_booked=%d\n",
		len(slots), totalSuccess, totalConflict, totalErrors, doubleBooked)
	m.report()

	if doubleBooked > 0 {
		os.Exit(1)
	}
}

func fetchSlots(cfg simConfig) ([]remoteSlot, error) {
	resp, err := cfg.HTTPClient.Get(cfg.BaseURL + "/slots/" + cfg.ClinicID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var slots []remoteSlot
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func book(cfg simConfig, slotID string) (int, error) {
	body, _ := json.Marshal(map[string]string{
		"slotId":      slotID,
		"patientName": gofakeit.Name(),
		"phone":       gofakeit.Phone(),
		"reason":      gofakeit.SentenceSimple(),
	})

	resp, err := cfg.HTTPClient.Post(cfg.BaseURL+"/book", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
