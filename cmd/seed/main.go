package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/medisync/cloudsync/internal/broker"
	"github.com/medisync/cloudsync/internal/db"
)

// Seeds a broker database with fake clinics and a week of slot grids, and
// prints each clinic's credentials so agents and the simulator can use them.
func main() {
	var (
		clinicCount = flag.Int("clinics", 5, "number of clinics to onboard")
		days        = flag.Int("days", 7, "days of availability per clinic")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	svc := broker.NewService(broker.NewPgRepository(pool), nil, log)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Pediatrics",
		"ENT",
	}

	gofakeit.Seed(time.Now().UnixNano())

	for i := 0; i < *clinicCount; i++ {
		name := gofakeit.LastName() + " Clinic"
		city := gofakeit.City()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		clinic, apiKey, err := svc.Onboard(ctx, name, city, &spec)
		if err != nil {
			log.Fatal().Err(err).Msg("onboard clinic")
		}

		dates, slots := slotGrid(*days)
		if err := svc.PublishSlots(ctx, clinic.ID, dates, slots); err != nil {
			log.Fatal().Err(err).Msg("publish slots")
		}

		// Stdout on purpose: these credentials exist nowhere else.
		fmt.Printf("clinic_id=%s api_key=%s name=%q city=%q slots=%d\n",
			clinic.ID, apiKey, name, city, len(slots))
	}

	log.Info().Int("clinics", *clinicCount).Msg("seed complete")
}

// slotGrid builds half-hour slots 09:00-16:30 for the next n days.
func slotGrid(n int) ([]string, []broker.SlotInput) {
	var dates []string
	var slots []broker.SlotInput

	for d := 1; d <= n; d++ {
		date := time.Now().AddDate(0, 0, d).Format("2006-01-02")
		dates = append(dates, date)
		for hour := 9; hour < 17; hour++ {
			for _, min := range []int{0, 30} {
				slots = append(slots, broker.SlotInput{
					Date: date,
					Time: fmt.Sprintf("%02d:%02d", hour, min),
				})
			}
		}
	}

	return dates, slots
}
