// Package device runs discovery sessions over the configured fleet.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"apimonitor/internal/config"
	"apimonitor/internal/tokenstore"
)

// Summary reports the outcome of one fleet processing cycle. Devices with a
// recorded auth failure count as failed but are still handled, never crashed.
type Summary struct {
	TotalDevices      int       `json:"total_devices"`
	SuccessfulDevices int       `json:"successful_devices"`
	FailedDevices     int       `json:"failed_devices"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Service processes device discovery sessions with bounded concurrency.
// Sessions share no mutable state except the token store, which serializes
// its own writes.
type Service struct {
	store   *tokenstore.Store
	timeout time.Duration
	workers int
	log     zerolog.Logger
}

// NewService creates a fleet processing service
func NewService(store *tokenstore.Store, timeout time.Duration, workers int, log zerolog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		store:   store,
		timeout: timeout,
		workers: workers,
		log:     log,
	}
}

// ProcessAll runs one discovery session per device. Results preserve input
// order; no device's failure affects its siblings.
func (s *Service) ProcessAll(ctx context.Context, devices []*config.Device) ([]Result, Summary) {
	results := make([]Result, len(devices))

	jobs := make(chan int)
	var wg sync.WaitGroup

	wg.Add(s.workers)
	for w := 0; w < s.workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				session := NewSession(devices[i], s.store, s.timeout, s.log)
				results[i] = session.Run(ctx)
			}
		}()
	}

	for i := range devices {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	summary := Summary{
		TotalDevices: len(devices),
		LastUpdated:  time.Now(),
	}
	for _, result := range results {
		if result.AuthFailed {
			summary.FailedDevices++
			continue
		}
		summary.SuccessfulDevices++
	}

	s.log.Info().
		Int("successful", summary.SuccessfulDevices).
		Int("failed", summary.FailedDevices).
		Msg("device processing complete")

	return results, summary
}
