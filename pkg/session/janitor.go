package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIdleTTL       = 24 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Janitor periodically expires idle sessions from a Store
type Janitor struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewJanitor creates a janitor. A zero ttl disables expiry.
func NewJanitor(store *Store, ttl, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Janitor{
		store:    store,
		ttl:      ttl,
		interval: interval,
	}
}

// Start schedules the sweep. It is a no-op when expiry is disabled.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor is already running")
	}
	if j.ttl <= 0 {
		log.Info().Msg("Session idle expiry disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+j.interval.String(), func() { j.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	c.Start()

	j.cron = c
	j.running = true

	log.Info().
		Dur("idle_ttl", j.ttl).
		Dur("interval", j.interval).
		Msg("Session janitor started")

	return nil
}

// Stop unschedules the sweep and waits for a running sweep to finish
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.running = false
	j.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Info().Msg("Session janitor stopped")
}

// IsRunning returns whether the sweep is scheduled
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// Sweep expires idle sessions now and returns how many were removed
func (j *Janitor) Sweep() int {
	expired := j.store.ExpireIdle(j.ttl)
	if len(expired) > 0 {
		log.Info().
			Int("expired", len(expired)).
			Dur("idle_ttl", j.ttl).
			Msg("Expired idle sessions")
	}
	return len(expired)
}
