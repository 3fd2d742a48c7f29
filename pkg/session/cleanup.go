package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aldan/opschat/internal/metrics"
)

const (
	DefaultIdleTTL       = 24 * time.Hour
	DefaultSweepSchedule = "@every 10m"
)

// Cleanup evicts idle sessions on a cron schedule, handing transcripts
// to an optional archiver before they are dropped.
type Cleanup struct {
	store    *Store
	archiver *Archiver
	idleTTL  time.Duration
	schedule string
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewCleanup creates a new session cleanup sweeper. The archiver may
// be nil, in which case evicted transcripts are simply dropped.
func NewCleanup(store *Store, archiver *Archiver, idleTTL time.Duration, schedule string, logger zerolog.Logger) *Cleanup {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &Cleanup{
		store:    store,
		archiver: archiver,
		idleTTL:  idleTTL,
		schedule: schedule,
		logger:   logger,
	}
}

// Start schedules the eviction sweep
func (c *Cleanup) Start() error {
	if c.cron != nil {
		return fmt.Errorf("cleanup is already running")
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.schedule, c.Sweep); err != nil {
		c.cron = nil
		return fmt.Errorf("invalid sweep schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()

	c.logger.Info().
		Dur("idle_ttl", c.idleTTL).
		Str("schedule", c.schedule).
		Msg("Session cleanup started")

	return nil
}

// Stop stops the sweeper
func (c *Cleanup) Stop() error {
	if c.cron == nil {
		return fmt.Errorf("cleanup is not running")
	}

	ctx := c.cron.Stop()
	<-ctx.Done()
	c.cron = nil

	c.logger.Info().Msg("Session cleanup stopped")
	return nil
}

// Sweep runs a single eviction pass
func (c *Cleanup) Sweep() {
	cutoff := time.Now().Add(-c.idleTTL)
	evicted := c.store.EvictIdle(cutoff)
	if len(evicted) == 0 {
		return
	}

	for _, ev := range evicted {
		archived := false
		if c.archiver != nil {
			if err := c.archiver.Archive(ev); err != nil {
				c.logger.Warn().
					Err(err).
					Str("session_id", ev.ID).
					Msg("Failed to archive evicted session")
			} else {
				archived = true
			}
		}
		metrics.RecordSessionEvicted(archived)
	}

	c.logger.Info().
		Int("evicted", len(evicted)).
		Msg("Idle sessions evicted")
}
