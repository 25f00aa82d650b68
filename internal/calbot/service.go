package calbot

import (
	"time"

	"golang.org/x/sync/semaphore"
)

// Default service settings. Overridable via Settings, which the app layer
// fills from config.
const (
	// DefaultHorizonDays bounds how far ahead recurrence expansion looks
	// when computing an event's next occurrence.
	DefaultHorizonDays = 730

	// DefaultGrace is how long past its trigger time a reminder may still
	// fire before it is skipped as stale.
	DefaultGrace = time.Hour

	// DefaultMaxParallel caps concurrent calendar syncs.
	DefaultMaxParallel = 4
)

// Settings carries the service-layer tuning knobs. Zero values fall back
// to the defaults above.
type Settings struct {
	HorizonDays int
	Grace       time.Duration
	MaxParallel int64
}

// Service is the orchestration layer that coordinates feed syncing and
// reminder dispatch across all components.
type Service struct {
	store     Store
	fetcher   FeedFetcher
	messenger Messenger
	refresher TokenRefresher
	sealer    Sealer
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	horizon time.Duration
	grace   time.Duration

	// sem bounds concurrent syncs across every entry point: the periodic
	// per-calendar jobs and the one-shot CLI sync all acquire from it.
	sem *semaphore.Weighted
}

// NewService creates a new Service with the provided dependencies.
func NewService(store Store, fetcher FeedFetcher, messenger Messenger, refresher TokenRefresher, sealer Sealer, logger Logger, clock Clock, idgen IDGenerator, settings Settings) *Service {
	if settings.HorizonDays <= 0 {
		settings.HorizonDays = DefaultHorizonDays
	}
	if settings.Grace <= 0 {
		settings.Grace = DefaultGrace
	}
	if settings.MaxParallel <= 0 {
		settings.MaxParallel = DefaultMaxParallel
	}

	return &Service{
		store:     store,
		fetcher:   fetcher,
		messenger: messenger,
		refresher: refresher,
		sealer:    sealer,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		horizon:   time.Duration(settings.HorizonDays) * 24 * time.Hour,
		grace:     settings.Grace,
		sem:       semaphore.NewWeighted(settings.MaxParallel),
	}
}
