package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"calbot-go/internal/calbot"
)

// Runner drives the periodic jobs of the daemon: one sync job per
// calendar, a dispatch tick, and a reconcile pass that keeps the sync
// schedule in step with the registered calendars. Jobs never overlap
// themselves; a sync still running when its next slot arrives skips it.
type Runner struct {
	service          *calbot.Service
	store            calbot.Store
	logger           calbot.Logger
	cron             *cron.Cron
	syncInterval     time.Duration
	dispatchInterval time.Duration

	mu      sync.Mutex
	entries map[string]syncEntry
}

type syncEntry struct {
	id       cron.EntryID
	interval time.Duration
}

// NewRunner creates a Runner with the given default cadences. A calendar
// with its own sync interval overrides the default for its job only.
func NewRunner(service *calbot.Service, store calbot.Store, logger calbot.Logger, syncInterval, dispatchInterval time.Duration) *Runner {
	if syncInterval <= 0 {
		syncInterval = 5 * time.Minute
	}
	if dispatchInterval <= 0 {
		dispatchInterval = time.Minute
	}

	cl := &cronLogger{l: logger}
	return &Runner{
		service: service,
		store:   store,
		logger:  logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		syncInterval:     syncInterval,
		dispatchInterval: dispatchInterval,
		entries:          make(map[string]syncEntry),
	}
}

// Start runs one immediate sync and dispatch pass, schedules the periodic
// jobs, and returns. The constant-delay schedule fires only after a full
// interval, so without the catch-up pass a restart would sit idle first.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.service.SyncAll(ctx); err != nil {
		r.logger.Error("initial sync failed", "error", err)
	}
	if err := r.service.DispatchDue(ctx); err != nil {
		r.logger.Error("initial dispatch failed", "error", err)
	}

	if err := r.reschedule(ctx); err != nil {
		return err
	}

	r.cron.Schedule(cron.Every(r.dispatchInterval), cron.FuncJob(func() {
		if err := r.service.DispatchDue(ctx); err != nil {
			r.logger.Error("dispatch tick failed", "error", err)
		}
	}))
	r.cron.Schedule(cron.Every(r.syncInterval), cron.FuncJob(func() {
		if err := r.reschedule(ctx); err != nil {
			r.logger.Error("rescheduling sync jobs failed", "error", err)
		}
	}))

	r.cron.Start()
	r.logger.Info("scheduler started",
		"sync_interval", r.syncInterval, "dispatch_interval", r.dispatchInterval)
	return nil
}

// Stop halts the schedule and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("scheduler stopped")
}

// reschedule reconciles the per-calendar sync jobs against the registered
// calendars: new calendars get a job, removed ones lose theirs, and an
// interval change replaces the existing job.
func (r *Runner) reschedule(ctx context.Context) error {
	calendars, err := r.store.ListCalendars(ctx)
	if err != nil {
		return fmt.Errorf("listing calendars: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(calendars))
	for _, calendar := range calendars {
		interval := r.syncInterval
		if calendar.SyncIntervalMinutes.Valid {
			interval = time.Duration(calendar.SyncIntervalMinutes.Int64) * time.Minute
		}
		seen[calendar.ID] = true

		entry, ok := r.entries[calendar.ID]
		if ok && entry.interval == interval {
			continue
		}
		if ok {
			r.cron.Remove(entry.id)
		}

		id := r.cron.Schedule(cron.Every(interval), cron.FuncJob(r.syncJob(ctx, calendar.ID)))
		r.entries[calendar.ID] = syncEntry{id: id, interval: interval}
		r.logger.Info("sync job scheduled", "calendar", calendar.ID, "interval", interval)
	}

	for calendarID, entry := range r.entries {
		if !seen[calendarID] {
			r.cron.Remove(entry.id)
			delete(r.entries, calendarID)
			r.logger.Info("sync job removed", "calendar", calendarID)
		}
	}

	return nil
}

func (r *Runner) syncJob(ctx context.Context, calendarID string) func() {
	return func() {
		if err := r.service.SyncCalendar(ctx, calendarID); err != nil {
			r.logger.Error("scheduled sync failed", "calendar", calendarID, "error", err)
		}
	}
}

// cronLogger adapts calbot.Logger to the cron logging interface. The
// scheduler's routine chatter goes to Debug.
type cronLogger struct {
	l calbot.Logger
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
