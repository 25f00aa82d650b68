package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"calbot-go/internal/calbot"
	"calbot-go/internal/config"
	"calbot-go/internal/database"
	"calbot-go/internal/feed"
	"calbot-go/internal/matrix"
	"calbot-go/internal/model"
	"calbot-go/internal/oauth"
	"calbot-go/internal/secret"
)

// App is the application layer between the CLI and the calbot Service.
// It constructs all dependencies from config and manages the store and
// log file lifecycle on Close.
type App struct {
	cfg     *config.Config
	store   calbot.Store
	sealer  calbot.Sealer
	service *calbot.Service
	logger  calbot.Logger
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(cfg *config.Config) (*App, error) {
	sealer, err := secret.NewSealerFromConfig(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("creating sealer: %w", err)
	}
	if !sealer.IsConfigured() {
		return nil, fmt.Errorf("secrets not initialized (run 'calbot secrets init')")
	}

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	fetcher := feed.NewFetcher(time.Duration(cfg.Sync.FetchTimeoutSeconds)*time.Second, logger)
	messenger := matrix.NewClient(cfg.Matrix.HomeserverURL, cfg.Matrix.AccessToken, logger)
	refresher := oauth.NewRefresher(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.TokenURL, logger)

	svc := calbot.NewService(store, fetcher, messenger, refresher, sealer, logger,
		calbot.RealClock{}, calbot.UUIDGenerator{}, calbot.Settings{
			HorizonDays: int(cfg.Sync.HorizonDays),
			Grace:       time.Duration(cfg.Dispatch.GraceMinutes) * time.Minute,
			MaxParallel: cfg.Sync.MaxParallel,
		})

	return &App{
		cfg:     cfg,
		store:   store,
		sealer:  sealer,
		service: svc,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// AddCalendar registers a new calendar feed.
func (a *App) AddCalendar(ctx context.Context, params calbot.AddCalendarParams) (*model.Calendar, error) {
	return a.service.AddCalendar(ctx, params)
}

// AddOAuthAccount links an OAuth token pair for feed authorization.
func (a *App) AddOAuthAccount(ctx context.Context, params calbot.AddOAuthAccountParams) (*model.OAuthAccount, error) {
	return a.service.AddOAuthAccount(ctx, params)
}

// AddReminder registers a reminder against an event.
func (a *App) AddReminder(ctx context.Context, params calbot.AddReminderParams) (*model.Reminder, error) {
	return a.service.AddReminder(ctx, params)
}

// Calendars returns all registered calendars.
func (a *App) Calendars(ctx context.Context) ([]*model.Calendar, error) {
	return a.service.Calendars(ctx)
}

// Reminders returns reminders, all of them or those of one calendar.
func (a *App) Reminders(ctx context.Context, calendarID string) ([]*model.Reminder, error) {
	return a.service.Reminders(ctx, calendarID)
}

// SyncAll runs one sync cycle for every calendar.
func (a *App) SyncAll(ctx context.Context) error {
	return a.service.SyncAll(ctx)
}

// SyncCalendar runs one sync cycle for a single calendar.
func (a *App) SyncCalendar(ctx context.Context, calendarID string) error {
	return a.service.SyncCalendar(ctx, calendarID)
}

// DispatchDue sends every reminder whose trigger time has arrived.
func (a *App) DispatchDue(ctx context.Context) error {
	return a.service.DispatchDue(ctx)
}

// GetHistory returns the most recent sync runs.
func (a *App) GetHistory(ctx context.Context, limit int64) ([]*model.SyncRun, error) {
	return a.service.GetHistory(ctx, limit)
}

// Run starts the periodic sync and dispatch scheduler and blocks until ctx
// is canceled. In-flight jobs are drained before it returns.
func (a *App) Run(ctx context.Context) error {
	runner := NewRunner(a.service, a.store, a.logger,
		time.Duration(a.cfg.Sync.IntervalMinutes)*time.Minute,
		time.Duration(a.cfg.Dispatch.IntervalMinutes)*time.Minute)

	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	<-ctx.Done()
	runner.Stop()
	return nil
}

// Close releases the store and log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
