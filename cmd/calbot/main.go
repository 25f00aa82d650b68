package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calbot-go/internal/app"
	"calbot-go/internal/calbot"
	"calbot-go/internal/config"
	"calbot-go/internal/database"
	"calbot-go/internal/secret"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from its default (or overridden) location.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readSecret prompts for a secret without echoing it. When stdin is not a
// terminal (piped input), it falls back to reading one line.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		value, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(value), nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return "", fmt.Errorf("no input")
	}
	return scanner.Text(), nil
}

var rootCmd = &cobra.Command{
	Use:   "calbot",
	Short: "Calendar feed sync and reminder bot",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Secrets:    %s (%s)\n", cfg.Secrets.Type, cfg.Secrets.IdentityPath)
		fmt.Printf("Matrix:     %s\n", cfg.Matrix.HomeserverURL)
		fmt.Printf("Sync:       every %dm, %d parallel, %dd horizon\n",
			cfg.Sync.IntervalMinutes, cfg.Sync.MaxParallel, cfg.Sync.HorizonDays)
		fmt.Printf("Dispatch:   every %dm, %dm grace\n",
			cfg.Dispatch.IntervalMinutes, cfg.Dispatch.GraceMinutes)
		return nil
	},
}

// secrets command
var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage sealed credentials",
}

var secretsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the sealing identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sealer, err := secret.NewSealerFromConfig(cfg.Secrets)
		if err != nil {
			return fmt.Errorf("creating sealer: %w", err)
		}
		if sealer.IsConfigured() {
			fmt.Println("Secrets already initialized.")
			return nil
		}
		if err := sealer.Setup(); err != nil {
			return fmt.Errorf("initializing secrets: %w", err)
		}

		fmt.Printf("Secrets initialized. Identity: %s\n", cfg.Secrets.IdentityPath)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := database.MigrateFromConfig(cfg.Database); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}

		fmt.Println("Database migrated.")
		return nil
	},
}

// calendar command
var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Manage calendar feeds",
}

var calendarAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a calendar feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		url, _ := cmd.Flags().GetString("url")
		user, _ := cmd.Flags().GetString("user")
		basicUser, _ := cmd.Flags().GetString("basic-user")
		oauthAccount, _ := cmd.Flags().GetString("oauth-account")
		interval, _ := cmd.Flags().GetInt64("interval")

		params := calbot.AddCalendarParams{
			UserID:              user,
			Name:                name,
			URL:                 url,
			BasicAuthUser:       basicUser,
			OAuthAccountID:      oauthAccount,
			SyncIntervalMinutes: interval,
		}
		if basicUser != "" {
			password, err := readSecret("Feed password: ")
			if err != nil {
				return err
			}
			params.BasicAuthPassword = password
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		calendar, err := a.AddCalendar(cmd.Context(), params)
		if err != nil {
			return fmt.Errorf("adding calendar: %w", err)
		}

		fmt.Printf("Calendar added: %s\n", calendar.ID)
		return nil
	},
}

var calendarListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered calendars",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		calendars, err := a.Calendars(cmd.Context())
		if err != nil {
			return err
		}

		if len(calendars) == 0 {
			fmt.Println("No calendars registered.")
			return nil
		}

		for _, c := range calendars {
			auth := "public"
			switch {
			case c.OAuthAccountID.Valid:
				auth = "oauth:" + c.OAuthAccountID.String
			case c.BasicAuthUser.Valid:
				auth = "basic:" + c.BasicAuthUser.String
			}
			interval := "default"
			if c.SyncIntervalMinutes.Valid {
				interval = fmt.Sprintf("%dm", c.SyncIntervalMinutes.Int64)
			}
			fmt.Printf("%s  %-20s  %-8s  %-24s  %s\n", c.ID, c.Name, interval, auth, c.URL)
		}
		return nil
	},
}

// oauth command
var oauthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "Manage OAuth accounts",
}

var oauthAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Link an OAuth token pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		expiresRaw, _ := cmd.Flags().GetString("expires-at")

		var expiresAt time.Time
		if expiresRaw != "" {
			var err error
			expiresAt, err = time.Parse(time.RFC3339, expiresRaw)
			if err != nil {
				return fmt.Errorf("parsing --expires-at: %w", err)
			}
		}

		accessToken, err := readSecret("Access token (blank to refresh on first sync): ")
		if err != nil {
			return err
		}
		refreshToken, err := readSecret("Refresh token: ")
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.AddOAuthAccount(cmd.Context(), calbot.AddOAuthAccountParams{
			UserID:       user,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiresAt,
		})
		if err != nil {
			return fmt.Errorf("adding oauth account: %w", err)
		}

		fmt.Printf("OAuth account added: %s\n", account.ID)
		return nil
	},
}

// reminder command
var reminderCmd = &cobra.Command{
	Use:   "reminder",
	Short: "Manage reminders",
}

var reminderAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a reminder for an event",
	RunE: func(cmd *cobra.Command, args []string) error {
		calendarID, _ := cmd.Flags().GetString("calendar")
		eventID, _ := cmd.Flags().GetString("event")
		user, _ := cmd.Flags().GetString("user")
		room, _ := cmd.Flags().GetString("room")
		minutes, _ := cmd.Flags().GetInt64("minutes")
		template, _ := cmd.Flags().GetString("template")
		attendeeEditable, _ := cmd.Flags().GetBool("attendee-editable")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		reminder, err := a.AddReminder(cmd.Context(), calbot.AddReminderParams{
			CalendarID:       calendarID,
			EventID:          eventID,
			UserID:           user,
			RoomID:           room,
			MinutesBefore:    minutes,
			Template:         template,
			AttendeeEditable: attendeeEditable,
		})
		if err != nil {
			return fmt.Errorf("adding reminder: %w", err)
		}

		fmt.Printf("Reminder added: %s\n", reminder.ID)
		return nil
	},
}

var reminderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		calendarID, _ := cmd.Flags().GetString("calendar")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		reminders, err := a.Reminders(cmd.Context(), calendarID)
		if err != nil {
			return err
		}

		if len(reminders) == 0 {
			fmt.Println("No reminders registered.")
			return nil
		}

		for _, r := range reminders {
			template := "default"
			if r.Template.Valid {
				template = "custom"
			}
			fmt.Printf("%s  %-12s  %-24s  %-20s  %3dm before  %s\n",
				r.ID, r.CalendarID, r.EventID, r.RoomID, r.MinutesBefore, template)
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync calendar feeds now",
	RunE: func(cmd *cobra.Command, args []string) error {
		calendarID, _ := cmd.Flags().GetString("calendar")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if calendarID != "" {
			if err := a.SyncCalendar(cmd.Context(), calendarID); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
		} else {
			if err := a.SyncAll(cmd.Context()); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
		}

		fmt.Println("Sync complete.")
		return nil
	},
}

// dispatch command
var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send due reminders now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DispatchDue(cmd.Context()); err != nil {
			return fmt.Errorf("dispatch failed: %w", err)
		}

		fmt.Println("Dispatch complete.")
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync and dispatch scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Running scheduler. Press Ctrl-C to stop.")
		return a.Run(ctx)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt64("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt.Valid {
				d := run.FinishedAt.Time.Sub(run.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			line := fmt.Sprintf("#%d  %-12s  %s  %-8s  %s  +%d ~%d -%d",
				run.ID,
				run.CalendarID,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				duration,
				run.EventsInserted,
				run.EventsUpdated,
				run.EventsDeleted,
			)
			if run.Error != "" {
				line += "  " + run.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// secrets subcommands
	secretsCmd.AddCommand(secretsInitCmd)

	// calendar subcommands
	calendarCmd.AddCommand(calendarAddCmd)
	calendarCmd.AddCommand(calendarListCmd)
	calendarAddCmd.Flags().String("name", "", "Calendar name")
	calendarAddCmd.Flags().String("url", "", "Feed URL")
	calendarAddCmd.Flags().String("user", "admin", "Owning user ID")
	calendarAddCmd.Flags().String("basic-user", "", "Basic auth username (password is prompted)")
	calendarAddCmd.Flags().String("oauth-account", "", "OAuth account ID for authorization")
	calendarAddCmd.Flags().Int64("interval", 0, "Per-calendar sync interval in minutes (0 = default)")
	calendarAddCmd.MarkFlagRequired("name")
	calendarAddCmd.MarkFlagRequired("url")

	// oauth subcommands
	oauthCmd.AddCommand(oauthAddCmd)
	oauthAddCmd.Flags().String("user", "admin", "Owning user ID")
	oauthAddCmd.Flags().String("expires-at", "", "Access token expiry (RFC 3339, blank = expired)")

	// reminder subcommands
	reminderCmd.AddCommand(reminderAddCmd)
	reminderCmd.AddCommand(reminderListCmd)
	reminderAddCmd.Flags().String("calendar", "", "Calendar ID")
	reminderAddCmd.Flags().String("event", "", "Event ID from the feed")
	reminderAddCmd.Flags().String("user", "admin", "Owning user ID")
	reminderAddCmd.Flags().String("room", "", "Room to deliver the reminder to")
	reminderAddCmd.Flags().Int64("minutes", 0, "Minutes before the occurrence (0 = at start)")
	reminderAddCmd.Flags().String("template", "", "Custom message template")
	reminderAddCmd.Flags().Bool("attendee-editable", false, "Allow attendees to adjust this reminder")
	reminderAddCmd.MarkFlagRequired("calendar")
	reminderAddCmd.MarkFlagRequired("event")
	reminderAddCmd.MarkFlagRequired("room")
	reminderListCmd.Flags().String("calendar", "", "Only reminders of this calendar")

	// sync flags
	syncCmd.Flags().String("calendar", "", "Sync only this calendar")

	// history flags
	historyCmd.Flags().Int64P("limit", "n", 50, "Maximum number of runs to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(secretsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(oauthCmd)
	rootCmd.AddCommand(reminderCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}
