package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"walrus/internal/app"
	"walrus/internal/storage"
	"walrus/internal/timers"
	logx "walrus/pkg/logx"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Kind    string
	In      time.Duration
	At      string
	Payload string

	// Clock overrides "now" (for testing).
	Clock clockwork.Clock
}

func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Store a timer for a running server to fire",
		Long: `Write one timer row into the configured store. A running server finds it
at its next rescan (timers.rescan, 1m by default), so a timer due sooner than
that fires up to one rescan interval late.

Example:
  walrus schedule --in 2h --payload '{"chat":-1001,"author":7,"author_name":"@sam","reminder_content":"deploy"}'
  walrus schedule --kind backup --at 2025-01-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return schedule(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "reminder", "timer kind")
	cmd.Flags().DurationVar(&opts.In, "in", 0, "fire after this long (e.g. 90m)")
	cmd.Flags().StringVar(&opts.At, "at", "", "fire at this RFC 3339 time")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "JSON object stored with the timer")
	cmd.MarkFlagsMutuallyExclusive("in", "at")

	return cmd
}

func schedule(cmd *cobra.Command, opts *ScheduleOptions) error {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()

	expires, err := expiry(opts, now)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(opts.Payload), &payload); err != nil {
		return fmt.Errorf("--payload must be a JSON object: %w", err)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	sc, err := app.StorageConfig(cfg, clock)
	if err != nil {
		return err
	}
	if sc.Driver == "memory" {
		return errors.New("storage.driver is memory; a scheduled timer would not outlive this command")
	}
	tc, err := app.TimersConfig(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logx.NewConsole(cfg.Logging.Level)
	st, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("storage is disabled; nothing to schedule into")
	}
	defer st.Close()

	svc := timers.New(tc, st, nil, log.With(logx.String("comp", "timers")), timers.WithClock(clock))
	ev, err := svc.ScheduleEvent(ctx, opts.Kind, now, expires, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scheduled %s %s at %s\n", ev.Kind, ev.ID, ev.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

func expiry(opts *ScheduleOptions, now time.Time) (time.Time, error) {
	if at := strings.TrimSpace(opts.At); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("--at: %w", err)
		}
		if t.Before(now) {
			return now, nil
		}
		return t, nil
	}
	if opts.In < 0 {
		return time.Time{}, errors.New("--in must not be negative")
	}
	if opts.In == 0 {
		return time.Time{}, errors.New("one of --in or --at is required")
	}
	return now.Add(opts.In), nil
}
