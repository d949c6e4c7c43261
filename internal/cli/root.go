// Package cli wires the dealgrip terminal UI together and exposes it as a
// cobra command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dealgrip/internal/api"
	"dealgrip/internal/cache"
	"dealgrip/internal/config"
	"dealgrip/internal/coordinator"
	"dealgrip/internal/eventbus"
	"dealgrip/internal/metrics"
	"dealgrip/internal/notify"
	"dealgrip/internal/ui"
)

const eventBuffer = 100

// NewRootCmd creates the dealgrip command. Flags can also be set through
// DEALGRIP_* environment variables, e.g. DEALGRIP_API_URL.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DEALGRIP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "dealgrip",
		Short:        "Search, browse and favorite deals from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (default "+config.DefaultPath()+")")
	flags.String("api-url", "", "Deals API base URL, overrides the config file")
	flags.String("token", "", "Deals API bearer token, overrides the config file")
	flags.String("log-file", "dealgrip.log", "Write logs to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool("debug", false, "Enable debug logging")
	if err := v.BindPFlags(flags); err != nil {
		slog.Error("Error binding flags", "error", err)
	}

	cmd.AddCommand(newConfigCmd(v))
	return cmd
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.NewConfigServiceWithPath(v.GetString("config"), nil).Path())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cs := config.NewConfigServiceWithPath(v.GetString("config"), nil)
			if _, err := os.Stat(cs.Path()); err == nil {
				return fmt.Errorf("config file already exists: %s", cs.Path())
			}
			cfg := config.DefaultConfig()
			if err := applyOverrides(cfg, v); err != nil {
				return err
			}
			if err := cs.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cs.Path())
			return nil
		},
	})

	return configCmd
}

// applyOverrides copies flag and environment values over the loaded config
func applyOverrides(cfg *config.Config, v *viper.Viper) error {
	if u := v.GetString("api-url"); u != "" {
		cfg.API.BaseURL = u
	}
	if t := v.GetString("token"); t != "" {
		cfg.API.Token = t
	}
	if v.GetBool("debug") {
		cfg.LogLevel = "debug"
	}
	return cfg.Validate()
}

func parseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func run(ctx context.Context, v *viper.Viper) error {
	// The terminal belongs to the UI, so logs go to a file
	logFile, err := os.OpenFile(v.GetString("log-file"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("could not open log file: %w", err)
	}
	defer logFile.Close()

	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	bus := eventbus.NewWithLogger(logger)
	defer bus.Close()

	configSvc := config.NewConfigServiceWithPath(v.GetString("config"), bus)
	cfg, err := configSvc.Load()
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, v); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	level.Set(parseLevel(cfg.LogLevel))
	logger.Info("starting dealgrip", "config", configSvc.Path(), "api", cfg.API.BaseURL)

	store, err := cache.New(cache.Options{
		Capacity:   cfg.Cache.Capacity,
		StaleAfter: cfg.Cache.StaleAfter.Std(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}

	client, err := api.NewClient(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		Timeout:    cfg.API.Timeout.Std(),
		MaxRetries: cfg.API.MaxRetries,
		PageSize:   cfg.Search.PageSize,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	if addr := v.GetString("metrics-addr"); addr != "" {
		stop := serveMetrics(addr, recorder, logger)
		defer stop()
	}

	coord, err := coordinator.New(coordinator.Config{
		SearchDelay:    cfg.Search.Delay.Std(),
		BrowseDelay:    cfg.Search.QuickDelay.Std(),
		RateLimit:      cfg.Search.RateLimit.Std(),
		MinQueryLength: cfg.Search.MinQueryLength,
	}, coordinator.Deps{
		Fetcher:  client,
		Mutator:  client,
		Notifier: notify.NewBusNotifier(bus),
		Deals:    client,
		Cache:    store,
		Bus:      bus,
		Logger:   logger,
		Metrics:  recorder,
	})
	if err != nil {
		return err
	}
	defer coord.Close()

	model := ui.NewModel(coord, cfg, logger)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	model.SetProgram(p)

	stopForwarding := forward(coord, bus, p, logger)
	defer stopForwarding()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

// sender is the part of tea.Program the forwarders use
type sender interface {
	Send(msg tea.Msg)
}

type snapshotSource interface {
	Subscribe(fn func(coordinator.Snapshot)) func()
}

// forward delivers coordinator snapshots and bus events to the program.
// Subscribers must not block, so snapshots are coalesced to the latest one
// and events go through a bounded channel.
func forward(coord snapshotSource, bus eventbus.EventBus, p sender, logger *slog.Logger) func() {
	states := make(chan coordinator.Snapshot, 1)
	events := make(chan eventbus.DomainEvent, eventBuffer)
	done := make(chan struct{})

	unsubscribeState := coord.Subscribe(func(s coordinator.Snapshot) {
		select {
		case <-states:
		default:
		}
		select {
		case states <- s:
		default:
		}
	})

	var unsubscribers []func()
	for _, t := range []eventbus.EventType{
		eventbus.EventNotification,
		eventbus.EventFavoriteChanged,
		eventbus.EventPageFailed,
	} {
		unsubscribers = append(unsubscribers, bus.Subscribe(t, func(e eventbus.DomainEvent) {
			select {
			case events <- e:
			default:
				logger.Warn("event channel full, dropping event", "type", e.Type())
			}
		}))
	}

	go func() {
		for {
			select {
			case s := <-states:
				p.Send(ui.StateMsg{Snapshot: s})
			case e := <-events:
				p.Send(ui.EventMsg{Event: e})
			case <-done:
				return
			}
		}
	}()

	return func() {
		unsubscribeState()
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
		close(done)
	}
}

// serveMetrics exposes the recorder on addr until the returned func is called
func serveMetrics(addr string, recorder *metrics.Recorder, logger *slog.Logger) func() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(recorder.Handler()))

	go func() {
		logger.Info("serving metrics", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
}
