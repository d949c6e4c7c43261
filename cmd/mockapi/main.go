// Package main runs the mock deals marketplace API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dealgrip/internal/mockapi"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DEALGRIP_MOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "mockapi",
		Short:        "Serve a mock deals marketplace API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("address", ":8080", "Address to listen on")
	flags.Uint64("seed", 1, "Seed for the generated catalogue")
	flags.Int("deals", 120, "Number of deals to generate")
	flags.Duration("latency", 150*time.Millisecond, "Delay added to every API response")
	flags.Float64("favorite-failure-rate", 0, "Probability in [0,1] that a favorite update fails")
	flags.String("token", "", "Require this bearer token")
	flags.Bool("debug", false, "Enable debug logging")
	if err := v.BindPFlags(flags); err != nil {
		slog.Error("Error binding flags", "error", err)
	}
	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	level := slog.LevelInfo
	if v.GetBool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	srv := mockapi.New(mockapi.Options{
		Seed:                v.GetUint64("seed"),
		Deals:               v.GetInt("deals"),
		Latency:             v.GetDuration("latency"),
		FavoriteFailureRate: v.GetFloat64("favorite-failure-rate"),
		Token:               v.GetString("token"),
		Logger:              logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(v.GetString("address"))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down mock api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
