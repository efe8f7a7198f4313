package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/presence-relay/internal/server"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		host     string
		port     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "presence-relay",
		Short:         "Real-time presence and messaging relay over WebSockets",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.LoadConfig()
			if err != nil {
				return err
			}

			// Flags win over the environment.
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			cfg = cfg.Sanitize()
			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "interface to bind")
	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "INFO", "DEBUG, INFO, WARN or ERROR")
	return cmd
}

// run starts the relay and blocks until a signal or a server failure.
func run(ctx context.Context, cfg server.Config) error {
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, log)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(" presence-relay listening on http://%s ", cfg.Addr())))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("Program stopped cleanly")
	return nil
}
