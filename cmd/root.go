// Package cmd defines the CLI commands for the archivebot executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/app"
	"github.com/JakeFAU/archivebot/internal/config"
	"github.com/JakeFAU/archivebot/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = time.Minute

// App is the application surface commands use.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.Build(ctx, cfg, logger)
}

// appHandle closes the App at most once.
type appHandle struct {
	app  App
	once sync.Once
}

func (h *appHandle) close() {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := h.app.Close(ctx); err != nil {
			h.app.Logger().Warn("application close failed", zap.Error(err))
		}
	})
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "archivebot",
		Short: "IRC bot that runs archival crawl jobs.",
		Long: `archivebot joins IRC channels and accepts archive requests from
voiced users. Each request runs a crawl worker process; progress is
reported back to the requesting user in the channel.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, &appHandle{app: appInstance}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if h, ok := cmd.Context().Value(appKey).(*appHandle); ok {
				h.close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./archivebot.yaml)")
	cmd.AddCommand(newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*appHandle, error) {
	h, ok := ctx.Value(appKey).(*appHandle)
	if !ok || h == nil || h.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return h, nil
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
