package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connects to IRC and serves archive requests until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServeCommand,
	}
	cmd.Flags().String("nick", "", "nick to register with (overrides irc.nick)")
	cmd.Flags().StringSlice("channel", nil, "channel to join, repeatable (overrides irc.channels)")
	cmd.Flags().Int("max-workers", 0, "maximum concurrent worker processes (overrides worker.max_concurrent)")
	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	h, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer h.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run archivebot: %w", err)
	}
	h.app.Logger().Info("serve command finished")
	return nil
}
