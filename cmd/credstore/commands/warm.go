package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func NewWarmCommand(app *App) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "warm [namespace]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Pre-populate the cache from list-capable providers",
		Long: `Enumerate every provider that supports listing and fetch each secret
once, so a following process start hits a warm cache. An optional namespace
argument limits warming to that namespace.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := ""
			if len(args) == 1 {
				namespace = args[0]
			}
			svc, _, err := app.service()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			warmed := svc.Warm(ctx, namespace)
			app.Logger.Info("Warmed %d entries", warmed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall warm timeout")
	return cmd
}
