package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	cserrors "github.com/systmms/credstore/internal/errors"
)

func NewDoctorCommand(app *App) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and provider connectivity",
		Long: `Verify the configuration file parses, every provider builds, and each
backend answers its health probe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Logger.Info("Checking credstore configuration...")
			svc, def, err := app.service()
			if err != nil {
				app.Logger.Error("Configuration error: %v", err)
				return err
			}
			defer func() { _ = svc.Close() }()
			app.Logger.Info("Configuration loaded: %d providers", len(def.Providers))

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			failures := svc.CheckHealth(ctx)
			for _, p := range def.Providers {
				if err, ok := failures[p.Name]; ok {
					app.Logger.Error("%s: %v", p.Name, cserrors.BackendError(p.Type, "health check", err))
				} else {
					app.Logger.Info("%s (%s): healthy", p.Name, p.Type)
				}
			}

			if len(failures) > 0 {
				return cserrors.UserError{
					Message:    fmt.Sprintf("%d of %d providers unhealthy", len(failures), len(def.Providers)),
					Suggestion: "Check credentials and network reachability for the failing providers",
				}
			}
			app.Logger.Info("All providers healthy")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall health check timeout")
	return cmd
}
