package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	cserrors "github.com/systmms/credstore/internal/errors"
	"github.com/systmms/credstore/internal/logging"
	"github.com/systmms/credstore/pkg/credstore"
)

func NewGetCommand(app *App) *cobra.Command {
	var (
		forceRefresh bool
		maxWait      time.Duration
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "get <namespace/key>",
		Short: "Resolve a single secret",
		Long: `Resolve one secret through the configured provider chain and print its
value to stdout. Logs go to stderr, so the output is safe to capture.

Examples:
  # Get a value
  credstore get db/password

  # Bypass the cache
  credstore get db/password --force-refresh

  # Use in scripts
  export DB_PASSWORD=$(credstore get db/password)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := app.service()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ctx := context.Background()
			v, err := svc.ResolveRef(ctx, args[0], credstore.ResolveOptions{
				ForceRefresh: forceRefresh,
				MaxWait:      maxWait,
			})
			if err != nil {
				return cserrors.UserError{
					Message:    fmt.Sprintf("Failed to resolve %s", args[0]),
					Details:    err.Error(),
					Suggestion: "Run 'credstore doctor' to check provider connectivity",
					Err:        err,
				}
			}

			app.Logger.Debug("resolved %s from %s (value: %s)", args[0], v.Provider, logging.Secret(v.Value))

			if jsonOutput {
				out := map[string]interface{}{
					"name":       args[0],
					"value":      v.Value,
					"provider":   v.Provider,
					"fetched_at": v.FetchedAt.Format(time.RFC3339),
				}
				if v.Version != "" {
					out["version"] = v.Version
				}
				if !v.ExpiresAt.IsZero() {
					out["expires_at"] = v.ExpiresAt.Format(time.RFC3339)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Println(v.Value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Bypass the cache and contact the backends")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "Maximum time to wait for a backend fetch")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print value with metadata as JSON")

	return cmd
}
