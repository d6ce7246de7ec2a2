package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewProvidersCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their circuit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, def, err := app.service()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			types := make(map[string]string, len(def.Providers))
			for _, p := range def.Providers {
				types[p.Name] = p.Type
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tNAME\tTYPE\tCIRCUIT\tFAILURES")
			for i, st := range svc.Providers() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
					i+1, st.Name, types[st.Name], st.Circuit, st.ConsecutiveFailures)
			}
			return w.Flush()
		},
	}
}
