// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/datafy/datafy/internal/bounded"

	"github.com/spf13/cobra"
)

// newInternalCommand groups hidden subcommands used for inter-process
// communication.
func newInternalCommand(app *App) *cobra.Command {
	internalCmd := &cobra.Command{
		Use:    "internal",
		Short:  "Internal commands (not for direct use)",
		Hidden: true,
	}

	internalCmd.AddCommand(&cobra.Command{
		Use:   "fetch-worker",
		Short: "Run one fetch read from stdin and write the outcome to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			logger := app.logger(loaded.Config)
			return bounded.ServeWorker(cmd.Context(), app.stdin, app.stdout, func(scratchDir string) (bounded.Runner, error) {
				return newPipeline(loaded.Config, logger, scratchDir), nil
			})
		},
	})

	return internalCmd
}
