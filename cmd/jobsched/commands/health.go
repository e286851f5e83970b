package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newHealthCmd builds the `jobsched health` command, a thin wrapper over
// HealthEvaluator.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report scheduler health and recommendations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			report := rt.facade.HealthCheck(cmd.Context())
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
