package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// newPresetCmd builds the `jobsched preset` command for the fixed §6
// preset catalogue (daily_2am, weekly_sunday_1am, hourly,
// every_30_minutes, twice_daily).
func newPresetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preset <name> <id>",
		Short: "Create a job (or jobs) from a named preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			jobs, err := rt.facade.CreateFromPreset(cmd.Context(), args[0], args[1], value.Map{})
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Printf("created %s, next fire time %v\n", j.ID, j.NextFireTime)
			}
			return nil
		},
	}
}
