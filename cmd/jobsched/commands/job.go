package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/jobsched/pkg/jobsched/api"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// newJobCmd builds the `jobsched job` command for lifecycle operations on
// individual jobs.
func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage individual scheduled jobs",
	}

	cmd.AddCommand(
		newJobListCmd(),
		newJobGetCmd(),
		newJobCreateCronCmd(),
		newJobCreateIntervalCmd(),
		newJobCreateOnceCmd(),
		newJobDeleteCmd(),
		newJobRunNowCmd(),
	)
	return cmd
}

func newJobListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every stored job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			jobs, err := rt.facade.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Printf("%s\t%s\tnext=%v\n", j.ID, j.Name, j.NextFireTime)
			}
			return nil
		},
	}
}

func newJobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one job's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			j, err := rt.facade.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(j, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newJobCreateCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-cron <id>",
		Short: "Create a job on a cron schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			hour, _ := cmd.Flags().GetInt("hour")
			minute, _ := cmd.Flags().GetInt("minute")
			dayOfWeek, _ := cmd.Flags().GetString("day-of-week")
			expr, _ := cmd.Flags().GetString("expression")
			timezone, _ := cmd.Flags().GetString("timezone")

			j, err := rt.facade.CreateCronJob(cmd.Context(), args[0], args[0], api.CronSpec{
				Hour:       hour,
				Minute:     minute,
				DayOfWeek:  dayOfWeek,
				Expression: expr,
				Timezone:   timezone,
			}, value.Map{}, api.JobOptions{})
			if err != nil {
				return err
			}
			fmt.Printf("created %s, next fire time %v\n", j.ID, j.NextFireTime)
			return nil
		},
	}
	cmd.Flags().Int("hour", 2, "hour field (ignored if --expression is set)")
	cmd.Flags().Int("minute", 0, "minute field (ignored if --expression is set)")
	cmd.Flags().String("day-of-week", "*", "day-of-week field (ignored if --expression is set)")
	cmd.Flags().String("expression", "", "raw five-field cron expression, overrides hour/minute/day-of-week")
	cmd.Flags().String("timezone", "UTC", "IANA timezone name")
	return cmd
}

func newJobCreateIntervalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-interval <id>",
		Short: "Create a job on a fixed-period schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			days, _ := cmd.Flags().GetInt("days")
			hours, _ := cmd.Flags().GetInt("hours")
			minutes, _ := cmd.Flags().GetInt("minutes")
			seconds, _ := cmd.Flags().GetInt("seconds")

			j, err := rt.facade.CreateIntervalJob(cmd.Context(), args[0], args[0], api.IntervalSpec{
				Days: days, Hours: hours, Minutes: minutes, Seconds: seconds,
			}, value.Map{}, api.JobOptions{})
			if err != nil {
				return err
			}
			fmt.Printf("created %s, next fire time %v\n", j.ID, j.NextFireTime)
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "period days component")
	cmd.Flags().Int("hours", 0, "period hours component")
	cmd.Flags().Int("minutes", 0, "period minutes component")
	cmd.Flags().Int("seconds", 0, "period seconds component")
	return cmd
}

func newJobCreateOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-once <id> <run-date>",
		Short: "Create a job that fires once at an RFC3339 instant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			runDate, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("parse run date: %w", err)
			}

			j, err := rt.facade.CreateOneTimeJob(cmd.Context(), args[0], args[0], runDate, value.Map{}, api.JobOptions{})
			if err != nil {
				return err
			}
			fmt.Printf("created %s, fires at %v\n", j.ID, j.NextFireTime)
			return nil
		},
	}
	return cmd
}

func newJobDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.facade.DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newJobRunNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-now <id>",
		Short: "Trigger an immediate firing of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.facade.RunNow(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s will fire on the next running scheduler loop\n", args[0])
			return nil
		},
	}
}
