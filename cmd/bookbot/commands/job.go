package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dfeldman/bookbot-sub000/errors"
	"github.com/dfeldman/bookbot-sub000/job"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Submit and inspect jobs",
}

var (
	jobSubmitBook  string
	jobSubmitProps string
	jobLsState     string
	jobLsLimit     int
	jobLogsLimit   int
)

var jobSubmitCmd = &cobra.Command{
	Use:   "submit <job-type>",
	Short: "Submit a job for background processing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		var props job.Props
		if jobSubmitProps != "" {
			if err := json.Unmarshal([]byte(jobSubmitProps), &props); err != nil {
				return errors.Wrap(errors.ErrInvalidRequest, "props must be a JSON object")
			}
		}

		j, err := job.NewStore(database).Submit(jobSubmitBook, args[0], props)
		if err != nil {
			return err
		}

		pterm.Success.Printfln("Submitted %s job %s", j.Type, j.ID)
		return nil
	},
}

var jobLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		var state *job.State
		if jobLsState != "" {
			if !job.IsValidState(jobLsState) {
				return errors.Wrapf(errors.ErrInvalidRequest, "unknown state %q", jobLsState)
			}
			s := job.State(jobLsState)
			state = &s
		}

		jobsList, err := job.NewStore(database).ListJobs(state, jobLsLimit)
		if err != nil {
			return err
		}
		if len(jobsList) == 0 {
			pterm.Info.Println("No jobs found")
			return nil
		}

		rows := pterm.TableData{{"ID", "TYPE", "BOOK", "STATE", "CREATED", "DURATION"}}
		for _, j := range jobsList {
			rows = append(rows, []string{
				shortID(j.ID),
				j.Type,
				shortID(j.BookID),
				string(j.State),
				j.CreatedAt.Format("2006-01-02 15:04:05"),
				formatDuration(j.Duration()),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's full record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		j, err := job.NewStore(database).GetJob(args[0])
		if err != nil {
			return err
		}

		rows := pterm.TableData{
			{"ID", j.ID},
			{"Type", j.Type},
			{"Book", j.BookID},
			{"State", string(j.State)},
			{"Created", j.CreatedAt.Format(time.RFC3339)},
		}
		if j.StartedAt != nil {
			rows = append(rows, []string{"Started", j.StartedAt.Format(time.RFC3339)})
		}
		if j.CompletedAt != nil {
			rows = append(rows, []string{"Completed", j.CompletedAt.Format(time.RFC3339)})
			rows = append(rows, []string{"Duration", formatDuration(j.Duration())})
		}
		if j.ErrorMessage != "" {
			rows = append(rows, []string{"Error", j.ErrorMessage})
		}
		if cost := j.Props.Float("cost"); cost > 0 {
			rows = append(rows, []string{"Cost", fmt.Sprintf("$%.4f", cost)})
		}
		return pterm.DefaultTable.WithData(rows).Render()
	},
}

var jobLogsCmd = &cobra.Command{
	Use:   "logs <job-id>",
	Short: "Show a job's log trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		logs, err := job.NewStore(database).ListLogsForJob(args[0], jobLogsLimit)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			pterm.Info.Println("No log entries")
			return nil
		}

		for _, l := range logs {
			fmt.Printf("%s [%s] %s\n",
				l.CreatedAt.Format("15:04:05"),
				l.Level,
				l.Entry,
			)
		}
		return nil
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request cancellation of a waiting or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		store := job.NewStore(database)
		ok, err := store.Cancel(args[0])
		if err != nil {
			return err
		}
		if !ok {
			j, err := store.GetJob(args[0])
			if err != nil {
				return err
			}
			pterm.Warning.Printfln("Job is already %s; nothing to cancel", j.State)
			return nil
		}

		pterm.Success.Printfln("Cancellation requested for job %s", args[0])
		pterm.Info.Println("A running job stops at its next cancellation check")
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func init() {
	jobSubmitCmd.Flags().StringVar(&jobSubmitBook, "book", "", "book id the job operates on")
	jobSubmitCmd.Flags().StringVar(&jobSubmitProps, "props", "", "job properties as a JSON object")
	jobLsCmd.Flags().StringVar(&jobLsState, "state", "", "filter by state (waiting, running, completed, failed, error, cancelled)")
	jobLsCmd.Flags().IntVar(&jobLsLimit, "limit", 50, "maximum jobs to list")
	jobLogsCmd.Flags().IntVar(&jobLogsLimit, "limit", 200, "maximum log entries to show")

	jobCmd.AddCommand(jobSubmitCmd, jobLsCmd, jobStatusCmd, jobLogsCmd, jobCancelCmd)
	rootCmd.AddCommand(jobCmd)
}
