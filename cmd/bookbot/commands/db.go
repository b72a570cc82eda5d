package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dfeldman/bookbot-sub000/job"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase() // openDatabase migrates
		if err != nil {
			return err
		}
		defer database.Close()

		pterm.Success.Println("Database schema is up to date")
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and job states",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		var books, chunks, logs int
		if err := database.QueryRow("SELECT COUNT(*) FROM books").Scan(&books); err != nil {
			return err
		}
		if err := database.QueryRow("SELECT COUNT(*) FROM chunks WHERE is_deleted = 0").Scan(&chunks); err != nil {
			return err
		}
		if err := database.QueryRow("SELECT COUNT(*) FROM job_logs").Scan(&logs); err != nil {
			return err
		}

		counts, err := job.NewStore(database).CountByState()
		if err != nil {
			return err
		}

		rows := pterm.TableData{
			{"Books", pterm.Sprintf("%d", books)},
			{"Chunks", pterm.Sprintf("%d", chunks)},
			{"Job log entries", pterm.Sprintf("%d", logs)},
		}
		for _, state := range []job.State{
			job.StateWaiting, job.StateRunningRetry, job.StateRunning,
			job.StateCompleted, job.StateFailed, job.StateError, job.StateCancelled,
		} {
			if n := counts[state]; n > 0 {
				rows = append(rows, []string{"Jobs " + string(state), pterm.Sprintf("%d", n)})
			}
		}
		return pterm.DefaultTable.WithData(rows).Render()
	},
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd, dbStatsCmd)
	rootCmd.AddCommand(dbCmd)
}
