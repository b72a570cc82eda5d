package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dfeldman/bookbot-sub000/book"
	"github.com/dfeldman/bookbot-sub000/job"
	"github.com/dfeldman/bookbot-sub000/jobs"
	"github.com/dfeldman/bookbot-sub000/logger"
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Manage books and their chunks",
}

var (
	bookLsLimit   int
	bookExportOut string
)

var bookCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an empty book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		b := book.NewBook(args[0])
		if err := book.NewStore(database).CreateBook(b); err != nil {
			return err
		}

		pterm.Success.Printfln("Created book %s (%q)", b.ID, b.Title)
		return nil
	},
}

var bookLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List books",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		books, err := book.NewStore(database).ListBooks(bookLsLimit)
		if err != nil {
			return err
		}
		if len(books) == 0 {
			pterm.Info.Println("No books found")
			return nil
		}

		rows := pterm.TableData{{"ID", "TITLE", "LOCKED", "CREATED"}}
		for _, b := range books {
			locked := "-"
			if b.IsLocked {
				locked = shortID(b.LockingJob)
			}
			rows = append(rows, []string{
				shortID(b.ID),
				b.Title,
				locked,
				b.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

var bookChunksCmd = &cobra.Command{
	Use:   "chunks <book-id>",
	Short: "List a book's latest chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		chunks, err := book.NewStore(database).ListLatestChunks(args[0])
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			pterm.Info.Println("No chunks found")
			return nil
		}

		rows := pterm.TableData{{"CHUNK", "TYPE", "VERSION", "TITLE", "WORDS", "LOCKED"}}
		for _, c := range chunks {
			locked := "-"
			if c.IsLocked {
				locked = shortID(c.LockedByJob)
			}
			rows = append(rows, []string{
				c.ChunkID,
				string(c.Type),
				pterm.Sprintf("%d", c.Version),
				c.Title,
				pterm.Sprintf("%d", c.WordCount),
				locked,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

var bookExportCmd = &cobra.Command{
	Use:   "export <book-id>",
	Short: "Export a book's latest chunks as markdown",
	Long: `Export runs through the job system like any other work, but the
command drives a processing cycle itself so the result is immediate.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		p := job.NewProcessor(database, nil, job.Config{
			PollInterval: time.Hour, // single manual cycle
		}, logger.Named("export"))
		jobs.RegisterAll(p)

		props := job.Props{}
		if bookExportOut != "" {
			props["path"] = bookExportOut
		}
		j, err := p.Jobs().Submit(args[0], jobs.TypeExport, props)
		if err != nil {
			return err
		}
		if err := p.RunCycle(); err != nil {
			return err
		}

		done, err := p.Jobs().GetJob(j.ID)
		if err != nil {
			return err
		}
		switch done.State {
		case job.StateCompleted:
			if bookExportOut != "" {
				pterm.Success.Printfln("Exported to %s", bookExportOut)
			} else {
				pterm.Println(done.Props.String("output"))
			}
			return nil
		default:
			pterm.Error.Printfln("Export finished in state %s: %s", done.State, done.ErrorMessage)
			return nil
		}
	},
}

func init() {
	bookLsCmd.Flags().IntVar(&bookLsLimit, "limit", 50, "maximum books to list")
	bookExportCmd.Flags().StringVar(&bookExportOut, "out", "", "write the export to this file instead of stdout")

	bookCmd.AddCommand(bookCreateCmd, bookLsCmd, bookChunksCmd, bookExportCmd)
	rootCmd.AddCommand(bookCmd)
}
