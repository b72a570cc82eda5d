package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dfeldman/bookbot-sub000/ai"
	"github.com/dfeldman/bookbot-sub000/config"
	"github.com/dfeldman/bookbot-sub000/job"
	"github.com/dfeldman/bookbot-sub000/jobs"
	"github.com/dfeldman/bookbot-sub000/logger"
)

var processorCmd = &cobra.Command{
	Use:   "processor",
	Short: "Control the background job processor",
}

var processorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the job processor until interrupted",
	RunE:  runProcessorStart,
}

func runProcessorStart(cmd *cobra.Command, args []string) error {
	log := logger.Named("bookbot")

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	gen := ai.NewClient(cfg.OpenRouter, logger.Named("ai"))

	p := job.NewProcessor(database, gen, job.Config{
		PollInterval:    time.Duration(cfg.Processor.PollIntervalSeconds) * time.Second,
		MaxJobsPerCycle: cfg.Processor.MaxJobsPerCycle,
		RecoveryLimit:   cfg.Processor.RecoveryLimit,
	}, log)
	jobs.RegisterAll(p)

	// Watch the config file so edits are at least visible in the logs;
	// processor tuning applies on the next restart
	if cfgFile != "" {
		if watcher, err := config.NewWatcher(cfgFile); err != nil {
			log.Warnw("Config watcher unavailable", "error", err)
		} else {
			watcher.OnReload(func(updated *config.Config) error {
				log.Infow("Configuration file changed; restart to apply processor settings")
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	p.Start()
	log.Infow("Processor running",
		"database", cfg.Database.Path,
		"job_types", p.Registry().Names(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("Shutting down", "signal", sig.String())

	p.Stop()
	return nil
}

func init() {
	processorCmd.AddCommand(processorStartCmd)
	rootCmd.AddCommand(processorCmd)
}
