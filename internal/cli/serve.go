package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vidgen/internal/jobs"
	"github.com/mgpai22/vidgen/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Render queued jobs until interrupted",
	Long: `Start the render workers. Each worker claims the oldest queued job,
takes the project's lock and renders it. A render already in progress is
finished before the process exits.

Use --once to drain the queue and exit instead of polling.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("workers", "n", 0, "Number of render workers (default from config)")
	serveCmd.Flags().Bool("once", false, "Render every queued job, then exit")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	store, err := jobs.Open(cfg.Jobs.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	orch, _, err := pipeline.FromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}

	workers := cfg.Jobs.Workers
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		workers = n
	}
	pool := jobs.NewPool(store, orch, jobs.PoolOptions{
		Workers:      workers,
		LockDir:      cfg.Jobs.LockDir,
		PollInterval: time.Duration(cfg.Jobs.PollIntervalSeconds) * time.Second,
	}, logger)

	recovered, err := pool.Recover(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		logger.Infow("requeued interrupted jobs", "jobs", recovered)
	}

	if once, _ := cmd.Flags().GetBool("once"); once {
		n, err := pool.Drain(ctx)
		logger.Infow("queue drained", "jobs", n)
		return err
	}

	logger.Debugw("serving job queue", "database", store.Path())
	return pool.Run(ctx)
}
