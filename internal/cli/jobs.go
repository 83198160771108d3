package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vidgen/internal/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the local render queue",
	Long: `Submit manifests to the render queue and inspect their progress.

Queued jobs are rendered by "vidgen serve". Only one job per project may be
queued or running at a time.

Examples:
  vidgen jobs submit project.toml
  vidgen jobs list --limit 10
  vidgen jobs status 4f0c2a8e-...`,
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit [manifest.toml]",
	Short: "Queue a manifest for rendering",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsSubmit,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsSubmitCmd, jobsListCmd, jobsStatusCmd)

	jobsListCmd.Flags().Int("limit", 20, "Maximum number of jobs to show")
}

func openStore() (*jobs.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return jobs.Open(cfg.Jobs.Database)
}

func runJobsSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// submission never renders, so the pool needs no renderer
	pool := jobs.NewPool(store, nil, jobs.PoolOptions{}, logger)
	job, err := pool.Submit(ctx, args[0])
	if errors.Is(err, jobs.ErrProjectBusy) {
		return fmt.Errorf("%w; check it with \"vidgen jobs list\"", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Queued job %s for project %s\n", job.ID, job.ProjectID)
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No jobs.")
		return nil
	}
	fmt.Println(renderTable(
		[]string{"ID", "Project", "Status", "Stage", "Progress", "Updated"},
		jobRows(list),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", args[0])
	}

	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Project:  %s\n", job.ProjectID)
	fmt.Printf("Manifest: %s\n", job.ManifestPath)
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Stage:    %s (%d%%)\n", job.Stage, job.Progress)
	if job.VideoPath != "" {
		fmt.Printf("Video:    %s\n", job.VideoPath)
	}
	if job.CaptionsPath != "" {
		fmt.Printf("Captions: %s\n", job.CaptionsPath)
	}
	if job.Error != "" {
		fmt.Printf("Error:    %s\n", job.Error)
	}
	return nil
}

func jobRows(list []*jobs.Job) [][]string {
	rows := make([][]string, 0, len(list))
	for _, j := range list {
		rows = append(rows, []string{
			j.ID,
			j.ProjectID,
			string(j.Status),
			j.Stage,
			strconv.Itoa(j.Progress) + "%",
			j.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}
