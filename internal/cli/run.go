package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/collabgrid/collabgrid/internal/config"
	"github.com/collabgrid/collabgrid/internal/events"
	"github.com/collabgrid/collabgrid/internal/oracle"
	"github.com/collabgrid/collabgrid/internal/protocol"
	"github.com/collabgrid/collabgrid/internal/runner"
	"github.com/collabgrid/collabgrid/internal/server"
	"github.com/collabgrid/collabgrid/internal/trace"
)

var (
	runArch       string
	runRows       int
	runCols       int
	runIterations int
	runSeed       int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an experiment and print the summary",
	Run:   runExperiment,
}

func init() {
	runCmd.Flags().StringVar(&runArch, "architecture", "", "coordination architecture (centralized, hierarchical-initial, hierarchical-feedback, distributed)")
	runCmd.Flags().IntVar(&runRows, "rows", 0, "grid rows")
	runCmd.Flags().IntVar(&runCols, "cols", 0, "grid columns")
	runCmd.Flags().IntVar(&runIterations, "iterations", 0, "number of iterations")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "placement seed (0 = time-based)")
}

func runExperiment(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	if runArch != "" {
		cfg.Experiment.Architecture = runArch
	}
	if runRows > 0 {
		cfg.Experiment.Rows = runRows
	}
	if runCols > 0 {
		cfg.Experiment.Cols = runCols
	}
	if runIterations > 0 {
		cfg.Experiment.Iterations = runIterations
	}
	if runSeed != 0 {
		cfg.Experiment.Seed = runSeed
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	printHeader("CollabGrid Experiment")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Advisory pre-flight: report backend reachability, never block.
	for _, res := range oracle.ProbeAll(ctx, cfg.Coordinator, cfg.Pool) {
		if res.Connected {
			color.Green("  %-14s reachable (%s)", res.Backend, res.Latency.Truncate(time.Millisecond))
		} else {
			color.Yellow("  %-14s unreachable: %s", res.Backend, res.Error)
		}
	}

	runID := uuid.NewString()
	storePath := cfg.Trace.Path
	if storePath == "" {
		storePath = filepath.Join(os.TempDir(), fmt.Sprintf("collabgrid-%s.db", runID))
	}
	store, err := trace.Open(storePath)
	if err != nil {
		fmt.Printf("Trace store error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.CreateRun(runID, cfg.Experiment.Architecture, cfg.Experiment.Rows, cfg.Experiment.Cols, cfg.Experiment.Iterations); err != nil {
		fmt.Printf("Trace store error: %v\n", err)
		os.Exit(1)
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled && len(cfg.Events.Brokers) > 0 {
		publisher = events.NewPublisher(cfg.Events)
		defer publisher.Close()
	}

	run := &runner.Runner{
		RunID:   runID,
		Cfg:     cfg.Experiment,
		Stepper: &protocol.Stepper{Router: server.BuildRouter(cfg)},
		Store:   store,
		OnStep: func(ev events.StepEvent) {
			if publisher != nil {
				publisher.PublishStep(ctx, ev)
			}
		},
	}

	summary, runErr := run.Run(ctx)
	state := server.StatusFinished
	if runErr != nil {
		state = server.StatusCanceled
	}
	summaryJSON, _ := json.Marshal(summary)
	if err := store.FinishRun(runID, state, string(summaryJSON)); err != nil {
		color.Yellow("trace finish record failed: %v", err)
	}
	printSummary(summary)
	if runErr != nil {
		color.Yellow("run interrupted: %v", runErr)
	}
}

func printHeader(title string) {
	color.Cyan("\n%s\n%s", title, "--------------------------------")
}

func printSummary(s *runner.Summary) {
	printHeader("Summary")
	fmt.Printf("  run id:           %s\n", s.RunID)
	fmt.Printf("  architecture:     %s\n", s.Architecture)
	fmt.Printf("  iterations:       %d\n", s.Iterations)
	if s.SuccessRate >= 0.5 {
		color.Green("  success rate:     %.0f%% (%d/%d)", s.SuccessRate*100, s.Successes, s.Iterations)
	} else {
		color.Red("  success rate:     %.0f%% (%d/%d)", s.SuccessRate*100, s.Successes, s.Iterations)
	}
	fmt.Printf("  avg duration:     %s\n", s.AvgDuration.Truncate(time.Millisecond))
	fmt.Printf("  avg token usage:  %.0f\n", s.AvgTokenEstimate)
	fmt.Printf("  oracle calls:     %d\n", s.TotalOracleCalls)
	for _, r := range s.Results {
		mark := color.GreenString("ok")
		if !r.Success {
			mark = color.RedString(r.Reason)
		}
		fmt.Printf("    iter %-3d %-12s steps=%-3d calls=%-4d tokens=%d\n",
			r.Iteration, mark, r.Steps, r.OracleCalls, r.TokenEstimate)
	}
}
