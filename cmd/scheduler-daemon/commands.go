package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/printshop/scheduler/internal/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler HTTP daemon and periodic recompute triggers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	server := a.daemonServer()
	printInfo("starting scheduler daemon on %s", a.cfg.Server.ListenAddr)
	return server.Start(ctx)
}

var scheduleJobTableName string

var scheduleCmd = &cobra.Command{
	Use:   "schedule [jobId]",
	Short: "Schedule a single job's remaining stage instances",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleJobTableName, "job-table", "", "override the job's storage table name")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.jobOrch.ScheduleJob(ctx, args[0], scheduleJobTableName)
	if err != nil {
		return err
	}

	if result.Success {
		printSuccess("job %s scheduled, completes %s (%d minutes)", result.JobID,
			result.ScheduledCompletionDate.Format(time.RFC3339), result.TotalMinutes)
	} else {
		errorColor.Printf("job %s scheduled with %d error(s):\n", result.JobID, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Println("  -", e)
		}
	}
	return nil
}

var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Reset capacity and reschedule every active job from scratch",
	RunE:  runRecalc,
}

func runRecalc(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.batch.RecalculateAll(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job ID", "Outcome", "Completion", "Errors"})
	for _, jr := range result.Results {
		outcome := "ok"
		completion := ""
		errCount := 0
		if jr.Err != nil {
			outcome = "failed"
			errCount = 1
		} else if jr.Result != nil {
			if !jr.Result.Success {
				outcome = "failed"
			}
			completion = jr.Result.ScheduledCompletionDate.Format("2006-01-02 15:04")
			errCount = len(jr.Result.Errors)
		}
		table.Append([]string{jr.JobID, outcome, completion, fmt.Sprintf("%d", errCount)})
	}
	table.Render()

	printInfo("recalculated %d jobs: %d successful, %d failed", len(result.Results), result.Successful, result.Failed)
	return nil
}

var (
	reorderDate         string
	reorderStageID      string
	reorderShiftStart   string
	reorderShiftEnd     string
	reorderDayWide      bool
	reorderGroupingType string
)

var reorderCmd = &cobra.Command{
	Use:   "reorder [stageInstanceId...]",
	Short: "Rewrite one stage's queue order for a given date",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReorder,
}

func init() {
	reorderCmd.Flags().StringVar(&reorderDate, "date", "", "target date, YYYY-MM-DD (required)")
	reorderCmd.Flags().StringVar(&reorderStageID, "stage", "", "stage ID the instances belong to (required)")
	reorderCmd.Flags().StringVar(&reorderShiftStart, "shift-start", "", "shift start time, HH:MM (defaults to the stage's working-day start)")
	reorderCmd.Flags().StringVar(&reorderShiftEnd, "shift-end", "", "shift end time, HH:MM (advisory only, not enforced)")
	reorderCmd.Flags().BoolVar(&reorderDayWide, "day-wide", false, "also re-sequence existing slots not named on the command line")
	reorderCmd.Flags().StringVar(&reorderGroupingType, "grouping", string(orchestrator.GroupingByJob), "ordering expansion: job (default) or none")
	reorderCmd.MarkFlagRequired("date")
	reorderCmd.MarkFlagRequired("stage")
}

func runReorder(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	date, err := time.Parse("2006-01-02", reorderDate)
	if err != nil {
		return fmt.Errorf("invalid --date: %w", err)
	}

	var opts orchestrator.ReorderOptions
	if reorderShiftStart != "" {
		start, perr := time.Parse("15:04", reorderShiftStart)
		if perr != nil {
			return fmt.Errorf("invalid --shift-start: %w", perr)
		}
		opts.ShiftStart = start
	}
	if reorderShiftEnd != "" {
		end, perr := time.Parse("15:04", reorderShiftEnd)
		if perr != nil {
			return fmt.Errorf("invalid --shift-end: %w", perr)
		}
		opts.ShiftEnd = end
	}
	opts.DayWideReorder = reorderDayWide
	opts.GroupingType = orchestrator.GroupingType(reorderGroupingType)

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.reorderer.ReorderDay(ctx, reorderStageID, date, args, opts); err != nil {
		return err
	}
	printSuccess("reordered %d stage instances on %s for stage %s", len(args), reorderDate, reorderStageID)
	return nil
}

var tentativeDueDatesCmd = &cobra.Command{
	Use:   "tentative-due-dates",
	Short: "Recompute tentative due dates for jobs awaiting proof approval",
	RunE:  runTentativeDueDates,
}

func runTentativeDueDates(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.tentative.RecalcTentativeDueDates(ctx, a.cal); err != nil {
		return err
	}
	printSuccess("tentative due dates recomputed")
	return nil
}
