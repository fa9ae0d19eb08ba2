package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/motorsales/vsms/pkg/queue"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and enqueue background jobs",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depths",
	Args:  cobra.NoArgs,
	RunE: withEnv(true, func(cmd *cobra.Command, _ []string, e *env) error {
		ctx := cmd.Context()
		q := queue.NewQueue(e.rdb.Client, e.log)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "QUEUE\tREADY")
		for _, name := range queue.PriorityOrder {
			n, err := q.Len(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%d\n", name, n)
		}
		delayed, err := q.Delayed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "(delayed)\t%d\n", delayed)
		return tw.Flush()
	}),
}

var jobsDeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "List the most recent dead-lettered jobs",
	Args:  cobra.NoArgs,
	RunE: withEnv(true, func(cmd *cobra.Command, _ []string, e *env) error {
		limit, _ := cmd.Flags().GetInt64("limit")
		jobs, err := queue.NewQueue(e.rdb.Client, e.log).DeadLetters(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return printJobs(cmd.OutOrStdout(), jobs)
	}),
}

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue <job-type> [schema...]",
	Short: "Enqueue a job for the given tenants, or every active tenant",
	Long: `Enqueue a job without waiting for the scheduler.

Example:
  vsmctl jobs enqueue payments.reminder_sweep acme`,
	Args: cobra.MinimumNArgs(1),
	RunE: withEnv(true, func(cmd *cobra.Command, args []string, e *env) error {
		ctx := cmd.Context()
		schemas := args[1:]
		if len(schemas) == 0 {
			var err error
			if schemas, err = e.directory.ActiveSchemas(ctx); err != nil {
				return err
			}
		}
		q := queue.NewQueue(e.rdb.Client, e.log)
		q.SetMaxRetries(e.cfg.Worker.MaxRetries)
		name, _ := cmd.Flags().GetString("queue")
		for _, schema := range schemas {
			job, err := queue.NewJob(args[0], schema, nil)
			if err != nil {
				return err
			}
			job.Queue = name
			if err := q.Enqueue(ctx, job); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s for %s (%s)\n", job.Type, schema, job.ID)
		}
		return nil
	}),
}

func printJobs(w io.Writer, jobs []queue.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTENANT\tATTEMPTS\tCREATED\tLAST ERROR")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", j.ID, j.Type, j.Tenant, j.Attempt, j.CreatedAt.Format(time.RFC3339), j.LastError)
	}
	return tw.Flush()
}

func init() {
	jobsDeadCmd.Flags().Int64("limit", 20, "number of jobs to show")
	jobsEnqueueCmd.Flags().String("queue", queue.QueueLow, "queue to enqueue on")
	jobsCmd.AddCommand(jobsStatsCmd, jobsDeadCmd, jobsEnqueueCmd)
	rootCmd.AddCommand(jobsCmd)
}
