package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/orrn/printpipe/internal/core"
)

const demoPayload = "Hello from PrintPipe!\nThis is backend writing to a file.\n"

type demoOptions struct {
	outputDir   string
	jobName     string
	cancelAfter time.Duration
	timeout     time.Duration
	verbose     bool
}

func newDemoCmd() *cobra.Command {
	opts := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run one job through the pipeline and print its event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := hclog.NewNullLogger()
			if opts.verbose {
				logger = hclog.New(&hclog.LoggerOptions{Name: "demo", Level: hclog.Debug, Output: cmd.ErrOrStderr()})
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "out", "o", "out", "Directory for the printed file")
	cmd.Flags().StringVar(&opts.jobName, "name", "demo-doc", "Job name")
	cmd.Flags().DurationVar(&opts.cancelAfter, "cancel-after", 0, "Request a cancel this long after submitting (0 disables)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Give up waiting for the job after this long")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log scheduler activity to stderr")
	return cmd
}

func runDemo(ctx context.Context, w io.Writer, opts *demoOptions, logger hclog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	bus := core.NewEventBus()
	job := core.NewJob(opts.jobName)
	job.SetEventBus(bus)
	job.SetPayload([]byte(demoPayload))

	sched := core.NewScheduler(
		core.WithBackend(core.NewFileBackend(opts.outputDir, logger.Named("backend"))),
		core.WithLogger(logger.Named("scheduler")),
	)
	sched.Start()
	defer sched.Stop()

	fmt.Fprintf(w, "Submitting job: %s (initial=%s)\n", job.Name(), job.State())
	if !sched.Submit(job) {
		return fmt.Errorf("scheduler refused job %s", job.Name())
	}

	if opts.cancelAfter > 0 {
		select {
		case <-time.After(opts.cancelAfter):
		case <-ctx.Done():
			return ctx.Err()
		}
		fmt.Fprintln(w, "Requesting cancel...")
		job.Cancel()
	}

	if err := waitTerminal(ctx, job, opts.timeout); err != nil {
		return err
	}
	sched.Stop()

	fmt.Fprintf(w, "Final job state: %s\n\n", job.State())

	events := bus.Snapshot()
	fmt.Fprintf(w, "--- Events (%d) ---\n", len(events))
	for _, ev := range events {
		fmt.Fprintf(w, "%s job=%s %s -> %s", ev.Kind, ev.JobName, ev.From, ev.To)
		if ev.Reason != "" {
			fmt.Fprintf(w, " reason=%q", ev.Reason)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func waitTerminal(ctx context.Context, job *core.Job, timeout time.Duration) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.After(timeout)
	for !core.IsTerminal(job.State()) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("job %s still %s after %s", job.Name(), job.State(), timeout)
		case <-ticker.C:
		}
	}
	return nil
}
