package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
)

type deployOpts struct {
	*rootOpts
	json bool
}

func newDeploy(parent *rootOpts) *deployOpts {
	return &deployOpts{rootOpts: parent}
}

func (opts *deployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run one deployment of the configured application",
		Example: makeExample(
			"rolloutctl deploy --app orders-api --repo git@github.com:example/orders-api.git --domain orders.example.com",
			"rolloutctl deploy --app orders-api --image registry.example.com/orders-api --tag v2 --skip-reclaim",
		),
		RunE: opts.RunE,
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the run report as JSON")
	return cmd
}

func (opts *deployOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.config.Timeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	if opts.json {
		out = cmd.ErrOrStderr()
	}
	orch, _, err := opts.newOrchestrator(out, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	report := orch.Run(ctx, opts.config.Request)

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if !report.Passed() {
		fmt.Fprintf(cmd.ErrOrStderr(), "deployment failed: %s\n", report.Failure)
		if report.Transcript != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "transcript: %s\n", report.Transcript)
		}
		return &runFailedError{report: report}
	}
	return nil
}

func printReport(w io.Writer, r *domain.RunReport) {
	out := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(out, "RUN\t%s\n", r.ID)
	fmt.Fprintf(out, "APP\t%s\n", r.App.Name)
	fmt.Fprintf(out, "STATUS\t%s\n", r.Status)
	if r.Outcome != nil {
		fmt.Fprintf(out, "RESULT\t%s\n", r.Outcome.Result)
		fmt.Fprintf(out, "IMAGE\t%s\n", r.Outcome.Image)
		if r.Outcome.Commit != "" {
			fmt.Fprintf(out, "COMMIT\t%s\n", r.Outcome.Commit)
		}
	}
	for _, c := range r.App.Containers {
		fmt.Fprintf(out, "CONTAINER\t%s\t%s\n", c.ID, c.Name)
	}
	if r.Certificate != nil {
		fmt.Fprintf(out, "CERTIFICATE\t%s\n", r.Certificate.State)
		if r.Certificate.Remediation != "" {
			fmt.Fprintf(out, "FIX\t%s\n", r.Certificate.Remediation)
		}
	}
	if r.Reclaim != nil {
		fmt.Fprintf(out, "RECLAIMED\t%s\n", humanize.Bytes(r.Reclaim.SpaceReclaimed))
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(out, "WARNING\t%s\n", warning)
	}
	fmt.Fprintf(out, "DURATION\t%s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	out.Flush()
}
