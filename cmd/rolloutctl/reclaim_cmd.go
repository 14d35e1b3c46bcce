package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-rollout/internal/adapters/dokku"
	"github.com/melih/lighthouse-rollout/internal/adapters/runner"
	"github.com/melih/lighthouse-rollout/internal/core/deploy"
)

type reclaimOpts struct {
	*rootOpts
}

func newReclaim(parent *rootOpts) *reclaimOpts {
	return &reclaimOpts{rootOpts: parent}
}

func (opts *reclaimOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Remove dangling images and build cache without deploying",
		RunE:  opts.RunE,
	}
}

func (opts *reclaimOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	run, err := runner.New(cmd.ErrOrStderr(), opts.config.TranscriptDir, opts.logger)
	if err != nil {
		return err
	}
	pruner, err := opts.newRuntime(dokku.NewAdapter(run, opts.config.ControlPlaneBinary, opts.config.ControlPlanePrefix))
	if err != nil {
		return err
	}

	r := deploy.NewReclaimer(pruner, opts.config.PollInterval, cmd.ErrOrStderr(), opts.logger)
	w := deploy.NewWarnings(opts.logger)
	report, ok := r.Await(r.Reclaim(context.Background()), w)
	if !ok {
		return errors.New(w.List()[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d images and %d cache entries, reclaimed %s\n",
		report.ImagesDeleted, report.CachesDeleted, humanize.Bytes(report.SpaceReclaimed))
	return nil
}
