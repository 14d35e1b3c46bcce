package main

import (
	"io"

	"github.com/go-kit/log"

	"github.com/melih/lighthouse-rollout/internal/adapters/builder"
	"github.com/melih/lighthouse-rollout/internal/adapters/docker"
	"github.com/melih/lighthouse-rollout/internal/adapters/dokku"
	"github.com/melih/lighthouse-rollout/internal/adapters/gitsource"
	"github.com/melih/lighthouse-rollout/internal/adapters/runner"
	"github.com/melih/lighthouse-rollout/internal/adapters/sshagent"
	"github.com/melih/lighthouse-rollout/internal/adapters/workspace"
	"github.com/melih/lighthouse-rollout/internal/core/deploy"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// runtime is where the application's containers run and are pruned.
type runtime interface {
	ports.ContainerService
	ports.Pruner
}

// newRuntime returns the local Docker daemon, or the control plane itself when
// it runs on another host.
func (opts *rootOpts) newRuntime(cp *dokku.Adapter) (runtime, error) {
	if opts.config.Remote() {
		return cp, nil
	}
	local, err := docker.NewAdapter()
	if err != nil {
		return nil, err
	}
	return local, nil
}

// newOrchestrator connects every adapter to the core. Command output goes to
// out, build and transfer progress to progress.
func (opts *rootOpts) newOrchestrator(out, progress io.Writer) (*deploy.Orchestrator, ports.ContainerService, error) {
	c, logger := opts.config, opts.logger
	component := func(name string) log.Logger {
		return log.With(logger, "component", name)
	}

	run, err := runner.New(out, c.TranscriptDir, component("runner"))
	if err != nil {
		return nil, nil, err
	}
	cp := dokku.NewAdapter(run, c.ControlPlaneBinary, c.ControlPlanePrefix)
	containers, err := opts.newRuntime(cp)
	if err != nil {
		return nil, nil, err
	}
	images, err := builder.NewBuilderAdapter(progress, c.Registry)
	if err != nil {
		return nil, nil, err
	}

	source := gitsource.New(progress, c.SSHUser, component("source"))

	return &deploy.Orchestrator{
		Agent:         sshagent.New(run, c.AgentBinary, c.KeyPassphrase, component("agent")),
		Locker:        workspace.Locker{},
		Provisioner:   deploy.NewProvisioner(cp, c.RollbackOnProvisionFailure, component("provisioner")),
		Deployer:      deploy.NewDeployer(cp, images, source, containers, c.Deployer, component("deployer")),
		Certs:         deploy.NewCertificateProvisioner(cp, c.Certificate, component("certificates")),
		Reclaimer:     deploy.NewReclaimer(containers, c.PollInterval, progress, component("reclaimer")),
		WorkspaceRoot: c.WorkspaceRoot,
		SkipReclaim:   c.SkipReclaim,
		Logger:        logger,
	}, containers, nil
}
