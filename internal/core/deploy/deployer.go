package deploy

import (
	"context"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// State is a state of the image deployment machine.
type State string

const (
	StateBuilding          State = "building"
	StatePublishing        State = "publishing"
	StateTriggering        State = "triggering"
	StateClassifyingResult State = "classifying_result"
	StateRebuilding        State = "rebuilding"
	StateVerifyingRunning  State = "verifying_running"
	StateSucceeded         State = "succeeded"
	StateFailed            State = "failed"
)

// ErrNotRunning means the control plane reported a successful deploy but no
// container of the application is running.
var ErrNotRunning = errors.New("no running container found for application")

// DeployerConfig holds the image naming and classification settings.
type DeployerConfig struct {
	// Registry the image is published to. Empty skips publishing; the
	// control plane then has to share the build host's image store.
	Registry       string
	NoChangeMarker string
}

// Deployer builds, publishes and rolls out an image, then verifies it runs.
type Deployer struct {
	cp         ports.ControlPlane
	builder    ports.BuilderService
	source     ports.SourceSyncer
	containers ports.ContainerService
	cfg        DeployerConfig
	logger     log.Logger
}

func NewDeployer(cp ports.ControlPlane, builder ports.BuilderService, source ports.SourceSyncer, containers ports.ContainerService, cfg DeployerConfig, logger log.Logger) *Deployer {
	return &Deployer{cp: cp, builder: builder, source: source, containers: containers, cfg: cfg, logger: logger}
}

// ImageRef is the reference the run's image is built and deployed as.
func (d *Deployer) ImageRef(req domain.DeploymentRequest) string {
	repo := "dokku/" + req.AppName
	if d.cfg.Registry != "" {
		repo = d.cfg.Registry + "/" + req.AppName
	}
	return repo + ":" + req.Tag()
}

// deployRun is the mutable state of one pass through the machine.
type deployRun struct {
	req       domain.DeploymentRequest
	workspace string
	outcome   domain.DeployOutcome
	trigger   *ports.CommandResult
	rebuilt   bool
	err       error
}

func (r *deployRun) fail(err error) State {
	r.err = err
	return StateFailed
}

// Deploy drives the machine from Building to a terminal state. The only
// automatic remediation is one no-change -> rebuild transition.
func (d *Deployer) Deploy(ctx context.Context, req domain.DeploymentRequest, workspace string) (domain.DeployOutcome, error) {
	run := &deployRun{
		req:       req,
		workspace: workspace,
		outcome:   domain.DeployOutcome{Image: d.ImageRef(req)},
	}

	state := StateBuilding
	for state != StateSucceeded && state != StateFailed {
		next := d.step(ctx, run, state)
		level.Debug(d.logger).Log("msg", "transition", "app", req.AppName, "from", state, "to", next)
		state = next
	}

	if state == StateFailed {
		run.outcome.Result = domain.DeployFailed
		level.Error(d.logger).Log("msg", "deploy failed", "app", req.AppName, "err", run.err)
		return run.outcome, run.err
	}
	level.Info(d.logger).Log("msg", "deploy succeeded", "app", req.AppName, "result", run.outcome.Result, "image", run.outcome.Image)
	return run.outcome, nil
}

func (d *Deployer) step(ctx context.Context, r *deployRun, s State) State {
	app := r.req.AppName
	switch s {
	case StateBuilding:
		if err := d.build(ctx, r); err != nil {
			return r.fail(err)
		}
		return StatePublishing

	case StatePublishing:
		if d.cfg.Registry == "" {
			level.Info(d.logger).Log("msg", "no registry configured, skipping publish", "image", r.outcome.Image)
			return StateTriggering
		}
		if err := d.builder.PushImage(ctx, r.outcome.Image); err != nil {
			return r.fail(errors.Wrap(err, "publishing image"))
		}
		return StateTriggering

	case StateTriggering:
		res, err := d.cp.DeployFromImage(ctx, app, r.outcome.Image)
		if err != nil {
			return r.fail(errors.Wrap(err, "triggering deploy"))
		}
		r.trigger = res
		r.outcome.Output = res.Output
		return StateClassifyingResult

	case StateClassifyingResult:
		result := ClassifyTrigger(r.trigger.Output, r.trigger.ExitCode, d.cfg.NoChangeMarker)
		level.Info(d.logger).Log("msg", "deploy trigger classified", "app", app, "result", result, "exit", r.trigger.ExitCode)
		switch result {
		case TriggerNoChange:
			return StateRebuilding
		case TriggerFailed:
			return r.fail(errors.Wrap(r.trigger.Err(), "deploy trigger failed"))
		}
		r.outcome.Result = domain.Deployed
		return StateVerifyingRunning

	case StateRebuilding:
		if r.rebuilt {
			return r.fail(errors.New("rebuild already attempted in this run"))
		}
		r.rebuilt = true
		if err := d.cp.Rebuild(ctx, app); err != nil {
			return r.fail(errors.Wrap(err, "rebuilding unchanged release"))
		}
		r.outcome.Result = domain.NoChangeRebuilt
		return StateVerifyingRunning

	case StateVerifyingRunning:
		running, err := d.containers.RunningContainers(ctx, app)
		if err != nil {
			return r.fail(errors.Wrap(err, "verifying running containers"))
		}
		if len(running) == 0 {
			return r.fail(errors.Wrap(ErrNotRunning, d.describe(ctx, app)))
		}
		r.outcome.Containers = running
		return StateSucceeded
	}
	return r.fail(errors.Errorf("unknown deploy state %q", s))
}

// describe names app together with the state of whatever containers it has,
// e.g. "orders-api (orders-api.web.1 exited)".
func (d *Deployer) describe(ctx context.Context, app string) string {
	all, err := d.containers.ListContainers(ctx, app)
	if err != nil || len(all) == 0 {
		return app + " (no containers)"
	}
	states := make([]string, 0, len(all))
	for _, c := range all {
		states = append(states, c.Name+" "+c.State)
	}
	return app + " (" + strings.Join(states, ", ") + ")"
}

// build produces the run's image, from source or from a pre-built reference.
// Builds are never retried.
func (d *Deployer) build(ctx context.Context, r *deployRun) error {
	req := r.req
	if req.FromSource() {
		commit, err := d.source.Sync(ctx, req.RepoURL, req.Branch, r.workspace)
		if err != nil {
			return errors.Wrap(err, "syncing source")
		}
		r.outcome.Commit = commit
		level.Info(d.logger).Log("msg", "source synced", "app", req.AppName, "branch", req.Branch, "commit", commit)

		id, err := d.builder.BuildImage(ctx, r.workspace, req.Dockerfile, r.outcome.Image)
		if err != nil {
			return errors.Wrap(err, "building image")
		}
		level.Info(d.logger).Log("msg", "image built", "image", r.outcome.Image, "id", id)
		return nil
	}

	// Mutable tags are always refreshed; a local copy is only used when the
	// reference cannot be pulled.
	pullErr := d.builder.PullImage(ctx, req.Image)
	if err := d.builder.TagImage(ctx, req.Image, r.outcome.Image); err != nil {
		if pullErr != nil {
			return errors.Wrap(pullErr, "fetching pre-built image")
		}
		return errors.Wrap(err, "tagging pre-built image")
	}
	if pullErr != nil {
		level.Warn(d.logger).Log("msg", "pull failed, deploying local copy", "image", req.Image, "err", pullErr)
	}
	return nil
}
