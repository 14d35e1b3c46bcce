package deploy

import (
	"context"
	"path/filepath"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// Orchestrator sequences one deployment attempt: key agent, provisioning,
// image rollout, certificates and reclamation. The first fatal error ends
// the run; warnings never change its status.
type Orchestrator struct {
	Agent       ports.KeyAgent
	Locker      ports.WorkspaceLocker // optional
	Provisioner *Provisioner
	Deployer    *Deployer
	Certs       *CertificateProvisioner
	Reclaimer   *Reclaimer

	WorkspaceRoot string
	SkipReclaim   bool
	Logger        log.Logger
}

// Workspace is the directory an application's source tree lives in.
func (o *Orchestrator) Workspace(app string) string {
	return filepath.Join(o.WorkspaceRoot, app)
}

// Run executes req to a terminal state and returns its report.
func (o *Orchestrator) Run(ctx context.Context, req domain.DeploymentRequest) *domain.RunReport {
	report := NewReport(req)
	o.Execute(ctx, report)
	return report
}

// NewReport allocates the report of a run that has not started yet.
func NewReport(req domain.DeploymentRequest) *domain.RunReport {
	return &domain.RunReport{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
		App:       domain.AppRecord{Name: req.AppName},
	}
}

// Execute runs report.Request, filling in report as it goes.
func (o *Orchestrator) Execute(ctx context.Context, report *domain.RunReport) {
	req := report.Request
	logger := log.With(o.Logger, "run", report.ID, "app", req.AppName)
	w := NewWarnings(logger)

	err := o.run(ctx, req, report, w)
	report.Warnings = w.List()
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Status = domain.RunFailed
		report.Failure = err.Error()
		var cmdErr *ports.CommandError
		if errors.As(err, &cmdErr) {
			report.Transcript = cmdErr.TranscriptPath
		}
		level.Error(logger).Log("msg", "deployment failed", "err", err, "transcript", report.Transcript)
		return
	}
	report.Status = domain.RunPassed
	level.Info(logger).Log("msg", "deployment succeeded", "warnings", len(report.Warnings))
}

func (o *Orchestrator) run(ctx context.Context, req domain.DeploymentRequest, report *domain.RunReport, w *Warnings) error {
	if err := req.Validate(); err != nil {
		return err
	}
	workspace := o.Workspace(req.AppName)

	if o.Locker != nil {
		unlock, err := o.Locker.Lock(workspace)
		if err != nil {
			return err
		}
		defer unlock()
	}

	if req.KeyPath != "" {
		if _, err := o.Agent.EnsureAgentRunning(ctx); err != nil {
			return errors.Wrap(err, "preparing key agent")
		}
		if err := o.Agent.LoadKey(ctx, req.KeyPath); err != nil {
			return errors.Wrap(err, "loading deployment key")
		}
	} else {
		level.Info(o.Logger).Log("msg", "no deployment key configured, skipping key agent", "app", req.AppName)
	}

	app, err := o.Provisioner.EnsureApp(ctx, req, workspace, w)
	report.App = app
	if err != nil {
		return errors.Wrap(err, "provisioning application")
	}

	outcome, err := o.Deployer.Deploy(ctx, req, workspace)
	report.Outcome = &outcome
	if err != nil {
		return errors.Wrap(err, "deploying image")
	}
	report.App.Running = true
	report.App.Containers = outcome.Containers

	cert := o.Certs.Apply(ctx, req, w)
	report.Certificate = &cert

	if o.SkipReclaim {
		return nil
	}
	if reclaimed, ok := o.Reclaimer.Await(o.Reclaimer.Reclaim(ctx), w); ok {
		report.Reclaim = &reclaimed
	}
	return nil
}
