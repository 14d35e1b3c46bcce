package deploy

import (
	"context"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/subosito/gotenv"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// Provisioner idempotently ensures the application exists on the control
// plane. An existing application is left untouched.
type Provisioner struct {
	cp       ports.ControlPlane
	rollback bool
	logger   log.Logger
}

// NewProvisioner returns a Provisioner. With rollback set, a failure after
// the application was created destroys it and removes the workspace.
func NewProvisioner(cp ports.ControlPlane, rollback bool, logger log.Logger) *Provisioner {
	return &Provisioner{cp: cp, rollback: rollback, logger: logger}
}

// EnsureApp returns the application record, creating and configuring the
// application when the control plane does not know it.
func (p *Provisioner) EnsureApp(ctx context.Context, req domain.DeploymentRequest, workspace string, w *Warnings) (domain.AppRecord, error) {
	apps, err := p.cp.ListApps(ctx)
	if err != nil {
		return domain.AppRecord{Name: req.AppName}, errors.Wrap(err, "querying applications")
	}
	for _, name := range apps {
		if strings.EqualFold(name, req.AppName) {
			level.Info(p.logger).Log("msg", "application exists, skipping provisioning", "app", name)
			return domain.AppRecord{Name: name, Exists: true}, nil
		}
	}

	if err := p.cp.CreateApp(ctx, req.AppName); err != nil {
		return domain.AppRecord{Name: req.AppName}, errors.Wrap(err, "creating application")
	}
	level.Info(p.logger).Log("msg", "application created", "app", req.AppName)
	rec := domain.AppRecord{Name: req.AppName, Exists: true, Created: true}

	if err := p.configure(ctx, req, &rec, w); err != nil {
		if p.rollback {
			p.rollBack(ctx, req.AppName, workspace)
			rec = domain.AppRecord{Name: req.AppName}
		}
		return rec, err
	}
	return rec, nil
}

func (p *Provisioner) configure(ctx context.Context, req domain.DeploymentRequest, rec *domain.AppRecord, w *Warnings) error {
	if req.Domain == "" {
		w.Warn("no domain configured, bind one manually later", "app", req.AppName)
	} else {
		if err := p.cp.AddDomain(ctx, req.AppName, req.Domain); err != nil {
			return errors.Wrap(err, "binding domain")
		}
		rec.Domain = req.Domain
	}

	if req.Port != "" {
		if err := p.cp.SetPorts(ctx, req.AppName, req.Port); err != nil {
			return errors.Wrap(err, "setting port mapping")
		}
	}

	if req.EnvFile != "" {
		env, err := loadEnvFile(req.EnvFile)
		if err != nil {
			return err
		}
		if err := p.cp.SetConfig(ctx, req.AppName, env); err != nil {
			return errors.Wrap(err, "setting application environment")
		}
		level.Info(p.logger).Log("msg", "environment applied", "app", req.AppName, "vars", len(env))
	}
	return nil
}

// rollBack leaves no half-provisioned state behind. Its own failures are
// only logged so the provisioning error stays the reported one.
func (p *Provisioner) rollBack(ctx context.Context, app, workspace string) {
	level.Warn(p.logger).Log("msg", "rolling back provisioning", "app", app)
	if err := p.cp.DestroyApp(ctx, app); err != nil {
		level.Error(p.logger).Log("msg", "rollback could not destroy application", "app", app, "err", err)
	}
	if workspace == "" {
		return
	}
	if err := os.RemoveAll(workspace); err != nil {
		level.Error(p.logger).Log("msg", "rollback could not remove workspace", "dir", workspace, "err", err)
	}
}

func loadEnvFile(path string) (map[string]string, error) {
	env, err := gotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading env file %s", path)
	}
	return env, nil
}
