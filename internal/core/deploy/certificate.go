package deploy

import (
	"context"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// CertificateConfig names the automatic-issuance plugin.
type CertificateConfig struct {
	Plugin       string // name as listed by the control plane, e.g. "letsencrypt"
	PluginSource string // what to install it from
	Email        string // contact address for the issuer, optional
}

// CertificateProvisioner applies TLS with a layered strategy: a custom
// certificate file, else automatic issuance. No step is ever fatal; TLS
// trouble must not undo a deploy that already succeeded.
type CertificateProvisioner struct {
	cp     ports.ControlPlane
	cfg    CertificateConfig
	logger log.Logger
}

func NewCertificateProvisioner(cp ports.ControlPlane, cfg CertificateConfig, logger log.Logger) *CertificateProvisioner {
	return &CertificateProvisioner{cp: cp, cfg: cfg, logger: logger}
}

func (c *CertificateProvisioner) Apply(ctx context.Context, req domain.DeploymentRequest, w *Warnings) domain.CertificateResult {
	app := req.AppName
	if req.Domain == "" {
		level.Info(c.logger).Log("msg", "no domain, skipping certificate", "app", app)
		return domain.CertificateResult{State: domain.CertSkipped}
	}

	if req.CertPath != "" {
		if _, err := os.Stat(req.CertPath); err != nil {
			w.Warn("custom certificate not found, falling back to automatic issuance", "path", req.CertPath)
		} else if err := c.cp.InstallCertificate(ctx, app, req.CertPath); err != nil {
			fix := c.cp.ManualCommand(ports.OpInstallCert, app) + " < " + req.CertPath
			w.Warn("custom certificate rejected, falling back to automatic issuance", "path", req.CertPath, "err", err, "fix", fix)
		} else {
			level.Info(c.logger).Log("msg", "custom certificate applied", "app", app, "path", req.CertPath)
			return domain.CertificateResult{State: domain.CertCustomApplied}
		}
	}

	if !c.pluginInstalled(ctx) {
		level.Info(c.logger).Log("msg", "installing certificate plugin", "plugin", c.cfg.Plugin)
		if err := c.cp.InstallPlugin(ctx, c.cfg.PluginSource); err != nil {
			fix := c.cp.ManualCommand(ports.OpInstallPlugin, c.cfg.PluginSource)
			w.Warn("certificate plugin missing and could not be installed", "plugin", c.cfg.Plugin, "fix", fix)
			return domain.CertificateResult{State: domain.CertPluginMissing, Remediation: fix}
		}
	}

	if err := c.cp.EnableAutoTLS(ctx, app, c.cfg.Email); err != nil {
		fix := c.cp.ManualCommand(ports.OpAddDomain, app, req.Domain) + " && " + c.cp.ManualCommand(ports.OpEnableAutoTLS, app)
		w.Warn("automatic certificate issuance failed", "domain", req.Domain, "err", err, "fix", fix)
		return domain.CertificateResult{State: domain.CertIssuanceFailed, Remediation: fix}
	}
	level.Info(c.logger).Log("msg", "certificate issued", "app", app, "domain", req.Domain)
	return domain.CertificateResult{State: domain.CertAutoIssued}
}

// pluginInstalled treats an unreadable plugin list as a missing plugin, so
// the install attempt decides.
func (c *CertificateProvisioner) pluginInstalled(ctx context.Context) bool {
	plugins, err := c.cp.ListPlugins(ctx)
	if err != nil {
		level.Warn(c.logger).Log("msg", "could not list plugins", "err", err)
		return false
	}
	for _, p := range plugins {
		if p == c.cfg.Plugin {
			return true
		}
	}
	return false
}
