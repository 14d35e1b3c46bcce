// Package dokku drives a dokku control plane through its command line,
// either locally or over ssh (Binary "ssh", Prefix ["dokku@host"]).
package dokku

import (
	"bufio"
	"context"
	"encoding/base64"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// Adapter implements ports.ControlPlane using the dokku CLI.
type Adapter struct {
	runner ports.CommandRunner
	binary string
	prefix []string
}

// NewAdapter returns an Adapter invoking binary with prefix before every verb.
func NewAdapter(runner ports.CommandRunner, binary string, prefix []string) *Adapter {
	if binary == "" {
		binary = "dokku"
	}
	return &Adapter{runner: runner, binary: binary, prefix: prefix}
}

func (a *Adapter) command(verb string, args ...string) ports.Command {
	full := append(append([]string{}, a.prefix...), verb)
	return ports.Command{Name: a.binary, Args: append(full, args...)}
}

// run executes a verb and folds a non-zero exit into the error.
func (a *Adapter) run(ctx context.Context, cmd ports.Command) (*ports.CommandResult, error) {
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	return res, res.Err()
}

// ListApps returns the application names known to the control plane.
func (a *Adapter) ListApps(ctx context.Context) ([]string, error) {
	res, err := a.run(ctx, a.command("apps:list"))
	if err != nil {
		return nil, errors.Wrap(err, "listing applications")
	}
	return listing(res.Output), nil
}

func (a *Adapter) CreateApp(ctx context.Context, app string) error {
	_, err := a.run(ctx, a.command("apps:create", app))
	return errors.Wrapf(err, "creating application %s", app)
}

func (a *Adapter) DestroyApp(ctx context.Context, app string) error {
	_, err := a.run(ctx, a.command("apps:destroy", app, "--force"))
	return errors.Wrapf(err, "destroying application %s", app)
}

func (a *Adapter) AddDomain(ctx context.Context, app, domain string) error {
	_, err := a.run(ctx, a.command("domains:add", app, domain))
	return errors.Wrapf(err, "binding domain %s to %s", domain, app)
}

func (a *Adapter) SetPorts(ctx context.Context, app, mapping string) error {
	_, err := a.run(ctx, a.command("ports:set", app, mapping))
	return errors.Wrapf(err, "setting port mapping %s on %s", mapping, app)
}

// SetConfig stores env on the app without restarting it. Values are base64
// encoded so they survive the remote shell when running over ssh.
func (a *Adapter) SetConfig(ctx context.Context, app string, env map[string]string) error {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []string{"--no-restart", "--encoded", app}
	for _, k := range keys {
		args = append(args, k+"="+base64.StdEncoding.EncodeToString([]byte(env[k])))
	}
	_, err := a.run(ctx, a.command("config:set", args...))
	return errors.Wrapf(err, "setting environment on %s", app)
}

// InstallCertificate feeds a certificate tarball (server.crt + server.key)
// to certs:add on stdin.
func (a *Adapter) InstallCertificate(ctx context.Context, app, certPath string) error {
	f, err := os.Open(certPath)
	if err != nil {
		return errors.Wrap(err, "opening certificate")
	}
	defer f.Close()

	cmd := a.command("certs:add", app)
	cmd.Stdin = f
	_, err = a.run(ctx, cmd)
	return errors.Wrapf(err, "installing certificate on %s", app)
}

func (a *Adapter) ListPlugins(ctx context.Context) ([]string, error) {
	res, err := a.run(ctx, a.command("plugin:list"))
	if err != nil {
		return nil, errors.Wrap(err, "listing plugins")
	}
	return listing(res.Output), nil
}

func (a *Adapter) InstallPlugin(ctx context.Context, source string) error {
	_, err := a.run(ctx, a.command("plugin:install", source))
	return errors.Wrapf(err, "installing plugin %s", source)
}

// EnableAutoTLS requests a Let's Encrypt certificate for the app's domains.
func (a *Adapter) EnableAutoTLS(ctx context.Context, app, email string) error {
	if email != "" {
		if _, err := a.run(ctx, a.command("letsencrypt:set", app, "email", email)); err != nil {
			return errors.Wrapf(err, "setting letsencrypt email on %s", app)
		}
	}
	_, err := a.run(ctx, a.command("letsencrypt:enable", app))
	return errors.Wrapf(err, "enabling letsencrypt on %s", app)
}

// DeployFromImage returns the raw result; the caller classifies its output.
func (a *Adapter) DeployFromImage(ctx context.Context, app, image string) (*ports.CommandResult, error) {
	res, err := a.runner.Run(ctx, a.command("git:from-image", app, image))
	return res, errors.Wrapf(err, "deploying %s to %s", image, app)
}

func (a *Adapter) Rebuild(ctx context.Context, app string) error {
	_, err := a.run(ctx, a.command("ps:rebuild", app))
	return errors.Wrapf(err, "rebuilding %s", app)
}

var operationVerbs = map[ports.Operation]string{
	ports.OpAddDomain:     "domains:add",
	ports.OpInstallCert:   "certs:add",
	ports.OpInstallPlugin: "plugin:install",
	ports.OpEnableAutoTLS: "letsencrypt:enable",
}

func (a *Adapter) ManualCommand(op ports.Operation, args ...string) string {
	verb, ok := operationVerbs[op]
	if !ok {
		verb = string(op)
	}
	return a.command(verb, args...).String()
}

// listing extracts the first column of a dokku listing, skipping
// "=====>" headers and blank lines.
func listing(out string) []string {
	var names []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "=====>") || strings.HasPrefix(line, "!") {
			continue
		}
		names = append(names, strings.Fields(line)[0])
	}
	return names
}

var _ ports.ControlPlane = (*Adapter)(nil)
