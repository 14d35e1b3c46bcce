// Package config turns viper settings into the run configuration of a
// deployment: the request itself plus the policy and adapter settings.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/registry"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/melih/lighthouse-rollout/internal/core/deploy"
	"github.com/melih/lighthouse-rollout/internal/core/domain"
)

// EnvPrefix is prepended to every environment variable viper consults,
// e.g. ROLLOUT_APP_NAME for app.name.
const EnvPrefix = "ROLLOUT"

// Config is everything a run needs besides the adapters themselves.
type Config struct {
	Request domain.DeploymentRequest

	Deployer    deploy.DeployerConfig
	Certificate deploy.CertificateConfig
	Registry    registry.AuthConfig

	ControlPlaneBinary string
	ControlPlanePrefix []string

	SSHUser       string
	AgentBinary   string
	KeyPassphrase string

	WorkspaceRoot string
	TranscriptDir string
	PollInterval  time.Duration
	Timeout       time.Duration

	RollbackOnProvisionFailure bool
	SkipReclaim                bool

	Listen string
}

// SetDefaults registers the default of every key. Keys without a default are
// registered with their zero value so AutomaticEnv can see them.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"app.name", "app.domain", "app.port", "app.env_file",
		"source.repo",
		"image.name", "image.tag",
		"registry.address", "registry.username", "registry.password",
		"cert.path", "cert.email",
		"ssh.key", "ssh.passphrase",
		"dokku.host",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("source.branch", "main")
	v.SetDefault("source.dockerfile", "Dockerfile")
	v.SetDefault("cert.plugin", "letsencrypt")
	v.SetDefault("cert.plugin_source", "https://github.com/dokku/dokku-letsencrypt.git")
	v.SetDefault("ssh.user", "git")
	v.SetDefault("ssh.agent", "ssh-agent")
	v.SetDefault("dokku.binary", "dokku")
	v.SetDefault("dokku.no_change_marker", deploy.DefaultNoChangeMarker)
	v.SetDefault("workspace", defaultWorkspace())
	v.SetDefault("transcripts", filepath.Join(os.TempDir(), "rollout-transcripts"))
	v.SetDefault("reclaim.interval", deploy.DefaultPollInterval)
	v.SetDefault("reclaim.skip", false)
	v.SetDefault("rollback", false)
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("listen", ":3000")
}

func defaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "rollout")
	}
	return filepath.Join(home, ".rollout", "apps")
}

// Load reads the run configuration from v. The request is not validated
// here, commands that do not deploy never need one.
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		Request: domain.DeploymentRequest{
			AppName:    v.GetString("app.name"),
			Domain:     v.GetString("app.domain"),
			Port:       v.GetString("app.port"),
			EnvFile:    expand(v.GetString("app.env_file")),
			RepoURL:    v.GetString("source.repo"),
			Branch:     v.GetString("source.branch"),
			Dockerfile: v.GetString("source.dockerfile"),
			Image:      v.GetString("image.name"),
			ImageTag:   v.GetString("image.tag"),
			CertPath:   expand(v.GetString("cert.path")),
			KeyPath:    expand(v.GetString("ssh.key")),
		},
		Deployer: deploy.DeployerConfig{
			Registry:       strings.TrimSuffix(v.GetString("registry.address"), "/"),
			NoChangeMarker: v.GetString("dokku.no_change_marker"),
		},
		Certificate: deploy.CertificateConfig{
			Plugin:       v.GetString("cert.plugin"),
			PluginSource: v.GetString("cert.plugin_source"),
			Email:        v.GetString("cert.email"),
		},
		Registry: registry.AuthConfig{
			ServerAddress: v.GetString("registry.address"),
			Username:      v.GetString("registry.username"),
			Password:      v.GetString("registry.password"),
		},
		ControlPlaneBinary:         v.GetString("dokku.binary"),
		SSHUser:                    v.GetString("ssh.user"),
		AgentBinary:                v.GetString("ssh.agent"),
		KeyPassphrase:              v.GetString("ssh.passphrase"),
		WorkspaceRoot:              expand(v.GetString("workspace")),
		TranscriptDir:              expand(v.GetString("transcripts")),
		PollInterval:               v.GetDuration("reclaim.interval"),
		Timeout:                    v.GetDuration("timeout"),
		RollbackOnProvisionFailure: v.GetBool("rollback"),
		SkipReclaim:                v.GetBool("reclaim.skip"),
		Listen:                     v.GetString("listen"),
	}

	// A remote control plane is reached as "ssh dokku@host <verb>".
	if host := v.GetString("dokku.host"); host != "" {
		c.ControlPlaneBinary = "ssh"
		if !strings.Contains(host, "@") {
			host = "dokku@" + host
		}
		c.ControlPlanePrefix = []string{host}
		// the remote host can only deploy images it can pull
		if c.Deployer.Registry == "" {
			return nil, errors.New("registry.address is required when dokku.host is set")
		}
	}

	if c.Timeout < 0 {
		return nil, errors.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return c, nil
}

// Remote reports whether the control plane runs on another host. Its
// containers are then inspected through the control plane, not a local
// Docker daemon.
func (c *Config) Remote() bool {
	return len(c.ControlPlanePrefix) > 0
}

// expand resolves a leading ~ to the user's home directory.
func expand(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
