package main

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melih/lighthouse-rollout/internal/config"
)

type rootOpts struct {
	cfgFile string
	debug   bool

	viper  *viper.Viper
	logger log.Logger
	config *config.Config
}

func newRoot() *rootOpts {
	return &rootOpts{viper: viper.New(), logger: log.NewNopLogger()}
}

var rootLongHelp = strings.TrimSpace(`
rolloutctl deploys one application to a dokku host: it builds or fetches the
image, triggers the release, checks the result and provisions TLS.

Settings are read from $HOME/.rolloutctl.yaml (or --config), then from
environment variables prefixed ROLLOUT_ (e.g. ROLLOUT_APP_NAME), then flags.

Workflow:
  rolloutctl deploy --app orders-api --repo git@github.com:example/orders-api.git --domain orders.example.com
  rolloutctl deploy --app orders-api --image registry.example.com/orders-api --tag v2
  rolloutctl serve --listen :3000
  rolloutctl reclaim
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "rolloutctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.rolloutctl.yaml)")
	flags.BoolVar(&opts.debug, "debug", false, "log state transitions and other diagnostics")

	flags.String("app", "", "application name")
	flags.String("domain", "", "domain bound to the application")
	flags.String("port", "", "port mapping, e.g. http:80:5000")
	flags.String("env-file", "", "file whose variables are pushed to the application config")
	flags.String("repo", "", "git repository to build from")
	flags.String("branch", "main", "branch to build")
	flags.String("dockerfile", "Dockerfile", "Dockerfile path inside the repository")
	flags.String("image", "", "pre-built image to deploy instead of building")
	flags.String("tag", "", "image tag (default latest)")
	flags.String("registry", "", "registry the built image is pushed to; empty keeps it local")
	flags.String("cert", "", "custom certificate bundle (tar with server.crt and server.key)")
	flags.String("email", "", "contact email for automatic certificates")
	flags.String("key", "", "private key loaded into ssh-agent before fetching source")
	flags.String("dokku-host", "", "reach dokku over ssh at this host instead of locally")
	flags.String("workspace", "", "directory holding application source trees")
	flags.Bool("rollback", false, "destroy a freshly created application when configuring it fails")
	flags.Bool("skip-reclaim", false, "do not prune unused images and build cache after deploying")
	flags.Duration("timeout", 0, "give up on the run after this long (0 means never)")

	for key, flag := range map[string]string{
		"app.name":          "app",
		"app.domain":        "domain",
		"app.port":          "port",
		"app.env_file":      "env-file",
		"source.repo":       "repo",
		"source.branch":     "branch",
		"source.dockerfile": "dockerfile",
		"image.name":        "image",
		"image.tag":         "tag",
		"registry.address":  "registry",
		"cert.path":         "cert",
		"cert.email":        "email",
		"ssh.key":           "key",
		"dokku.host":        "dokku-host",
		"workspace":         "workspace",
		"rollback":          "rollback",
		"reclaim.skip":      "skip-reclaim",
		"timeout":           "timeout",
	} {
		// flags only override when set, so defaults still come from config.go
		opts.viper.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(
		newDeploy(opts).Command(),
		newServe(opts).Command(),
		newReclaim(opts).Command(),
		newVersionCommand(),
	)
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	opts.logger = newLogger(cmd.ErrOrStderr(), opts.debug)
	if err := opts.initConfig(); err != nil {
		return err
	}
	c, err := config.Load(opts.viper)
	if err != nil {
		return err
	}
	opts.config = c
	return nil
}

// initConfig reads in config file and ENV variables if set.
func (opts *rootOpts) initConfig() error {
	v := opts.viper
	config.SetDefaults(v)
	if opts.cfgFile != "" {
		v.SetConfigFile(opts.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "finding home directory")
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".rolloutctl")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing || opts.cfgFile != "" {
			return errors.Wrap(err, "reading config file")
		}
		return nil
	}
	level.Debug(opts.logger).Log("msg", "using config file", "path", v.ConfigFileUsed())
	return nil
}

func newLogger(w io.Writer, debug bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	if debug {
		return level.NewFilter(logger, level.AllowDebug())
	}
	return level.NewFilter(logger, level.AllowInfo())
}

var errorWantedNoArgs = errors.New("expected no (non-flag) arguments")
