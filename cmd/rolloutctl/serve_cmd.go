package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-rollout/internal/adapters/http"
	"github.com/melih/lighthouse-rollout/internal/core/deploy"
)

type serveOpts struct {
	*rootOpts
	listen string
}

func newServe(parent *rootOpts) *serveOpts {
	return &serveOpts{rootOpts: parent}
}

func (opts *serveOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept deployment requests over HTTP",
		Example: makeExample(
			"rolloutctl serve --listen :3000",
			`curl -X POST localhost:3000/api/v1/deployments -d '{"branch":"release"}' -H 'Content-Type: application/json'`,
		),
		RunE: opts.RunE,
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "address to listen on (default from config, :3000)")
	return cmd
}

func (opts *serveOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errorWantedNoArgs
	}
	if err := opts.config.Request.Validate(); err != nil {
		return err
	}
	listen := opts.listen
	if listen == "" {
		listen = opts.config.Listen
	}

	orch, containers, err := opts.newOrchestrator(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	handler := http.NewDeploymentHandler(orch, containers, opts.config.Request, deploy.NewReport, opts.config.Timeout, opts.logger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.Register(app.Group("/api").Group("/v1"))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		level.Info(opts.logger).Log("msg", "shutting down, waiting for the active run")
		app.Shutdown()
	}()

	level.Info(opts.logger).Log("msg", "server starting", "listen", listen, "app", opts.config.Request.AppName)
	if err := app.Listen(listen); err != nil {
		return err
	}
	handler.Wait()
	return nil
}
