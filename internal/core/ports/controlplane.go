package ports

import "context"

// ControlPlane is the PaaS control plane owning application lifecycle,
// routing and certificates. Implementations only report exit status, except
// DeployFromImage whose output is classified by the caller.
type ControlPlane interface {
	ListApps(ctx context.Context) ([]string, error)
	CreateApp(ctx context.Context, app string) error
	DestroyApp(ctx context.Context, app string) error
	AddDomain(ctx context.Context, app, domain string) error
	SetPorts(ctx context.Context, app, mapping string) error
	SetConfig(ctx context.Context, app string, env map[string]string) error

	InstallCertificate(ctx context.Context, app, certPath string) error
	ListPlugins(ctx context.Context) ([]string, error)
	InstallPlugin(ctx context.Context, name string) error
	EnableAutoTLS(ctx context.Context, app, email string) error

	DeployFromImage(ctx context.Context, app, image string) (*CommandResult, error)
	Rebuild(ctx context.Context, app string) error

	// ManualCommand renders the command an operator can run by hand to
	// finish a step that degraded to a warning.
	ManualCommand(op Operation, args ...string) string
}

// Operation names a control-plane action independently of its CLI syntax.
type Operation string

const (
	OpAddDomain     Operation = "add-domain"
	OpInstallCert   Operation = "install-certificate"
	OpInstallPlugin Operation = "install-plugin"
	OpEnableAutoTLS Operation = "enable-auto-tls"
)
