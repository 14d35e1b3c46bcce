package dokku

import (
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// scriptedRunner answers by verb and records every command line.
type scriptedRunner struct {
	calls   []string
	stdin   string
	outputs map[string]string
	exits   map[string]int
}

func (s *scriptedRunner) Run(_ context.Context, cmd ports.Command) (*ports.CommandResult, error) {
	s.calls = append(s.calls, cmd.String())
	if cmd.Stdin != nil {
		b, _ := io.ReadAll(cmd.Stdin)
		s.stdin = string(b)
	}
	verb := ""
	for _, a := range cmd.Args {
		if strings.Contains(a, ":") {
			verb = a
			break
		}
	}
	return &ports.CommandResult{
		Command:  cmd.String(),
		Output:   s.outputs[verb],
		ExitCode: s.exits[verb],
	}, nil
}

func TestListAppsSkipsHeaders(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{
		"apps:list": "=====> My Apps\norders-api\nbilling\n\n",
	}}
	apps, err := NewAdapter(r, "", nil).ListApps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders-api", "billing"}, apps)
}

func TestListPluginsTakesFirstColumn(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{
		"plugin:list": "  00_dokku-standard    0.35.0 enabled    dokku core standard plugin\n  letsencrypt          0.20.4 enabled    Automated installation of let's encrypt TLS certificates\n",
	}}
	plugins, err := NewAdapter(r, "", nil).ListPlugins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"00_dokku-standard", "letsencrypt"}, plugins)
}

func TestCommandsUsePrefix(t *testing.T) {
	r := &scriptedRunner{}
	a := NewAdapter(r, "ssh", []string{"dokku@paas.example.com"})

	require.NoError(t, a.CreateApp(context.Background(), "orders-api"))
	require.NoError(t, a.AddDomain(context.Background(), "orders-api", "orders.example.com"))

	assert.Equal(t, []string{
		"ssh dokku@paas.example.com apps:create orders-api",
		"ssh dokku@paas.example.com domains:add orders-api orders.example.com",
	}, r.calls)
	assert.Equal(t, "ssh dokku@paas.example.com letsencrypt:enable orders-api", a.ManualCommand(ports.OpEnableAutoTLS, "orders-api"))
}

func TestNonZeroExitIsError(t *testing.T) {
	r := &scriptedRunner{exits: map[string]int{"apps:create": 1}}
	err := NewAdapter(r, "", nil).CreateApp(context.Background(), "orders-api")

	var cmdErr *ports.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
}

func TestDeployFromImageReturnsRawResult(t *testing.T) {
	r := &scriptedRunner{
		outputs: map[string]string{"git:from-image": "No changes detected, skipping git commit"},
		exits:   map[string]int{"git:from-image": 1},
	}
	res, err := NewAdapter(r, "", nil).DeployFromImage(context.Background(), "orders-api", "registry/orders-api:1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Output, "No changes detected")
}

func TestSetConfigEncodesSortedValues(t *testing.T) {
	r := &scriptedRunner{}
	err := NewAdapter(r, "", nil).SetConfig(context.Background(), "orders-api", map[string]string{
		"PORT":         "5000",
		"DATABASE_URL": "postgres://db/orders",
	})
	require.NoError(t, err)

	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	assert.Equal(t, []string{
		"dokku config:set --no-restart --encoded orders-api DATABASE_URL=" + enc("postgres://db/orders") + " PORT=" + enc("5000"),
	}, r.calls)
}

func TestSetConfigEmptyIsNoop(t *testing.T) {
	r := &scriptedRunner{}
	require.NoError(t, NewAdapter(r, "", nil).SetConfig(context.Background(), "orders-api", nil))
	assert.Empty(t, r.calls)
}

func TestInstallCertificateStreamsFile(t *testing.T) {
	cert := filepath.Join(t.TempDir(), "cert.tar")
	require.NoError(t, os.WriteFile(cert, []byte("tarball"), 0o600))

	r := &scriptedRunner{}
	require.NoError(t, NewAdapter(r, "", nil).InstallCertificate(context.Background(), "orders-api", cert))
	assert.Equal(t, "tarball", r.stdin)
	assert.Equal(t, []string{"dokku certs:add orders-api"}, r.calls)
}

func TestEnableAutoTLSSetsEmailFirst(t *testing.T) {
	r := &scriptedRunner{}
	require.NoError(t, NewAdapter(r, "", nil).EnableAutoTLS(context.Background(), "orders-api", "ops@example.com"))
	assert.Equal(t, []string{
		"dokku letsencrypt:set orders-api email ops@example.com",
		"dokku letsencrypt:enable orders-api",
	}, r.calls)
}
