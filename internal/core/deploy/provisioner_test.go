package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
)

func TestEnsureAppCreatesAndBindsDomain(t *testing.T) {
	cp := &fakeControlPlane{}
	p := NewProvisioner(cp, false, log.NewNopLogger())

	rec, err := p.EnsureApp(context.Background(), ordersRequest(), "", nopWarnings())
	require.NoError(t, err)
	assert.Equal(t, domain.AppRecord{Name: "orders-api", Exists: true, Created: true, Domain: "orders.example.com"}, rec)
	assert.Equal(t, []string{"ListApps", "CreateApp", "AddDomain"}, cp.calls)
}

func TestEnsureAppIsIdempotent(t *testing.T) {
	cp := &fakeControlPlane{}
	p := NewProvisioner(cp, false, log.NewNopLogger())

	_, err := p.EnsureApp(context.Background(), ordersRequest(), "", nopWarnings())
	require.NoError(t, err)
	second, err := p.EnsureApp(context.Background(), ordersRequest(), "", nopWarnings())
	require.NoError(t, err)

	assert.Equal(t, 1, cp.count("CreateApp"))
	assert.Equal(t, 1, cp.count("AddDomain"))
	assert.Equal(t, domain.AppRecord{Name: "orders-api", Exists: true}, second)
}

func TestEnsureAppMatchesCaseInsensitively(t *testing.T) {
	cp := &fakeControlPlane{apps: []string{"billing", "Orders-API"}}
	p := NewProvisioner(cp, false, log.NewNopLogger())

	rec, err := p.EnsureApp(context.Background(), ordersRequest(), "", nopWarnings())
	require.NoError(t, err)
	assert.True(t, rec.Exists)
	assert.False(t, rec.Created)
	assert.Equal(t, []string{"ListApps"}, cp.calls)
}

func TestEnsureAppWithoutDomainWarns(t *testing.T) {
	cp := &fakeControlPlane{}
	w := nopWarnings()
	req := ordersRequest()
	req.Domain = ""

	rec, err := NewProvisioner(cp, false, log.NewNopLogger()).EnsureApp(context.Background(), req, "", w)
	require.NoError(t, err)
	assert.True(t, rec.Created)
	assert.Zero(t, cp.count("AddDomain"))
	require.Len(t, w.List(), 1)
	assert.Contains(t, w.List()[0], "no domain configured")
}

func TestEnsureAppCreateFailureIsFatal(t *testing.T) {
	cp := &fakeControlPlane{failOn: map[string]error{"CreateApp": errBoom}}

	_, err := NewProvisioner(cp, true, log.NewNopLogger()).EnsureApp(context.Background(), ordersRequest(), "", nopWarnings())
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, cp.count("DestroyApp"), "nothing was created, nothing to roll back")
}

func TestEnsureAppDomainFailureLeavesStateWithoutRollback(t *testing.T) {
	cp := &fakeControlPlane{failOn: map[string]error{"AddDomain": errBoom}}
	workspace := t.TempDir()

	_, err := NewProvisioner(cp, false, log.NewNopLogger()).EnsureApp(context.Background(), ordersRequest(), workspace, nopWarnings())
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"orders-api"}, cp.apps)
	assert.DirExists(t, workspace)
}

func TestEnsureAppDomainFailureRollsBack(t *testing.T) {
	cp := &fakeControlPlane{failOn: map[string]error{"AddDomain": errBoom}}
	workspace := filepath.Join(t.TempDir(), "orders-api")
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, ".git"), 0o755))

	rec, err := NewProvisioner(cp, true, log.NewNopLogger()).EnsureApp(context.Background(), ordersRequest(), workspace, nopWarnings())
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, rec.Exists)
	assert.Equal(t, 1, cp.count("DestroyApp"))
	assert.Empty(t, cp.apps)
	assert.NoDirExists(t, workspace)
}

func TestEnsureAppRollbackFailureKeepsOriginalError(t *testing.T) {
	cp := &fakeControlPlane{failOn: map[string]error{"SetPorts": errBoom, "DestroyApp": context.DeadlineExceeded}}
	req := ordersRequest()
	req.Port = "http:80:5000"

	_, err := NewProvisioner(cp, true, log.NewNopLogger()).EnsureApp(context.Background(), req, "", nopWarnings())
	assert.ErrorIs(t, err, errBoom)
}

func TestEnsureAppAppliesPortsAndEnvironment(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "orders.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DATABASE_URL=postgres://db/orders\n# comment\nLOG_LEVEL=debug\n"), 0o600))

	cp := &fakeControlPlane{}
	req := ordersRequest()
	req.Port = "http:80:5000"
	req.EnvFile = envFile

	_, err := NewProvisioner(cp, false, log.NewNopLogger()).EnsureApp(context.Background(), req, "", nopWarnings())
	require.NoError(t, err)
	assert.Equal(t, []string{"ListApps", "CreateApp", "AddDomain", "SetPorts", "SetConfig"}, cp.calls)
	assert.Equal(t, map[string]string{"DATABASE_URL": "postgres://db/orders", "LOG_LEVEL": "debug"}, cp.env)
}

func TestEnsureAppMissingEnvFileIsFatal(t *testing.T) {
	cp := &fakeControlPlane{}
	req := ordersRequest()
	req.EnvFile = filepath.Join(t.TempDir(), "missing.env")

	_, err := NewProvisioner(cp, false, log.NewNopLogger()).EnsureApp(context.Background(), req, "", nopWarnings())
	assert.Error(t, err)
	assert.Zero(t, cp.count("SetConfig"))
}

func TestEnsureAppListFailureIsFatal(t *testing.T) {
	cp := &fakeControlPlane{failOn: map[string]error{"ListApps": errBoom}}

	_, err := NewProvisioner(cp, false, log.NewNopLogger()).EnsureApp(context.Background(), ordersRequest(), "", nopWarnings())
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, cp.count("CreateApp"))
}
