package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
)

type orchestratorFixture struct {
	deployerFixture
	agent  *fakeAgent
	locker *fakeLocker
	pruner *fakePruner
}

func newOrchestratorFixture() *orchestratorFixture {
	return &orchestratorFixture{
		deployerFixture: *newDeployerFixture(),
		agent:           &fakeAgent{},
		locker:          &fakeLocker{},
		pruner:          &fakePruner{},
	}
}

func (f *orchestratorFixture) orchestrator() *Orchestrator {
	logger := log.NewNopLogger()
	f.cp.plugins = append(f.cp.plugins, "letsencrypt")
	return &Orchestrator{
		Agent:         f.agent,
		Locker:        f.locker,
		Provisioner:   NewProvisioner(f.cp, false, logger),
		Deployer:      f.deployer(),
		Certs:         NewCertificateProvisioner(f.cp, letsencrypt, logger),
		Reclaimer:     NewReclaimer(f.pruner, time.Millisecond, nil, logger),
		WorkspaceRoot: "/srv/rollout",
		Logger:        logger,
	}
}

func TestRunDeploysNewApplication(t *testing.T) {
	f := newOrchestratorFixture()

	report := f.orchestrator().Run(context.Background(), ordersRequest())
	require.True(t, report.Passed(), report.Failure)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, domain.Deployed, report.Outcome.Result)
	assert.Equal(t, domain.CertAutoIssued, report.Certificate.State)
	assert.True(t, report.App.Created)
	assert.True(t, report.App.Running)
	assert.NotNil(t, report.Reclaim)
	assert.Equal(t, 1, f.pruner.Calls())
	assert.Equal(t, []string{"/srv/rollout/orders-api"}, f.locker.locked)
	assert.Equal(t, []string{"/srv/rollout/orders-api"}, f.source.dirs)
}

func TestRunNoChangeIsStillSuccess(t *testing.T) {
	f := newOrchestratorFixture()
	f.cp.triggerOutput = "No changes detected, skipping git commit"
	f.cp.triggerExit = 1

	report := f.orchestrator().Run(context.Background(), ordersRequest())
	require.True(t, report.Passed(), report.Failure)
	assert.Equal(t, domain.NoChangeRebuilt, report.Outcome.Result)
}

func TestRunBuildFailureShortCircuits(t *testing.T) {
	f := newOrchestratorFixture()
	f.builder.buildErr = errBoom

	report := f.orchestrator().Run(context.Background(), ordersRequest())
	assert.False(t, report.Passed())
	assert.Equal(t, domain.RunFailed, report.Status)
	assert.Contains(t, report.Failure, "building image")
	assert.Nil(t, report.Certificate)
	assert.Nil(t, report.Reclaim)
	assert.Zero(t, f.cp.count("ListPlugins"))
	assert.Zero(t, f.cp.count("EnableAutoTLS"))
	assert.Zero(t, f.pruner.Calls())
}

func TestRunSurfacesFailingTranscript(t *testing.T) {
	f := newOrchestratorFixture()
	f.cp.triggerOutput = "!     Unable to deploy"
	f.cp.triggerExit = 1

	report := f.orchestrator().Run(context.Background(), ordersRequest())
	assert.False(t, report.Passed())
	assert.Equal(t, "/tmp/rollout-transcripts/trigger.log", report.Transcript)
	assert.Equal(t, domain.DeployFailed, report.Outcome.Result)
}

func TestRunWarningsDoNotFail(t *testing.T) {
	f := newOrchestratorFixture()
	f.cp.failOn = map[string]error{"EnableAutoTLS": errBoom}
	f.pruner.err = errBoom
	req := ordersRequest()

	report := f.orchestrator().Run(context.Background(), req)
	assert.True(t, report.Passed(), report.Failure)
	assert.Equal(t, domain.CertIssuanceFailed, report.Certificate.State)
	assert.Len(t, report.Warnings, 2)
}

func TestRunLoadsKeyBeforeNetworkSteps(t *testing.T) {
	f := newOrchestratorFixture()
	req := ordersRequest()
	req.KeyPath = "/home/deploy/.ssh/id_ed25519"

	report := f.orchestrator().Run(context.Background(), req)
	require.True(t, report.Passed(), report.Failure)
	assert.Equal(t, []string{"/home/deploy/.ssh/id_ed25519"}, f.agent.loaded)
}

func TestRunKeyFailureIsFatal(t *testing.T) {
	f := newOrchestratorFixture()
	f.agent.loadErr = errBoom
	req := ordersRequest()
	req.KeyPath = "/home/deploy/.ssh/id_ed25519"

	report := f.orchestrator().Run(context.Background(), req)
	assert.False(t, report.Passed())
	assert.Contains(t, report.Failure, "loading deployment key")
	assert.Empty(t, f.cp.calls)
}

func TestRunInvalidRequest(t *testing.T) {
	f := newOrchestratorFixture()

	report := f.orchestrator().Run(context.Background(), domain.DeploymentRequest{Image: "nginx"})
	assert.False(t, report.Passed())
	assert.Contains(t, report.Failure, domain.ErrInvalidRequest.Error())
	assert.Empty(t, f.locker.locked)
	assert.Empty(t, f.cp.calls)
}

func TestRunWorkspaceBusy(t *testing.T) {
	f := newOrchestratorFixture()
	f.locker.err = errBoom

	report := f.orchestrator().Run(context.Background(), ordersRequest())
	assert.False(t, report.Passed())
	assert.Empty(t, f.cp.calls)
}

func TestRunExistingAppSkipsProvisioning(t *testing.T) {
	f := newOrchestratorFixture()
	f.cp.apps = []string{"orders-api"}

	report := f.orchestrator().Run(context.Background(), ordersRequest())
	require.True(t, report.Passed(), report.Failure)
	assert.False(t, report.App.Created)
	assert.Zero(t, f.cp.count("CreateApp"))
	assert.Zero(t, f.cp.count("AddDomain"))
}

func TestRunSkipReclaim(t *testing.T) {
	f := newOrchestratorFixture()
	o := f.orchestrator()
	o.SkipReclaim = true

	report := o.Run(context.Background(), ordersRequest())
	require.True(t, report.Passed(), report.Failure)
	assert.Zero(t, f.pruner.Calls())
}
