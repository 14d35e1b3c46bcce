package deploy

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-kit/log"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

var errBoom = errors.New("boom")

type fakeControlPlane struct {
	apps          []string
	plugins       []string
	env           map[string]string
	triggerOutput string
	triggerExit   int
	failOn        map[string]error
	calls         []string
}

func (f *fakeControlPlane) record(call string) error {
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeControlPlane) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeControlPlane) ListApps(context.Context) ([]string, error) {
	if err := f.record("ListApps"); err != nil {
		return nil, err
	}
	return f.apps, nil
}

func (f *fakeControlPlane) CreateApp(_ context.Context, app string) error {
	if err := f.record("CreateApp"); err != nil {
		return err
	}
	f.apps = append(f.apps, app)
	return nil
}

func (f *fakeControlPlane) DestroyApp(_ context.Context, app string) error {
	if err := f.record("DestroyApp"); err != nil {
		return err
	}
	for i, a := range f.apps {
		if a == app {
			f.apps = append(f.apps[:i], f.apps[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeControlPlane) AddDomain(context.Context, string, string) error {
	return f.record("AddDomain")
}

func (f *fakeControlPlane) SetPorts(context.Context, string, string) error {
	return f.record("SetPorts")
}

func (f *fakeControlPlane) SetConfig(_ context.Context, _ string, env map[string]string) error {
	f.env = env
	return f.record("SetConfig")
}

func (f *fakeControlPlane) InstallCertificate(context.Context, string, string) error {
	return f.record("InstallCertificate")
}

func (f *fakeControlPlane) ListPlugins(context.Context) ([]string, error) {
	if err := f.record("ListPlugins"); err != nil {
		return nil, err
	}
	return f.plugins, nil
}

func (f *fakeControlPlane) InstallPlugin(context.Context, string) error {
	if err := f.record("InstallPlugin"); err != nil {
		return err
	}
	f.plugins = append(f.plugins, "letsencrypt")
	return nil
}

func (f *fakeControlPlane) EnableAutoTLS(context.Context, string, string) error {
	return f.record("EnableAutoTLS")
}

func (f *fakeControlPlane) DeployFromImage(context.Context, string, string) (*ports.CommandResult, error) {
	if err := f.record("DeployFromImage"); err != nil {
		return nil, err
	}
	return &ports.CommandResult{
		Command:        "dokku git:from-image",
		ExitCode:       f.triggerExit,
		Output:         f.triggerOutput,
		TranscriptPath: "/tmp/rollout-transcripts/trigger.log",
	}, nil
}

func (f *fakeControlPlane) Rebuild(context.Context, string) error {
	return f.record("Rebuild")
}

func (f *fakeControlPlane) ManualCommand(op ports.Operation, args ...string) string {
	return strings.Join(append([]string{"dokku", string(op)}, args...), " ")
}

type fakeBuilder struct {
	buildErr error
	pushErr  error
	pullErr  error
	tagErrs  []error // consumed one per TagImage call
	calls    []string
}

func (f *fakeBuilder) BuildImage(_ context.Context, _, _, image string) (string, error) {
	f.calls = append(f.calls, "BuildImage "+image)
	return "sha256:feed", f.buildErr
}

func (f *fakeBuilder) PullImage(_ context.Context, image string) error {
	f.calls = append(f.calls, "PullImage "+image)
	return f.pullErr
}

func (f *fakeBuilder) TagImage(_ context.Context, source, target string) error {
	f.calls = append(f.calls, "TagImage "+source+" "+target)
	if len(f.tagErrs) == 0 {
		return nil
	}
	err := f.tagErrs[0]
	f.tagErrs = f.tagErrs[1:]
	return err
}

func (f *fakeBuilder) PushImage(_ context.Context, image string) error {
	f.calls = append(f.calls, "PushImage "+image)
	return f.pushErr
}

type fakeSource struct {
	commit string
	err    error
	dirs   []string
}

func (f *fakeSource) Sync(_ context.Context, _, _, dir string) (string, error) {
	f.dirs = append(f.dirs, dir)
	return f.commit, f.err
}

type fakeContainers struct {
	running []domain.Container
	all     []domain.Container
	err     error
}

func (f *fakeContainers) ListContainers(context.Context, string) ([]domain.Container, error) {
	return f.all, f.err
}

func (f *fakeContainers) RunningContainers(context.Context, string) ([]domain.Container, error) {
	return f.running, f.err
}

type fakePruner struct {
	mu      sync.Mutex
	release chan struct{} // when set, Prune blocks until closed
	report  domain.ReclaimReport
	err     error
	calls   int
}

func (f *fakePruner) Prune(context.Context) (domain.ReclaimReport, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.report, f.err
}

func (f *fakePruner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAgent struct {
	ensureErr error
	loadErr   error
	loaded    []string
}

func (f *fakeAgent) EnsureAgentRunning(context.Context) (bool, error) {
	return false, f.ensureErr
}

func (f *fakeAgent) LoadKey(_ context.Context, path string) error {
	f.loaded = append(f.loaded, path)
	return f.loadErr
}

type fakeLocker struct {
	err    error
	locked []string
}

func (f *fakeLocker) Lock(dir string) (func() error, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, dir)
	return func() error { return nil }, nil
}

func nopWarnings() *Warnings {
	return NewWarnings(log.NewNopLogger())
}

func runningWeb(app string) []domain.Container {
	return []domain.Container{{ID: "0123456789ab", Name: app + ".web.1", State: "running"}}
}

func ordersRequest() domain.DeploymentRequest {
	return domain.DeploymentRequest{
		AppName: "orders-api",
		Domain:  "orders.example.com",
		RepoURL: "git@github.com:example/orders-api.git",
		Branch:  "main",
	}
}
