package dokku

import (
	"bufio"
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// statusLine matches "Status web 1:   running (CID: 03ea8977f37)" in ps:report.
var statusLine = regexp.MustCompile(`^Status (\S+) (\d+):\s+(\S+)(?:\s+\(CID: ([0-9a-f]+)\))?`)

// ListContainers reads app's processes from ps:report. It is used instead of
// a Docker client when the control plane is on another host.
func (a *Adapter) ListContainers(ctx context.Context, app string) ([]domain.Container, error) {
	res, err := a.run(ctx, a.command("ps:report", app))
	if err != nil {
		return nil, errors.Wrapf(err, "reading processes of %s", app)
	}
	return processes(app, res.Output), nil
}

func (a *Adapter) RunningContainers(ctx context.Context, app string) ([]domain.Container, error) {
	all, err := a.ListContainers(ctx, app)
	if err != nil {
		return nil, err
	}
	var running []domain.Container
	for _, c := range all {
		if c.Running() {
			running = append(running, c)
		}
	}
	return running, nil
}

// Prune asks the control plane to remove exited containers and dangling
// images. dokku does not report what it freed, so the report stays empty.
func (a *Adapter) Prune(ctx context.Context) (domain.ReclaimReport, error) {
	_, err := a.run(ctx, a.command("cleanup"))
	return domain.ReclaimReport{}, errors.Wrap(err, "cleaning up control plane")
}

func processes(app, out string) []domain.Container {
	var containers []domain.Container
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		m := statusLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		containers = append(containers, domain.Container{
			ID:     m[4],
			Name:   app + "." + m[1] + "." + m[2],
			Status: m[3],
			State:  m[3],
		})
	}
	return containers
}

var (
	_ ports.ContainerService = (*Adapter)(nil)
	_ ports.Pruner           = (*Adapter)(nil)
)
