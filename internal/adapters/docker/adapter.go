package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/melih/lighthouse-rollout/internal/core/domain"
)

// api is the part of the Docker client the adapter uses.
type api interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ImagesPrune(ctx context.Context, pruneFilters filters.Args) (types.ImagesPruneReport, error)
	BuildCachePrune(ctx context.Context, opts types.BuildCachePruneOptions) (*types.BuildCachePruneReport, error)
}

// Adapter implements ports.ContainerService and ports.Pruner using Docker SDK
type Adapter struct {
	cli api
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// ListContainers returns app's containers, stopped ones included.
func (a *Adapter) ListContainers(ctx context.Context, app string) ([]domain.Container, error) {
	return a.owned(ctx, app, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", app)),
	})
}

// RunningContainers returns running containers belonging to app.
func (a *Adapter) RunningContainers(ctx context.Context, app string) ([]domain.Container, error) {
	all, err := a.owned(ctx, app, container.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("name", app),
			filters.Arg("status", "running"),
		),
	})
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

// owned lists with opts and keeps what belongs to app. The control plane names
// containers "<app>.<process>.<n>" and the Docker name filter is a substring
// match, so ownership is checked again here.
func (a *Adapter) owned(ctx context.Context, app string, opts container.ListOptions) ([]domain.Container, error) {
	all, err := a.list(ctx, opts)
	if err != nil {
		return nil, err
	}
	var owned []domain.Container
	for _, c := range all {
		if belongsTo(c.Name, app) {
			owned = append(owned, c)
		}
	}
	return owned, nil
}

func (a *Adapter) list(ctx context.Context, opts container.ListOptions) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var result []domain.Container
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		id := c.ID
		if len(id) > 12 {
			id = id[:12] // Short ID
		}

		result = append(result, domain.Container{
			ID:     id,
			Name:   name,
			Image:  c.Image,
			Status: c.Status,
			State:  c.State,
		})
	}
	return result, nil
}

func belongsTo(name, app string) bool {
	name, app = strings.ToLower(name), strings.ToLower(app)
	return name == app || strings.HasPrefix(name, app+".")
}
