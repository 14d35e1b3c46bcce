package ports

import (
	"context"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
)

// ContainerService queries the processes the control plane runs for an app,
// either through the local Docker daemon or through the control plane itself
// when it lives on another host.
type ContainerService interface {
	// ListContainers returns app's containers in any state.
	ListContainers(ctx context.Context, app string) ([]domain.Container, error)
	// RunningContainers returns the running containers whose name belongs to app.
	RunningContainers(ctx context.Context, app string) ([]domain.Container, error)
}

// Pruner removes unused build artifacts.
type Pruner interface {
	Prune(ctx context.Context) (domain.ReclaimReport, error)
}
