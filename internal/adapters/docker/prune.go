package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/melih/lighthouse-rollout/internal/core/domain"
)

// Prune removes dangling images and unused build cache.
func (a *Adapter) Prune(ctx context.Context) (domain.ReclaimReport, error) {
	var report domain.ReclaimReport

	images, err := a.cli.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		return report, fmt.Errorf("failed to prune images: %w", err)
	}
	report.ImagesDeleted = len(images.ImagesDeleted)
	report.SpaceReclaimed += images.SpaceReclaimed

	cache, err := a.cli.BuildCachePrune(ctx, types.BuildCachePruneOptions{})
	if err != nil {
		return report, fmt.Errorf("failed to prune build cache: %w", err)
	}
	if cache != nil {
		report.CachesDeleted = len(cache.CachesDeleted)
		report.SpaceReclaimed += cache.SpaceReclaimed
	}
	return report, nil
}
