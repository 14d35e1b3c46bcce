package ports

import "context"

// BuilderService defines operations for building and publishing container images.
type BuilderService interface {
	// BuildImage builds an image from a source tree and tags it imageName.
	// It returns the ID of the built image or an error.
	BuildImage(ctx context.Context, contextDir, dockerfile, imageName string) (string, error)
	PullImage(ctx context.Context, image string) error
	TagImage(ctx context.Context, source, target string) error
	PushImage(ctx context.Context, image string) error
}

// SourceSyncer brings a branch of a repository into a local workspace:
// clone when absent, otherwise fetch, switch branch and pull.
type SourceSyncer interface {
	Sync(ctx context.Context, repoURL, branch, dir string) (commit string, err error)
}
