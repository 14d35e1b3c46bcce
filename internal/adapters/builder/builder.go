package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
)

// api is the part of the Docker client the builder uses.
type api interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImagePush(ctx context.Context, image string, options types.ImagePushOptions) (io.ReadCloser, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
	ImageTag(ctx context.Context, source, target string) error
}

// Adapter implements ports.BuilderService using the Docker SDK. Build and
// push progress is streamed to out.
type Adapter struct {
	cli  api
	out  io.Writer
	auth registry.AuthConfig
}

func NewBuilderAdapter(out io.Writer, auth registry.AuthConfig) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if out == nil {
		out = io.Discard
	}
	return &Adapter{cli: cli, out: out, auth: auth}, nil
}

// BuildImage builds contextDir into imageName and returns the image ID.
func (a *Adapter) BuildImage(ctx context.Context, contextDir, dockerfile, imageName string) (string, error) {
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	// 1. Create Build Context (Tar)
	tar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{
		ExcludePatterns: []string{".git"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	// 2. Build Docker Image
	fmt.Fprintf(a.out, "Building Docker image: %s...\n", imageName)
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: dockerfile,
		Remove:     true, // Remove intermediate containers
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// 3. Wait for build to complete. Build errors arrive inside the stream,
	// not as an API error.
	var id string
	err = jsonmessage.DisplayJSONMessagesStream(resp.Body, a.out, 0, false, func(msg jsonmessage.JSONMessage) {
		var result types.BuildResult
		if msg.Aux != nil && json.Unmarshal(*msg.Aux, &result) == nil && result.ID != "" {
			id = result.ID
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	return id, nil
}

// PullImage fetches a pre-built image so it can be re-tagged.
func (a *Adapter) PullImage(ctx context.Context, image string) error {
	auth, err := registry.EncodeAuthConfig(a.auth)
	if err != nil {
		return fmt.Errorf("failed to encode registry auth: %w", err)
	}
	reader, err := a.cli.ImagePull(ctx, image, types.ImagePullOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(reader, a.out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	return nil
}

// TagImage points target at the image source refers to.
func (a *Adapter) TagImage(ctx context.Context, source, target string) error {
	if err := a.cli.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", source, target, err)
	}
	return nil
}

// PushImage publishes image to its registry with the configured credentials.
func (a *Adapter) PushImage(ctx context.Context, image string) error {
	auth, err := registry.EncodeAuthConfig(a.auth)
	if err != nil {
		return fmt.Errorf("failed to encode registry auth: %w", err)
	}

	fmt.Fprintf(a.out, "Pushing Docker image: %s...\n", image)
	body, err := a.cli.ImagePush(ctx, image, types.ImagePushOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("failed to push image: %w", err)
	}
	defer body.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(body, a.out, 0, false, nil); err != nil {
		return fmt.Errorf("failed to push image: %w", err)
	}
	return nil
}
