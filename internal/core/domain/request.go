package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// DeploymentRequest is the immutable input of one run. It is built once from
// the run configuration and passed by value to every component.
type DeploymentRequest struct {
	AppName string `json:"app_name"`
	Domain  string `json:"domain,omitempty"`

	// Source tree to build from. RepoURL and Image are mutually exclusive.
	RepoURL    string `json:"repo_url,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Dockerfile string `json:"dockerfile,omitempty"`

	// Image is a pre-built reference that is re-tagged instead of built.
	Image    string `json:"image,omitempty"`
	ImageTag string `json:"image_tag,omitempty"`

	CertPath string `json:"cert_path,omitempty"`
	Port     string `json:"port,omitempty"` // scheme:host:container, e.g. http:80:5000
	EnvFile  string `json:"env_file,omitempty"`
	KeyPath  string `json:"key_path,omitempty"`
}

// ErrInvalidRequest is the cause of every validation failure.
var ErrInvalidRequest = errors.New("invalid deployment request")

// Validate checks the fields every run depends on.
func (r DeploymentRequest) Validate() error {
	if strings.TrimSpace(r.AppName) == "" {
		return errors.Wrap(ErrInvalidRequest, "application name is required")
	}
	if r.RepoURL == "" && r.Image == "" {
		return errors.Wrap(ErrInvalidRequest, "either a repository URL or a pre-built image is required")
	}
	if r.RepoURL != "" && r.Image != "" {
		return errors.Wrap(ErrInvalidRequest, "repository URL and pre-built image are mutually exclusive")
	}
	if r.RepoURL != "" && r.Branch == "" {
		return errors.Wrap(ErrInvalidRequest, "branch is required when building from a repository")
	}
	return nil
}

// FromSource reports whether the image is built from a source tree.
func (r DeploymentRequest) FromSource() bool {
	return r.RepoURL != ""
}

// Tag returns the image tag of the run, "latest" when none was given.
func (r DeploymentRequest) Tag() string {
	if r.ImageTag == "" {
		return "latest"
	}
	return r.ImageTag
}
