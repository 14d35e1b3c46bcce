// Package gitsource keeps a per-application working copy of the source
// repository in sync with a branch.
package gitsource

import (
	"context"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

const remoteName = "origin"

// Syncer implements ports.SourceSyncer with go-git.
type Syncer struct {
	progress io.Writer
	sshUser  string
	logger   log.Logger
}

// New returns a Syncer. ssh remotes authenticate as sshUser through the
// ssh-agent, which must be running by the time Sync is called.
func New(progress io.Writer, sshUser string, logger log.Logger) *Syncer {
	if sshUser == "" {
		sshUser = "git"
	}
	return &Syncer{progress: progress, sshUser: sshUser, logger: logger}
}

// Sync clones repoURL into dir when no repository is there yet; otherwise it
// fetches, switches to branch and moves it to the remote head. It returns
// the checked out commit.
func (s *Syncer) Sync(ctx context.Context, repoURL, branch, dir string) (string, error) {
	auth, err := s.auth(repoURL)
	if err != nil {
		return "", err
	}

	repo, err := git.PlainOpen(dir)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		level.Info(s.logger).Log("msg", "cloning", "repo", repoURL, "branch", branch, "dir", dir)
		repo, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:           repoURL,
			Auth:          auth,
			ReferenceName: plumbing.NewBranchReferenceName(branch),
			Progress:      s.progress,
		})
		if err != nil {
			return "", errors.Wrapf(err, "cloning %s", repoURL)
		}
		return head(repo)
	case err != nil:
		return "", errors.Wrapf(err, "opening workspace %s", dir)
	}

	level.Info(s.logger).Log("msg", "updating", "repo", repoURL, "branch", branch, "dir", dir)
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       auth,
		Progress:   s.progress,
		RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", errors.Wrapf(err, "fetching %s", repoURL)
	}

	remote, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return "", errors.Wrapf(err, "branch %s not found on %s", branch, remoteName)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "opening worktree")
	}
	opts := &git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Force: true}
	if _, err := repo.Reference(opts.Branch, false); err != nil {
		opts.Create = true
		opts.Hash = remote.Hash()
	}
	if err := wt.Checkout(opts); err != nil {
		return "", errors.Wrapf(err, "switching to %s", branch)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remote.Hash(), Mode: git.HardReset}); err != nil {
		return "", errors.Wrapf(err, "updating %s to %s", branch, remote.Hash())
	}
	return head(repo)
}

func (s *Syncer) auth(repoURL string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(repoURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing repository URL %s", repoURL)
	}
	if ep.Protocol != "ssh" {
		return nil, nil
	}
	auth, err := gitssh.NewSSHAgentAuth(s.sshUser)
	if err != nil {
		return nil, errors.Wrap(err, "using ssh agent for git")
	}
	return auth, nil
}

func head(repo *git.Repository) (string, error) {
	ref, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "resolving HEAD")
	}
	return ref.Hash().String(), nil
}
