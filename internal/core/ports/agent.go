package ports

import "context"

// KeyAgent makes deployment credentials available to networked steps.
type KeyAgent interface {
	// EnsureAgentRunning starts an agent unless one is reachable already.
	EnsureAgentRunning(ctx context.Context) (started bool, err error)
	LoadKey(ctx context.Context, path string) error
}

// WorkspaceLocker grants exclusive use of an application's workspace.
type WorkspaceLocker interface {
	Lock(dir string) (unlock func() error, err error)
}
