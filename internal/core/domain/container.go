package domain

// Container represents a container in the system (Docker, K8s, etc.)
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
	State  string `json:"state"` // running, exited, etc.
}

// Running reports whether the container is in the running state.
func (c Container) Running() bool {
	return c.State == "running"
}

// AppRecord is the control plane's view of an application. It is never owned
// by the orchestrator, only read back after control-plane commands.
type AppRecord struct {
	Name       string      `json:"name"`
	Exists     bool        `json:"exists"`
	Created    bool        `json:"created"`
	Domain     string      `json:"domain,omitempty"`
	Running    bool        `json:"running"`
	Containers []Container `json:"containers,omitempty"`
}
