package domain

import "time"

// RunStatus is the single pass/fail signal of a run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
)

// ReclaimReport summarizes a finished reclamation.
type ReclaimReport struct {
	ImagesDeleted  int    `json:"images_deleted"`
	CachesDeleted  int    `json:"caches_deleted"`
	SpaceReclaimed uint64 `json:"space_reclaimed"`
}

// RunReport is what a run leaves behind.
type RunReport struct {
	ID          string             `json:"id"`
	Request     DeploymentRequest  `json:"request"`
	Status      RunStatus          `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitempty"`
	App         AppRecord          `json:"app"`
	Outcome     *DeployOutcome     `json:"outcome,omitempty"`
	Certificate *CertificateResult `json:"certificate,omitempty"`
	Reclaim     *ReclaimReport     `json:"reclaim,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`

	// Failure is the last fatal error; Transcript points at the failing
	// command's transcript when the failure came from a command.
	Failure    string `json:"failure,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Passed reports whether the run succeeded.
func (r *RunReport) Passed() bool {
	return r.Status == RunPassed
}
