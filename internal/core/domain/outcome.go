package domain

// DeployResult classifies one deploy attempt.
type DeployResult string

const (
	Deployed        DeployResult = "deployed"
	NoChangeRebuilt DeployResult = "no_change_rebuilt"
	DeployFailed    DeployResult = "failed"
)

// DeployOutcome is the terminal result of the ImageDeployer. Output holds the
// captured trigger output the result was classified from.
type DeployOutcome struct {
	Result DeployResult `json:"result"`
	Image  string       `json:"image,omitempty"`
	Commit string       `json:"commit,omitempty"`
	Output string       `json:"-"`

	// Containers found running by the post-deploy check.
	Containers []Container `json:"containers,omitempty"`
}

// CertificateState is the terminal state of certificate provisioning.
type CertificateState string

const (
	CertCustomApplied  CertificateState = "custom_applied"
	CertAutoIssued     CertificateState = "auto_issued"
	CertPluginMissing  CertificateState = "plugin_missing"
	CertIssuanceFailed CertificateState = "issuance_failed"
	CertSkipped        CertificateState = "skipped"
)

// CertificateResult pairs the state with the operator-facing remediation,
// which is only set for the degraded states.
type CertificateResult struct {
	State       CertificateState `json:"state"`
	Remediation string           `json:"remediation,omitempty"`
}
