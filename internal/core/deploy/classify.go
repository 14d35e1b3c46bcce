package deploy

import "strings"

// DefaultNoChangeMarker is what the control plane prints when the image it
// was asked to deploy is identical to the current release.
const DefaultNoChangeMarker = "No changes detected"

// TriggerResult is the classification of a deploy-trigger invocation.
type TriggerResult int

const (
	TriggerDeployed TriggerResult = iota
	TriggerNoChange
	TriggerFailed
)

func (t TriggerResult) String() string {
	switch t {
	case TriggerDeployed:
		return "deployed"
	case TriggerNoChange:
		return "no-change"
	default:
		return "failed"
	}
}

// ClassifyTrigger decides what a deploy trigger did from its captured output
// and exit status. The no-change marker wins over the exit status: the
// control plane exits non-zero on some no-change paths, and that is not a
// failure.
func ClassifyTrigger(output string, exitCode int, marker string) TriggerResult {
	if marker == "" {
		marker = DefaultNoChangeMarker
	}
	if strings.Contains(strings.ToLower(output), strings.ToLower(marker)) {
		return TriggerNoChange
	}
	if exitCode != 0 {
		return TriggerFailed
	}
	return TriggerDeployed
}
