package main

import (
	"strings"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
)

// runFailedError signals a failed run whose reason was already printed.
type runFailedError struct {
	report *domain.RunReport
}

func (e *runFailedError) Error() string {
	return "deployment " + e.report.ID + " failed: " + e.report.Failure
}

func makeExample(examples ...string) string {
	var buf strings.Builder
	for _, example := range examples {
		buf.WriteString("  " + example + "\n")
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
