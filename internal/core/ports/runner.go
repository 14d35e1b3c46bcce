package ports

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Command is one external command invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // appended to the inherited environment
	Stdin io.Reader
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandResult is the recorded status of a finished command.
type CommandResult struct {
	Command        string
	ExitCode       int
	Output         string // combined stdout and stderr
	TranscriptPath string
	Duration       time.Duration
}

// Err returns a *CommandError for a non-zero exit, nil otherwise.
func (r *CommandResult) Err() error {
	if r == nil || r.ExitCode == 0 {
		return nil
	}
	return &CommandError{
		Command:        r.Command,
		ExitCode:       r.ExitCode,
		Output:         r.Output,
		TranscriptPath: r.TranscriptPath,
	}
}

// CommandError is a command that ran to completion with a non-zero exit.
type CommandError struct {
	Command        string
	ExitCode       int
	Output         string
	TranscriptPath string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

// CommandRunner executes external commands, streaming their output to the
// operator while buffering it for inspection. A non-zero exit is reported in
// the result; the error is reserved for commands that could not run at all.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}
