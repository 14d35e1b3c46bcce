// Package runner executes external commands for the orchestrator. Output is
// streamed to the operator, buffered for pattern matching and written to a
// per-invocation transcript file.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// Runner implements ports.CommandRunner on top of os/exec.
type Runner struct {
	out           io.Writer
	transcriptDir string
	logger        log.Logger
	now           func() time.Time
}

// New returns a Runner streaming to out and keeping transcripts in dir. An
// empty dir selects a directory under the system temp dir.
func New(out io.Writer, dir string, logger log.Logger) (*Runner, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "rollout-transcripts")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "creating transcript directory")
	}
	if isNil(out) {
		out = io.Discard
	}
	return &Runner{out: out, transcriptDir: dir, logger: logger, now: time.Now}, nil
}

// isNil reports whether w is nil, including a nil pointer held by a non-nil
// interface.
func isNil(w io.Writer) bool {
	if w == nil {
		return true
	}
	v := reflect.ValueOf(w)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Run executes cmd to completion. A non-zero exit is recorded in the result
// and is not an error; see ports.CommandResult.Err.
func (r *Runner) Run(ctx context.Context, cmd ports.Command) (*ports.CommandResult, error) {
	transcript, err := r.createTranscript()
	if err != nil {
		return nil, err
	}
	defer transcript.Close()
	fmt.Fprintf(transcript, "$ %s\n", cmd)

	var buf bytes.Buffer
	// Stdout and Stderr share one comparable writer, so exec serializes writes.
	w := io.MultiWriter(r.out, &buf, transcript)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin
	c.Stdout = w
	c.Stderr = w

	level.Debug(r.logger).Log("msg", "running command", "cmd", cmd.String(), "transcript", transcript.Name())
	start := r.now()
	err = c.Run()
	res := &ports.CommandResult{
		Command:        cmd.String(),
		Output:         buf.String(),
		TranscriptPath: transcript.Name(),
		Duration:       r.now().Sub(start),
	}

	if err != nil {
		if ctx.Err() != nil {
			res.ExitCode = -1
			return res, errors.Wrapf(ctx.Err(), "running %s", cmd)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, errors.Wrapf(err, "starting %s", cmd)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	fmt.Fprintf(transcript, "# exit status %d (%s)\n", res.ExitCode, res.Duration.Round(time.Millisecond))
	level.Debug(r.logger).Log("msg", "command finished", "cmd", cmd.String(), "exit", res.ExitCode)
	return res, nil
}

// createTranscript opens a new file named by timestamp and random suffix.
// O_EXCL guarantees two invocations never share a transcript.
func (r *Runner) createTranscript() (*os.File, error) {
	name := fmt.Sprintf("%s-%s.log", r.now().UTC().Format("20060102T150405.000Z"), uuid.NewString()[:8])
	f, err := os.OpenFile(filepath.Join(r.transcriptDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "creating command transcript")
	}
	return f, nil
}
