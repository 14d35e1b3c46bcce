package deploy

import (
	"context"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/melih/lighthouse-rollout/internal/core/domain"
	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

// DefaultPollInterval is how often Await checks a cleanup handle.
const DefaultPollInterval = time.Second

var spinner = pb.ProgressBarTemplate(`{{string . "prefix"}}{{cycle . "|" "/" "-" "\\"}} {{etime .}}`)

// CleanupHandle refers to a detached reclamation task. It owns its
// completion signal and is only ever polled by its holder.
type CleanupHandle struct {
	done   chan struct{}
	report domain.ReclaimReport
	err    error
}

// Done reports without blocking whether the task has finished.
func (h *CleanupHandle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task finishes and returns its result.
func (h *CleanupHandle) Wait() (domain.ReclaimReport, error) {
	<-h.done
	return h.report, h.err
}

// Reclaimer frees disk space taken by unused build artifacts in the
// background. It is best effort: failures become warnings.
type Reclaimer struct {
	pruner   ports.Pruner
	interval time.Duration
	progress io.Writer
	logger   log.Logger
}

func NewReclaimer(pruner ports.Pruner, interval time.Duration, progress io.Writer, logger log.Logger) *Reclaimer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Reclaimer{pruner: pruner, interval: interval, progress: progress, logger: logger}
}

// Reclaim launches pruning and returns immediately.
func (r *Reclaimer) Reclaim(ctx context.Context) *CleanupHandle {
	h := &CleanupHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.report, h.err = r.pruner.Prune(ctx)
	}()
	return h
}

// Await polls h at the fixed interval, advancing a progress indicator on
// every tick, until the task completes. ok is false when pruning failed.
func (r *Reclaimer) Await(h *CleanupHandle, w *Warnings) (report domain.ReclaimReport, ok bool) {
	bar := spinner.New(0).SetWriter(r.progress).Set("prefix", "reclaiming disk space ").Start()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for !h.Done() {
		bar.Increment()
		<-ticker.C
	}
	bar.Finish()

	report, err := h.Wait()
	if err != nil {
		w.Warn("reclaiming disk space failed", "err", err)
		return report, false
	}
	level.Info(r.logger).Log("msg", "disk space reclaimed",
		"images", report.ImagesDeleted,
		"caches", report.CachesDeleted,
		"space", humanize.Bytes(report.SpaceReclaimed))
	return report, true
}
