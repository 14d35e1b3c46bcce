package deploy

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Warnings accumulates the non-fatal problems of one run. They are logged as
// they happen and never change the run's final status.
type Warnings struct {
	logger log.Logger
	msgs   []string
}

func NewWarnings(logger log.Logger) *Warnings {
	return &Warnings{logger: logger}
}

// Warn logs msg at warning level and records it together with the values of
// keyvals.
func (w *Warnings) Warn(msg string, keyvals ...interface{}) {
	level.Warn(w.logger).Log(append([]interface{}{"msg", msg}, keyvals...)...)
	for i := 0; i+1 < len(keyvals); i += 2 {
		msg += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}
	w.msgs = append(w.msgs, msg)
}

func (w *Warnings) List() []string {
	return append([]string(nil), w.msgs...)
}
