package hush

import (
	"github.com/google/uuid"
	"github.com/meow-io/go-hush/metrics"
	"go.uber.org/zap"
)

// A run of one multi step operation. Every step failure names the step.
type workflow struct {
	name string
	log  *zap.SugaredLogger
}

func (s *Session) newWorkflow(name string) *workflow {
	return &workflow{
		name: name,
		log:  s.log.With("workflow", name, "op", uuid.New().String()),
	}
}

func (w *workflow) step(name string, f func() error) error {
	w.log.Debugf("starting %s", name)
	if err := f(); err != nil {
		w.log.Warnf("%s failed: %v", name, err)
		metrics.IncStepFailure(w.name, name)
		return &StepError{Workflow: w.name, Step: name, Err: err}
	}
	return nil
}

func (w *workflow) finish(err error) error {
	metrics.ObserveWorkflow(w.name, err)
	if err == nil {
		w.log.Debugf("completed")
	}
	return err
}
