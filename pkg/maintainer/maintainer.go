// Package maintainer runs the node-failure core's periodic maintainers
// (the failer, the expirer) under a thejerf/suture supervisor tree,
// generalizing the example fleet daemon's layered supervisor from
// data/messaging/api services to the maintenance core's own task set.
package maintainer

import (
	"context"
	"fmt"
	"time"

	"github.com/nodefailer/corectl/pkg/clock"
	"github.com/nodefailer/corectl/pkg/jobcontrol"
	"github.com/nodefailer/corectl/pkg/log"
	"github.com/nodefailer/corectl/pkg/metrics"
	"github.com/thejerf/suture/v4"
)

var logger = log.WithComponent("maintainer")

// Task is the contract every maintainer (the failer, the expirer) must
// satisfy: a name for the job-control gate and metrics, a tick cadence,
// and the tick itself.
type Task interface {
	Name() string
	Interval() time.Duration
	Step(ctx context.Context) error
}

// Scheduler supervises a set of Tasks, invoking each on its own cadence,
// gated by a job-control Gate, never letting one task's failure take
// down another.
type Scheduler struct {
	supervisor *suture.Supervisor
	gate       jobcontrol.Gate
	clk        clock.Clock
}

// defaultSpec mirrors suture's own documented defaults; the core does
// not need the aggressive tuning a network-facing service might.
func defaultSpec() suture.Spec {
	return suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	}
}

// NewScheduler creates a Scheduler gated by gate. A nil gate defaults to
// jobcontrol.AlwaysOpen.
func NewScheduler(gate jobcontrol.Gate, clk clock.Clock) *Scheduler {
	if gate == nil {
		gate = jobcontrol.AlwaysOpen{}
	}
	return &Scheduler{
		supervisor: suture.New("maintainer", defaultSpec()),
		gate:       gate,
		clk:        clk,
	}
}

// Register adds task to the supervisor tree, to tick on its own cadence
// starting the next time Serve polls it.
func (s *Scheduler) Register(task Task) suture.ServiceToken {
	return s.supervisor.Add(&taskService{task: task, gate: s.gate, clk: s.clk})
}

// Remove stops and removes a previously-registered task.
func (s *Scheduler) Remove(token suture.ServiceToken) error {
	return s.supervisor.Remove(token)
}

// Serve runs every registered task until ctx is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	return s.supervisor.Serve(ctx)
}

// taskService adapts a Task to suture.Service: a ticker loop that
// consults the job-control gate before each Step, catches and logs
// Step errors without propagating them (so a single bad tick never
// triggers a suture restart), and recovers a panic in a tick, logging it
// and carrying on with the next tick.
type taskService struct {
	task Task
	gate jobcontrol.Gate
	clk  clock.Clock
}

// Serve implements suture.Service.
func (t *taskService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.task.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *taskService) tick(ctx context.Context) {
	name := t.task.Name()

	if !t.gate.IsRunnable(name) {
		metrics.MaintainerTickSkipped.WithLabelValues(name).Inc()
		logger.Debug().Str("maintainer", name).Msg("tick skipped, job gate closed")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("maintainer", name).Interface("panic", r).Msg("maintainer tick panicked")
		}
	}()

	if err := t.task.Step(ctx); err != nil {
		logger.Error().Str("maintainer", name).Err(err).Msg("maintainer tick failed")
	}
}

// String names this service for suture's logging.
func (t *taskService) String() string {
	return fmt.Sprintf("maintainer-task[%s]", t.task.Name())
}
