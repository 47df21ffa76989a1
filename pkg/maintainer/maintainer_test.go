package maintainer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nodefailer/corectl/pkg/clock"
	"github.com/nodefailer/corectl/pkg/jobcontrol"
	"github.com/stretchr/testify/assert"
)

type countingTask struct {
	name     string
	interval time.Duration
	calls    int32
	err      error
}

func (t *countingTask) Name() string            { return t.name }
func (t *countingTask) Interval() time.Duration { return t.interval }
func (t *countingTask) Step(ctx context.Context) error {
	atomic.AddInt32(&t.calls, 1)
	return t.err
}

func TestScheduler_TicksRegisteredTask(t *testing.T) {
	task := &countingTask{name: "probe", interval: 10 * time.Millisecond}
	sched := NewScheduler(jobcontrol.AlwaysOpen{}, clock.System{})
	sched.Register(task)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Serve(ctx)
		close(done)
	}()
	<-done

	assert.GreaterOrEqual(t, atomic.LoadInt32(&task.calls), int32(2))
}

func TestScheduler_SkipsTickWhenGateClosed(t *testing.T) {
	task := &countingTask{name: "probe", interval: 10 * time.Millisecond}
	gate := jobcontrol.NewMapGate()
	gate.Close("probe")
	sched := NewScheduler(gate, clock.System{})
	sched.Register(task)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Serve(ctx)
		close(done)
	}()
	<-done

	assert.Equal(t, int32(0), atomic.LoadInt32(&task.calls))
}

func TestScheduler_TaskErrorDoesNotStopOtherTasks(t *testing.T) {
	failing := &countingTask{name: "failing", interval: 10 * time.Millisecond, err: assertError{}}
	healthy := &countingTask{name: "healthy", interval: 10 * time.Millisecond}
	sched := NewScheduler(jobcontrol.AlwaysOpen{}, clock.System{})
	sched.Register(failing)
	sched.Register(healthy)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Serve(ctx)
	}()
	wg.Wait()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&failing.calls), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&healthy.calls), int32(2))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
