package ddprofiler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddprofile"
	"github.com/suhailshergill/aurum-datadiscovery/internal/pkg/ddtask"
)

// Lifecycle errors returned by the Conductor
var (
	ErrAlreadyStarted = errors.New("conductor already started")
	ErrNotStarted     = errors.New("conductor not started")
	ErrStopped        = errors.New("conductor stopped")
)

// State is the lifecycle state of a Conductor. States only move forward.
type State int32

// Conductor states
const (
	Created State = iota
	Started
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Pipeline computes the profiles of the source a descriptor names.
type Pipeline interface {
	Profile(ctx context.Context, d ddtask.Descriptor) ([]*ddprofile.Column, error)
}

// ProfileStore receives every profile produced by a successful task.
type ProfileStore interface {
	Write(ctx context.Context, col *ddprofile.Column) error
}

// TaskResult is the outcome of executing one descriptor.
type TaskResult struct {
	Descriptor    ddtask.Descriptor
	Profiles      int // profiles accepted by the store
	WriteFailures int // profiles the store rejected
	Err           error
	Duration      time.Duration
}

// Stats is a snapshot of a Conductor's counters.
type Stats struct {
	State           State `json:"state"`
	Workers         int   `json:"workers"`
	Queued          int   `json:"queued"`
	Active          int   `json:"active"`
	Submitted       int64 `json:"submitted"`
	Completed       int64 `json:"completed"`
	Failed          int64 `json:"failed"`
	Discarded       int64 `json:"discarded"`
	ProfilesWritten int64 `json:"profiles_written"`
	WriteFailures   int64 `json:"write_failures"`
}

// Conductor schedules task descriptors onto a fixed pool of workers. Each
// worker runs the Pipeline for one descriptor at a time and forwards the
// resulting profiles to the ProfileStore.
type Conductor struct {
	pipeline Pipeline
	store    ProfileStore
	workers  int
	logger   *log.Entry
	observer func(TaskResult)

	mut    sync.Mutex
	cond   *sync.Cond
	state  State
	queue  []ddtask.Descriptor
	active int
	// idle is closed whenever there is no pending work
	idle  chan struct{}
	busy  bool
	group *errgroup.Group

	queueLen atomic.Int64

	submitted     atomic.Int64
	completed     atomic.Int64
	failed        atomic.Int64
	discarded     atomic.Int64
	written       atomic.Int64
	writeFailures atomic.Int64
}

// ConductorOption configures a Conductor
type ConductorOption func(*Conductor)

// WithPoolSize sets the number of workers.
func WithPoolSize(n int) ConductorOption {
	return func(c *Conductor) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger tasks are reported to.
func WithLogger(logger *log.Entry) ConductorOption {
	return func(c *Conductor) {
		c.logger = logger
	}
}

// WithTaskObserver registers a function called with the result of every
// executed task, from the worker that executed it.
func WithTaskObserver(f func(TaskResult)) ConductorOption {
	return func(c *Conductor) {
		c.observer = f
	}
}

// NewConductor creates a Conductor in the Created state.
func NewConductor(pipeline Pipeline, store ProfileStore, options ...ConductorOption) *Conductor {
	idle := make(chan struct{})
	close(idle)

	c := &Conductor{
		pipeline: pipeline,
		store:    store,
		workers:  runtime.NumCPU(),
		logger:   log.NewEntry(log.StandardLogger()),
		idle:     idle,
	}
	c.cond = sync.NewCond(&c.mut)
	for _, f := range options {
		f(c)
	}
	return c
}

// Start launches the worker pool. Descriptors submitted before Start are
// dispatched once the workers are running.
func (c *Conductor) Start() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	switch c.state {
	case Started:
		return ErrAlreadyStarted
	case Stopping, Stopped:
		return ErrStopped
	}
	c.state = Started

	c.group = &errgroup.Group{}
	for i := 0; i < c.workers; i++ {
		i := i
		c.group.Go(func() error {
			c.work(i)
			return nil
		})
	}
	c.logger.Infof("Started %d workers", c.workers)
	return nil
}

// Submit appends a descriptor to the queue. It never blocks.
func (c *Conductor) Submit(d ddtask.Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ddtask.ErrInvalidDescriptor)
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	if c.state >= Stopping {
		return ErrStopped
	}
	c.queue = append(c.queue, d)
	c.setQueueLenLocked()
	if !c.busy {
		c.busy = true
		c.idle = make(chan struct{})
	}
	c.cond.Signal()

	c.submitted.Add(1)
	observeSubmit(string(d.Kind()))
	return nil
}

// IsTherePendingWork reports whether a descriptor is queued or executing.
func (c *Conductor) IsTherePendingWork() bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.queue) > 0 || c.active > 0
}

// ApproxQueueLength returns the number of queued descriptors without
// taking the lock. The value may be stale.
func (c *Conductor) ApproxQueueLength() int {
	return int(c.queueLen.Load())
}

// Wait blocks until there is no pending work or ctx is done.
func (c *Conductor) Wait(ctx context.Context) error {
	c.mut.Lock()
	idle := c.idle
	c.mut.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop discards queued descriptors, waits for in-flight tasks to finish
// and for every worker to exit.
func (c *Conductor) Stop() error {
	c.mut.Lock()
	switch c.state {
	case Created:
		c.mut.Unlock()
		return ErrNotStarted
	case Stopping, Stopped:
		c.mut.Unlock()
		return ErrStopped
	}
	c.state = Stopping

	if n := len(c.queue); n > 0 {
		c.logger.Warnf("Discarding %d queued tasks", n)
		c.discarded.Add(int64(n))
	}
	c.queue = nil
	c.setQueueLenLocked()
	c.markIdleLocked()
	c.cond.Broadcast()
	group := c.group
	c.mut.Unlock()

	err := group.Wait()

	c.mut.Lock()
	c.state = Stopped
	c.mut.Unlock()
	c.logger.Info("Stopped")
	return err
}

// State returns the current lifecycle state.
func (c *Conductor) State() State {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.state
}

// Stats returns a snapshot of the Conductor's counters.
func (c *Conductor) Stats() Stats {
	c.mut.Lock()
	s := Stats{
		State:   c.state,
		Workers: c.workers,
		Queued:  len(c.queue),
		Active:  c.active,
	}
	c.mut.Unlock()

	s.Submitted = c.submitted.Load()
	s.Completed = c.completed.Load()
	s.Failed = c.failed.Load()
	s.Discarded = c.discarded.Load()
	s.ProfilesWritten = c.written.Load()
	s.WriteFailures = c.writeFailures.Load()
	return s
}

func (c *Conductor) setQueueLenLocked() {
	c.queueLen.Store(int64(len(c.queue)))
	queueLengthMetric.Set(float64(len(c.queue)))
}

// markIdleLocked closes idle if nothing is queued or executing.
func (c *Conductor) markIdleLocked() {
	if c.busy && len(c.queue) == 0 && c.active == 0 {
		c.busy = false
		close(c.idle)
	}
}
