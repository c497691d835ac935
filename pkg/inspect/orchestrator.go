// Package inspect runs one inspection of a device fleet: one task per
// device, at most a fixed number of open sessions at a time, per-device
// failures recorded in a shared ledger and a summary once every task has
// finished.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/andrej220/devcheck/internal/lg"
	"github.com/andrej220/devcheck/pkg/executor"
	"github.com/andrej220/devcheck/pkg/gate"
	"github.com/andrej220/devcheck/pkg/persistence"
	"github.com/andrej220/devcheck/pkg/report"
	"github.com/andrej220/devcheck/pkg/roster"
	dm "github.com/andrej220/devcheck/pkg/shared-models"
	"github.com/andrej220/devcheck/pkg/workerpool"
	"github.com/google/uuid"
)

var (
	ErrAborted  = errors.New("inspection aborted")
	errNoResult = errors.New("task ended without a result")
)

type State int32

const (
	Idle State = iota
	Loading
	Scheduling
	Running
	Joined
	Summarized
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Scheduling:
		return "scheduling"
	case Running:
		return "running"
	case Joined:
		return "joined"
	case Summarized:
		return "summarized"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Summary is produced once all tasks of a run have joined.
type Summary struct {
	RunID     uuid.UUID     `json:"runid"`
	Started   time.Time     `json:"started"`
	OutputDir string        `json:"output_dir"`
	Devices   int           `json:"devices"`
	Connected int           `json:"connected"`
	Partial   int           `json:"partial"`
	Failures  int           `json:"failures"`
	Elapsed   time.Duration `json:"elapsed"`
	Results   []Result      `json:"-"`
}

// Console is the operator facing side of a run.
type Console interface {
	Started(devices int)
	Failure(Entry)
	NewProgress(dev roster.DeviceRecord, commands int) Progress
	Finished(Summary)
}

type Config struct {
	OutputRoot  string
	Concurrency int
	ExecTimeout time.Duration
}

type Orchestrator struct {
	cfg       Config
	dialer    executor.Dialer
	console   Console
	publisher report.Publisher
	now       func() time.Time
	state     atomic.Int32
	gate      *gate.Gate
}

type Option func(*Orchestrator)

func WithConsole(c Console) Option { return func(o *Orchestrator) { o.console = c } }

func WithPublisher(p report.Publisher) Option { return func(o *Orchestrator) { o.publisher = p } }

// WithClock sets the time source that dates the run directory.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func New(cfg Config, dialer executor.Dialer, opts ...Option) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = gate.DefaultLimit
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = DefaultExecTimeout
	}
	o := &Orchestrator{
		cfg:       cfg,
		dialer:    dialer,
		publisher: report.Noop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.gate = gate.New(cfg.Concurrency)
	return o
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Gate exposes the admission gate, mainly for instrumentation.
func (o *Orchestrator) Gate() *gate.Gate { return o.gate }

func (o *Orchestrator) setState(ctx context.Context, s State) {
	o.state.Store(int32(s))
	lg.FromContext(ctx).Debug("Run state", lg.String("state", s.String()))
}

// Run drives one inspection end to end. Only a roster that cannot be loaded,
// or a run directory that cannot be created, aborts the run; every device
// failure ends up in the summary instead.
func (o *Orchestrator) Run(ctx context.Context, loader roster.Loader) (Summary, error) {
	started := o.now()
	runID := uuid.New()
	logger := lg.FromContext(ctx).With(lg.String("run_id", runID.String()))
	ctx = lg.Attach(ctx, logger)

	o.setState(ctx, Loading)
	src, devices, err := load(loader)
	if err != nil {
		o.setState(ctx, Aborted)
		return Summary{}, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	o.setState(ctx, Scheduling)
	devices = roster.Schedulable(devices)
	dir, err := persistence.PrepareRunDir(o.cfg.OutputRoot, started)
	if err != nil {
		o.setState(ctx, Aborted)
		return Summary{}, fmt.Errorf("%w: %w", ErrAborted, err)
	}
	events := o.startFailureEvents(ctx, len(devices))
	ledger := NewFailureLedger(filepath.Join(dir, persistence.LedgerFileName), o.onFailure(ctx, runID, events.queue))
	logger.Info("Inspection started", lg.Int("devices", len(devices)), lg.String("output", dir),
		lg.Int("concurrency", o.gate.Limit()))
	if o.console != nil {
		o.console.Started(len(devices))
	}

	o.setState(ctx, Running)
	results := make([]Result, len(devices))
	tasks := make([]*Task, len(devices))
	pool := workerpool.NewPool[roster.DeviceRecord](o.gate)
	for i, dev := range devices {
		task := o.newTask(dev, src.CommandsFor(dev.DeviceType), ledger, dir)
		tasks[i] = task
		results[i] = Result{Host: dev.Host, Address: dev.Address}
		err := pool.Submit(workerpool.Job[roster.DeviceRecord]{
			Payload: dev,
			Ctx:     ctx,
			Fn: func(ctx context.Context, _ roster.DeviceRecord) error {
				results[i] = task.Run(ctx)
				return results[i].Err
			},
		})
		if err != nil {
			// never admitted, it still owes the run a result
			results[i] = task.fail(logger.With(lg.String("host", dev.Host)), results[i], err)
		}
	}
	pool.Wait()
	for i, r := range results {
		if r.Outcome == Pending {
			results[i] = tasks[i].fail(logger.With(lg.String("host", r.Host)), r, errNoResult)
		}
	}
	events.drain()
	o.setState(ctx, Joined)

	summary := o.summarize(ctx, runID, started, dir, results, ledger)
	o.setState(ctx, Summarized)
	o.finish(ctx, summary)
	return summary, nil
}

func load(loader roster.Loader) (roster.Source, []roster.DeviceRecord, error) {
	src, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	devices, err := src.ListDevices()
	if err != nil {
		return nil, nil, err
	}
	return src, devices, nil
}

func (o *Orchestrator) newTask(dev roster.DeviceRecord, cmds []string, ledger *FailureLedger, dir string) *Task {
	t := &Task{
		Device:      dev,
		Commands:    cmds,
		Dialer:      o.dialer,
		Ledger:      ledger,
		RunDir:      dir,
		ExecTimeout: o.cfg.ExecTimeout,
	}
	if o.console != nil {
		t.Progress = o.console.NewProgress(dev, len(cmds))
	}
	return t
}

// onFailure shows every ledger entry on the console right away and queues
// it for the report publisher.
func (o *Orchestrator) onFailure(ctx context.Context, runID uuid.UUID, queue chan<- dm.FailureEvent) func(Entry) {
	logger := lg.FromContext(ctx)
	return func(e Entry) {
		if o.console != nil {
			o.console.Failure(e)
		}
		ev := dm.FailureEvent{
			RunID:   runID,
			Host:    e.Host,
			Address: e.Address,
			Kind:    e.Kind.String(),
			Reason:  e.Reason,
			Time:    o.now(),
		}
		select {
		case queue <- ev:
		default:
			logger.Warn("Failure event dropped, queue full", lg.String("host", e.Host))
		}
	}
}

// failureEvents publishes failure events off the task path, so a slow or
// unreachable broker never holds a concurrency slot.
type failureEvents struct {
	queue chan dm.FailureEvent
	done  chan struct{}
}

// startFailureEvents sizes the queue for one failure per device.
func (o *Orchestrator) startFailureEvents(ctx context.Context, devices int) *failureEvents {
	logger := lg.FromContext(ctx)
	fe := &failureEvents{
		queue: make(chan dm.FailureEvent, devices),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(fe.done)
		for ev := range fe.queue {
			if err := o.publisher.PublishFailure(ctx, ev); err != nil {
				logger.Warn("Failure event not published", lg.String("host", ev.Host), lg.Err(err))
			}
		}
	}()
	return fe
}

// drain waits until every queued event has been handed to the publisher.
// No failure may be recorded afterwards.
func (fe *failureEvents) drain() {
	close(fe.queue)
	<-fe.done
}

func (o *Orchestrator) summarize(ctx context.Context, runID uuid.UUID, started time.Time, dir string, results []Result, ledger *FailureLedger) Summary {
	logger := lg.FromContext(ctx)
	s := Summary{
		RunID:     runID,
		Started:   started,
		OutputDir: dir,
		Devices:   len(results),
		Failures:  ledger.Len(),
		Results:   results,
	}
	for _, r := range results {
		if r.Outcome == Connected {
			s.Connected++
			if r.Partial() {
				s.Partial++
			}
		}
	}
	if persisted, err := ledger.Persisted(); err != nil {
		logger.Warn("Failure log not readable", lg.Err(err))
	} else if persisted != s.Failures {
		logger.Warn("Failure log out of step with ledger", lg.Int("ledger", s.Failures), lg.Int("file", persisted))
	}
	if s.Connected+s.Failures != s.Devices {
		logger.Error("Result count mismatch",
			lg.Int("devices", s.Devices), lg.Int("connected", s.Connected), lg.Int("failures", s.Failures))
	}
	s.Elapsed = o.now().Sub(started)
	return s
}

func (o *Orchestrator) finish(ctx context.Context, s Summary) {
	logger := lg.FromContext(ctx)
	logger.Info("Inspection finished",
		lg.Int("devices", s.Devices), lg.Int("connected", s.Connected), lg.Int("partial", s.Partial),
		lg.Int("failures", s.Failures), lg.Duration("elapsed", s.Elapsed))

	if _, err := persistence.WriteSummary(s.OutputDir, s); err != nil {
		logger.Warn("Summary not written", lg.Err(err))
	}
	ev := dm.SummaryEvent{
		RunID:          s.RunID,
		Started:        s.Started,
		Devices:        s.Devices,
		Connected:      s.Connected,
		Partial:        s.Partial,
		Failures:       s.Failures,
		ElapsedSeconds: s.Elapsed.Seconds(),
		OutputDir:      s.OutputDir,
	}
	if err := o.publisher.PublishSummary(ctx, ev); err != nil {
		logger.Warn("Summary event not published", lg.Err(err))
	}
	if o.console != nil {
		o.console.Finished(s)
	}
}
