package inspect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/devcheck/internal/lg"
	"github.com/andrej220/devcheck/pkg/executor"
	"github.com/andrej220/devcheck/pkg/persistence"
	"github.com/andrej220/devcheck/pkg/roster"
)

const DefaultExecTimeout = 30 * time.Second

var errNoSession = errors.New("dialer returned no session")

type Outcome int

// Pending is the zero value: a device whose task has not produced a result.
const (
	Pending Outcome = iota
	Connected
	ConnectionFailed
)

func (o Outcome) String() string {
	switch o {
	case Connected:
		return "connected"
	case ConnectionFailed:
		return "connection failed"
	}
	return "pending"
}

// Result is the outcome of one device. A Connected result with Err set has
// a partial transcript: the command that failed and everything after it
// produced no output.
type Result struct {
	Host             string
	Address          string
	Outcome          Outcome
	TranscriptPath   string
	CommandsExecuted int
	Kind             executor.Kind
	Reason           string
	Err              error
}

func (r Result) Partial() bool {
	return r.Outcome == Connected && r.Err != nil
}

// Progress receives one step per executed command of a device.
type Progress interface {
	Step()
	Done(Result)
}

type nopProgress struct{}

func (nopProgress) Step()       {}
func (nopProgress) Done(Result) {}

// Task inspects one device. The caller holds a concurrency slot for the
// whole of Run and releases it after Run returns, which is after the
// session has been closed.
type Task struct {
	Device      roster.DeviceRecord
	Commands    []string
	Dialer      executor.Dialer
	Ledger      *FailureLedger
	RunDir      string
	ExecTimeout time.Duration
	Progress    Progress
}

// Run produces exactly one Result: a failure is also appended to the
// ledger, a connection gets a transcript.
func (t *Task) Run(ctx context.Context) (res Result) {
	logger := lg.FromContext(ctx).With(lg.String("host", t.Device.Host), lg.String("address", t.Device.Address))
	res = Result{Host: t.Device.Host, Address: t.Device.Address}
	progress := t.Progress
	if progress == nil {
		progress = nopProgress{}
	}
	defer func() { progress.Done(res) }()
	// a fault in a driver still leaves a ledger entry for the device
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task panicked", lg.Any("panic", r))
			res = t.fail(logger, res, fmt.Errorf("task panicked: %v", r))
		}
	}()

	sess, err := t.open(ctx)
	if err != nil {
		return t.fail(logger, res, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug("Session close failed", lg.Err(err))
		}
	}()

	tr, err := persistence.CreateTranscript(t.RunDir, t.Device.Host, t.Device.Address)
	if err != nil {
		return t.fail(logger, res, err)
	}
	res.Outcome = Connected
	res.TranscriptPath = tr.Path
	defer func() {
		if err := tr.Close(); err != nil {
			logger.Error("Transcript close failed", lg.Err(err))
		}
	}()

	timeout := t.ExecTimeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	for _, cmd := range t.Commands {
		if err := tr.WriteCommand(cmd); err != nil {
			res.Err = err
			break
		}
		out, err := sess.Exec(ctx, cmd, timeout)
		if err != nil {
			res.Err = err
			res.Kind = executor.KindOf(err)
			res.Reason = executor.Describe(err)
			logger.Warn("Command failed, remaining commands skipped",
				lg.String("command", cmd), lg.String("kind", res.Kind.String()), lg.Err(err))
			break
		}
		if err := tr.WriteOutput(out); err != nil {
			res.Err = err
			break
		}
		res.CommandsExecuted++
		progress.Step()
	}
	logger.Info("Device inspected",
		lg.Int("commands", res.CommandsExecuted), lg.Int("planned", len(t.Commands)), lg.Bool("partial", res.Partial()))
	return res
}

// open validates the record, opens the session and elevates it.
func (t *Task) open(ctx context.Context) (executor.Session, error) {
	if err := t.Device.Validate(); err != nil {
		if roster.MissingAddress(err) {
			return nil, &executor.SessionError{Kind: executor.MissingManagementAddress, Host: t.Device.Host, Err: err}
		}
		return nil, err
	}
	sess, err := t.Dialer.Open(ctx, t.Device)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &executor.SessionError{Kind: executor.Unknown, Host: t.Device.Host, Err: errNoSession}
	}
	if err := sess.Elevate(ctx); err != nil {
		sess.Close()
		if executor.KindOf(err) == executor.Unknown {
			err = fmt.Errorf("enable: %w", err)
		}
		return nil, err
	}
	return sess, nil
}

func (t *Task) fail(logger lg.Logger, res Result, err error) Result {
	res.Outcome = ConnectionFailed
	res.Err = err
	res.Kind = executor.KindOf(err)
	res.Reason = executor.Describe(err)
	logger.Warn("Device not inspected", lg.String("kind", res.Kind.String()), lg.Err(err))
	if lerr := t.Ledger.Append(Entry{Host: res.Host, Address: res.Address, Kind: res.Kind, Reason: res.Reason}); lerr != nil {
		logger.Error("Failure not persisted", lg.Err(lerr))
	}
	return res
}
