package executor

import (
	"context"
	"time"

	"github.com/andrej220/devcheck/pkg/roster"
)

// Dialer opens a remote CLI session to one device.
type Dialer interface {
	Open(ctx context.Context, dev roster.DeviceRecord) (Session, error)
}

// Session is an open, logged-in CLI on a device. It is used by one task
// at a time and is not safe for concurrent use.
type Session interface {
	// Elevate enters privileged mode. Platforms without one return nil.
	Elevate(ctx context.Context) error
	// Exec runs cmd and returns its output, failing with ExecutionTimeout
	// when no prompt comes back within timeout.
	Exec(ctx context.Context, cmd string, timeout time.Duration) (string, error)
	Close() error
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, dev roster.DeviceRecord) (Session, error)

func (f DialerFunc) Open(ctx context.Context, dev roster.DeviceRecord) (Session, error) {
	return f(ctx, dev)
}
