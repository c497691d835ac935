// Package executor opens remote CLI sessions on network devices and runs
// commands on them.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/andrej220/devcheck/pkg/roster"
)

const DefaultDialTimeout = 10 * time.Second

type Options struct {
	// DialTimeout bounds connect, login, enable and prompt discovery.
	DialTimeout time.Duration
}

// CLIDialer opens SSH or Telnet sessions depending on the record's protocol.
type CLIDialer struct {
	opts Options
}

var _ Dialer = (*CLIDialer)(nil)

func NewCLIDialer(opts Options) *CLIDialer {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	return &CLIDialer{opts: opts}
}

func (d *CLIDialer) Open(ctx context.Context, dev roster.DeviceRecord) (Session, error) {
	if dev.Address == "" {
		return nil, newError(MissingManagementAddress, dev.Host, nil)
	}
	protocol := dev.Credentials.Protocol
	if protocol == "" {
		protocol = roster.DefaultProtocol(dev.DeviceType)
	}
	switch protocol {
	case roster.ProtocolSSH:
		return openSSH(ctx, dev, d.opts)
	case roster.ProtocolTelnet:
		return openTelnet(ctx, dev, d.opts)
	default:
		return nil, newError(Unknown, dev.Host, fmt.Errorf("unsupported protocol %q", protocol))
	}
}
