package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andrej220/devcheck/pkg/executor"
	"github.com/andrej220/devcheck/pkg/inspect"
	"github.com/andrej220/devcheck/pkg/roster"
	"github.com/stretchr/testify/assert"
)

func TestConsoleRun(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Started(3)
	c.Failure(inspect.Entry{Host: "host2", Reason: executor.AuthenticationFailed.Reason()})

	p := c.NewProgress(roster.DeviceRecord{Host: "host1"}, 2)
	p.Step()
	p.Step()
	p.Done(inspect.Result{Host: "host1", Outcome: inspect.Connected})

	p = c.NewProgress(roster.DeviceRecord{Host: "host3"}, 3)
	p.Step()
	p.Done(inspect.Result{Host: "host3", Outcome: inspect.Connected, Err: errors.New("timeout"),
		Reason: executor.ExecutionTimeout.Reason()})

	c.Finished(inspect.Summary{Devices: 3, Failures: 1, Partial: 1, Elapsed: 2500 * time.Millisecond, OutputDir: "/tmp/2024.05.17"})

	out := buf.String()
	assert.Contains(t, out, "3 devices")
	assert.Contains(t, out, "device host2 username or password authentication failed!")
	assert.Contains(t, out, "host1")
	assert.Contains(t, out, "2 commands")
	assert.Contains(t, out, "1/3 commands, command execution timed out!")
	assert.Contains(t, out, "inspection finished: 3 devices, 1 failed, 2.5 s")
	assert.Contains(t, out, "/tmp/2024.05.17")
}

func TestCountdown(t *testing.T) {
	var buf bytes.Buffer
	Countdown(context.Background(), &buf, 2*time.Second)
	assert.Equal(t, 2, strings.Count(buf.String(), "exiting in"))
	assert.Contains(t, buf.String(), "exiting in 1 s")
}

func TestCountdownCancelled(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	Countdown(ctx, &buf, 5*time.Second)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, strings.Count(buf.String(), "exiting in"))
}

func TestFormatError(t *testing.T) {
	out := FormatError("roster unreadable", "open info.xlsx: no such file", "run from the roster's directory")
	assert.Contains(t, out, "Error: roster unreadable")
	assert.Contains(t, out, "open info.xlsx")
	assert.Contains(t, out, "Hint: run from the roster's directory")
}
