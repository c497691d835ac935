// Package ui renders the operator console of a run on a terminal.
package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/andrej220/devcheck/pkg/inspect"
	"github.com/andrej220/devcheck/pkg/roster"
	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// FormatError returns a styled multi-line error message.
func FormatError(title, detail, suggestion string) string {
	out := errorStyle.Render("Error: "+title) + "\n"
	if detail != "" {
		out += "  " + detail + "\n"
	}
	if suggestion != "" {
		out += "  " + hintStyle.Render("Hint: "+suggestion) + "\n"
	}
	return out
}

// Console prints run progress. Tasks report concurrently, so every write
// goes through one lock to keep lines whole.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	total int
	done  int
}

var _ inspect.Console = (*Console)(nil)

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *Console) Started(devices int) {
	c.mu.Lock()
	c.total = devices
	c.mu.Unlock()
	c.printf("%s %d devices\n", boldStyle.Render("inspecting"), devices)
}

// Failure prints the ledger line as soon as it is recorded.
func (c *Console) Failure(e inspect.Entry) {
	c.printf("  %s %s\n", errorStyle.Render("ERR"), e.Line())
}

func (c *Console) NewProgress(dev roster.DeviceRecord, commands int) inspect.Progress {
	return &progress{c: c, host: dev.Host, planned: commands}
}

func (c *Console) Finished(s inspect.Summary) {
	line := fmt.Sprintf("inspection finished: %d devices, %d failed, %.1f s", s.Devices, s.Failures, s.Elapsed.Seconds())
	style := successStyle
	if s.Failures > 0 {
		style = warnStyle
	}
	c.printf("%s\n", style.Render(line))
	if s.Partial > 0 {
		c.printf("  %s\n", hintStyle.Render(fmt.Sprintf("%d transcripts are incomplete", s.Partial)))
	}
	c.printf("  %s %s\n", dimStyle.Render("output"), s.OutputDir)
}

func (c *Console) finishDevice() (done, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
	return c.done, c.total
}

type progress struct {
	c        *Console
	host     string
	planned  int
	executed int
}

func (p *progress) Step() { p.executed++ }

// Done prints connected devices only, failures were printed by Failure.
func (p *progress) Done(r inspect.Result) {
	done, total := p.c.finishDevice()
	if r.Outcome != inspect.Connected {
		return
	}
	counter := dimStyle.Render(fmt.Sprintf("[%d/%d]", done, total))
	if r.Partial() {
		p.c.printf("  %s %s %s %s\n", warnStyle.Render("PRT"), p.host,
			dimStyle.Render(fmt.Sprintf("%d/%d commands, %s", p.executed, p.planned, r.Reason)), counter)
		return
	}
	p.c.printf("  %s %s %s %s\n", successStyle.Render("OK "), p.host,
		dimStyle.Render(fmt.Sprintf("%d commands", p.executed)), counter)
}

// Countdown keeps a message on screen for d before the process exits,
// one line per second. It returns early when ctx is cancelled.
func Countdown(ctx context.Context, w io.Writer, d time.Duration) {
	if d <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for left := int((d + time.Second - 1) / time.Second); left > 0; left-- {
		fmt.Fprintf(w, "%s\n", hintStyle.Render(fmt.Sprintf("exiting in %d s", left)))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
