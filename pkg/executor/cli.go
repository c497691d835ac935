package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

var (
	passwordPrompt = regexp.MustCompile(`(?i)pass(word|code)\s*:\s*$`)
	usernamePrompt = regexp.MustCompile(`(?i)(user\s?name|login)\s*:\s*$`)
	loginRejected  = regexp.MustCompile(`(?i)(login invalid|authentication fail|access denied|bad secrets|% bad passwords)`)
	errReadTimeout = errors.New("timed out waiting for device")
)

const (
	maxPromptLen = 80
	settleDelay  = 100 * time.Millisecond
)

// cli drives a line oriented device shell over a byte stream. A background
// reader feeds chunks so every read can be bounded in time.
type cli struct {
	w        io.Writer
	closer   io.Closer
	chunks   chan []byte
	done     chan struct{}
	readErr  error
	pending  bytes.Buffer
	base     string
	prompt   string
	platform Platform
	host     string
}

func newCLI(r io.Reader, w io.Writer, closer io.Closer, p Platform, host string) *cli {
	c := &cli{
		w:        w,
		closer:   closer,
		chunks:   make(chan []byte, 64),
		done:     make(chan struct{}),
		platform: p,
		host:     host,
	}
	go c.readLoop(r)
	return c
}

func (c *cli) readLoop(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.readErr = err
			close(c.chunks)
			return
		}
	}
}

func (c *cli) send(line string) error {
	_, err := io.WriteString(c.w, line+"\n")
	return err
}

// matcher reports the end offset of a match in text.
type matcher func(text string) (int, bool)

func regexpTail(re *regexp.Regexp) matcher {
	return func(text string) (int, bool) {
		if re.MatchString(text) {
			return len(text), true
		}
		return 0, false
	}
}

// anyPrompt matches a trailing line that looks like a device prompt.
func anyPrompt(text string) (int, bool) {
	line := lastLine(text)
	if isPrompt(line) {
		return len(text), true
	}
	return 0, false
}

func (c *cli) basePrompt(text string) (int, bool) {
	line := lastLine(text)
	if isPrompt(line) && strings.HasPrefix(strings.TrimLeft(line, "<["), c.base) {
		return len(text), true
	}
	return 0, false
}

func lastLine(text string) string {
	text = strings.TrimRight(text, " \t")
	if i := strings.LastIndexAny(text, "\r\n"); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(text)
}

func isPrompt(line string) bool {
	if line == "" || len(line) > maxPromptLen {
		return false
	}
	switch line[len(line)-1] {
	case '>', '#', ']', '$':
		return len(line) > 1
	}
	return false
}

func promptBase(line string) string {
	return strings.TrimRight(strings.TrimLeft(line, "<["), ">#]$ ")
}

// readUntil consumes the stream until one of matchers fires and returns the
// consumed text together with the index of the matcher.
func (c *cli) readUntil(ctx context.Context, timeout time.Duration, matchers ...matcher) (string, int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		text := c.pending.String()
		for i, m := range matchers {
			if end, ok := m(text); ok {
				c.pending.Next(end)
				return text[:end], i, nil
			}
		}
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				err := c.readErr
				if err == nil {
					err = io.EOF
				}
				return text, -1, fmt.Errorf("connection closed: %w", err)
			}
			c.pending.Write(chunk)
		case <-timer.C:
			return text, -1, errReadTimeout
		case <-ctx.Done():
			return text, -1, ctx.Err()
		}
	}
}

// prepare finds the base prompt and disables paging.
func (c *cli) prepare(ctx context.Context, timeout time.Duration) error {
	if err := c.send(""); err != nil {
		return newError(Unknown, c.host, err)
	}
	text, _, err := c.readUntil(ctx, timeout, anyPrompt)
	if err != nil {
		return newError(ProtocolTimeout, c.host, fmt.Errorf("no prompt: %w", err))
	}
	c.setPrompt(lastLine(text))
	c.drain(settleDelay)
	for _, cmd := range c.platform.PagingCmds {
		if _, err := c.Exec(ctx, cmd, timeout); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) setPrompt(line string) {
	c.prompt = line
	c.base = promptBase(line)
}

func (c *cli) privileged() bool {
	return strings.HasSuffix(c.prompt, "#")
}

// Elevate sends the platform enable command and the secret when asked.
// A rejected secret, or a prompt that stays unprivileged, is PrivilegeAuthFailed.
func (c *cli) Elevate(ctx context.Context, secret string, timeout time.Duration) error {
	if c.platform.EnableCmd == "" || c.privileged() {
		return nil
	}
	if err := c.send(c.platform.EnableCmd); err != nil {
		return newError(Unknown, c.host, err)
	}
	pwd := regexpTail(passwordPrompt)
	text, which, err := c.readUntil(ctx, timeout, pwd, c.basePrompt)
	if err != nil {
		return newError(PrivilegeAuthFailed, c.host, err)
	}
	if which == 0 {
		if err := c.send(secret); err != nil {
			return newError(Unknown, c.host, err)
		}
		text, which, err = c.readUntil(ctx, timeout, pwd, c.basePrompt)
		if err != nil {
			return newError(PrivilegeAuthFailed, c.host, err)
		}
		if which == 0 {
			// asked again, the secret was rejected
			_ = c.send("\x03")
			return newError(PrivilegeAuthFailed, c.host, errors.New("secret rejected"))
		}
	}
	c.setPrompt(lastLine(text))
	if !c.privileged() {
		return newError(PrivilegeAuthFailed, c.host, fmt.Errorf("still unprivileged at %q", c.prompt))
	}
	return nil
}

// Exec runs one command and returns its output without the echoed command
// line and the trailing prompt.
func (c *cli) Exec(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	if err := c.send(cmd); err != nil {
		return "", newError(Unknown, c.host, err)
	}
	text, _, err := c.readUntil(ctx, timeout, c.basePrompt)
	if err != nil {
		if errors.Is(err, errReadTimeout) {
			return "", newError(ExecutionTimeout, c.host, fmt.Errorf("%q: %w", cmd, err))
		}
		return "", newError(Unknown, c.host, fmt.Errorf("%q: %w", cmd, err))
	}
	c.setPrompt(lastLine(text))
	return cleanOutput(text, cmd), nil
}

func cleanOutput(text, cmd string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(text, "\n")
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.Contains(lines[0], cmd) {
		lines = lines[1:]
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// drain discards everything the device sends until it stays quiet for
// the given period.
func (c *cli) drain(quiet time.Duration) {
	c.pending.Reset()
	for {
		select {
		case _, ok := <-c.chunks:
			if !ok {
				return
			}
		case <-time.After(quiet):
			return
		}
	}
}

func (c *cli) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
