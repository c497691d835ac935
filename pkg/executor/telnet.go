package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/andrej220/devcheck/pkg/roster"
)

// telnet protocol bytes
const (
	iac  = 255
	dont = 254
	do   = 253
	wont = 252
	will = 251
	sb   = 250
	se   = 240
)

// telnetConn strips option negotiation from the stream and refuses every
// option the peer offers or asks for.
type telnetConn struct {
	conn  net.Conn
	state int
	verb  byte
}

const (
	tsData = iota
	tsIAC
	tsVerb
	tsSub
	tsSubIAC
)

func (t *telnetConn) Read(p []byte) (int, error) {
	buf := make([]byte, len(p))
	for {
		n, err := t.conn.Read(buf)
		out, reply := t.filter(buf[:n])
		if len(reply) > 0 {
			if _, werr := t.conn.Write(reply); werr != nil && err == nil {
				err = werr
			}
		}
		copy(p, out)
		if len(out) > 0 || err != nil {
			return len(out), err
		}
	}
}

func (t *telnetConn) filter(in []byte) (out, reply []byte) {
	out = in[:0:0]
	for _, b := range in {
		switch t.state {
		case tsData:
			if b == iac {
				t.state = tsIAC
				continue
			}
			out = append(out, b)
		case tsIAC:
			switch b {
			case iac:
				out = append(out, iac)
				t.state = tsData
			case do, dont, will, wont:
				t.verb = b
				t.state = tsVerb
			case sb:
				t.state = tsSub
			default:
				t.state = tsData
			}
		case tsVerb:
			switch t.verb {
			case do:
				reply = append(reply, iac, wont, b)
			case will:
				reply = append(reply, iac, dont, b)
			}
			t.state = tsData
		case tsSub:
			if b == iac {
				t.state = tsSubIAC
			}
		case tsSubIAC:
			if b == se {
				t.state = tsData
			} else {
				t.state = tsSub
			}
		}
	}
	return out, reply
}

func (t *telnetConn) Write(p []byte) (int, error) {
	escaped := make([]byte, 0, len(p))
	for _, b := range p {
		if b == iac {
			escaped = append(escaped, iac)
		}
		escaped = append(escaped, b)
	}
	if _, err := t.conn.Write(escaped); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *telnetConn) Close() error { return t.conn.Close() }

type telnetSession struct {
	*cli
	secret  string
	timeout time.Duration
}

func openTelnet(ctx context.Context, dev roster.DeviceRecord, opts Options) (Session, error) {
	addr := hostPort(dev, DefaultTelnetPort)
	conn, err := dialTCP(ctx, dev, addr, opts.DialTimeout)
	if err != nil {
		return nil, err
	}
	return loginTelnet(ctx, &telnetConn{conn: conn}, dev, opts)
}

// loginTelnet answers the login prompts on an already connected stream.
func loginTelnet(ctx context.Context, rwc io.ReadWriteCloser, dev roster.DeviceRecord, opts Options) (Session, error) {
	s := &telnetSession{
		cli:     newCLI(rwc, rwc, rwc, PlatformFor(dev.DeviceType), dev.Host),
		secret:  dev.Credentials.Secret,
		timeout: opts.DialTimeout,
	}
	if err := s.login(ctx, dev.Credentials); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.prepare(ctx, opts.DialTimeout); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *telnetSession) login(ctx context.Context, cred roster.Credentials) error {
	user, pass := regexpTail(usernamePrompt), regexpTail(passwordPrompt)
	_, which, err := s.readUntil(ctx, s.timeout, user, pass, anyPrompt)
	if err != nil {
		return s.loginError(err)
	}
	if which == 0 {
		if err := s.send(cred.Username); err != nil {
			return newError(Unknown, s.host, err)
		}
		if _, which, err = s.readUntil(ctx, s.timeout, pass, anyPrompt); err != nil {
			return s.loginError(err)
		}
		which++
	}
	if which == 1 {
		if err := s.send(cred.Password); err != nil {
			return newError(Unknown, s.host, err)
		}
		rejected := func(text string) (int, bool) {
			if loginRejected.MatchString(text) {
				return len(text), true
			}
			return 0, false
		}
		_, which, err = s.readUntil(ctx, s.timeout, rejected, user, pass, anyPrompt)
		if err != nil {
			return s.loginError(err)
		}
		if which != 3 {
			return newError(AuthenticationFailed, s.host, errors.New("login rejected"))
		}
	}
	return nil
}

func (s *telnetSession) loginError(err error) error {
	if errors.Is(err, errReadTimeout) {
		return newError(ProtocolTimeout, s.host, fmt.Errorf("telnet login: %w", err))
	}
	return newError(Unknown, s.host, fmt.Errorf("telnet login: %w", err))
}

func (s *telnetSession) Elevate(ctx context.Context) error {
	return s.cli.Elevate(ctx, s.secret, s.timeout)
}
