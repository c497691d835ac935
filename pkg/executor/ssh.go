package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andrej220/devcheck/pkg/roster"
	"golang.org/x/crypto/ssh"
)

const (
	DefaultSSHPort    = 22
	DefaultTelnetPort = 23
)

// Network gear often only speaks the older algorithms, so they are offered
// after the modern ones.
var (
	sshKeyExchanges = []string{
		"curve25519-sha256", "curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1",
		"diffie-hellman-group-exchange-sha256", "diffie-hellman-group-exchange-sha1",
		"diffie-hellman-group1-sha1",
	}
	sshCiphers = []string{
		"aes128-gcm@openssh.com", "chacha20-poly1305@openssh.com",
		"aes128-ctr", "aes192-ctr", "aes256-ctr",
		"aes128-cbc", "3des-cbc",
	}
)

type sshSession struct {
	*cli
	client  *ssh.Client
	session *ssh.Session
	secret  string
	timeout time.Duration
}

func sshClientConfig(dev roster.DeviceRecord, timeout time.Duration) *ssh.ClientConfig {
	password := dev.Credentials.Password
	// many devices only offer keyboard-interactive for password logins
	answer := func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	}
	return &ssh.ClientConfig{
		User:            dev.Credentials.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(password), ssh.KeyboardInteractive(answer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
		BannerCallback:  func(message string) error { return nil }, //ignore banner
		Config: ssh.Config{
			KeyExchanges: sshKeyExchanges,
			Ciphers:      sshCiphers,
		},
	}
}

func hostPort(dev roster.DeviceRecord, defaultPort int) string {
	port := dev.Credentials.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(dev.Address, strconv.Itoa(port))
}

func dialTCP(ctx context.Context, dev roster.DeviceRecord, addr string, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newError(KindOf(err), dev.Host, fmt.Errorf("dial %s: %w", addr, err))
	}
	return conn, nil
}

func openSSH(ctx context.Context, dev roster.DeviceRecord, opts Options) (Session, error) {
	addr := hostPort(dev, DefaultSSHPort)
	conn, err := dialTCP(ctx, dev, addr, opts.DialTimeout)
	if err != nil {
		return nil, err
	}

	_ = conn.SetDeadline(time.Now().Add(opts.DialTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshClientConfig(dev, opts.DialTimeout))
	if err != nil {
		conn.Close()
		return nil, newError(classifyHandshake(err), dev.Host, err)
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, newError(Unknown, dev.Host, fmt.Errorf("new session: %w", err))
	}
	s, err := startShell(client, session, dev)
	if err != nil {
		session.Close()
		client.Close()
		return nil, newError(Unknown, dev.Host, err)
	}
	s.timeout = opts.DialTimeout
	if err := s.prepare(ctx, opts.DialTimeout); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func startShell(client *ssh.Client, session *ssh.Session, dev roster.DeviceRecord) (*sshSession, error) {
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 0, 511, modes); err != nil {
		return nil, fmt.Errorf("request pty: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := session.Shell(); err != nil {
		return nil, fmt.Errorf("start shell: %w", err)
	}
	return &sshSession{
		cli:     newCLI(stdout, stdin, nil, PlatformFor(dev.DeviceType), dev.Host),
		client:  client,
		session: session,
		secret:  dev.Credentials.Secret,
	}, nil
}

func classifyHandshake(err error) Kind {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return AuthenticationFailed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ProtocolTimeout
	}
	// some handshake paths flatten the deadline error into text
	if errors.Is(err, os.ErrDeadlineExceeded) || strings.Contains(err.Error(), "i/o timeout") {
		return ProtocolTimeout
	}
	return Unknown
}

func (s *sshSession) Elevate(ctx context.Context) error {
	return s.cli.Elevate(ctx, s.secret, s.timeout)
}

func (s *sshSession) Close() error {
	s.cli.Close()
	s.session.Close()
	return s.client.Close()
}
