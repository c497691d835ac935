package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/andrej220/devcheck/pkg/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice emulates a cisco-like CLI on one end of a pipe.
type fakeDevice struct {
	hostname string
	secret   string
	user     string
	password string
	silent   bool
	outputs  map[string]string
	hang     map[string]bool
}

func (d *fakeDevice) serve(conn io.ReadWriteCloser) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	write := func(s string) bool {
		_, err := conn.Write([]byte(s))
		return err == nil
	}
	readLine := func() (string, bool) {
		line, err := r.ReadString('\n')
		return strings.TrimSpace(line), err == nil
	}
	if d.silent {
		for {
			if _, ok := readLine(); !ok {
				return
			}
		}
	}
	if d.user != "" {
		write("\r\nUser Access Verification\r\n\r\nUsername: ")
		user, ok := readLine()
		if !ok {
			return
		}
		write("\r\nPassword: ")
		pass, ok := readLine()
		if !ok {
			return
		}
		if user != d.user || pass != d.password {
			write("\r\n% Login invalid\r\n\r\nUsername: ")
			for {
				if _, ok := readLine(); !ok {
					return
				}
			}
		}
	}

	mode := ">"
	prompt := func() string { return d.hostname + mode }
	write("\r\n" + prompt())
	for {
		cmd, ok := readLine()
		if !ok {
			return
		}
		write(cmd + "\r\n")
		switch {
		case cmd == "":
			write(prompt())
		case cmd == "enable":
			write("Password: ")
			secret, ok := readLine()
			if !ok {
				return
			}
			if secret == d.secret {
				mode = "#"
				write("\r\n" + prompt())
			} else {
				write("\r\n% Access denied\r\n\r\n" + prompt())
			}
		case d.hang[cmd]:
		default:
			write(d.outputs[cmd] + "\r\n" + prompt())
		}
	}
}

func startCLI(t *testing.T, dev *fakeDevice, deviceType string) *cli {
	t.Helper()
	client, server := net.Pipe()
	go dev.serve(server)
	c := newCLI(client, client, client, PlatformFor(deviceType), dev.hostname)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCLIExec(t *testing.T) {
	dev := &fakeDevice{
		hostname: "core-1",
		secret:   "en",
		outputs: map[string]string{
			"show version":  "Cisco IOS 15.2\r\nuptime is 1 day",
			"show ip route": "C 10.0.0.0/24 is directly connected",
		},
	}
	c := startCLI(t, dev, "cisco_ios")
	ctx := context.Background()

	require.NoError(t, c.prepare(ctx, time.Second))
	assert.Equal(t, "core-1>", c.prompt)

	require.NoError(t, c.Elevate(ctx, "en", time.Second))
	assert.True(t, c.privileged())

	out, err := c.Exec(ctx, "show version", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Cisco IOS 15.2\nuptime is 1 day", out)

	out, err = c.Exec(ctx, "show ip route", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "C 10.0.0.0/24 is directly connected", out)
}

func TestCLIElevateRejected(t *testing.T) {
	c := startCLI(t, &fakeDevice{hostname: "core-1", secret: "en"}, "cisco_ios")
	ctx := context.Background()
	require.NoError(t, c.prepare(ctx, time.Second))

	err := c.Elevate(ctx, "wrong", time.Second)
	require.Error(t, err)
	assert.Equal(t, PrivilegeAuthFailed, KindOf(err))
}

func TestCLIElevateNotNeeded(t *testing.T) {
	c := startCLI(t, &fakeDevice{hostname: "HUAWEI"}, "huawei")
	ctx := context.Background()
	require.NoError(t, c.prepare(ctx, time.Second))
	assert.NoError(t, c.Elevate(ctx, "", time.Second))
}

func TestCLIExecTimeout(t *testing.T) {
	dev := &fakeDevice{hostname: "core-1", hang: map[string]bool{"show tech": true}}
	c := startCLI(t, dev, "cisco_ios")
	ctx := context.Background()
	require.NoError(t, c.prepare(ctx, time.Second))

	_, err := c.Exec(ctx, "show tech", 200*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ExecutionTimeout, KindOf(err))
	assert.ErrorIs(t, err, ErrExecutionTimeout)
}

func TestCLIPrepareNoPrompt(t *testing.T) {
	c := startCLI(t, &fakeDevice{hostname: "core-1", silent: true}, "cisco_ios")
	err := c.prepare(context.Background(), 200*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ProtocolTimeout, KindOf(err))
}

func TestTelnetLogin(t *testing.T) {
	dev := roster.DeviceRecord{
		Host:        "acc-1",
		Address:     "10.0.0.3",
		DeviceType:  "cisco_ios_telnet",
		Credentials: roster.Credentials{Username: "admin", Password: "pw", Secret: "en", Protocol: roster.ProtocolTelnet},
	}
	opts := Options{DialTimeout: time.Second}

	t.Run("accepted", func(t *testing.T) {
		client, server := net.Pipe()
		go (&fakeDevice{hostname: "acc-1", user: "admin", password: "pw", secret: "en"}).serve(server)

		s, err := loginTelnet(context.Background(), client, dev, opts)
		require.NoError(t, err)
		defer s.Close()
		require.NoError(t, s.Elevate(context.Background()))
	})

	t.Run("rejected", func(t *testing.T) {
		client, server := net.Pipe()
		go (&fakeDevice{hostname: "acc-1", user: "admin", password: "other"}).serve(server)

		_, err := loginTelnet(context.Background(), client, dev, opts)
		require.Error(t, err)
		assert.Equal(t, AuthenticationFailed, KindOf(err))
	})

	t.Run("no login prompt", func(t *testing.T) {
		client, server := net.Pipe()
		go (&fakeDevice{silent: true}).serve(server)

		_, err := loginTelnet(context.Background(), client, dev, Options{DialTimeout: 200 * time.Millisecond})
		require.Error(t, err)
		assert.Equal(t, ProtocolTimeout, KindOf(err))
	})
}

func TestTelnetFilter(t *testing.T) {
	tc := &telnetConn{}
	in := []byte{iac, do, 1, 'a', iac, will, 3, 'b', iac, iac, iac, sb, 24, 1, iac, se, 'c'}

	out, reply := tc.filter(in)
	assert.Equal(t, []byte{'a', 'b', iac, 'c'}, out)
	assert.Equal(t, []byte{iac, wont, 1, iac, dont, 3}, reply)

	// negotiation split across reads
	out, reply = tc.filter([]byte{'x', iac})
	assert.Equal(t, []byte{'x'}, out)
	assert.Empty(t, reply)
	out, reply = tc.filter([]byte{do, 31, 'y'})
	assert.Equal(t, []byte{'y'}, out)
	assert.Equal(t, []byte{iac, wont, 31}, reply)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"session error", newError(PrivilegeAuthFailed, "h", nil), PrivilegeAuthFailed},
		{"wrapped session error", fmt.Errorf("open: %w", newError(AuthenticationFailed, "h", nil)), AuthenticationFailed},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ConnectionRefused},
		{"deadline", context.DeadlineExceeded, AddressUnreachable},
		{"ssh auth", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"), AuthenticationFailed},
		{"other", errors.New("boom"), Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "username or password authentication failed!", Describe(newError(AuthenticationFailed, "h", nil)))
	assert.Equal(t, "unknown error: boom", Describe(newError(Unknown, "h", errors.New("boom"))))
	assert.Equal(t, "unknown error: boom", Describe(errors.New("boom")))
}

func TestPlatformFor(t *testing.T) {
	assert.Equal(t, "cisco_ios", PlatformFor("cisco_ios_telnet").Name)
	assert.Equal(t, "enable", PlatformFor("Cisco_IOS").EnableCmd)
	assert.Empty(t, PlatformFor("huawei").EnableCmd)
	assert.Equal(t, Platform{Name: "linux"}, PlatformFor("linux"))
}

func TestCLIDialerMissingAddress(t *testing.T) {
	d := NewCLIDialer(Options{})
	_, err := d.Open(context.Background(), roster.DeviceRecord{Host: "h", DeviceType: "cisco_ios"})
	assert.Equal(t, MissingManagementAddress, KindOf(err))
}
