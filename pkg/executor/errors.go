package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind classifies why a session or command failed.
type Kind int

const (
	Unknown Kind = iota
	MissingManagementAddress
	AddressUnreachable
	AuthenticationFailed
	PrivilegeAuthFailed
	ConnectionRefused
	ProtocolTimeout
	ExecutionTimeout
)

var kindNames = map[Kind]string{
	Unknown:                  "Unknown",
	MissingManagementAddress: "MissingManagementAddress",
	AddressUnreachable:       "AddressUnreachable",
	AuthenticationFailed:     "AuthenticationFailed",
	PrivilegeAuthFailed:      "PrivilegeAuthFailed",
	ConnectionRefused:        "ConnectionRefused",
	ProtocolTimeout:          "ProtocolTimeout",
	ExecutionTimeout:         "ExecutionTimeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Reason is the operator facing text for k. Unknown carries no text of its
// own, callers append the raw detail.
func (k Kind) Reason() string {
	switch k {
	case MissingManagementAddress:
		return "is missing its management address!"
	case AddressUnreachable:
		return "management address or port is unreachable!"
	case AuthenticationFailed:
		return "username or password authentication failed!"
	case PrivilegeAuthFailed:
		return "enable password authentication failed!"
	case ConnectionRefused:
		return "refused the connection request!"
	case ProtocolTimeout:
		return "session setup timed out!"
	case ExecutionTimeout:
		return "command execution timed out!"
	default:
		return "unknown error:"
	}
}

var ErrExecutionTimeout = errors.New("command execution timed out")

// SessionError is returned by Dialer and Session implementations.
type SessionError struct {
	Kind Kind
	Host string
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Host, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Host, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

func (e *SessionError) Is(target error) bool {
	return target == ErrExecutionTimeout && e.Kind == ExecutionTimeout
}

func newError(kind Kind, host string, err error) *SessionError {
	return &SessionError{Kind: kind, Host: host, Err: err}
}

// KindOf classifies err. A SessionError anywhere in the chain wins; plain
// transport errors are mapped by their nature.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrExecutionTimeout) {
		return ExecutionTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ConnectionRefused
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return AddressUnreachable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return AddressUnreachable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return AddressUnreachable
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return AuthenticationFailed
	}
	return Unknown
}

// Describe renders the ledger reason for err: the kind's text, or the raw
// detail for anything uncategorized.
func Describe(err error) string {
	k := KindOf(err)
	if k != Unknown {
		return k.Reason()
	}
	detail := err
	var se *SessionError
	if errors.As(err, &se) && se.Err != nil {
		detail = se.Err
	}
	return fmt.Sprintf("%s %v", k.Reason(), detail)
}
