// Package roster provides the device inventory and the per-device-type
// command table an inspection run works from.
package roster

import (
	"errors"
	"strings"
)

var (
	ErrRosterUnreadable      = errors.New("roster is unreadable")
	ErrMalformedCommandTable = errors.New("roster is missing its command table")
)

const (
	ProtocolSSH    = "ssh"
	ProtocolTelnet = "telnet"
)

// Credentials is the login bundle for one device.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Secret   string `json:"-"`
	Protocol string `json:"protocol" validate:"omitempty,oneof=ssh telnet"`
	Port     int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
}

// DeviceRecord is one row of the device sheet. Records are passed by value
// and never modified once loaded.
type DeviceRecord struct {
	Host        string            `json:"host" validate:"required"`
	Address     string            `json:"ip" validate:"required"`
	DeviceType  string            `json:"device_type" validate:"required"`
	Credentials Credentials       `json:"credentials"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// CommandSet maps a device type to its ordered command list.
type CommandSet map[string][]string

// Source yields the roster of a run.
type Source interface {
	ListDevices() ([]DeviceRecord, error)
	CommandsFor(deviceType string) []string
}

// CommandsFor returns the commands for deviceType, nil when the type is unknown.
func (c CommandSet) CommandsFor(deviceType string) []string {
	return c[deviceType]
}

// Add appends commands to deviceType, skipping blank entries.
func (c CommandSet) Add(deviceType string, cmds ...string) {
	for _, cmd := range cmds {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		c[deviceType] = append(c[deviceType], cmd)
	}
}

// Static is an in-memory Source.
type Static struct {
	Devices  []DeviceRecord
	Commands CommandSet
}

func (s *Static) ListDevices() ([]DeviceRecord, error) {
	out := make([]DeviceRecord, len(s.Devices))
	copy(out, s.Devices)
	return out, nil
}

func (s *Static) CommandsFor(deviceType string) []string {
	return s.Commands.CommandsFor(deviceType)
}

// Schedulable drops records without a device type. Order is preserved.
func Schedulable(devices []DeviceRecord) []DeviceRecord {
	out := make([]DeviceRecord, 0, len(devices))
	for _, d := range devices {
		if strings.TrimSpace(d.DeviceType) == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DefaultProtocol derives the session protocol from a device type tag:
// "*_telnet" types use telnet, everything else ssh.
func DefaultProtocol(deviceType string) string {
	if strings.HasSuffix(strings.ToLower(deviceType), "_telnet") {
		return ProtocolTelnet
	}
	return ProtocolSSH
}

// Loader produces the Source for a run. Load is where an unreadable or
// malformed roster is reported.
type Loader interface {
	Load() (Source, error)
}

// XLSXFile loads the workbook at the given path.
type XLSXFile string

func (p XLSXFile) Load() (Source, error) {
	return LoadXLSX(string(p))
}

func (s *Static) Load() (Source, error) { return s, nil }
