package roster

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers of the device sheet. Any other header is kept in Extra.
const (
	ColHost       = "host"
	ColAddress    = "ip"
	ColDeviceType = "device_type"
	ColUsername   = "username"
	ColPassword   = "password"
	ColSecret     = "secret"
	ColPort       = "port"
	ColProtocol   = "protocol"
)

// Workbook is a roster read from an xlsx file: the first sheet lists one
// device per row, the second holds one column of commands per device type.
type Workbook struct {
	Path     string
	devices  []DeviceRecord
	commands CommandSet
}

var _ Source = (*Workbook)(nil)

// LoadXLSX reads and validates the workbook at path.
func LoadXLSX(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRosterUnreadable, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s has no sheets", ErrRosterUnreadable, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: device sheet: %v", ErrRosterUnreadable, path, err)
	}
	if len(sheets) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedCommandTable, path)
	}
	cols, err := f.GetCols(sheets[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCommandTable, path, err)
	}

	return &Workbook{
		Path:     path,
		devices:  parseDevices(rows),
		commands: parseCommands(cols),
	}, nil
}

func (w *Workbook) ListDevices() ([]DeviceRecord, error) {
	out := make([]DeviceRecord, len(w.devices))
	copy(out, w.devices)
	return out, nil
}

func (w *Workbook) CommandsFor(deviceType string) []string {
	return w.commands.CommandsFor(deviceType)
}

func parseDevices(rows [][]string) []DeviceRecord {
	if len(rows) == 0 {
		return nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var devices []DeviceRecord
	for _, row := range rows[1:] {
		cells := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" || i >= len(row) {
				continue
			}
			cells[h] = strings.TrimSpace(row[i])
		}
		// blank rows and rows without a device type are not scheduled
		if cells[ColDeviceType] == "" {
			continue
		}
		devices = append(devices, recordFromCells(cells))
	}
	return devices
}

func recordFromCells(cells map[string]string) DeviceRecord {
	d := DeviceRecord{
		Host:       cells[ColHost],
		Address:    cells[ColAddress],
		DeviceType: cells[ColDeviceType],
		Credentials: Credentials{
			Username: cells[ColUsername],
			Password: cells[ColPassword],
			Secret:   cells[ColSecret],
			Protocol: strings.ToLower(cells[ColProtocol]),
		},
	}
	if d.Credentials.Protocol == "" {
		d.Credentials.Protocol = DefaultProtocol(d.DeviceType)
	}
	if p := cells[ColPort]; p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			port = -1
		}
		d.Credentials.Port = port
	}
	for k, v := range cells {
		switch k {
		case ColHost, ColAddress, ColDeviceType, ColUsername, ColPassword, ColSecret, ColPort, ColProtocol:
		default:
			if v == "" {
				continue
			}
			if d.Extra == nil {
				d.Extra = make(map[string]string)
			}
			d.Extra[k] = v
		}
	}
	return d
}

func parseCommands(cols [][]string) CommandSet {
	set := make(CommandSet, len(cols))
	for _, col := range cols {
		if len(col) == 0 {
			continue
		}
		deviceType := strings.TrimSpace(col[0])
		if deviceType == "" {
			continue
		}
		set.Add(deviceType, col[1:]...)
	}
	return set
}
