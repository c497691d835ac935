package executor

import "strings"

// Platform adapts the CLI driver to a device family.
type Platform struct {
	Name       string
	PagingCmds []string
	// EnableCmd is empty for platforms without a privileged mode.
	EnableCmd string
}

var platforms = map[string]Platform{
	"cisco_ios":     {Name: "cisco_ios", PagingCmds: []string{"terminal length 0", "terminal width 511"}, EnableCmd: "enable"},
	"cisco_xe":      {Name: "cisco_xe", PagingCmds: []string{"terminal length 0", "terminal width 511"}, EnableCmd: "enable"},
	"cisco_nxos":    {Name: "cisco_nxos", PagingCmds: []string{"terminal length 0"}, EnableCmd: "enable"},
	"cisco_asa":     {Name: "cisco_asa", PagingCmds: []string{"terminal pager 0"}, EnableCmd: "enable"},
	"ruijie_os":     {Name: "ruijie_os", PagingCmds: []string{"terminal length 0"}, EnableCmd: "enable"},
	"arista_eos":    {Name: "arista_eos", PagingCmds: []string{"terminal length 0"}, EnableCmd: "enable"},
	"huawei":        {Name: "huawei", PagingCmds: []string{"screen-length 0 temporary"}},
	"hp_comware":    {Name: "hp_comware", PagingCmds: []string{"screen-length disable"}},
	"juniper_junos": {Name: "juniper_junos", PagingCmds: []string{"set cli screen-length 0"}},
}

// PlatformFor resolves a roster device type such as "cisco_ios_telnet" to
// its platform. Unknown types get a plain driver without paging or enable.
func PlatformFor(deviceType string) Platform {
	name := strings.ToLower(deviceType)
	name = strings.TrimSuffix(name, "_telnet")
	name = strings.TrimSuffix(name, "_ssh")
	if p, ok := platforms[name]; ok {
		return p
	}
	return Platform{Name: name}
}
