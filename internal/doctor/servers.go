package doctor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetmon/fleetmon/internal/inventory"
	"github.com/fleetmon/fleetmon/internal/util"
)

// InventoryCheck reports how many servers serve would monitor.
type InventoryCheck struct {
	Inventory *inventory.Inventory
}

func (c *InventoryCheck) Name() string     { return "inventory" }
func (c *InventoryCheck) Category() string { return "SERVERS" }

func (c *InventoryCheck) Run() CheckResult {
	n := len(c.Inventory.Entries)
	if n == 0 {
		return result(c, StatusFail, "No servers to monitor",
			"Add hosts to ~/.ssh/config or list them under servers: in the config")
	}

	bySource := map[inventory.Source]int{}
	for _, e := range c.Inventory.Entries {
		bySource[e.Source]++
	}
	var parts []string
	for _, src := range []inventory.Source{inventory.SourceSSHConfig, inventory.SourceConfig, inventory.SourceLocal} {
		if bySource[src] > 0 {
			parts = append(parts, fmt.Sprintf("%d from %s", bySource[src], src))
		}
	}
	msg := util.Count(n, "server", "servers") + " (" + strings.Join(parts, ", ") + ")"

	if len(c.Inventory.Warnings) > 0 {
		return result(c, StatusWarn, msg+"; "+util.Count(len(c.Inventory.Warnings), "entry", "entries")+" skipped",
			strings.Join(c.Inventory.Warnings, "; "))
	}
	return result(c, StatusPass, msg, "")
}

// ReachabilityCheck dials every server's SSH port.
type ReachabilityCheck struct {
	Inventory *inventory.Inventory
	Timeout   time.Duration
	// Limit caps concurrent probes.
	Limit int
}

func (c *ReachabilityCheck) Name() string     { return "reachability" }
func (c *ReachabilityCheck) Category() string { return "SERVERS" }

func (c *ReachabilityCheck) Run() CheckResult {
	servers := c.Inventory.Servers()
	if len(servers) == 0 {
		return result(c, StatusWarn, "No servers to probe", "")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	probes := inventory.ProbeAll(context.Background(), servers, timeout, c.Limit)
	var down []string
	for _, p := range probes {
		if !p.OK() {
			down = append(down, p.ServerID+" ("+p.Reason.String()+")")
		}
	}

	switch {
	case len(down) == 0:
		return result(c, StatusPass, "All "+util.Count(len(probes), "server", "servers")+" reachable", "")
	case len(down) == len(probes):
		return result(c, StatusFail, "No server reachable: "+strings.Join(down, ", "),
			"Check the network, or whether these hosts need a proxy_jump")
	}
	return result(c, StatusWarn,
		fmt.Sprintf("%d of %d unreachable: %s", len(down), len(probes), strings.Join(down, ", ")),
		"Unreachable servers will show as offline or error")
}
