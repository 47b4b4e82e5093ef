package doctor

import (
	stderrors "errors"
	"fmt"
	"net"
	"strconv"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/errors"
)

// ConfigCheck loads and validates the config file, or the defaults when
// there is none.
type ConfigCheck struct {
	ConfigPath string // explicit path, or empty to search
}

func (c *ConfigCheck) Name() string     { return "config" }
func (c *ConfigCheck) Category() string { return "CONFIG" }

func (c *ConfigCheck) Run() CheckResult {
	cfg, path, err := config.LoadOrDefault(c.ConfigPath)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		return result(c, StatusFail, errors.Summary(err), suggestionOf(err))
	}
	if path == "" {
		return result(c, StatusWarn, "No config file, running on defaults",
			"Run 'fleetmon init' to write one you can edit")
	}
	return result(c, StatusPass, "Config file: "+path, "")
}

// PortCheck reports whether the API listen address is free.
type PortCheck struct {
	Host string
	Port int
}

func (c *PortCheck) Name() string     { return "api_port" }
func (c *PortCheck) Category() string { return "CONFIG" }

func (c *PortCheck) Run() CheckResult {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return result(c, StatusWarn,
			fmt.Sprintf("Can't listen on %s: %v", addr, err),
			"fleetmon may already be running; otherwise change server.port or set FLEETMON_PORT")
	}
	ln.Close()
	return result(c, StatusPass, "API port "+addr+" is free", "")
}

func suggestionOf(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Suggestion
	}
	return ""
}
