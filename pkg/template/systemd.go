package template

import (
	"fmt"
	"strings"
)

var SystemdTemplate = `[Unit]
Description=SAK timed sender
Requires=network-online.target
After=network-online.target

[Service]
Type=notify
NotifyAccess=main
WatchdogSec=%s

User=%s
Group=%s

ExecStart=%s start%s
ExecStop=/bin/kill -TERM $MAINPID

Restart=on-failure
RestartSec=10

SyslogIdentifier=sak-client

[Install]
WantedBy=multi-user.target
`

// UnitOptions fills SystemdTemplate
type UnitOptions struct {
	Binary   string
	Config   string
	User     string
	Watchdog string
}

// RenderUnit returns a unit file for running the client under systemd
func RenderUnit(opts UnitOptions) (string, error) {
	if opts.Binary == "" {
		return "", fmt.Errorf("binary path is required")
	}
	if strings.ContainsAny(opts.Binary, " \n") {
		return "", fmt.Errorf("binary path %q must not contain whitespace", opts.Binary)
	}
	if opts.User == "" {
		opts.User = "root"
	}
	if opts.Watchdog == "" {
		opts.Watchdog = "120s"
	}

	args := ""
	if opts.Config != "" {
		args = " --config " + opts.Config
	}

	return fmt.Sprintf(SystemdTemplate, opts.Watchdog, opts.User, opts.User, opts.Binary, args), nil
}
