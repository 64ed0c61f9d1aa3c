// Copyright (c) 2014-2020 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canonical/go-flags"

	"github.com/canonical/bootctl/internals/daemon"
	"github.com/canonical/bootctl/internals/logger"
	"github.com/canonical/bootctl/internals/systemd"
)

var shortRunHelp = "Serve the slot API"
var longRunHelp = `
The run command serves the slot operations over a unix socket until it is
interrupted. The socket defaults to the one in the configuration file.
`

type cmdRun struct {
	controllerMixin
	Socket string `long:"socket"`
}

func init() {
	AddCommand(&CmdInfo{
		Name:        "run",
		Summary:     shortRunHelp,
		Description: longRunHelp,
		Builder:     func() flags.Commander { return &cmdRun{} },
		OptionsHelp: merge(controllerOptionsHelp, map[string]string{
			"socket": "Listen on this unix socket",
		}),
	})
}

func (rcmd *cmdRun) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := runDaemon(rcmd, sigs, nil); err != nil {
		return fmt.Errorf("cannot run daemon: %w", err)
	}
	return nil
}

// notify tells the service manager about a state change, if bootctl was
// started by one.
func notify(state string) {
	if !systemd.SocketAvailable() {
		return
	}
	if err := systemd.SdNotify(state); err != nil {
		logger.Noticef("Cannot notify service manager: %v", err)
	}
}

func runDaemon(rcmd *cmdRun, ch chan os.Signal, ready chan<- func()) error {
	t0 := time.Now().Truncate(time.Millisecond)

	cfg, store, ctrl, err := rcmd.setup()
	if err != nil {
		return err
	}
	logger.Noticef("Using boot control record in %s.", store.Path())
	socketPath := cfg.Socket
	if rcmd.Socket != "" {
		socketPath = rcmd.Socket
	}

	d, err := daemon.New(&daemon.Options{
		SocketPath: socketPath,
		Controller: ctrl,
	})
	if err != nil {
		return err
	}
	if err := d.Init(); err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		d.Stop()
		return err
	}

	logger.Debugf("activation done in %v", time.Now().Truncate(time.Millisecond).Sub(t0))
	notify("READY=1")

	var stop chan struct{}
	if ready != nil {
		stop = make(chan struct{}, 1)
		ready <- func() { close(stop) }
		close(ready)
	}

out:
	for {
		select {
		case sig := <-ch:
			logger.Noticef("Exiting on %s signal.", sig)
			break out
		case <-d.Dying():
			// something called Stop()
			logger.Noticef("Server exiting!")
			break out
		case <-stop:
			break out
		}
	}

	notify("STOPPING=1")
	return d.Stop()
}
