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

// Package daemon serves the slot API on a unix socket.
package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/canonical/bootctl/internals/httpapi"
	"github.com/canonical/bootctl/internals/logger"
	"github.com/canonical/bootctl/internals/metrics"
)

var shutdownTimeout = time.Second

// Options holds the daemon setup required for the initialization of a new
// daemon.
type Options struct {
	// SocketPath is the path to the unix socket the API is served on.
	SocketPath string

	// Controller is the slot controller exposed by the API. It also feeds
	// the slot gauges.
	Controller httpapi.Controller
}

// A Daemon listens for requests and routes them to the slot API.
type Daemon struct {
	socketPath string
	handler    http.Handler
	listener   net.Listener
	serve      *http.Server
	tomb       tomb.Tomb
}

// New creates a new Daemon with the given options.
func New(opts *Options) (*Daemon, error) {
	if opts.SocketPath == "" {
		return nil, fmt.Errorf("internal error: no socket path")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("internal error: no controller")
	}
	registry := metrics.NewRegistry(opts.Controller)
	d := &Daemon{
		socketPath: opts.SocketPath,
		handler:    httpapi.NewAPI(opts.Controller, registry),
	}
	return d, nil
}

type wrappedWriter struct {
	w http.ResponseWriter
	s int
}

func (w *wrappedWriter) Header() http.Header {
	return w.w.Header()
}

func (w *wrappedWriter) Write(bs []byte) (int, error) {
	return w.w.Write(bs)
}

func (w *wrappedWriter) WriteHeader(s int) {
	w.w.WriteHeader(s)
	w.s = s
}

func (w *wrappedWriter) status() int {
	if w.s == 0 {
		// If status was not explicitly written, HTTP 200 is implied.
		return http.StatusOK
	}
	return w.s
}

func logit(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &wrappedWriter{w: w}
		t0 := time.Now()
		handler.ServeHTTP(ww, r)
		t := time.Since(t0)

		// Scrapes happen every few seconds and would fill the log.
		if r.Method == "GET" && r.URL.Path == "/v1/metrics" {
			logger.Debugf("%s %s %s %d", r.Method, r.URL, t, ww.status())
			return
		}
		logger.Noticef("%s %s %s %d", r.Method, r.URL, t, ww.status())
	})
}

// exitOnPanic opts out of the default net/http behaviour of recovering from
// panics in ServeHTTP goroutines, so that the server isn't left in a bad or
// deadlocked state (for example, due to a held mutex lock).
func exitOnPanic(handler http.Handler, stderr io.Writer, exit func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err != nil {
				fmt.Fprintf(stderr, "panic: %v\n\n%s", err, debug.Stack())
				exit()
			}
		}()
		handler.ServeHTTP(w, r)
	})
}

// Init sets up the listener. Don't call more than once.
func (d *Daemon) Init() error {
	listener, err := getListener(d.socketPath)
	if err != nil {
		return fmt.Errorf("when trying to listen on %s: %v", d.socketPath, err)
	}
	d.listener = listener
	logger.Noticef("Started daemon.")
	return nil
}

// Start the daemon's request handling.
func (d *Daemon) Start() error {
	if d.listener == nil {
		return fmt.Errorf("internal error: daemon not initialized")
	}
	d.serve = &http.Server{
		Handler: exitOnPanic(logit(d.handler), os.Stderr, func() {
			os.Exit(1)
		}),
	}

	d.tomb.Go(func() error {
		if err := d.serve.Serve(d.listener); err != http.ErrServerClosed && d.tomb.Err() == tomb.ErrStillAlive {
			return err
		}
		return nil
	})
	return nil
}

// Stop shuts down the daemon, waiting up to a second for in-flight
// requests.
func (d *Daemon) Stop() error {
	d.tomb.Kill(nil)

	if d.serve == nil {
		// Never started, so there is nothing to wait for.
		if d.listener != nil {
			return d.listener.Close()
		}
		return nil
	}

	// We're using the background context here because the tomb's
	// context will likely already have been cancelled when we are
	// called.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	d.tomb.Kill(d.serve.Shutdown(ctx))
	cancel()

	err := d.tomb.Wait()
	if err != nil {
		return err
	}
	logger.Noticef("Stopped daemon.")
	return nil
}

// Dying is a channel that is closed when the daemon begins to die.
func (d *Daemon) Dying() <-chan struct{} {
	return d.tomb.Dying()
}

// Err returns the death reason, or ErrStillAlive if the tomb is not in a
// dying or dead state.
func (d *Daemon) Err() error {
	return d.tomb.Err()
}

func getListener(socketPath string) (net.Listener, error) {
	if c, err := net.Dial("unix", socketPath); err == nil {
		c.Close()
		return nil, fmt.Errorf("socket %q already in use", socketPath)
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	address, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, err
	}

	runtime.LockOSThread()
	oldmask := syscall.Umask(0111)
	listener, err := net.ListenUnix("unix", address)
	syscall.Umask(oldmask)
	runtime.UnlockOSThread()
	if err != nil {
		return nil, err
	}

	logger.Debugf("Listening on %q.", socketPath)
	return listener, nil
}
