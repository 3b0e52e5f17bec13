// server.go - Reference store-and-forward provider.
// Copyright (C) 2026  Katzenpost Developers.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package provider implements a store-and-forward provider: it registers
// client addresses, holds the messages delivered to them, and hands the
// messages over when a client pulls with its auth token.
package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sfw/constants"
	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/core/log"
	"github.com/katzenpost/sfw/core/worker"
	"github.com/katzenpost/sfw/instrument"
	"github.com/katzenpost/sfw/internal/profiling"
	"github.com/katzenpost/sfw/provider/config"
	"github.com/katzenpost/sfw/spool"
	"github.com/katzenpost/sfw/spool/boltspool"
	"github.com/katzenpost/sfw/userdb"
	"github.com/katzenpost/sfw/userdb/boltuserdb"
)

const (
	userDBFile = "users.db"
	spoolFile  = "spool.db"
)

// ErrUnknownRecipient is the error returned when storing a message for an
// address that is not registered.
var ErrUnknownRecipient = errors.New("provider: recipient is not registered")

// Server is a provider instance.
type Server struct {
	sync.WaitGroup

	cfg *config.Config

	logBackend *log.Backend
	log        *logging.Logger

	userDB userdb.UserDB
	spool  spool.Spool

	listener net.Listener
	vacuum   worker.Worker
	metrics  *http.Server
	profStop func()

	fatalErrCh chan error
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

func (s *Server) initDataDir() error {
	const dirMode = os.ModeDir | 0700
	d := s.cfg.Server.DataDir

	// Initialize the data directory, by ensuring that it exists (or can be
	// created), and that it has the appropriate permissions.
	if fi, err := os.Lstat(d); err != nil {
		// Directory doesn't exist, create one.
		if !os.IsNotExist(err) {
			return fmt.Errorf("provider: failed to stat() DataDir: %v", err)
		}
		if err = os.Mkdir(d, dirMode); err != nil {
			return fmt.Errorf("provider: failed to create DataDir: %v", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("provider: DataDir '%v' is not a directory", d)
		}
		if fi.Mode() != dirMode {
			return fmt.Errorf("provider: DataDir '%v' has invalid permissions '%v', should be '%v'", d, fi.Mode(), dirMode)
		}
	}

	return nil
}

func (s *Server) initLogging() error {
	p := s.cfg.Logging.File
	if !s.cfg.Logging.Disable && s.cfg.Logging.File != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.cfg.Server.DataDir, p)
		}
	}

	var err error
	s.logBackend, err = log.New(p, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.log = s.logBackend.GetLogger("provider")
	}
	return err
}

// Addr returns the address the client facing listener is bound to.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// StoreMessage queues msg for delivery to the registered address u.
func (s *Server) StoreMessage(u identity.ClientAddress, msg []byte) error {
	if !s.userDB.Exists(u) {
		return ErrUnknownRecipient
	}
	if err := s.spool.StoreMessage(u, msg); err != nil {
		s.log.Errorf("Failed to spool message for %v: %v", u, err)
		return err
	}
	instrument.MessageStored()
	return nil
}

// RotateLog rotates the log file if logging to a file is enabled.
func (s *Server) RotateLog() {
	err := s.logBackend.Rotate()
	if err != nil {
		s.fatalErrCh <- fmt.Errorf("failed to rotate log file, shutting down server")
	}
	s.log.Notice("Log rotated.")
}

// Wait waits till the server is terminated for any reason.
func (s *Server) Wait() {
	<-s.haltedCh
}

// Shutdown cleanly shuts down a given Server instance.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

func (s *Server) listenWorker(l net.Listener) {
	addr := l.Addr()
	s.log.Noticef("Listening on: %v", addr)
	defer func() {
		s.log.Noticef("Stopping listening on: %v", addr)
		l.Close()
		s.Done()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var e net.Error
			if errors.As(err, &e) && !e.Timeout() {
				s.log.Errorf("Critical accept failure: %v", err)
				return
			}
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(constants.KeepAliveInterval)
		}
		s.log.Debugf("Accepted new connection: %v", conn.RemoteAddr())

		s.Add(1)
		go s.onConn(conn)
	}

	// NOTREACHED
}

func (s *Server) vacuumWorker() {
	ticker := time.NewTicker(s.cfg.Debug.SpoolVacuumInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.vacuum.HaltCh():
			return
		case <-ticker.C:
		}
		if err := s.spool.Vacuum(s.userDB); err != nil {
			s.log.Warningf("Failed to vacuum spool: %v", err)
		}
	}
}

func (s *Server) halt() {
	s.log.Notice("Starting graceful shutdown.")

	// Halt the listener.
	if s.listener != nil {
		s.listener.Close()
	}

	// Wait for all the connections to terminate.
	s.WaitGroup.Wait()

	s.vacuum.Halt()
	if s.metrics != nil {
		s.metrics.Close()
	}
	if s.profStop != nil {
		s.profStop()
	}
	if s.spool != nil {
		s.spool.Close()
		s.spool = nil
	}
	if s.userDB != nil {
		s.userDB.Close()
		s.userDB = nil
	}
	close(s.fatalErrCh)

	s.log.Notice("Shutdown complete.")
	close(s.haltedCh)
}

// New returns a new Server instance parameterized with the specific
// configuration.
func New(cfg *config.Config) (*Server, error) {
	s := new(Server)
	s.cfg = cfg
	s.fatalErrCh = make(chan error)
	s.haltedCh = make(chan interface{})

	// Do the early initialization and bring up logging.
	if err := s.initDataDir(); err != nil {
		return nil, err
	}
	if err := s.initLogging(); err != nil {
		return nil, err
	}

	if s.cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Unsafe Debug logging is enabled.")
	}

	// Past this point, failures need to call s.Shutdown() to do cleanup.
	isOk := false
	defer func() {
		if !isOk {
			s.Shutdown()
		}
	}()

	// Start the fatal error watcher.
	go func() {
		err, ok := <-s.fatalErrCh
		if !ok {
			return
		}
		s.log.Warningf("Shutting down due to error: %v", err)
		s.Shutdown()
	}()

	var err error
	if s.userDB, err = boltuserdb.New(filepath.Join(s.cfg.Server.DataDir, userDBFile)); err != nil {
		s.log.Errorf("Failed to open user database: %v", err)
		return nil, err
	}
	if s.spool, err = boltspool.New(filepath.Join(s.cfg.Server.DataDir, spoolFile)); err != nil {
		s.log.Errorf("Failed to open spool: %v", err)
		return nil, err
	}
	s.vacuum.Go(s.vacuumWorker)

	if s.profStop, err = profiling.Start(s.log, "sfwprovider", s.cfg.Server.Identifier); err != nil {
		s.log.Warningf("Profiling not started: %v", err)
	}
	if s.cfg.Server.MetricsAddress != "" {
		s.metrics = instrument.StartPrometheusListener(s.cfg.Server.MetricsAddress, s.log)
	}

	// Start up the listener.
	addr := s.cfg.Server.Address
	if s.cfg.Debug.ListenAddress != "" {
		s.log.Warningf("Debug ListenAddress overrides %v with %v.", addr, s.cfg.Debug.ListenAddress)
		addr = s.cfg.Debug.ListenAddress
	}
	if s.listener, err = net.Listen("tcp", addr); err != nil {
		s.log.Errorf("Failed to start listener '%v': %v", addr, err)
		return nil, err
	}
	s.Add(1)
	go s.listenWorker(s.listener)

	isOk = true
	return s, nil
}
