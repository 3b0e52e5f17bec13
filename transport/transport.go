// transport.go - Close-delimited provider transport session.
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

// Package transport carries a single provider request/response exchange
// per connection.  Message boundaries are marked by half-closing the
// stream rather than by a length prefix: the request ends when the client
// shuts down its write side, and the response ends when the provider
// shuts down its write side.
//
// Nothing in this package bounds how long an exchange waits for the peer
// to half-close.  Callers must supply a context with a deadline.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sfw/constants"
	"github.com/katzenpost/sfw/internal/proxy"
)

// Error is the error returned when a connect, write or read fails.
type Error struct {
	// Op is the failed operation ("dial", "write" or "read").
	Op string

	// Addr is the remote address.
	Addr string

	// Err is the original error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s %v: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the original error.
func (e *Error) Unwrap() error {
	return e.Err
}

type halfCloser interface {
	CloseWrite() error
	CloseRead() error
}

// Transport performs close-delimited exchanges with providers.  A
// Transport holds no per-connection state and is safe for concurrent use.
type Transport struct {
	log *logging.Logger

	dialFn proxy.DialContextFn
}

// New returns a Transport that dials directly, or through the upstream
// proxy when proxyCfg is non-nil and configures one.
func New(log *logging.Logger, proxyCfg *proxy.Config) *Transport {
	t := &Transport{
		log: log,
	}
	if proxyCfg != nil {
		t.dialFn = proxyCfg.ToDialContext("provider", constants.KeepAliveInterval)
	}
	if t.dialFn == nil {
		dialer := &net.Dialer{
			KeepAlive: constants.KeepAliveInterval,
		}
		t.dialFn = dialer.DialContext
	}
	return t
}

// Exchange opens a fresh connection to addr, writes request, half-closes
// the write side, and returns everything the peer sends until it
// half-closes in turn.  The connection is never reused.
func (t *Transport) Exchange(ctx context.Context, addr string, request []byte) ([]byte, error) {
	conn, err := t.dialFn(ctx, "tcp", addr)
	if err != nil {
		return nil, newError(ctx, "dial", addr, err)
	}
	defer conn.Close()

	// Bound blocking I/O by the caller's context.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	hc, canHalfClose := conn.(halfCloser)
	if !canHalfClose {
		t.log.Warningf("Connection to %v does not support half-close, the provider may never see the end of the request", addr)
	}

	t.log.Debugf("Sending %d byte request to %v", len(request), addr)
	if _, err = conn.Write(request); err != nil {
		return nil, newError(ctx, "write", addr, err)
	}
	if canHalfClose {
		if err := hc.CloseWrite(); err != nil {
			t.log.Warningf("Failed to half-close write side to %v: %v", addr, err)
		}
	}

	response, err := io.ReadAll(conn)
	if err != nil {
		return nil, newError(ctx, "read", addr, err)
	}
	if canHalfClose {
		if err := hc.CloseRead(); err != nil {
			t.log.Debugf("Failed to half-close read side to %v: %v", addr, err)
		}
	}
	t.log.Debugf("Received %d byte response from %v", len(response), addr)

	return response, nil
}

// newError attributes failures caused by the caller's context to the
// context, so that errors.Is(err, context.DeadlineExceeded) holds.
func newError(ctx context.Context, op, addr string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		// The connection deadline can fire before the context's timer.
		err = context.DeadlineExceeded
	}
	return &Error{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
