// conn.go - Provider client connection handling.
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

package provider

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/katzenpost/sfw/constants"
	"github.com/katzenpost/sfw/instrument"
	"github.com/katzenpost/sfw/userdb"
	"github.com/katzenpost/sfw/wire/commands"
)

// maxRequestLength is the size of the largest request, a Pull.
const maxRequestLength = 2 + constants.AddressLength + constants.AuthTokenLength

var codec commands.Codec

// onConn services a single exchange: the request runs until the client
// half-closes, and the response runs until the provider does.
func (s *Server) onConn(conn net.Conn) {
	defer func() {
		conn.Close()
		s.Done()
	}()

	conn.SetDeadline(time.Now().Add(s.cfg.Debug.HandlerTimeout))

	// Read one byte past the largest request, so oversized requests are
	// rejected rather than silently truncated.
	raw, err := io.ReadAll(io.LimitReader(conn, maxRequestLength+1))
	if err != nil {
		s.log.Debugf("Failed to read request from %v: %v", conn.RemoteAddr(), err)
		return
	}

	resp := s.onRequest(raw)
	if _, err = conn.Write(codec.EncodeResponse(resp)); err != nil {
		s.log.Debugf("Failed to write response to %v: %v", conn.RemoteAddr(), err)
		return
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err = tcpConn.CloseWrite(); err != nil {
			s.log.Warningf("Failed to half-close write side to %v: %v", conn.RemoteAddr(), err)
		}
	}
}

func (s *Server) onRequest(raw []byte) commands.Response {
	req, err := codec.DecodeRequest(raw)
	if err != nil {
		s.log.Debugf("Rejecting undecodable request: %v", err)
		instrument.ProviderRequest("unknown", commands.StatusBadRequest.String())
		return &commands.ErrorResponse{Status: commands.StatusBadRequest}
	}

	var kind string
	var resp commands.Response
	switch r := req.(type) {
	case *commands.Register:
		kind = "register"
		resp = s.onRegister(r)
	case *commands.Pull:
		kind = "pull"
		resp = s.onPull(r)
	}

	status := "ok"
	if e, ok := resp.(*commands.ErrorResponse); ok {
		status = e.Status.String()
	}
	instrument.ProviderRequest(kind, status)
	return resp
}

func (s *Server) onRegister(r *commands.Register) commands.Response {
	token, err := s.userDB.Register(r.Address)
	switch {
	case err == nil:
		s.log.Infof("Registered %v", r.Address)
		return &commands.RegisterResponse{Token: token}
	case errors.Is(err, userdb.ErrUserExists):
		s.log.Debugf("Rejecting duplicate registration for %v", r.Address)
		return &commands.ErrorResponse{Status: commands.StatusAlreadyRegistered}
	default:
		s.log.Errorf("Failed to register %v: %v", r.Address, err)
		return &commands.ErrorResponse{Status: commands.StatusInternal}
	}
}

func (s *Server) onPull(r *commands.Pull) commands.Response {
	if !s.userDB.IsValid(r.Address, r.Token) {
		s.log.Debugf("Rejecting pull for %v: invalid credentials", r.Address)
		return &commands.ErrorResponse{Status: commands.StatusUnauthorized}
	}

	msgs, err := s.spool.Pull(r.Address, s.cfg.Debug.MaxPullBatch)
	if err != nil {
		s.log.Errorf("Failed to pull spool for %v: %v", r.Address, err)
		return &commands.ErrorResponse{Status: commands.StatusInternal}
	}
	if len(msgs) > 0 {
		s.log.Debugf("Delivering %d messages to %v", len(msgs), r.Address)
		instrument.MessagesDelivered(len(msgs))
	}
	return &commands.PullResponse{Messages: msgs}
}
