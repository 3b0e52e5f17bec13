// commands.go - Provider protocol commands.
// Copyright (C) 2017  David Anthony Stainton, Yawning Angel
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

// Package commands implements the store-and-forward provider wire protocol
// commands.  Commands carry no outer length prefix since each exchange is
// delimited by the transport half-closing the stream.
package commands

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is the error returned when a command can not be parsed
	// into a structurally valid command (unknown discriminator, non-zero
	// reserved byte, truncated header or wrongly sized fixed field).
	ErrMalformed = errors.New("wire: malformed command")

	// ErrLengthMismatch is the error returned when a declared or implied
	// length disagrees with the number of bytes actually received.
	ErrLengthMismatch = errors.New("wire: command length mismatch")
)

// Command is the common interface exposed by all command structures.
type Command interface {
	// ToBytes serializes the command and returns the resulting slice.
	ToBytes() []byte
}

// Request is a command sent by a client to its provider.
type Request interface {
	Command

	isRequest()
}

// Response is a command sent by a provider to a client.
type Response interface {
	Command

	isResponse()
}

// Codec is the default wire codec used by the provider client.
type Codec struct{}

// EncodeRequest serializes r.  Requests are fixed size values, so this
// never fails.
func (Codec) EncodeRequest(r Request) ([]byte, error) {
	if r == nil {
		return nil, errors.New("wire: nil request")
	}
	return r.ToBytes(), nil
}

// DecodeResponse de-serializes a provider response.
func (Codec) DecodeResponse(b []byte) (Response, error) {
	return ResponseFromBytes(b)
}

// DecodeRequest de-serializes a client request.
func (Codec) DecodeRequest(b []byte) (Request, error) {
	return RequestFromBytes(b)
}

// EncodeResponse serializes r.
func (Codec) EncodeResponse(r Response) []byte {
	return r.ToBytes()
}

func malformed(f string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(f, a...))
}

func lengthMismatch(f string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrLengthMismatch, fmt.Sprintf(f, a...))
}

func ctIsZero(b []byte) bool {
	return subtle.ConstantTimeCompare(b, make([]byte, len(b))) == 1
}
