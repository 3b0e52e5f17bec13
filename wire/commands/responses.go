// responses.go - Provider protocol responses.
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

package commands

import (
	"encoding/binary"
	"fmt"

	"github.com/katzenpost/sfw/constants"
	"github.com/katzenpost/sfw/core/identity"
)

const (
	cmdOverhead = 1 + 1 + 4

	registerResponseLength = constants.AuthTokenLength
	pullResponseBaseLength = 2
	pullMessageOverhead    = 4
	errorResponseLength    = 1

	registerResponse responseID = 0x80
	pullResponse     responseID = 0x81
	errorResponse    responseID = 0x82
)

type responseID byte

// Status is the reason carried by an ErrorResponse.
type Status uint8

const (
	// StatusBadRequest signifies that the provider could not parse the
	// request.
	StatusBadRequest Status = 1

	// StatusUnauthorized signifies that the address is not registered or
	// the auth token is invalid.
	StatusUnauthorized Status = 2

	// StatusAlreadyRegistered signifies that the address already holds an
	// auth token.
	StatusAlreadyRegistered Status = 3

	// StatusInternal signifies a provider side failure.
	StatusInternal Status = 4
)

// String returns the human readable status.
func (s Status) String() string {
	switch s {
	case StatusBadRequest:
		return "bad request"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusAlreadyRegistered:
		return "already registered"
	case StatusInternal:
		return "internal error"
	default:
		return fmt.Sprintf("unknown status %d", uint8(s))
	}
}

func newHeader(id responseID, bodyLength int) []byte {
	out := make([]byte, cmdOverhead, cmdOverhead+bodyLength)
	out[0] = byte(id) // out[1] is reserved
	binary.BigEndian.PutUint32(out[2:6], uint32(bodyLength))
	return out
}

// RegisterResponse is a de-serialized register response.
type RegisterResponse struct {
	Token identity.AuthToken
}

func (RegisterResponse) isResponse() {}

// ToBytes serializes the RegisterResponse and returns the resulting slice.
func (c RegisterResponse) ToBytes() []byte {
	out := newHeader(registerResponse, registerResponseLength)
	return append(out, c.Token[:]...)
}

func registerResponseFromBytes(b []byte) (Response, error) {
	if len(b) != registerResponseLength {
		return nil, malformed("register response token is %d bytes", len(b))
	}
	r := new(RegisterResponse)
	copy(r.Token[:], b)
	return r, nil
}

// PullResponse is a de-serialized pull response.  Messages are opaque
// to the protocol and returned in the order the provider sent them.
type PullResponse struct {
	Messages [][]byte
}

func (PullResponse) isResponse() {}

// ToBytes serializes the PullResponse and returns the resulting slice.
func (c PullResponse) ToBytes() []byte {
	if len(c.Messages) > constants.MaxResponseMessages {
		panic("wire: too many messages when serializing PullResponse")
	}

	bodyLength := pullResponseBaseLength
	for _, m := range c.Messages {
		bodyLength += pullMessageOverhead + len(m)
	}

	out := newHeader(pullResponse, bodyLength)
	out = binary.BigEndian.AppendUint16(out, uint16(len(c.Messages)))
	for _, m := range c.Messages {
		out = binary.BigEndian.AppendUint32(out, uint32(len(m)))
		out = append(out, m...)
	}
	return out
}

func pullResponseFromBytes(b []byte) (Response, error) {
	if len(b) < pullResponseBaseLength {
		return nil, malformed("truncated pull response message count")
	}

	count := int(binary.BigEndian.Uint16(b[0:2]))
	b = b[pullResponseBaseLength:]

	r := &PullResponse{
		Messages: make([][]byte, 0, count),
	}
	for i := 0; i < count; i++ {
		if len(b) < pullMessageOverhead {
			return nil, lengthMismatch("pull response ends before message %d of %d", i, count)
		}
		msgLen := binary.BigEndian.Uint32(b[0:4])
		b = b[pullMessageOverhead:]
		if uint64(len(b)) < uint64(msgLen) {
			return nil, lengthMismatch("message %d declares %d bytes, %d remain", i, msgLen, len(b))
		}
		msg := make([]byte, msgLen)
		copy(msg, b[:msgLen])
		r.Messages = append(r.Messages, msg)
		b = b[msgLen:]
	}
	if len(b) != 0 {
		return nil, lengthMismatch("pull response carries %d bytes past its last message", len(b))
	}
	return r, nil
}

// ErrorResponse is a de-serialized error response.
type ErrorResponse struct {
	Status Status
}

func (ErrorResponse) isResponse() {}

// ToBytes serializes the ErrorResponse and returns the resulting slice.
func (c ErrorResponse) ToBytes() []byte {
	out := newHeader(errorResponse, errorResponseLength)
	return append(out, byte(c.Status))
}

func errorResponseFromBytes(b []byte) (Response, error) {
	if len(b) != errorResponseLength {
		return nil, malformed("error response body is %d bytes", len(b))
	}
	return &ErrorResponse{Status: Status(b[0])}, nil
}

// ResponseFromBytes de-serializes the response in the buffer b, returning a
// Response or an error wrapping ErrMalformed or ErrLengthMismatch.  The
// declared body may be followed by zero padding.
func ResponseFromBytes(b []byte) (Response, error) {
	if len(b) < cmdOverhead {
		return nil, malformed("truncated response header: %d bytes", len(b))
	}

	// Parse the common header.
	id := responseID(b[0])
	if b[1] != 0 {
		return nil, malformed("non-zero reserved byte")
	}
	var parseFn func([]byte) (Response, error)
	switch id {
	case registerResponse:
		parseFn = registerResponseFromBytes
	case pullResponse:
		parseFn = pullResponseFromBytes
	case errorResponse:
		parseFn = errorResponseFromBytes
	default:
		return nil, malformed("unknown response id 0x%02x", byte(id))
	}

	cmdLen := binary.BigEndian.Uint32(b[2:6])
	b = b[cmdOverhead:]
	if uint64(len(b)) < uint64(cmdLen) {
		return nil, lengthMismatch("response declares %d bytes, %d received", cmdLen, len(b))
	}
	if padding := b[cmdLen:]; !ctIsZero(padding) {
		return nil, lengthMismatch("response carries %d trailing bytes", len(padding))
	}

	return parseFn(b[:cmdLen])
}
