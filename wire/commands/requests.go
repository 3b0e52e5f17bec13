// requests.go - Provider protocol requests.
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
	"github.com/katzenpost/sfw/constants"
	"github.com/katzenpost/sfw/core/identity"
)

const (
	requestPrefixLength = 2

	registerLength = requestPrefixLength + constants.AddressLength
	pullLength     = requestPrefixLength + constants.AddressLength + constants.AuthTokenLength
)

var (
	registerPrefix = [requestPrefixLength]byte{0x00, 0x01}
	pullPrefix     = [requestPrefixLength]byte{0x01, 0x00}
)

// Register is a de-serialized register request.
type Register struct {
	Address identity.ClientAddress
}

func (Register) isRequest() {}

// ToBytes serializes the Register and returns the resulting slice.
func (c Register) ToBytes() []byte {
	out := make([]byte, 0, registerLength)
	out = append(out, registerPrefix[:]...)
	out = append(out, c.Address[:]...)
	return out
}

// Pull is a de-serialized pull request.
type Pull struct {
	Address identity.ClientAddress
	Token   identity.AuthToken
}

func (Pull) isRequest() {}

// ToBytes serializes the Pull and returns the resulting slice.
func (c Pull) ToBytes() []byte {
	out := make([]byte, 0, pullLength)
	out = append(out, pullPrefix[:]...)
	out = append(out, c.Address[:]...)
	out = append(out, c.Token[:]...)
	return out
}

// RequestFromBytes de-serializes the request in the buffer b.
func RequestFromBytes(b []byte) (Request, error) {
	if len(b) < requestPrefixLength {
		return nil, malformed("truncated request prefix")
	}

	var prefix [requestPrefixLength]byte
	copy(prefix[:], b)

	var expected int
	switch prefix {
	case registerPrefix:
		expected = registerLength
	case pullPrefix:
		expected = pullLength
	default:
		return nil, malformed("unknown request prefix %x", prefix)
	}
	switch {
	case len(b) < expected:
		return nil, malformed("truncated request: %d < %d", len(b), expected)
	case len(b) > expected:
		return nil, lengthMismatch("request carries %d trailing bytes", len(b)-expected)
	}

	b = b[requestPrefixLength:]
	switch prefix {
	case registerPrefix:
		r := new(Register)
		copy(r.Address[:], b)
		return r, nil
	default:
		r := new(Pull)
		copy(r.Address[:], b[:constants.AddressLength])
		copy(r.Token[:], b[constants.AddressLength:])
		return r, nil
	}
}
