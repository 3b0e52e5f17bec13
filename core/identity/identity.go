// identity.go - Client addresses and provider auth tokens.
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

// Package identity provides the fixed length client address and auth
// token value types, and derives addresses from client key material.
package identity

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/katzenpost/hpqc/hash"
	"github.com/katzenpost/hpqc/nike"
	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/sfw/constants"
)

// ClientAddress is the destination address a provider uses to look up a
// client's mailbox.
type ClientAddress [constants.AddressLength]byte

// AuthToken is the credential a provider issues on registration, and
// expects on every subsequent pull.
type AuthToken [constants.AuthTokenLength]byte

// FromPublicKey derives the ClientAddress belonging to a client public key.
func FromPublicKey(pub nike.PublicKey) ClientAddress {
	return ClientAddress(hash.Sum256(pub.Bytes()))
}

// AddressFromBytes returns the ClientAddress stored in b.
func AddressFromBytes(b []byte) (ClientAddress, error) {
	var a ClientAddress
	if len(b) != constants.AddressLength {
		return a, fmt.Errorf("identity: invalid address length: %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Bytes returns a copy of the address as a byte slice.
func (a ClientAddress) Bytes() []byte {
	return append([]byte{}, a[:]...)
}

// Equal returns true iff the addresses are byte for byte identical.
func (a ClientAddress) Equal(other ClientAddress) bool {
	return a == other
}

// String returns the hex encoded address.
func (a ClientAddress) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a ClientAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ClientAddress) UnmarshalText(text []byte) error {
	return decodeHex(a[:], text, "address")
}

// NewAuthToken returns a fresh random AuthToken.
func NewAuthToken() (AuthToken, error) {
	var t AuthToken
	if _, err := rand.Reader.Read(t[:]); err != nil {
		return t, err
	}
	return t, nil
}

// AuthTokenFromBytes returns the AuthToken stored in b.
func AuthTokenFromBytes(b []byte) (AuthToken, error) {
	var t AuthToken
	if len(b) != constants.AuthTokenLength {
		return t, fmt.Errorf("identity: invalid auth token length: %d", len(b))
	}
	copy(t[:], b)
	return t, nil
}

// Bytes returns a copy of the token as a byte slice.
func (t AuthToken) Bytes() []byte {
	return append([]byte{}, t[:]...)
}

// Equal compares two tokens in constant time.
func (t AuthToken) Equal(other AuthToken) bool {
	return subtle.ConstantTimeCompare(t[:], other[:]) == 1
}

// String returns the hex encoded token.
func (t AuthToken) String() string {
	return hex.EncodeToString(t[:])
}

// MarshalText implements encoding.TextMarshaler.
func (t AuthToken) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *AuthToken) UnmarshalText(text []byte) error {
	return decodeHex(t[:], text, "auth token")
}

func decodeHex(dst, text []byte, what string) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fmt.Errorf("identity: invalid %s length: %d", what, hex.DecodedLen(len(text)))
	}
	if _, err := hex.Decode(dst, text); err != nil {
		return fmt.Errorf("identity: invalid %s: %v", what, err)
	}
	return nil
}
