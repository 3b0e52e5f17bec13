// userdb.go - Provider client credential database interface.
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

// Package userdb defines the provider's client credential database
// abstract interface.
package userdb

import (
	"errors"

	"github.com/katzenpost/sfw/core/identity"
)

// ErrUserExists is the error returned when registering an address that
// already holds an auth token.
var ErrUserExists = errors.New("userdb: address already registered")

// UserDB is the interface provided by all user database implementations.
type UserDB interface {
	// Exists returns true iff the address is registered.
	Exists(identity.ClientAddress) bool

	// IsValid returns true iff the address is registered and the auth
	// token matches the one issued to it.
	IsValid(identity.ClientAddress, identity.AuthToken) bool

	// Register issues a fresh auth token to the address.  Registering an
	// address that already exists fails with ErrUserExists.
	Register(identity.ClientAddress) (identity.AuthToken, error)

	// Remove removes the address and its auth token from the database.
	Remove(identity.ClientAddress) error

	// Close closes the UserDB instance.
	Close()
}
