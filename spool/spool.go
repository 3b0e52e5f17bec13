// spool.go - Provider client message spool interface.
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

// Package spool defines the provider's per client message spool abstract
// interface.
package spool

import (
	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/userdb"
)

// Spool is the interface provided by all user message spool implementations.
type Spool interface {
	// StoreMessage appends a message to the address' spool.
	StoreMessage(u identity.ClientAddress, msg []byte) error

	// Pull removes and returns up to max messages from the head of the
	// address' spool, oldest first.  An empty spool yields no messages
	// and no error.
	Pull(u identity.ClientAddress, max int) ([][]byte, error)

	// Remove removes the spool identified by the address.
	Remove(u identity.ClientAddress) error

	// Vacuum removes the spools that do not correspond to registered
	// addresses in the provided UserDB.
	Vacuum(udb userdb.UserDB) error

	// Close closes the Spool instance.
	Close()
}
