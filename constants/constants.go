// constants.go - Store-and-forward provider protocol constants.
// Copyright (C) 2017  Yawning Angel.
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

// Package constants contains the constants shared by the provider client
// and the provider.
package constants

import "time"

const (
	// AddressLength is the length of a client destination address in bytes.
	AddressLength = 32

	// AuthTokenLength is the length of a provider issued auth token in bytes.
	AuthTokenLength = 32

	// ProviderClientPort is the port every provider accepts client
	// register and pull requests on.  The topology only advertises the
	// provider's mix-facing port, so clients always dial this port
	// instead.
	ProviderClientPort = 9000

	// KeepAliveInterval is the TCP keep-alive probe interval used on
	// provider connections.
	KeepAliveInterval = 2 * time.Second

	// MaxResponseMessages is the maximum number of messages a single pull
	// response may carry.
	MaxResponseMessages = 0xffff
)
