// pki.go - Provider topology interfaces.
// Copyright (C) 2017  David Stainton, Yawning Angel.
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

// Package pki provides the provider topology lookup used to locate a
// client's provider.
package pki

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoProvider is the error returned when a provider is not listed.
var ErrNoProvider = errors.New("pki: provider not found")

// ProviderDescriptor describes a provider as advertised in the topology.
type ProviderDescriptor struct {
	// Name is the unique name of the provider.
	Name string

	// Address is the host:port the provider advertises.  This is the
	// mix-facing address, clients connect to the same host on the fixed
	// client port instead.
	Address string
}

func (d *ProviderDescriptor) validate() error {
	if d.Name == "" {
		return errors.New("pki: provider descriptor is missing a Name")
	}
	if _, _, err := net.SplitHostPort(d.Address); err != nil {
		return fmt.Errorf("pki: provider '%v' Address '%v' is invalid: %v", d.Name, d.Address, err)
	}
	return nil
}

// Directory looks up providers by name.
type Directory interface {
	// GetProvider returns the descriptor for the named provider, or an
	// error wrapping ErrNoProvider.
	GetProvider(name string) (*ProviderDescriptor, error)
}

// StaticDirectory is a Directory with a fixed set of providers.
type StaticDirectory struct {
	providers map[string]*ProviderDescriptor
}

// GetProvider returns the ProviderDescriptor for the given provider Name.
func (d *StaticDirectory) GetProvider(name string) (*ProviderDescriptor, error) {
	v, ok := d.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%v'", ErrNoProvider, name)
	}
	return v, nil
}

// NewStaticDirectory returns a StaticDirectory listing the descriptors,
// which must be valid and uniquely named.
func NewStaticDirectory(descs []*ProviderDescriptor) (*StaticDirectory, error) {
	d := &StaticDirectory{
		providers: make(map[string]*ProviderDescriptor),
	}
	for _, v := range descs {
		if err := v.validate(); err != nil {
			return nil, err
		}
		if _, ok := d.providers[v.Name]; ok {
			return nil, fmt.Errorf("pki: duplicate provider '%v'", v.Name)
		}
		d.providers[v.Name] = v
	}
	return d, nil
}
