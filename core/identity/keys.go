// keys.go - Client identity key files.
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

package identity

import (
	"errors"
	"fmt"
	"os"

	"github.com/katzenpost/hpqc/nike"
	"github.com/katzenpost/hpqc/nike/pem"
	"github.com/katzenpost/hpqc/nike/x25519"
	"github.com/katzenpost/hpqc/rand"
)

// Scheme is the NIKE scheme used for client identity keys.
var Scheme nike.Scheme = x25519.Scheme(rand.Reader)

// Identity is a client identity keypair and the address derived from it.
type Identity struct {
	PrivateKey nike.PrivateKey
	PublicKey  nike.PublicKey
	Address    ClientAddress
}

// Generate creates a new random Identity.
func Generate() (*Identity, error) {
	pub, priv, err := Scheme.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Identity{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    FromPublicKey(pub),
	}, nil
}

// Load reads a PEM encoded identity private key from f.
func Load(f string) (*Identity, error) {
	priv, err := pem.FromPrivatePEMFile(f, Scheme)
	if err != nil {
		return nil, fmt.Errorf("identity: failed to load key from '%v': %w", f, err)
	}
	pub := priv.Public()
	return &Identity{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    FromPublicKey(pub),
	}, nil
}

// Save writes the identity private key to f in PEM format.
func (id *Identity) Save(f string) error {
	return pem.PrivateKeyToFile(f, id.PrivateKey, Scheme)
}

// LoadOrGenerate loads the identity stored in f, generating and saving a
// new one if the file does not exist yet.
func LoadOrGenerate(f string) (*Identity, error) {
	id, err := Load(f)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if id, err = Generate(); err != nil {
		return nil, err
	}
	if err = id.Save(f); err != nil {
		return nil, err
	}
	return id, nil
}
