// state.go - Provider client credential persistence.
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

// Package state persists the auth tokens issued to a client, so that a
// restarted client resumes as registered instead of registering again.
// Retrieved messages are never stored here.
package state

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/katzenpost/sfw/core/identity"
)

const (
	metadataBucket = "metadata"
	tokensBucket   = "tokens"
	versionKey     = "version"
	stateVersion   = 0
)

type tokenRecord struct {
	Provider     string
	Address      identity.ClientAddress
	Token        identity.AuthToken
	RegisteredAt int64
}

// Store is a bolt backed auth token store.
type Store struct {
	db *bolt.DB
}

func recordKey(provider string, address identity.ClientAddress) []byte {
	return []byte(provider + "/" + address.String())
}

// Token returns the token issued by provider to address, or nil if there
// is none.
func (s *Store) Token(provider string, address identity.ClientAddress) (*identity.AuthToken, error) {
	var token *identity.AuthToken
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(tokensBucket)).Get(recordKey(provider, address))
		if raw == nil {
			return nil
		}
		var r tokenRecord
		if err := cbor.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("state: corrupted token record: %v", err)
		}
		if r.Provider != provider || r.Address != address {
			return fmt.Errorf("state: token record does not match its key")
		}
		token = &r.Token
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// PutToken stores the token issued by provider to address, replacing any
// previous one.
func (s *Store) PutToken(provider string, address identity.ClientAddress, token identity.AuthToken) error {
	raw, err := cbor.Marshal(&tokenRecord{
		Provider:     provider,
		Address:      address,
		Token:        token,
		RegisteredAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tokensBucket)).Put(recordKey(provider, address), raw)
	})
}

// DeleteToken forgets the token issued by provider to address.
func (s *Store) DeleteToken(provider string, address identity.ClientAddress) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tokensBucket)).Delete(recordKey(provider, address))
	})
}

// Close closes the Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Open creates (or loads) a token store with the given file name f.
func Open(f string) (*Store, error) {
	db, err := bolt.Open(f, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(tokensBucket)); err != nil {
			return err
		}
		if b := bkt.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != stateVersion {
				return fmt.Errorf("state: incompatible version: %d", uint(b[0]))
			}
			return nil
		}
		return bkt.Put([]byte(versionKey), []byte{stateVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}
