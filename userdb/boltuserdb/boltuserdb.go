// boltuserdb.go - BoltDB backed provider user database.
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

// Package boltuserdb implements the provider user database with a simple
// boltdb based backend.
package boltuserdb

import (
	"crypto/subtle"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/userdb"
)

const usersBucket = "users"

type boltUserDB struct {
	sync.RWMutex

	db        *bolt.DB
	userCache map[identity.ClientAddress]bool
}

func (d *boltUserDB) Exists(u identity.ClientAddress) bool {
	d.RLock()
	defer d.RUnlock()

	return d.userCache[u]
}

func (d *boltUserDB) IsValid(u identity.ClientAddress, token identity.AuthToken) bool {
	// Query the database to see if the user is present, and if the tokens
	// match.
	isValid := false
	if err := d.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(usersBucket))

		rawToken := bkt.Get(u[:])
		if rawToken != nil {
			isValid = subtle.ConstantTimeCompare(rawToken, token[:]) == 1
		}
		return nil
	}); err != nil {
		return false
	}
	return isValid
}

func (d *boltUserDB) Register(u identity.ClientAddress) (identity.AuthToken, error) {
	token, err := identity.NewAuthToken()
	if err != nil {
		return identity.AuthToken{}, err
	}

	// Serialize registrations so the existence check and the insert are
	// atomic with respect to the cache.
	d.Lock()
	defer d.Unlock()

	if d.userCache[u] {
		return identity.AuthToken{}, userdb.ErrUserExists
	}
	if err = d.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(usersBucket))
		if bkt.Get(u[:]) != nil {
			return userdb.ErrUserExists
		}
		return bkt.Put(u[:], token[:])
	}); err != nil {
		return identity.AuthToken{}, err
	}
	d.userCache[u] = true

	return token, nil
}

func (d *boltUserDB) Remove(u identity.ClientAddress) error {
	d.Lock()
	defer d.Unlock()

	err := d.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(usersBucket))
		return bkt.Delete(u[:])
	})
	if err == nil {
		delete(d.userCache, u)
	}
	return err
}

func (d *boltUserDB) Close() {
	d.db.Sync()
	d.db.Close()
}

// New creates (or loads) a user database with the given file name f.
func New(f string) (userdb.UserDB, error) {
	const (
		metadataBucket = "metadata"
		versionKey     = "version"
	)

	var err error

	d := new(boltUserDB)
	d.db, err = bolt.Open(f, 0600, nil)
	if err != nil {
		return nil, err
	}
	d.userCache = make(map[identity.ClientAddress]bool)

	if err = d.db.Update(func(tx *bolt.Tx) error {
		// Ensure that all the buckets exists, and grab the metadata bucket.
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(usersBucket)); err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			// Well it looks like we loaded as opposed to created.
			if len(b) != 1 || b[0] != 0 {
				return fmt.Errorf("userdb: incompatible version: %d", uint(b[0]))
			}

			// Populate the user cache.
			bkt = tx.Bucket([]byte(usersBucket))
			return bkt.ForEach(func(k, v []byte) error {
				u, err := identity.AddressFromBytes(k)
				if err != nil {
					return fmt.Errorf("userdb: corrupted entry: %v", err)
				}
				d.userCache[u] = true
				return nil
			})
		}

		// We created a new database, so populate the new metadata bucket.
		return bkt.Put([]byte(versionKey), []byte{0})
	}); err != nil {
		// The struct isn't getting returned so clean up the database.
		d.db.Close()
		return nil, err
	}

	return d, nil
}
