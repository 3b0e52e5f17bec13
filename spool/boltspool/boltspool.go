// boltspool.go - BoltDB backed provider message spool.
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

// Package boltspool implements the provider message spool with a simple
// boltdb based backend.
package boltspool

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/katzenpost/sfw/constants"
	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/spool"
	"github.com/katzenpost/sfw/userdb"
)

const usersBucket = "users"

type boltSpool struct {
	db *bolt.DB
}

func (s *boltSpool) Close() {
	s.db.Sync()
	s.db.Close()
}

func (s *boltSpool) StoreMessage(u identity.ClientAddress, msg []byte) error {
	if uint64(len(msg)) > uint64(^uint32(0)) {
		return fmt.Errorf("spool: message too large: %d", len(msg))
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		uBkt := tx.Bucket([]byte(usersBucket))

		// Grab or create the user's spool bucket.
		sBkt, err := uBkt.CreateBucketIfNotExists(u[:])
		if err != nil {
			return err
		}

		// Keys are the big endian sequence number, so a cursor walks the
		// spool in arrival order.
		seq, err := sBkt.NextSequence()
		if err != nil {
			return err
		}
		var msgID [8]byte
		binary.BigEndian.PutUint64(msgID[:], seq)

		return sBkt.Put(msgID[:], msg)
	})
}

func (s *boltSpool) Pull(u identity.ClientAddress, max int) ([][]byte, error) {
	if max <= 0 || max > constants.MaxResponseMessages {
		max = constants.MaxResponseMessages
	}

	var msgs [][]byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		uBkt := tx.Bucket([]byte(usersBucket))

		sBkt := uBkt.Bucket(u[:])
		if sBkt == nil {
			// If the user's spool bucket is missing, the spool is empty.
			return nil
		}

		cur := sBkt.Cursor()
		for k, v := cur.First(); k != nil && len(msgs) < max; k, v = cur.First() {
			// Values are only valid for the life of the transaction.
			msgs = append(msgs, append([]byte{}, v...))
			if err := cur.Delete(); err != nil {
				return err
			}
		}

		if k, _ := cur.First(); k == nil {
			// Draining the queue resets the sequence.
			return sBkt.SetSequence(0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *boltSpool) Remove(u identity.ClientAddress) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		uBkt := tx.Bucket([]byte(usersBucket))

		if uBkt.Bucket(u[:]) == nil {
			// If the user's spool bucket is missing, just return.
			return nil
		}
		return uBkt.DeleteBucket(u[:])
	})
}

func (s *boltSpool) Vacuum(udb userdb.UserDB) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		uBkt := tx.Bucket([]byte(usersBucket))

		// Collect first, deleting while iterating invalidates the cursor.
		var stale [][]byte
		cur := uBkt.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			u, err := identity.AddressFromBytes(k)
			if err == nil && udb.Exists(u) {
				continue
			}
			stale = append(stale, append([]byte{}, k...))
		}
		for _, k := range stale {
			if err := uBkt.DeleteBucket(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// New creates (or loads) a user message spool with the given file name f.
func New(f string) (spool.Spool, error) {
	const (
		metadataBucket = "metadata"
		versionKey     = "version"
	)

	var err error

	s := new(boltSpool)
	s.db, err = bolt.Open(f, 0600, nil)
	if err != nil {
		return nil, err
	}

	if err = s.db.Update(func(tx *bolt.Tx) error {
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
				return fmt.Errorf("spool: incompatible version: %d", uint(b[0]))
			}
			return nil
		}

		// We created a new database, so populate the new metadata bucket.
		return bkt.Put([]byte(versionKey), []byte{0})
	}); err != nil {
		// The struct isn't getting returned so clean up the database.
		s.db.Close()
		return nil, err
	}

	return s, nil
}
