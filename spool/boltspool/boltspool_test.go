// boltspool_test.go - BoltDB backed provider message spool tests.
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

package boltspool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/userdb/boltuserdb"
)

const testSpool = "spool.db"

var testUser = identity.ClientAddress{0xa1, 0x1a, 0x40}

func TestBoltSpool(t *testing.T) {
	testSpoolPath := filepath.Join(t.TempDir(), testSpool)

	if ok := t.Run("create", func(t *testing.T) { doTestCreate(t, testSpoolPath) }); ok {
		t.Run("load", func(t *testing.T) { doTestLoad(t, testSpoolPath) })
	} else {
		t.Errorf("create tests failed, skipping load test")
	}
}

func doTestCreate(t *testing.T, f string) {
	require := require.New(t)
	assert := assert.New(t)

	s, err := New(f)
	require.NoError(err, "New()")
	defer s.Close()

	for _, m := range []string{"one", "two", "three", ""} {
		err = s.StoreMessage(testUser, []byte(m))
		assert.NoError(err, "StoreMessage()")
	}
}

func doTestLoad(t *testing.T, f string) {
	require := require.New(t)
	assert := assert.New(t)

	s, err := New(f)
	require.NoError(err, "New()")
	defer s.Close()

	// Other users have empty spools.
	msgs, err := s.Pull(identity.ClientAddress{0x01}, 10)
	assert.NoError(err)
	assert.Empty(msgs)

	msgs, err = s.Pull(testUser, 2)
	assert.NoError(err, "Pull(2)")
	assert.Equal([][]byte{[]byte("one"), []byte("two")}, msgs)

	msgs, err = s.Pull(testUser, 0)
	assert.NoError(err, "Pull(0)")
	assert.Equal([][]byte{[]byte("three"), {}}, msgs)

	msgs, err = s.Pull(testUser, 10)
	assert.NoError(err, "Pull(): drained")
	assert.Empty(msgs)

	// Ordering survives the sequence reset.
	require.NoError(s.StoreMessage(testUser, []byte("four")))
	require.NoError(s.StoreMessage(testUser, []byte("five")))
	msgs, err = s.Pull(testUser, 10)
	assert.NoError(err)
	assert.Equal([][]byte{[]byte("four"), []byte("five")}, msgs)

	require.NoError(s.StoreMessage(testUser, []byte("six")))
	assert.NoError(s.Remove(testUser), "Remove(u)")
	msgs, err = s.Pull(testUser, 10)
	assert.NoError(err)
	assert.Empty(msgs)
	assert.NoError(s.Remove(testUser), "Remove(u): missing")
}

func TestVacuum(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	udb, err := boltuserdb.New(filepath.Join(dir, "userdb.db"))
	require.NoError(err)
	defer udb.Close()
	s, err := New(filepath.Join(dir, testSpool))
	require.NoError(err)
	defer s.Close()

	registered := identity.ClientAddress{0x01}
	stranger := identity.ClientAddress{0x02}
	_, err = udb.Register(registered)
	require.NoError(err)

	require.NoError(s.StoreMessage(registered, []byte("kept")))
	require.NoError(s.StoreMessage(stranger, []byte("dropped")))
	require.NoError(s.Vacuum(udb))

	msgs, err := s.Pull(registered, 10)
	require.NoError(err)
	require.Equal([][]byte{[]byte("kept")}, msgs)

	msgs, err = s.Pull(stranger, 10)
	require.NoError(err)
	require.Empty(msgs)
}
