// retry_test.go - Tests for shared backoff logic.
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

package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelay(t *testing.T) {
	require := require.New(t)

	baseDelay := 100 * time.Millisecond
	maxDelay := 1 * time.Second

	t.Run("exponential growth", func(t *testing.T) {
		d0 := Delay(baseDelay, maxDelay, 0, 0)
		require.Equal(100*time.Millisecond, d0)

		d1 := Delay(baseDelay, maxDelay, 0, 1)
		require.Equal(200*time.Millisecond, d1)

		d2 := Delay(baseDelay, maxDelay, 0, 2)
		require.Equal(400*time.Millisecond, d2)

		d3 := Delay(baseDelay, maxDelay, 0, 3)
		require.Equal(800*time.Millisecond, d3)
	})

	t.Run("max delay cap", func(t *testing.T) {
		d10 := Delay(baseDelay, maxDelay, 0, 10)
		require.Equal(maxDelay, d10)
	})

	t.Run("jitter range", func(t *testing.T) {
		jitter := 0.2
		for i := 0; i < 100; i++ {
			d := Delay(baseDelay, maxDelay, jitter, 0)
			require.GreaterOrEqual(d, 80*time.Millisecond)
			require.LessOrEqual(d, 120*time.Millisecond)
		}
	})
}

func TestIsTransientError(t *testing.T) {
	require := require.New(t)

	t.Run("nil error", func(t *testing.T) {
		require.False(IsTransientError(nil))
	})

	t.Run("connection refused", func(t *testing.T) {
		err := errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")
		require.True(IsTransientError(err))
	})

	t.Run("connection reset", func(t *testing.T) {
		err := errors.New("read: connection reset by peer")
		require.True(IsTransientError(err))
	})

	t.Run("timeout", func(t *testing.T) {
		err := errors.New("i/o timeout")
		require.True(IsTransientError(err))
	})

	t.Run("EOF", func(t *testing.T) {
		err := errors.New("unexpected EOF")
		require.True(IsTransientError(err))
	})

	t.Run("permanent error", func(t *testing.T) {
		err := errors.New("invalid certificate")
		require.False(IsTransientError(err))
	})

	t.Run("authentication error", func(t *testing.T) {
		err := errors.New("authentication failed")
		require.False(IsTransientError(err))
	})
}

// mockNetError implements net.Error for testing
type mockNetError struct {
	timeout   bool
	temporary bool
	msg       string
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.temporary }

func TestIsTransientError_NetError(t *testing.T) {
	require := require.New(t)

	t.Run("timeout net error", func(t *testing.T) {
		err := &mockNetError{timeout: true, msg: "operation timed out"}
		require.True(IsTransientError(err))
	})

	t.Run("wrapped deadline", func(t *testing.T) {
		err := fmt.Errorf("exchange: %w", context.DeadlineExceeded)
		require.True(IsTransientError(err))
	})

	t.Run("permanent net error", func(t *testing.T) {
		err := &mockNetError{timeout: false, temporary: false, msg: "permanent failure"}
		require.False(IsTransientError(err))
	})
}
