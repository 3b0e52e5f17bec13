//go:build !pyroscope
// +build !pyroscope

package profiling

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestStartDisabled(t *testing.T) {
	stop, err := Start(logging.MustGetLogger("profiling_test"), "sfw", "test")
	require.NoError(t, err)
	require.NotNil(t, stop)
	stop()
}
