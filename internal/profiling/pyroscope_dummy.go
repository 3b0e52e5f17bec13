//go:build !pyroscope
// +build !pyroscope

package profiling

import "gopkg.in/op/go-logging.v1"

// Start does nothing without the pyroscope build tag.
func Start(log *logging.Logger, appName, serviceTag string) (func(), error) {
	log.Debug("Pyroscope is disabled")
	return func() {}, nil
}
