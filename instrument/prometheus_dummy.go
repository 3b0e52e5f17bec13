//go:build noprometheus
// +build noprometheus

package instrument

import (
	"net/http"

	"gopkg.in/op/go-logging.v1"
)

// StartPrometheusListener does nothing
func StartPrometheusListener(addr string, log *logging.Logger) *http.Server { return nil }

// ClientOperation does nothing
func ClientOperation(operation, outcome string) {}

// MessagesRetrieved does nothing
func MessagesRetrieved(n int) {}

// ProviderRequest does nothing
func ProviderRequest(request, status string) {}

// MessageStored does nothing
func MessageStored() {}

// MessagesDelivered does nothing
func MessagesDelivered(n int) {}
