// prometheus.go - Provider protocol metrics.
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

//go:build !noprometheus
// +build !noprometheus

// Package instrument exposes prometheus metrics for the provider client
// and the provider.
package instrument

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/op/go-logging.v1"
)

var (
	clientOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sfw",
			Subsystem: "client",
			Name:      "operations_total",
			Help:      "Number of provider client operations by outcome",
		},
		[]string{"operation", "outcome"},
	)
	clientMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sfw",
			Subsystem: "client",
			Name:      "messages_retrieved_total",
			Help:      "Number of messages retrieved from the provider",
		},
	)
	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sfw",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Number of client requests handled by request type and status",
		},
		[]string{"request", "status"},
	)
	providerStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sfw",
			Subsystem: "provider",
			Name:      "messages_stored_total",
			Help:      "Number of messages stored in client spools",
		},
	)
	providerDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sfw",
			Subsystem: "provider",
			Name:      "messages_delivered_total",
			Help:      "Number of messages delivered to clients",
		},
	)
)

func init() {
	prometheus.MustRegister(clientOperations)
	prometheus.MustRegister(clientMessages)
	prometheus.MustRegister(providerRequests)
	prometheus.MustRegister(providerStored)
	prometheus.MustRegister(providerDelivered)
}

// StartPrometheusListener exposes the registered metrics over HTTP on
// addr, returning the server so that the caller can shut it down.
func StartPrometheusListener(addr string, log *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		log.Noticef("Serving metrics on: %v", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics listener failed: %v", err)
		}
	}()
	return srv
}

// ClientOperation counts a provider client operation and its outcome.
func ClientOperation(operation, outcome string) {
	clientOperations.WithLabelValues(operation, outcome).Inc()
}

// MessagesRetrieved counts messages pulled from a provider.
func MessagesRetrieved(n int) {
	clientMessages.Add(float64(n))
}

// ProviderRequest counts a request handled by the provider.
func ProviderRequest(request, status string) {
	providerRequests.WithLabelValues(request, status).Inc()
}

// MessageStored counts a message stored in a client spool.
func MessageStored() {
	providerStored.Inc()
}

// MessagesDelivered counts messages handed to a client.
func MessagesDelivered(n int) {
	providerDelivered.Add(float64(n))
}
