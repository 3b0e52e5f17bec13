// errors.go - Provider client errors.
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

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/katzenpost/sfw/transport"
	"github.com/katzenpost/sfw/wire/commands"
)

var (
	// ErrAlreadyRegistered is the error returned when Register is called
	// on a client that already holds an auth token.
	ErrAlreadyRegistered = errors.New("client: already registered")

	// ErrEmptyAuthToken is the error returned when RetrieveMessages is
	// called on a client that holds no auth token.
	ErrEmptyAuthToken = errors.New("client: no auth token")

	// ErrNetwork is the error returned when the exchange with the provider
	// fails to connect, write or read, or is aborted by its context.
	ErrNetwork = errors.New("client: network error")

	// ErrInvalidRequest is the error returned when a request can not be
	// encoded.
	ErrInvalidRequest = errors.New("client: invalid request")

	// ErrInvalidResponse is the error returned when the provider's response
	// is malformed or is not the response type the request calls for.
	ErrInvalidResponse = errors.New("client: invalid response")

	// ErrInvalidResponseLength is the error returned when a length in the
	// provider's response disagrees with the bytes received.
	ErrInvalidResponseLength = errors.New("client: invalid response length")

	// ErrProviderRejected is the error returned when the provider answers
	// with an error response.  The returned error also wraps a
	// *ProviderError carrying the status.
	ErrProviderRejected = errors.New("client: provider rejected request")
)

// ProviderError is the status a provider returned in an error response.
type ProviderError struct {
	Status commands.Status
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider: %v", e.Status)
}

// encodeError and decodeError mark which codec stage failed, so that
// errors from a pluggable codec are classified by where they happened.
type encodeError struct {
	err error
}

func (e *encodeError) Error() string { return e.err.Error() }
func (e *encodeError) Unwrap() error { return e.err }

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

type wrongResponseError struct {
	want string
	got  commands.Response
}

func (e *wrongResponseError) Error() string {
	return fmt.Sprintf("expected %s, got %T", e.want, e.got)
}

// mapError translates a failure from any layer below the client into the
// client's error taxonomy.  Every non-nil input maps to exactly one of the
// package sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		tErr  *transport.Error
		pErr  *ProviderError
		eErr  *encodeError
		dErr  *decodeError
		wrErr *wrongResponseError
	)
	var kind error
	switch {
	case errors.Is(err, ErrAlreadyRegistered), errors.Is(err, ErrEmptyAuthToken):
		return err
	case errors.As(err, &eErr):
		kind = ErrInvalidRequest
	case errors.As(err, &tErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = ErrNetwork
	case errors.As(err, &pErr):
		kind = ErrProviderRejected
	case errors.Is(err, commands.ErrLengthMismatch):
		kind = ErrInvalidResponseLength
	case errors.As(err, &wrErr),
		errors.As(err, &dErr),
		errors.Is(err, commands.ErrMalformed):
		kind = ErrInvalidResponse
	default:
		// Pluggable transports may fail with errors of their own.
		kind = ErrNetwork
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// outcome names the error kind for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrEmptyAuthToken):
		return "empty_auth_token"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInvalidResponseLength):
		return "invalid_response_length"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	default:
		return "network"
	}
}
