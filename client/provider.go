// provider.go - Store-and-forward provider client.
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

// Package client implements the client side of the store-and-forward
// provider protocol: registering with a provider to obtain an auth token,
// and pulling the messages the provider has queued for the client.
package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sfw/constants"
	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/instrument"
	"github.com/katzenpost/sfw/transport"
	"github.com/katzenpost/sfw/wire/commands"
)

// Transport carries one request/response exchange with a provider.
type Transport interface {
	Exchange(ctx context.Context, addr string, request []byte) ([]byte, error)
}

// Codec translates requests and responses to and from their wire form.
type Codec interface {
	EncodeRequest(commands.Request) ([]byte, error)
	DecodeResponse([]byte) (commands.Response, error)
}

// Option configures a ProviderClient.
type Option func(*ProviderClient)

// WithLogger sets the logger used by the client and its default transport.
func WithLogger(log *logging.Logger) Option {
	return func(c *ProviderClient) {
		c.log = log
	}
}

// WithTransport replaces the default TCP transport.
func WithTransport(t Transport) Option {
	return func(c *ProviderClient) {
		c.transport = t
	}
}

// WithCodec replaces the default wire codec.
func WithCodec(codec Codec) Option {
	return func(c *ProviderClient) {
		c.codec = codec
	}
}

// ProviderClient talks to a single provider on behalf of a single client
// address.
//
// A ProviderClient is not safe for concurrent use.  Register and
// RetrieveMessages both check and then update the held token, so calls on
// one instance must be sequential or serialized by the caller.
type ProviderClient struct {
	log *logging.Logger

	transport Transport
	codec     Codec

	providerAddr string
	address      identity.ClientAddress

	token    identity.AuthToken
	hasToken bool
}

// New creates a ProviderClient for the provider at location, which may be
// a bare host or a host:port pair.  Any supplied port is replaced with the
// provider's client facing port, constants.ProviderClientPort, since the
// port advertised in the topology belongs to a different listener.
func New(location string, address identity.ClientAddress, token *identity.AuthToken, opts ...Option) (*ProviderClient, error) {
	providerAddr, err := providerAddress(location)
	if err != nil {
		return nil, err
	}

	c := &ProviderClient{
		providerAddr: providerAddr,
		address:      address,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.MustGetLogger("client")
	}
	if c.transport == nil {
		c.transport = transport.New(c.log, nil)
	}
	if c.codec == nil {
		c.codec = commands.Codec{}
	}
	if token != nil {
		c.token = *token
		c.hasToken = true
	}
	return c, nil
}

func providerAddress(location string) (string, error) {
	host := location
	if h, _, err := net.SplitHostPort(location); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return "", fmt.Errorf("client: invalid provider location '%v'", location)
	}
	return net.JoinHostPort(host, strconv.Itoa(constants.ProviderClientPort)), nil
}

// ProviderAddress returns the host:port the client connects to.
func (c *ProviderClient) ProviderAddress() string {
	return c.providerAddr
}

// Address returns the client's address.
func (c *ProviderClient) Address() identity.ClientAddress {
	return c.address
}

// Token returns the held auth token, and false if there is none.
func (c *ProviderClient) Token() (identity.AuthToken, bool) {
	return c.token, c.hasToken
}

// IsRegistered returns true iff the client holds an auth token.
func (c *ProviderClient) IsRegistered() bool {
	return c.hasToken
}

// UpdateToken replaces the held auth token, whether or not one is held.
func (c *ProviderClient) UpdateToken(token identity.AuthToken) {
	c.token = token
	c.hasToken = true
}

// Register registers the client's address with the provider, and stores and
// returns the auth token the provider issues.  It fails with
// ErrAlreadyRegistered, without contacting the provider, if a token is
// already held.
func (c *ProviderClient) Register(ctx context.Context) (identity.AuthToken, error) {
	token, err := c.register(ctx)
	instrument.ClientOperation("register", outcome(err))
	return token, err
}

func (c *ProviderClient) register(ctx context.Context) (identity.AuthToken, error) {
	if c.hasToken {
		return identity.AuthToken{}, ErrAlreadyRegistered
	}

	resp, err := c.exchange(ctx, &commands.Register{Address: c.address})
	if err != nil {
		return identity.AuthToken{}, mapError("register", err)
	}
	switch r := resp.(type) {
	case *commands.RegisterResponse:
		c.token = r.Token
		c.hasToken = true
		c.log.Infof("Registered %v with %v", c.address, c.providerAddr)
		return r.Token, nil
	case *commands.ErrorResponse:
		return identity.AuthToken{}, mapError("register", &ProviderError{Status: r.Status})
	default:
		return identity.AuthToken{}, mapError("register", &wrongResponseError{want: "register response", got: resp})
	}
}

// RetrieveMessages pulls the messages queued for the client, in the order
// the provider returned them.  It fails with ErrEmptyAuthToken, without
// contacting the provider, if no token is held.
func (c *ProviderClient) RetrieveMessages(ctx context.Context) ([][]byte, error) {
	msgs, err := c.retrieveMessages(ctx)
	instrument.ClientOperation("pull", outcome(err))
	if err == nil {
		instrument.MessagesRetrieved(len(msgs))
	}
	return msgs, err
}

func (c *ProviderClient) retrieveMessages(ctx context.Context) ([][]byte, error) {
	if !c.hasToken {
		return nil, ErrEmptyAuthToken
	}

	resp, err := c.exchange(ctx, &commands.Pull{Address: c.address, Token: c.token})
	if err != nil {
		return nil, mapError("pull", err)
	}
	switch r := resp.(type) {
	case *commands.PullResponse:
		c.log.Debugf("Retrieved %d messages from %v", len(r.Messages), c.providerAddr)
		return r.Messages, nil
	case *commands.ErrorResponse:
		return nil, mapError("pull", &ProviderError{Status: r.Status})
	default:
		return nil, mapError("pull", &wrongResponseError{want: "pull response", got: resp})
	}
}

func (c *ProviderClient) exchange(ctx context.Context, req commands.Request) (commands.Response, error) {
	b, err := c.codec.EncodeRequest(req)
	if err != nil {
		return nil, &encodeError{err}
	}
	raw, err := c.transport.Exchange(ctx, c.providerAddr, b)
	if err != nil {
		return nil, err
	}
	resp, err := c.codec.DecodeResponse(raw)
	if err != nil {
		return nil, &decodeError{err}
	}
	return resp, nil
}
