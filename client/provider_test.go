// provider_test.go - Provider client tests.
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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/core/log"
	"github.com/katzenpost/sfw/transport"
	"github.com/katzenpost/sfw/wire/commands"
)

var (
	addrA  = identity.ClientAddress(bytes.Repeat([]byte{0x01}, 32))
	tokenT = identity.AuthToken(bytes.Repeat([]byte{0x02}, 32))
)

func testLogger(t *testing.T) *logging.Logger {
	backend, err := log.New("", "DEBUG", false)
	require.NoError(t, err)
	return backend.GetLogger("client_test")
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// stubTransport records every exchange and answers with handler.
type stubTransport struct {
	calls    int
	addrs    []string
	requests [][]byte
	handler  func([]byte) ([]byte, error)
}

func (s *stubTransport) Exchange(ctx context.Context, addr string, request []byte) ([]byte, error) {
	s.calls++
	s.addrs = append(s.addrs, addr)
	s.requests = append(s.requests, append([]byte{}, request...))
	return s.handler(request)
}

func respondWith(resp commands.Response) func([]byte) ([]byte, error) {
	return func([]byte) ([]byte, error) {
		return resp.ToBytes(), nil
	}
}

func respondRaw(b []byte) func([]byte) ([]byte, error) {
	return func([]byte) ([]byte, error) {
		return b, nil
	}
}

// fakeProvider answers Register{A} with tokenT and Pull{A, tokenT} with
// two messages.
func fakeProvider(request []byte) ([]byte, error) {
	req, err := commands.RequestFromBytes(request)
	if err != nil {
		return commands.ErrorResponse{Status: commands.StatusBadRequest}.ToBytes(), nil
	}
	switch r := req.(type) {
	case *commands.Register:
		if r.Address != addrA {
			return commands.ErrorResponse{Status: commands.StatusUnauthorized}.ToBytes(), nil
		}
		return commands.RegisterResponse{Token: tokenT}.ToBytes(), nil
	case *commands.Pull:
		if r.Address != addrA || r.Token != tokenT {
			return commands.ErrorResponse{Status: commands.StatusUnauthorized}.ToBytes(), nil
		}
		return commands.PullResponse{Messages: [][]byte{[]byte("hello"), []byte("world")}}.ToBytes(), nil
	}
	return nil, errors.New("unreachable")
}

func newTestClient(t *testing.T, token *identity.AuthToken, tr Transport) *ProviderClient {
	c, err := New("provider.example:29483", addrA, token, WithLogger(testLogger(t)), WithTransport(tr))
	require.NoError(t, err)
	return c
}

func TestNewProviderAddress(t *testing.T) {
	require := require.New(t)

	for _, v := range []struct {
		location string
		expected string
	}{
		{"provider.example:29483", "provider.example:9000"},
		{"provider.example", "provider.example:9000"},
		{"192.0.2.7:1234", "192.0.2.7:9000"},
		{"[2001:db8::1]:1234", "[2001:db8::1]:9000"},
		{"2001:db8::1", "[2001:db8::1]:9000"},
		{"provider.example:", "provider.example:9000"},
	} {
		c, err := New(v.location, addrA, nil)
		require.NoError(err, v.location)
		require.Equal(v.expected, c.ProviderAddress(), v.location)
	}

	_, err := New("", addrA, nil)
	require.Error(err)
	_, err = New(":1234", addrA, nil)
	require.Error(err)
}

func TestNewInitialToken(t *testing.T) {
	require := require.New(t)

	c := newTestClient(t, nil, &stubTransport{})
	require.False(c.IsRegistered())
	_, ok := c.Token()
	require.False(ok)
	require.Equal(addrA, c.Address())

	tok := tokenT
	c = newTestClient(t, &tok, &stubTransport{})
	require.True(c.IsRegistered())
	got, ok := c.Token()
	require.True(ok)
	require.Equal(tokenT, got)

	// The client keeps its own copy.
	tok[0] = 0xff
	got, _ = c.Token()
	require.Equal(tokenT, got)
}

func TestRegisterAlreadyRegistered(t *testing.T) {
	require := require.New(t)

	tr := &stubTransport{handler: fakeProvider}
	tok := tokenT
	c := newTestClient(t, &tok, tr)

	_, err := c.Register(testContext(t))
	require.ErrorIs(err, ErrAlreadyRegistered)
	require.Equal(0, tr.calls)

	got, ok := c.Token()
	require.True(ok)
	require.Equal(tokenT, got)
}

func TestRetrieveMessagesEmptyAuthToken(t *testing.T) {
	require := require.New(t)

	tr := &stubTransport{handler: fakeProvider}
	c := newTestClient(t, nil, tr)

	msgs, err := c.RetrieveMessages(testContext(t))
	require.ErrorIs(err, ErrEmptyAuthToken)
	require.Nil(msgs)
	require.Equal(0, tr.calls)
	require.False(c.IsRegistered())
}

func TestRegisterThenPull(t *testing.T) {
	require := require.New(t)

	tr := &stubTransport{handler: fakeProvider}
	c := newTestClient(t, nil, tr)
	require.False(c.IsRegistered())

	token, err := c.Register(testContext(t))
	require.NoError(err)
	require.Equal(tokenT, token)
	require.True(c.IsRegistered())
	got, _ := c.Token()
	require.Equal(tokenT, got)

	msgs, err := c.RetrieveMessages(testContext(t))
	require.NoError(err)
	require.Equal([][]byte{[]byte("hello"), []byte("world")}, msgs)

	require.Equal(2, tr.calls)
	require.Equal([]string{"provider.example:9000", "provider.example:9000"}, tr.addrs)

	// The Pull carries exactly the token issued at registration.
	req, err := commands.RequestFromBytes(tr.requests[1])
	require.NoError(err)
	pull, ok := req.(*commands.Pull)
	require.True(ok)
	require.Equal(addrA, pull.Address)
	require.Equal(tokenT, pull.Token)

	// Pulling does not change the state.
	_, err = c.RetrieveMessages(testContext(t))
	require.NoError(err)
	got, _ = c.Token()
	require.Equal(tokenT, got)
}

func TestRegisterUsesParsedToken(t *testing.T) {
	require := require.New(t)

	issued := identity.AuthToken{0xde, 0xad, 0xbe, 0xef}
	tr := &stubTransport{handler: respondWith(commands.RegisterResponse{Token: issued})}
	c := newTestClient(t, nil, tr)

	token, err := c.Register(testContext(t))
	require.NoError(err)
	require.Equal(issued, token)
	got, _ := c.Token()
	require.Equal(issued, got)

	req, err := commands.RequestFromBytes(tr.requests[0])
	require.NoError(err)
	require.Equal(&commands.Register{Address: addrA}, req)
}

func TestUpdateToken(t *testing.T) {
	require := require.New(t)

	tr := &stubTransport{handler: fakeProvider}
	c := newTestClient(t, nil, tr)

	c.UpdateToken(tokenT)
	require.True(c.IsRegistered())
	msgs, err := c.RetrieveMessages(testContext(t))
	require.NoError(err)
	require.Len(msgs, 2)

	other := identity.AuthToken{0x03}
	c.UpdateToken(other)
	got, _ := c.Token()
	require.Equal(other, got)

	msgs, err = c.RetrieveMessages(testContext(t))
	require.ErrorIs(err, ErrProviderRejected)
	require.Nil(msgs)

	req, err := commands.RequestFromBytes(tr.requests[1])
	require.NoError(err)
	require.Equal(other, req.(*commands.Pull).Token)
}

func TestNetworkError(t *testing.T) {
	require := require.New(t)

	fail := func([]byte) ([]byte, error) {
		return nil, &transport.Error{Op: "dial", Addr: "provider.example:9000", Err: errors.New("connection refused")}
	}

	c := newTestClient(t, nil, &stubTransport{handler: fail})
	_, err := c.Register(testContext(t))
	require.ErrorIs(err, ErrNetwork)
	require.NotErrorIs(err, ErrInvalidResponse)
	require.NotErrorIs(err, ErrInvalidResponseLength)
	require.False(c.IsRegistered())

	var tErr *transport.Error
	require.ErrorAs(err, &tErr)
	require.Equal("dial", tErr.Op)

	c.UpdateToken(tokenT)
	_, err = c.RetrieveMessages(testContext(t))
	require.ErrorIs(err, ErrNetwork)
	require.NotErrorIs(err, ErrInvalidResponse)
	require.NotErrorIs(err, ErrInvalidResponseLength)
}

func TestContextErrorIsNetworkError(t *testing.T) {
	require := require.New(t)

	blocked := &stubTransport{handler: func([]byte) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}}
	c := newTestClient(t, nil, blocked)
	_, err := c.Register(testContext(t))
	require.ErrorIs(err, ErrNetwork)
	require.ErrorIs(err, context.DeadlineExceeded)
}

func TestInvalidResponse(t *testing.T) {
	require := require.New(t)

	// Unknown discriminator.
	c := newTestClient(t, nil, &stubTransport{handler: respondRaw([]byte{0x7f, 0x00, 0x00, 0x00, 0x00, 0x00})})
	_, err := c.Register(testContext(t))
	require.ErrorIs(err, ErrInvalidResponse)
	require.NotErrorIs(err, ErrInvalidResponseLength)
	require.ErrorIs(err, commands.ErrMalformed)
	require.False(c.IsRegistered())

	// Declared length larger than the bytes received.
	b := commands.RegisterResponse{Token: tokenT}.ToBytes()
	binary.BigEndian.PutUint32(b[2:6], 64)
	c = newTestClient(t, nil, &stubTransport{handler: respondRaw(b)})
	_, err = c.Register(testContext(t))
	require.ErrorIs(err, ErrInvalidResponseLength)
	require.NotErrorIs(err, ErrInvalidResponse)
	require.False(c.IsRegistered())

	// Truncated pull response.
	b = commands.PullResponse{Messages: [][]byte{[]byte("hello")}}.ToBytes()
	c = newTestClient(t, nil, &stubTransport{handler: respondRaw(b[:len(b)-2])})
	c.UpdateToken(tokenT)
	_, err = c.RetrieveMessages(testContext(t))
	require.ErrorIs(err, ErrInvalidResponseLength)

	// Empty response.
	c = newTestClient(t, nil, &stubTransport{handler: respondRaw(nil)})
	_, err = c.Register(testContext(t))
	require.ErrorIs(err, ErrInvalidResponse)
}

func TestWrongResponseVariant(t *testing.T) {
	require := require.New(t)

	c := newTestClient(t, nil, &stubTransport{handler: respondWith(commands.PullResponse{})})
	_, err := c.Register(testContext(t))
	require.ErrorIs(err, ErrInvalidResponse)
	require.False(c.IsRegistered())

	c = newTestClient(t, nil, &stubTransport{handler: respondWith(commands.RegisterResponse{Token: tokenT})})
	c.UpdateToken(identity.AuthToken{0x09})
	_, err = c.RetrieveMessages(testContext(t))
	require.ErrorIs(err, ErrInvalidResponse)

	// A wrong variant does not replace the held token.
	got, _ := c.Token()
	require.Equal(identity.AuthToken{0x09}, got)
}

func TestProviderRejected(t *testing.T) {
	require := require.New(t)

	c := newTestClient(t, nil, &stubTransport{handler: respondWith(commands.ErrorResponse{Status: commands.StatusAlreadyRegistered})})
	_, err := c.Register(testContext(t))
	require.ErrorIs(err, ErrProviderRejected)
	require.False(c.IsRegistered())

	var pErr *ProviderError
	require.ErrorAs(err, &pErr)
	require.Equal(commands.StatusAlreadyRegistered, pErr.Status)
}

type failingCodec struct {
	commands.Codec
}

func (failingCodec) EncodeRequest(commands.Request) ([]byte, error) {
	return nil, errors.New("encoder out of order")
}

type opaqueDecodeCodec struct {
	commands.Codec
}

func (opaqueDecodeCodec) DecodeResponse([]byte) (commands.Response, error) {
	return nil, errors.New("unsupported version")
}

func TestCodecErrors(t *testing.T) {
	require := require.New(t)

	tr := &stubTransport{handler: fakeProvider}
	c, err := New("provider.example", addrA, nil, WithTransport(tr), WithCodec(failingCodec{}))
	require.NoError(err)
	_, err = c.Register(testContext(t))
	require.ErrorIs(err, ErrInvalidRequest)
	require.Equal(0, tr.calls)

	c, err = New("provider.example", addrA, nil, WithTransport(tr), WithCodec(opaqueDecodeCodec{}))
	require.NoError(err)
	_, err = c.Register(testContext(t))
	require.ErrorIs(err, ErrInvalidResponse)
	require.NotErrorIs(err, ErrNetwork)
}

func TestMapErrorTotal(t *testing.T) {
	require := require.New(t)

	require.NoError(mapError("op", nil))
	sentinels := []error{
		ErrAlreadyRegistered,
		ErrEmptyAuthToken,
		ErrNetwork,
		ErrInvalidRequest,
		ErrInvalidResponse,
		ErrInvalidResponseLength,
		ErrProviderRejected,
	}
	for _, in := range []error{
		errors.New("anything"),
		ErrAlreadyRegistered,
		&encodeError{errors.New("x")},
		&decodeError{commands.ErrLengthMismatch},
		&wrongResponseError{want: "x"},
		&ProviderError{Status: commands.StatusInternal},
		context.Canceled,
	} {
		err := mapError("op", in)
		n := 0
		for _, s := range sentinels {
			if errors.Is(err, s) {
				n++
			}
		}
		require.Equal(1, n, "%v", in)
	}
}
