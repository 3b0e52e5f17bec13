// transport_test.go - Close-delimited transport tests.
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

package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sfw/core/log"
	"github.com/katzenpost/sfw/internal/proxy"
)

func testLogger(t *testing.T) *logging.Logger {
	backend, err := log.New("", "DEBUG", false)
	require.NoError(t, err)
	return backend.GetLogger("transport_test")
}

// serve accepts a single connection, reads the request until the client
// half-closes, and replies with fn(request).
func serve(t *testing.T, fn func([]byte) []byte) (string, <-chan []byte) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	reqCh := make(chan []byte, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		req, err := io.ReadAll(conn)
		if err != nil {
			return
		}
		reqCh <- req
		conn.Write(fn(req))
		conn.(*net.TCPConn).CloseWrite()
	}()
	return l.Addr().String(), reqCh
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func TestExchange(t *testing.T) {
	require := require.New(t)

	addr, reqCh := serve(t, reverse)
	tr := New(testLogger(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := tr.Exchange(ctx, addr, []byte("provider"))
	require.NoError(err)
	require.Equal([]byte("redivorp"), resp)
	require.Equal([]byte("provider"), <-reqCh)
}

func TestExchangeLargeResponse(t *testing.T) {
	require := require.New(t)

	big := bytes.Repeat([]byte{0xa5}, 1<<20)
	addr, _ := serve(t, func([]byte) []byte { return big })
	tr := New(testLogger(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := tr.Exchange(ctx, addr, []byte{0x00})
	require.NoError(err)
	require.Equal(big, resp)
}

func TestExchangeEmptyResponse(t *testing.T) {
	addr, _ := serve(t, func([]byte) []byte { return nil })
	tr := New(testLogger(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := tr.Exchange(ctx, addr, []byte{0x00})
	require.NoError(t, err)
	require.Len(t, resp, 0)
}

func TestExchangeDialFailure(t *testing.T) {
	require := require.New(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	addr := l.Addr().String()
	l.Close()

	tr := New(testLogger(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = tr.Exchange(ctx, addr, []byte{0x00})
	require.Error(err)

	var tErr *Error
	require.True(errors.As(err, &tErr))
	require.Equal("dial", tErr.Op)
	require.Equal(addr, tErr.Addr)
}

func TestExchangePeerNeverCloses(t *testing.T) {
	require := require.New(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer l.Close()

	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.ReadAll(conn)
		conn.Write([]byte("partial"))
		<-doneCh
	}()

	tr := New(testLogger(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = tr.Exchange(ctx, l.Addr().String(), []byte{0x00})
	require.Error(err)
	require.Less(time.Since(start), 5*time.Second)

	var tErr *Error
	require.True(errors.As(err, &tErr))
	require.Equal("read", tErr.Op)
	require.True(errors.Is(err, context.DeadlineExceeded))
}

func TestExchangeCanceled(t *testing.T) {
	require := require.New(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer l.Close()

	doneCh := make(chan struct{})
	defer close(doneCh)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-doneCh
	}()

	tr := New(testLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err = tr.Exchange(ctx, l.Addr().String(), []byte{0x00})
	require.Error(err)
	require.True(errors.Is(err, context.Canceled))
}

// socks5Server is a minimal no-auth SOCKS5 CONNECT proxy that forwards
// half-closes in both directions.
func socks5Server(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go socks5Handle(conn.(*net.TCPConn))
		}
	}()
	return l.Addr().String()
}

func socks5Handle(conn *net.TCPConn) {
	defer conn.Close()

	// Greeting: VER NMETHODS METHODS...
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, hdr[1])); err != nil {
		return
	}
	conn.Write([]byte{0x05, 0x00})

	// Request: VER CMD RSV ATYP(IPv4) ADDR PORT
	req := make([]byte, 4+4+2)
	if _, err := io.ReadFull(conn, req); err != nil || req[3] != 0x01 {
		return
	}
	target := &net.TCPAddr{
		IP:   net.IP(req[4:8]),
		Port: int(binary.BigEndian.Uint16(req[8:10])),
	}
	upstream, err := net.DialTCP("tcp", nil, target)
	if err != nil {
		conn.Write([]byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer upstream.Close()
	conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})

	doneCh := make(chan struct{})
	go func() {
		io.Copy(upstream, conn)
		upstream.CloseWrite()
		close(doneCh)
	}()
	io.Copy(conn, upstream)
	conn.CloseWrite()
	<-doneCh
}

func TestExchangeViaSOCKS5(t *testing.T) {
	require := require.New(t)

	addr, reqCh := serve(t, reverse)
	proxyCfg := &proxy.Config{
		Type:    "socks5",
		Network: "tcp",
		Address: socks5Server(t),
	}
	require.NoError(proxyCfg.FixupAndValidate())

	tr := New(testLogger(t), proxyCfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := tr.Exchange(ctx, addr, []byte("via proxy"))
	require.NoError(err)
	require.Equal(reverse([]byte("via proxy")), resp)
	require.Equal([]byte("via proxy"), <-reqCh)
}
