// proxy.go - Provider client upstream proxy support.
// Copyright (C) 2018  Yawning Angel.
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

// Package proxy implements the support for an upstream (outgoing) proxy.
package proxy

import (
	"context"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	typeNone      = "none"
	typeTorSocks5 = "tor+socks5"
	typeSocks5    = "socks5"

	netUnix = "unix"
	netTCP  = "tcp"

	maxSocks5AuthLen = 255
)

var torSocks5ProcessIsolation string

// Config is the proxy configuration.
type Config struct {
	// Type is the proxy type (Eg: "none"," socks5", "tor+socks5").
	Type string

	// Network is the proxy address' network (`unix`, `tcp`).
	Network string

	// Address is the proxy's address.
	Address string

	// User is the optional proxy username.
	User string

	// Password is the optional proxy password.
	Password string

	auth *proxy.Auth
}

// DialContextFn is a function that matches the Dialer.DialContext prototype.
type DialContextFn func(context.Context, string, string) (net.Conn, error)

// FixupAndValidate applies defaults to config entires and validates the
// supplied configuration.
func (cfg *Config) FixupAndValidate() error {
	cfg.Type = strings.ToLower(cfg.Type)
	switch cfg.Type {
	case "":
		cfg.Type = typeNone
	case typeNone:
	case typeSocks5, typeTorSocks5:
		uLen, pLen := len(cfg.User), len(cfg.Password)
		if uLen > maxSocks5AuthLen {
			return fmt.Errorf("proxy/config: User too long")
		}
		if pLen > maxSocks5AuthLen {
			return fmt.Errorf("proxy/config: Password too long")
		}
		if uLen != 0 && pLen == 0 || uLen == 0 && pLen != 0 {
			return fmt.Errorf("proxy/config: Both User and Password must be specified")
		}
		if uLen != 0 && pLen != 0 {
			if cfg.Type == typeTorSocks5 {
				return fmt.Errorf("proxy:config: Tor SOCKS5 conflicts with setting User/Password")
			}
			cfg.auth = &proxy.Auth{
				User:     cfg.User,
				Password: cfg.Password,
			}
		}

		cfg.Network = strings.ToLower(cfg.Network)
		switch cfg.Network {
		case netTCP:
			if err := ensureAddrIPPort(cfg.Address); err != nil {
				return fmt.Errorf("proxy/config: Address '%v' is invalid: %v", cfg.Address, err)
			}
		case netUnix:
			fi, err := os.Lstat(cfg.Address)
			if err != nil {
				return fmt.Errorf("proxy/config: Address '%v' failed to stat(): %v", cfg.Address, err)
			}
			if fi.Mode()&os.ModeSocket == 0 {
				return fmt.Errorf("proxy/config: Address '%v' does not appear to be a socket", cfg.Address)
			}
		default:
			return fmt.Errorf("proxy/config: Network '%v' is invalid", cfg.Network)
		}
	default:
		return fmt.Errorf("proxy/config: Type '%v' is invalid", cfg.Type)
	}
	return nil
}

// ToDialContext returns a function matching Dialer.DialContext() that will
// utilize the configured proxy or nil iff no proxy is configured.  The
// returned connections support CloseWrite and CloseRead, acting on the
// connection to the proxy.
func (cfg *Config) ToDialContext(tag string, keepAlive time.Duration) DialContextFn {
	switch cfg.Type {
	case typeNone, "":
		return nil
	case typeSocks5, typeTorSocks5:
		return cfg.newContextSOCKS5(tag, keepAlive)
	default:
		panic("proxy: ToDialContext(): invalid type: " + cfg.Type)
	}
}

func (cfg *Config) newContextSOCKS5(tag string, keepAlive time.Duration) DialContextFn {
	auth := cfg.auth
	if cfg.Type == typeTorSocks5 {
		auth = &proxy.Auth{}

		// Craft an SOCKSPort isolation entry from `tag`, and jam it into
		// the User/Password.
		sum := sha512.Sum512_256([]byte(tag))
		isolationTag := torSocks5ProcessIsolation + hex.EncodeToString(sum[:16])
		auth.User = isolationTag
		auth.Password = string([]byte{0x00})
	}

	s := &contextSOCKS5{
		proxyNet:  cfg.Network,
		proxyAddr: cfg.Address,
		proxyAuth: auth,
		keepAlive: keepAlive,
	}
	return s.dialContext
}

type contextSOCKS5 struct {
	proxyNet  string
	proxyAddr string
	proxyAuth *proxy.Auth
	keepAlive time.Duration
}

func (s *contextSOCKS5) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	fwdDialer := &contextDialer{
		ctx:       ctx,
		keepAlive: s.keepAlive,
		connCh:    make(chan net.Conn),
	}
	defer close(fwdDialer.connCh)

	socksDialer, err := proxy.SOCKS5(s.proxyNet, s.proxyAddr, s.proxyAuth, fwdDialer)
	if err != nil {
		return nil, err
	}
	go func() {
		// Wait for the forward dial process to finish.
		conn, ok := <-fwdDialer.connCh
		if !ok {
			return
		}

		// Do the "right" thing based on the context.
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		case <-fwdDialer.connCh:
		}
	}()

	conn, err := socksDialer.Dial(network, address)
	if err != nil {
		return nil, err
	}

	// The SOCKS connection hides the underlying stream, so route half
	// closes to the connection the forward dialer established.
	if raw, ok := fwdDialer.conn.(halfCloser); ok {
		return &halfCloseConn{Conn: conn, raw: raw}, nil
	}
	return conn, nil
}

type contextDialer struct {
	ctx       context.Context // I know this is frowned upon.
	keepAlive time.Duration
	connCh    chan net.Conn
	conn      net.Conn
}

func (c *contextDialer) Dial(network, address string) (net.Conn, error) {
	directDialer := &net.Dialer{KeepAlive: c.keepAlive}
	conn, err := directDialer.DialContext(c.ctx, network, address)
	c.conn = conn
	c.connCh <- conn
	return conn, err
}

type halfCloser interface {
	CloseWrite() error
	CloseRead() error
}

type halfCloseConn struct {
	net.Conn

	raw halfCloser
}

func (c *halfCloseConn) CloseWrite() error {
	return c.raw.CloseWrite()
}

func (c *halfCloseConn) CloseRead() error {
	return c.raw.CloseRead()
}

func ensureAddrIPPort(a string) error {
	h, p, err := net.SplitHostPort(a)
	if err != nil {
		return err
	}
	if net.ParseIP(h) == nil {
		return fmt.Errorf("address '%v' is not an IP address", h)
	}
	if p == "" {
		return fmt.Errorf("address '%v' is missing a port", a)
	}
	return nil
}

func init() {
	// Initialize the per-process Tor SOCKS isolation tag.  This is
	// probably massive overkill.
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(os.Getpid()))
	binary.BigEndian.PutUint64(buf[8:], uint64(time.Now().Unix()))
	sum := sha512.Sum512_256(buf[:])
	torSocks5ProcessIsolation = "sfw/client:" + hex.EncodeToString(sum[:8]) + ":"
}
