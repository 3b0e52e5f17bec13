// config.go - Reference provider configuration.
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

// Package config implements the reference provider configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/idna"

	"github.com/katzenpost/sfw/constants"
)

const (
	defaultLogLevel       = "NOTICE"
	defaultMaxPullBatch   = 1024
	defaultHandlerTimeout = 30 * time.Second
	defaultSpoolVacuum    = 10 * time.Minute
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Server is the provider server configuration.
type Server struct {
	// Identifier is the human readable identifier for the node (eg: FQDN).
	Identifier string

	// Address is the IP address the client facing listener binds to.  The
	// port is always constants.ProviderClientPort, a port set here must
	// match it.
	Address string

	// DataDir is the absolute path to the provider's state files.
	DataDir string

	// MetricsAddress is the address/port to bind the prometheus metrics
	// endpoint to.
	MetricsAddress string
}

func (sCfg *Server) validate() error {
	if sCfg.Identifier == "" {
		return errors.New("config: Server: Identifier is not set")
	}

	host, port, err := net.SplitHostPort(sCfg.Address)
	if err != nil {
		// A bare IP address.
		host, port = sCfg.Address, ""
	}
	if net.ParseIP(host) == nil {
		return fmt.Errorf("config: Server: Address '%v' is not an IP address", sCfg.Address)
	}
	clientPort := strconv.Itoa(constants.ProviderClientPort)
	if port != "" && port != clientPort {
		return fmt.Errorf("config: Server: Address '%v' must use port %v", sCfg.Address, clientPort)
	}
	sCfg.Address = net.JoinHostPort(host, clientPort)

	if !filepath.IsAbs(sCfg.DataDir) {
		return fmt.Errorf("config: Server: DataDir '%v' is not an absolute path", sCfg.DataDir)
	}
	if sCfg.MetricsAddress != "" {
		if _, err := netip.ParseAddrPort(sCfg.MetricsAddress); err != nil {
			return fmt.Errorf("config: Server: MetricsAddress '%v' is invalid: %v", sCfg.MetricsAddress, err)
		}
	}
	return nil
}

// Debug is the provider debug configuration.
type Debug struct {
	// MaxPullBatch is the maximum number of messages returned by a single
	// pull.
	MaxPullBatch int

	// HandlerTimeout bounds how long a single client connection may take
	// to send its request and receive the response.
	HandlerTimeout time.Duration

	// SpoolVacuumInterval is how often spools without a registered owner
	// are removed.
	SpoolVacuumInterval time.Duration

	// ListenAddress overrides Server.Address for the listener, allowing
	// tests to bind an ephemeral port.
	ListenAddress string
}

func (dCfg *Debug) applyDefaults() {
	if dCfg.MaxPullBatch <= 0 || dCfg.MaxPullBatch > constants.MaxResponseMessages {
		dCfg.MaxPullBatch = defaultMaxPullBatch
	}
	if dCfg.HandlerTimeout <= 0 {
		dCfg.HandlerTimeout = defaultHandlerTimeout
	}
	if dCfg.SpoolVacuumInterval <= 0 {
		dCfg.SpoolVacuumInterval = defaultSpoolVacuum
	}
}

// Logging is the provider logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lCfg.Level = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Config is the top level provider configuration.
type Config struct {
	Server  *Server
	Logging *Logging

	Debug *Debug
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.  Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// The Server section is mandatory, everything else is optional.
	if cfg.Server == nil {
		return errors.New("config: No Server block was present")
	}
	if cfg.Debug == nil {
		cfg.Debug = &Debug{}
	}
	if cfg.Logging == nil {
		logging := defaultLogging
		cfg.Logging = &logging
	}

	var err error
	if err = cfg.Server.validate(); err != nil {
		return err
	}
	if err = cfg.Logging.validate(); err != nil {
		return err
	}
	cfg.Debug.applyDefaults()

	cfg.Server.Identifier, err = idna.Lookup.ToASCII(cfg.Server.Identifier)
	if err != nil {
		return fmt.Errorf("config: Failed to normalize Identifier: %v", err)
	}
	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("No nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
