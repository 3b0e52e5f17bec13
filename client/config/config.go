// config.go - Provider client configuration.
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

// Package config implements the configuration for the provider client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/katzenpost/sfw/internal/proxy"
	"github.com/katzenpost/sfw/pki"
)

const (
	defaultLogLevel        = "NOTICE"
	defaultExchangeTimeout = 30 * time.Second
	defaultPollingInterval = 10 * time.Second
	defaultMaxBackoff      = 2 * time.Minute
	defaultPrivateKeyFile  = "client.private.pem"
	defaultStateFile       = "state.db"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Logging is the logging configuration.
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

// Provider selects the provider the client registers with.
type Provider struct {
	// Name is the provider's name in the topology.
	Name string

	// Address is the provider's host, optionally with a port.  When set it
	// takes precedence over the topology.  Any port is replaced with the
	// provider's client port.
	Address string
}

func (pCfg *Provider) validate() error {
	if pCfg.Name == "" && pCfg.Address == "" {
		return errors.New("config: Provider: one of Name or Address must be set")
	}
	return nil
}

// Identity is the client key configuration.
type Identity struct {
	// PrivateKeyFile is the PEM file holding the client's X25519 private
	// key.  Relative paths are relative to State.DataDir.
	PrivateKeyFile string
}

// State is the client state configuration.
type State struct {
	// DataDir is the absolute path to the client's state files.
	DataDir string
}

func (sCfg *State) validate() error {
	if !filepath.IsAbs(sCfg.DataDir) {
		return fmt.Errorf("config: State: DataDir '%v' is not an absolute path", sCfg.DataDir)
	}
	return nil
}

// Debug is the debug configuration.
type Debug struct {
	// ExchangeTimeout bounds each exchange with the provider.  The
	// transport waits for the provider to close its side of the
	// connection, so this is the only bound on a stuck provider.
	ExchangeTimeout time.Duration

	// PollingInterval is the interval between pulls.
	PollingInterval time.Duration

	// MaxBackoff caps the delay between failed attempts.
	MaxBackoff time.Duration
}

func (d *Debug) fixup() {
	if d.ExchangeTimeout <= 0 {
		d.ExchangeTimeout = defaultExchangeTimeout
	}
	if d.PollingInterval <= 0 {
		d.PollingInterval = defaultPollingInterval
	}
	if d.MaxBackoff <= 0 {
		d.MaxBackoff = defaultMaxBackoff
	}
}

// UpstreamProxy is the outgoing connection proxy configuration.
type UpstreamProxy struct {
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
}

func (uCfg *UpstreamProxy) toProxyConfig() (*proxy.Config, error) {
	cfg := &proxy.Config{}
	if uCfg != nil {
		cfg.Type = uCfg.Type
		cfg.Network = uCfg.Network
		cfg.Address = uCfg.Address
		cfg.User = uCfg.User
		cfg.Password = uCfg.Password
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Topology is the static provider topology.
type Topology struct {
	Provider []*pki.ProviderDescriptor
}

// Config is the top level client configuration.
type Config struct {
	Logging       *Logging
	Provider      *Provider
	Identity      *Identity
	State         *State
	UpstreamProxy *UpstreamProxy
	Topology      *Topology
	Debug         *Debug

	upstreamProxy *proxy.Config
	directory     *pki.StaticDirectory
}

// UpstreamProxyConfig returns the configured upstream proxy, suitable for
// internal use.  Most people should not use this.
func (c *Config) UpstreamProxyConfig() *proxy.Config {
	return c.upstreamProxy
}

// Directory returns the static provider topology.
func (c *Config) Directory() pki.Directory {
	return c.directory
}

// ProviderLocation returns the provider's host, either as configured or
// as advertised in the topology.
func (c *Config) ProviderLocation() (string, error) {
	if c.Provider.Address != "" {
		return c.Provider.Address, nil
	}
	desc, err := c.directory.GetProvider(c.Provider.Name)
	if err != nil {
		return "", err
	}
	return desc.Address, nil
}

// ProviderKey returns the name the client's state is stored under.
func (c *Config) ProviderKey() string {
	if c.Provider.Name != "" {
		return c.Provider.Name
	}
	return c.Provider.Address
}

// PrivateKeyPath returns the absolute path of the client's private key.
func (c *Config) PrivateKeyPath() string {
	if filepath.IsAbs(c.Identity.PrivateKeyFile) {
		return c.Identity.PrivateKeyFile
	}
	return filepath.Join(c.State.DataDir, c.Identity.PrivateKeyFile)
}

// StatePath returns the absolute path of the client's state database.
func (c *Config) StatePath() string {
	return filepath.Join(c.State.DataDir, defaultStateFile)
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration sections.
func (c *Config) FixupAndValidate() error {
	// The Provider and State sections are mandatory.
	if c.Provider == nil {
		return errors.New("config: No Provider block was present")
	}
	if c.State == nil {
		return errors.New("config: No State block was present")
	}

	// Handle missing sections if possible.
	if c.Logging == nil {
		logging := defaultLogging
		c.Logging = &logging
	}
	if c.Identity == nil {
		c.Identity = &Identity{}
	}
	if c.Identity.PrivateKeyFile == "" {
		c.Identity.PrivateKeyFile = defaultPrivateKeyFile
	}
	if c.Topology == nil {
		c.Topology = &Topology{}
	}
	if c.Debug == nil {
		c.Debug = &Debug{}
	}
	c.Debug.fixup()

	// Validate/fixup the various sections.
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Provider.validate(); err != nil {
		return err
	}
	if err := c.State.validate(); err != nil {
		return err
	}
	uCfg, err := c.UpstreamProxy.toProxyConfig()
	if err != nil {
		return err
	}
	c.upstreamProxy = uCfg
	if c.directory, err = pki.NewStaticDirectory(c.Topology.Provider); err != nil {
		return fmt.Errorf("config: Topology is invalid: %v", err)
	}
	if c.Provider.Address == "" {
		if _, err = c.directory.GetProvider(c.Provider.Name); err != nil {
			return fmt.Errorf("config: Provider: %v", err)
		}
	}

	return nil
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
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

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
