// config_test.go - Provider client configuration tests.
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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigAddress(t *testing.T) {
	require := require.New(t)

	const basicConfig = `[Provider]
Address = "provider.example.org"

[State]
DataDir = "/var/lib/sfw-client"
`
	cfg, err := Load([]byte(basicConfig))
	require.NoError(err)
	require.Equal("NOTICE", cfg.Logging.Level)
	require.Equal(defaultExchangeTimeout, cfg.Debug.ExchangeTimeout)
	require.Equal(defaultPollingInterval, cfg.Debug.PollingInterval)
	require.Equal("/var/lib/sfw-client/client.private.pem", cfg.PrivateKeyPath())
	require.Equal("/var/lib/sfw-client/state.db", cfg.StatePath())
	require.Equal("none", cfg.UpstreamProxyConfig().Type)

	loc, err := cfg.ProviderLocation()
	require.NoError(err)
	require.Equal("provider.example.org", loc)
	require.Equal("provider.example.org", cfg.ProviderKey())
}

func TestConfigTopology(t *testing.T) {
	require := require.New(t)

	const topologyConfig = `[Logging]
Level = "info"

[Provider]
Name = "beta"

[Identity]
PrivateKeyFile = "/etc/sfw/key.pem"

[State]
DataDir = "/var/lib/sfw-client"

[UpstreamProxy]
Type = "socks5"
Network = "tcp"
Address = "127.0.0.1:9050"

[Debug]
ExchangeTimeout = "5s"
PollingInterval = "1m"

[[Topology.Provider]]
Name = "alpha"
Address = "192.0.2.1:29483"

[[Topology.Provider]]
Name = "beta"
Address = "192.0.2.2:29483"
`
	cfg, err := Load([]byte(topologyConfig))
	require.NoError(err)
	require.Equal("INFO", cfg.Logging.Level)
	require.Equal(5*time.Second, cfg.Debug.ExchangeTimeout)
	require.Equal(time.Minute, cfg.Debug.PollingInterval)
	require.Equal("/etc/sfw/key.pem", cfg.PrivateKeyPath())
	require.Equal("socks5", cfg.UpstreamProxyConfig().Type)

	loc, err := cfg.ProviderLocation()
	require.NoError(err)
	require.Equal("192.0.2.2:29483", loc)
	require.Equal("beta", cfg.ProviderKey())

	desc, err := cfg.Directory().GetProvider("alpha")
	require.NoError(err)
	require.Equal("192.0.2.1:29483", desc.Address)
}

func TestConfigInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"no provider":      "[State]\nDataDir = \"/tmp/c\"\n",
		"no state":         "[Provider]\nAddress = \"p\"\n",
		"empty provider":   "[Provider]\n[State]\nDataDir = \"/tmp/c\"\n",
		"relative datadir": "[Provider]\nAddress = \"p\"\n[State]\nDataDir = \"c\"\n",
		"unknown provider": "[Provider]\nName = \"nope\"\n[State]\nDataDir = \"/tmp/c\"\n",
		"bad proxy":        "[Provider]\nAddress = \"p\"\n[State]\nDataDir = \"/tmp/c\"\n[UpstreamProxy]\nType = \"http\"\n",
		"unknown key":      "[Provider]\nAddress = \"p\"\nPort = 1\n[State]\nDataDir = \"/tmp/c\"\n",
	} {
		_, err := Load([]byte(body))
		require.Error(t, err, name)
	}
}
