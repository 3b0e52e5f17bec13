// main.go - Store-and-forward provider client.
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

package main

import (
	"github.com/spf13/cobra"

	"github.com/katzenpost/sfw/common"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
}

// newRootCommand creates the root cobra command
func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "sfwclient",
		Short: "Store-and-forward provider client",
		Long: `sfwclient registers a client address with its store-and-forward provider
and retrieves the messages the provider holds for it.

The client address is derived from an X25519 key kept in the state
directory.  Registering once yields an auth token, which is persisted and
presented on every later fetch.  Retrieved messages are written to stdout
and are not kept by the client.`,
		Example: `  # Create a key and show the resulting address
  sfwclient genkey -f client.toml

  # Register with the configured provider
  sfwclient register -f client.toml

  # Fetch pending messages once
  sfwclient fetch -f client.toml

  # Keep fetching until interrupted
  sfwclient fetch -f client.toml --loop`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&cfg.ConfigFile, "config", "f", "sfwclient.toml",
		"path to the client configuration file (TOML format)")

	cmd.AddCommand(
		newGenKeyCommand(&cfg),
		newAddressCommand(&cfg),
		newRegisterCommand(&cfg),
		newFetchCommand(&cfg),
		newSetTokenCommand(&cfg),
	)
	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}
