// main.go - Store-and-forward provider binary.
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
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/katzenpost/sfw/common"
	"github.com/katzenpost/sfw/provider"
	"github.com/katzenpost/sfw/provider/config"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
}

// newRootCommand creates the root cobra command
func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "sfwprovider",
		Short: "Store-and-forward provider",
		Long: `sfwprovider runs a store-and-forward provider.  Clients register their
address once to obtain an auth token, and then pull the messages held for
them by presenting it.  The client listener always uses port 9000.

The provider is designed to run as a long-lived daemon process.  SIGHUP
reopens the log file, SIGINT and SIGTERM shut it down gracefully.`,
		Example: `  # Start the provider with the default configuration file
  sfwprovider

  # Start the provider with a custom configuration file
  sfwprovider --config /etc/sfw/provider.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvider(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "sfwprovider.toml",
		"path to the provider configuration file (TOML format)")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func runProvider(cfg Config) error {
	// Ensure that a sane number of OS threads is allowed.
	if os.Getenv("GOMAXPROCS") == "" {
		// But only if the user isn't trying to override it.
		nProcs := runtime.GOMAXPROCS(0)
		nCPU := runtime.NumCPU()
		if nProcs < nCPU {
			runtime.GOMAXPROCS(nCPU)
		}
	}

	providerCfg, err := config.LoadFile(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", cfg.ConfigFile, err)
	}

	// Setup the signal handling.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)

	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)

	// Start up the provider.
	svr, err := provider.New(providerCfg)
	if err != nil {
		return fmt.Errorf("failed to spawn provider instance: %v", err)
	}
	defer svr.Shutdown()

	// Halt the provider gracefully on SIGINT/SIGTERM.
	go func() {
		<-haltCh
		svr.Shutdown()
	}()

	// Rotate provider logs upon SIGHUP.
	go func() {
		for range rotateCh {
			svr.RotateLog()
		}
	}()

	// Wait for the provider to explode or be terminated.
	svr.Wait()
	return nil
}
