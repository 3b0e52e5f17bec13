// commands.go - Store-and-forward provider client subcommands.
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
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/katzenpost/qrterminal"
	"github.com/spf13/cobra"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sfw/client"
	"github.com/katzenpost/sfw/client/config"
	"github.com/katzenpost/sfw/client/state"
	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/core/log"
	"github.com/katzenpost/sfw/transport"
)

// session is everything a subcommand needs to talk to the provider.
type session struct {
	cfg   *config.Config
	log   *logging.Logger
	id    *identity.Identity
	store *state.Store
	c     *client.ProviderClient
}

func loadConfig(f string) (*config.Config, *log.Backend, error) {
	cfg, err := config.LoadFile(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config file '%v': %v", f, err)
	}
	if err = os.MkdirAll(cfg.State.DataDir, 0700); err != nil {
		return nil, nil, err
	}
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, nil, err
	}
	return cfg, backend, nil
}

func openSession(f string) (*session, error) {
	cfg, backend, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg: cfg,
		log: backend.GetLogger("sfwclient"),
	}

	if s.id, err = identity.Load(cfg.PrivateKeyPath()); err != nil {
		return nil, fmt.Errorf("%v (run genkey first)", err)
	}
	if s.store, err = state.Open(cfg.StatePath()); err != nil {
		return nil, err
	}
	token, err := s.store.Token(cfg.ProviderKey(), s.id.Address)
	if err != nil {
		s.store.Close()
		return nil, err
	}

	location, err := cfg.ProviderLocation()
	if err != nil {
		s.store.Close()
		return nil, err
	}
	tr := transport.New(backend.GetLogger("transport"), cfg.UpstreamProxyConfig())
	s.c, err = client.New(location, s.id.Address, token,
		client.WithLogger(backend.GetLogger("client")),
		client.WithTransport(tr),
	)
	if err != nil {
		s.store.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	s.store.Close()
}

func (s *session) exchangeContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.Debug.ExchangeTimeout)
}

func newGenKeyCommand(cfg *Config) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate the client key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCfg, _, err := loadConfig(cfg.ConfigFile)
			if err != nil {
				return err
			}
			f := clientCfg.PrivateKeyPath()
			if _, err := os.Stat(f); err == nil && !force {
				return fmt.Errorf("key file '%v' already exists, use --force to replace it", f)
			}
			id, err := identity.Generate()
			if err != nil {
				return err
			}
			if err = id.Save(f); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.Address)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key")
	return cmd
}

func newAddressCommand(cfg *Config) *cobra.Command {
	var qr bool
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the client address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clientCfg, _, err := loadConfig(cfg.ConfigFile)
			if err != nil {
				return err
			}
			id, err := identity.Load(clientCfg.PrivateKeyPath())
			if err != nil {
				return err
			}
			printAddress(cmd.OutOrStdout(), id.Address, qr)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&qr, "qr", "q", false, "also print the address as a QR code")
	return cmd
}

func printAddress(w io.Writer, addr identity.ClientAddress, qr bool) {
	fmt.Fprintln(w, addr)
	if qr {
		qrterminal.GenerateWithConfig(addr.String(), qrterminal.Config{
			Level:      qrterminal.L,
			Writer:     w,
			HalfBlocks: true,
			QuietZone:  1,
		})
	}
}

func newRegisterCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register the client address with the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg.ConfigFile)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := s.exchangeContext(cmd.Context())
			defer cancel()
			token, err := s.c.Register(ctx)
			if err != nil {
				if errors.Is(err, client.ErrAlreadyRegistered) {
					return fmt.Errorf("%v with %v, use set-token to replace the stored token", err, s.cfg.ProviderKey())
				}
				return err
			}
			if err = s.store.PutToken(s.cfg.ProviderKey(), s.id.Address, token); err != nil {
				return fmt.Errorf("registered, but failed to store token %v: %v", token, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %v with %v\n", s.id.Address, s.c.ProviderAddress())
			return nil
		},
	}
}

func newFetchCommand(cfg *Config) *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Retrieve pending messages",
		Long: `Retrieve the messages the provider holds for this client and print each
one hex encoded on its own line.  With --loop, an unregistered client is
registered first, and the provider is polled until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg.ConfigFile)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if loop {
				return s.fetchLoop(out)
			}

			ctx, cancel := s.exchangeContext(cmd.Context())
			defer cancel()
			msgs, err := s.c.RetrieveMessages(ctx)
			if err != nil {
				if errors.Is(err, client.ErrEmptyAuthToken) {
					return fmt.Errorf("%v, run register first", err)
				}
				return err
			}
			printMessages(out, msgs)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&loop, "loop", "l", false, "keep polling until interrupted")
	return cmd
}

func printMessages(w io.Writer, msgs [][]byte) {
	for _, m := range msgs {
		fmt.Fprintln(w, hex.EncodeToString(m))
	}
}

func (s *session) fetchLoop(out io.Writer) error {
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(haltCh)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, syscall.SIGUSR1)
	defer signal.Stop(forceCh)

	f := client.NewFetcher(s.c, client.FetcherConfig{
		Log:             s.log,
		ExchangeTimeout: s.cfg.Debug.ExchangeTimeout,
		PollingInterval: s.cfg.Debug.PollingInterval,
		MaxBackoff:      s.cfg.Debug.MaxBackoff,
		OnRegistered: func(token identity.AuthToken) error {
			return s.store.PutToken(s.cfg.ProviderKey(), s.id.Address, token)
		},
		OnMessages: func(msgs [][]byte) {
			printMessages(out, msgs)
		},
	})
	f.Start()
	defer f.Halt()

	for {
		select {
		case <-haltCh:
			return nil
		case <-forceCh:
			f.ForceFetch()
		}
	}
}

func newSetTokenCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set-token TOKEN",
		Short: "Replace the stored auth token",
		Long: `Replace the auth token stored for the configured provider with a hex
encoded token obtained out of band, for example after re-registering from
another machine.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token identity.AuthToken
			if err := token.UnmarshalText([]byte(args[0])); err != nil {
				return fmt.Errorf("invalid argument %q: %v", args[0], err)
			}

			s, err := openSession(cfg.ConfigFile)
			if err != nil {
				return err
			}
			defer s.Close()

			s.c.UpdateToken(token)
			return s.store.PutToken(s.cfg.ProviderKey(), s.id.Address, token)
		},
	}
}
