// fetcher.go - Periodic message retrieval.
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
	"context"
	"errors"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sfw/core/identity"
	"github.com/katzenpost/sfw/core/retry"
	"github.com/katzenpost/sfw/core/worker"
)

// FetcherConfig is the Fetcher configuration.
type FetcherConfig struct {
	// Log is the Fetcher's logger.
	Log *logging.Logger

	// ExchangeTimeout bounds every exchange with the provider.
	ExchangeTimeout time.Duration

	// PollingInterval is the delay between successful pulls.
	PollingInterval time.Duration

	// BaseBackoff and MaxBackoff bound the exponential delay after
	// failures.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// OnRegistered is called with the token issued when the Fetcher
	// registers the client, before any pull is made with it.  A returned
	// error is logged.
	OnRegistered func(identity.AuthToken) error

	// OnMessages is called with every non-empty batch of retrieved
	// messages, in order.
	OnMessages func([][]byte)
}

// Fetcher owns a ProviderClient and drives it from a single goroutine,
// registering once if needed and then pulling periodically.
type Fetcher struct {
	worker.Worker

	cfg    FetcherConfig
	log    *logging.Logger
	client *ProviderClient

	forceCh chan struct{}
}

// NewFetcher returns a Fetcher for c.  The caller must not use c directly
// until the Fetcher is halted.
func NewFetcher(c *ProviderClient, cfg FetcherConfig) *Fetcher {
	if cfg.Log == nil {
		cfg.Log = c.log
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 30 * time.Second
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 10 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = retry.DefaultBaseDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = retry.DefaultMaxDelay
	}
	return &Fetcher{
		cfg:     cfg,
		log:     cfg.Log,
		client:  c,
		forceCh: make(chan struct{}, 1),
	}
}

// Start launches the fetch loop.  The first attempt is made immediately.
func (f *Fetcher) Start() {
	f.Go(f.worker)
}

// ForceFetch wakes the fetch loop for an immediate attempt.
func (f *Fetcher) ForceFetch() {
	select {
	case f.forceCh <- struct{}{}:
	default:
	}
}

func (f *Fetcher) worker() {
	attempt := 0
	for {
		var delay time.Duration
		if err := f.fetch(); err != nil {
			delay = f.backoff(err, attempt)
			attempt++
			f.log.Warningf("Fetch failed, retrying in %v: %v", delay, err)
		} else {
			attempt = 0
			delay = f.cfg.PollingInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-f.HaltCh():
			timer.Stop()
			f.log.Debugf("Terminating gracefully.")
			return
		case <-f.forceCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// backoff grows exponentially for failures that may clear on their own,
// and jumps to the cap for failures that will not.
func (f *Fetcher) backoff(err error, attempt int) time.Duration {
	switch {
	case errors.Is(err, ErrNetwork),
		errors.Is(err, ErrInvalidResponseLength),
		retry.IsTransientError(err):
		return retry.Delay(f.cfg.BaseBackoff, f.cfg.MaxBackoff, retry.DefaultJitter, attempt)
	default:
		return f.cfg.MaxBackoff
	}
}

func (f *Fetcher) fetch() error {
	ctx, cancel := f.HaltContext(context.Background())
	defer cancel()

	if !f.client.IsRegistered() {
		rctx, rcancel := context.WithTimeout(ctx, f.cfg.ExchangeTimeout)
		token, err := f.client.Register(rctx)
		rcancel()
		if err != nil {
			return err
		}
		if f.cfg.OnRegistered != nil {
			if err = f.cfg.OnRegistered(token); err != nil {
				f.log.Errorf("Failed to persist auth token: %v", err)
			}
		}
	}

	pctx, pcancel := context.WithTimeout(ctx, f.cfg.ExchangeTimeout)
	msgs, err := f.client.RetrieveMessages(pctx)
	pcancel()
	if err != nil {
		return err
	}
	if len(msgs) > 0 && f.cfg.OnMessages != nil {
		f.cfg.OnMessages(msgs)
	}
	return nil
}
