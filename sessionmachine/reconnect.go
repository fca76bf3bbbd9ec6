// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package sessionmachine

import (
	"context"
	"math/rand"
	"time"

	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/metrics"
)

// BackoffPolicy configures the exponential backoff the SSE reconnect
// path uses: delay doubles from InitialDelay up to MaxDelay, jittered
// by ±JitterFraction on every attempt.
type BackoffPolicy struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
	MaxFailures    int
}

// DefaultBackoffPolicy uses the same values internal/config fills in
// for an unset backoff block.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay:   time.Second,
		MaxDelay:       10 * time.Second,
		JitterFraction: 0.3,
		MaxFailures:    12,
	}
}

// NextDelay returns the backoff delay for the given zero-based attempt
// number, with jitter applied.
func (p BackoffPolicy) NextDelay(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	jitter := 1 + (rand.Float64()*2-1)*p.JitterFraction
	scaled := time.Duration(float64(delay) * jitter)
	if scaled < 0 {
		scaled = 0
	}
	return scaled
}

// SendFunc attempts to deliver a frame over the wire, returning
// errs.CodeRelayGone for a 404 and any other error for a transient
// failure.
type SendFunc func(ctx context.Context) error

// ReconnectFunc re-establishes the underlying transport (for example,
// re-running the handshake against a fresh relay session).
type ReconnectFunc func(ctx context.Context) error

// SendWithReconnect implements the 404-on-send auto-reconnect path: a
// single retry after a fresh reconnect, never more.
func SendWithReconnect(ctx context.Context, send SendFunc, reconnect ReconnectFunc) error {
	err := send(ctx)
	if err == nil {
		return nil
	}
	if !errs.Is(err, errs.CodeRelayGone) {
		return err
	}

	if rerr := reconnect(ctx); rerr != nil {
		return rerr
	}
	return send(ctx)
}

// StreamFunc runs an SSE stream until it breaks, returning the error
// that ended it. A CodeRelayGone error (404) is terminal and must not
// be retried by the caller of RunStreamWithBackoff.
type StreamFunc func(ctx context.Context) error

// RunStreamWithBackoff implements the broken-SSE auto-reconnect path:
// exponential backoff with jitter between attempts, stopping after
// policy.MaxFailures consecutive failures or a terminal 404.
func RunStreamWithBackoff(ctx context.Context, policy BackoffPolicy, stream StreamFunc) error {
	failures := 0
	for {
		err := stream(ctx)
		if err == nil {
			return nil
		}
		if errs.Is(err, errs.CodeRelayGone) {
			return err
		}

		failures++
		metrics.SSEReconnects.Inc()
		if failures >= policy.MaxFailures {
			return errs.Wrap(errs.CodeRelayTransient, "sse stream exceeded consecutive failure cap", err)
		}

		delay := policy.NextDelay(failures - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
