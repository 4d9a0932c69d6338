/*
 * Copyright 2025 Veritime Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package conn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/terminal"
)

var errProbeRefused = errors.New("connection refused")

type managerHarness struct {
	manager *Manager
	dialer  *terminal.FakeDialer
	sleeps  []time.Duration
}

// newHarness builds a Manager whose TCP probe always passes and whose
// backoff records delays instead of sleeping.
func newHarness(t *testing.T) *managerHarness {
	t.Helper()

	h := &managerHarness{dialer: terminal.NewFakeDialer()}
	h.manager = NewManager(Config{}, h.dialer, logger.NewTestLogger())
	h.manager.probeTCP = func(context.Context, models.Endpoint, time.Duration) error { return nil }
	h.manager.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}

	return h
}

func endpointA() models.Endpoint {
	return models.Endpoint{Address: "10.0.0.10", Port: 4370, GroupID: "area-1"}
}

func TestConnectSucceedsFirstVariant(t *testing.T) {
	h := newHarness(t)
	h.dialer.Attach(endpointA(), terminal.NewFakeTerminal())

	session, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)
	assert.Equal(t, models.VariantUDPNoPing, session.Variant)
	assert.Empty(t, h.sleeps)
}

func TestConnectFallsBackThroughVariants(t *testing.T) {
	h := newHarness(t)

	ft := terminal.NewFakeTerminal()
	ft.Accept = []models.ProtocolVariant{models.VariantTCPPing}
	h.dialer.Attach(endpointA(), ft)

	session, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)
	assert.Equal(t, models.VariantTCPPing, session.Variant)

	variants := make([]models.ProtocolVariant, 0, len(h.dialer.Attempts))
	for _, a := range h.dialer.Attempts {
		variants = append(variants, a.Variant)
	}

	assert.Equal(t, []models.ProtocolVariant{
		models.VariantUDPNoPing,
		models.VariantTCPNoPing,
		models.VariantTCPPing,
	}, variants)
}

func TestConnectPinnedVariantSkipsFallback(t *testing.T) {
	h := newHarness(t)
	h.dialer.Attach(endpointA(), terminal.NewFakeTerminal())

	pinned := endpointA()
	pinned.Variant = models.VariantTCPNoPing

	session, err := h.manager.Connect(context.Background(), pinned)
	require.NoError(t, err)
	assert.Equal(t, models.VariantTCPNoPing, session.Variant)
	assert.Len(t, h.dialer.Attempts, 1)
}

func TestConnectUnreachableBacksOffThreeAttempts(t *testing.T) {
	h := newHarness(t)
	h.manager.probeTCP = func(context.Context, models.Endpoint, time.Duration) error {
		return errProbeRefused
	}

	_, err := h.manager.Connect(context.Background(), endpointA())
	require.ErrorIs(t, err, ErrUnreachable)

	// No handshake is ever attempted for a dead host.
	assert.Empty(t, h.dialer.Attempts)

	// Exponential backoff between the three attempts, strictly increasing.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sleeps)
}

func TestConnectHandshakeFailed(t *testing.T) {
	h := newHarness(t)
	// Probe passes but no terminal is attached: every variant is refused.

	_, err := h.manager.Connect(context.Background(), endpointA())
	require.ErrorIs(t, err, ErrHandshakeFailed)
	assert.Len(t, h.dialer.Attempts, 3*len(fallbackVariants))
}

func TestConnectVerificationFailed(t *testing.T) {
	h := newHarness(t)

	ft := terminal.NewFakeTerminal()
	ft.GetTimeErr = errors.New("device busy")
	h.dialer.Attach(endpointA(), ft)

	_, err := h.manager.Connect(context.Background(), endpointA())
	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestConnectReusesReleasedSession(t *testing.T) {
	h := newHarness(t)
	h.dialer.Attach(endpointA(), terminal.NewFakeTerminal())

	first, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)

	h.manager.Release(first)

	attempts := len(h.dialer.Attempts)

	second, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, h.dialer.Attempts, attempts, "reuse must not redial")
}

func TestConnectChecksOutSession(t *testing.T) {
	h := newHarness(t)
	h.dialer.Attach(endpointA(), terminal.NewFakeTerminal())

	first, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)

	// First session is still checked out, so the second caller gets its
	// own fresh connection.
	second, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
}

func TestConcurrentConnectNeverSharesSession(t *testing.T) {
	h := newHarness(t)
	h.dialer.Attach(endpointA(), terminal.NewFakeTerminal())

	// Warm the pool so one idle session is up for grabs.
	warm, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)
	h.manager.Release(warm)

	sessions := make(chan *Session, 2)

	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			s, err := h.manager.Connect(context.Background(), endpointA())
			assert.NoError(t, err)
			sessions <- s
		}()
	}

	wg.Wait()
	close(sessions)

	first := <-sessions
	second := <-sessions
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotSame(t, first, second, "two workers must never drive one connection")

	h.manager.Release(first)
	h.manager.Release(second)
}

func TestConnectDiscardsDeadPooledSession(t *testing.T) {
	h := newHarness(t)

	ft := terminal.NewFakeTerminal()
	h.dialer.Attach(endpointA(), ft)

	session, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)
	h.manager.Release(session)

	// The idle session dies; verification must notice and reconnect.
	ft.GetTimeErr = errors.New("link dropped")

	_, err = h.manager.Connect(context.Background(), endpointA())
	require.ErrorIs(t, err, ErrVerificationFailed)

	// Heal the terminal: the next connect starts clean and succeeds.
	ft.GetTimeErr = nil

	session, err = h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)
	assert.NotNil(t, session)
}

func TestIsOnline(t *testing.T) {
	h := newHarness(t)

	probes := 0
	h.manager.probeTCP = func(context.Context, models.Endpoint, time.Duration) error {
		probes++
		return nil
	}

	assert.False(t, h.manager.IsOnline(context.Background(), endpointA()))

	h.dialer.Attach(endpointA(), terminal.NewFakeTerminal())
	probes = 0

	assert.True(t, h.manager.IsOnline(context.Background(), endpointA()))
	assert.Equal(t, 1, probes, "a liveness check pays for one probe")
}

func TestSyncTime(t *testing.T) {
	h := newHarness(t)

	ft := terminal.NewFakeTerminal()
	ft.Now = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	h.dialer.Attach(endpointA(), ft)

	require.NoError(t, h.manager.SyncTime(context.Background(), endpointA()))
	assert.WithinDuration(t, time.Now(), ft.Now, time.Minute)
}

func TestCloseAllDrainsPool(t *testing.T) {
	h := newHarness(t)
	h.dialer.Attach(endpointA(), terminal.NewFakeTerminal())

	session, err := h.manager.Connect(context.Background(), endpointA())
	require.NoError(t, err)
	h.manager.Release(session)

	h.manager.CloseAll()

	// The drained session is closed; further commands fail.
	_, err = session.Conn.GetTime(context.Background())
	require.Error(t, err)
}
