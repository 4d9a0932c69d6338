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

// Package conn owns terminal session lifecycle: reachability probing,
// protocol-variant fallback, retry with backoff, and bounded reuse of
// verified sessions. Terminals are embedded devices with a fragile
// protocol stack; every policy here exists to avoid wedging one.
package conn

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/terminal"
)

// Session is exclusive ownership of one live connection. Connect checks
// it out of the pool, and no other caller can obtain it until Release
// parks it again or Close tears it down. Never shared across goroutines.
type Session struct {
	Endpoint       models.Endpoint
	Conn           terminal.Conn
	Variant        models.ProtocolVariant
	LastVerifiedAt time.Time
}

// Config tunes the connection policy. Zero values take the defaults that
// field experience with these terminals settled on.
type Config struct {
	ConnectTimeout models.Duration `json:"connect_timeout"` // per-handshake
	ProbeTimeout   models.Duration `json:"probe_timeout"`   // TCP reachability
	MaxRetries     int             `json:"max_retries"`
	BackoffBase    models.Duration `json:"backoff_base"`
	ReuseWindow    models.Duration `json:"reuse_window"`
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultProbeTimeout   = 3 * time.Second
	defaultMaxRetries     = 3
	defaultBackoffBase    = 2 * time.Second
	defaultReuseWindow    = 30 * time.Second
)

func (c *Config) withDefaults() Config {
	out := *c

	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = models.Duration(defaultConnectTimeout)
	}

	if out.ProbeTimeout == 0 {
		out.ProbeTimeout = models.Duration(defaultProbeTimeout)
	}

	if out.MaxRetries == 0 {
		out.MaxRetries = defaultMaxRetries
	}

	if out.BackoffBase == 0 {
		out.BackoffBase = models.Duration(defaultBackoffBase)
	}

	if out.ReuseWindow == 0 {
		out.ReuseWindow = models.Duration(defaultReuseWindow)
	}

	return out
}

// fallbackVariants is the ordered list tried on a fresh connect. Order
// matters: the connectionless variant answers fastest on the models that
// accept it, and the ping-probe variant is the one some firmware insists
// on.
var fallbackVariants = []models.ProtocolVariant{
	models.VariantUDPNoPing,
	models.VariantTCPNoPing,
	models.VariantTCPPing,
}

// Manager opens, verifies, reuses, and tears down terminal sessions. One
// instance owns its pool; there is no package-global connection state.
type Manager struct {
	config Config
	dialer terminal.Dialer
	logger logger.Logger

	pool *pool

	// Seams for tests. probeTCP answers whether the host accepts a TCP
	// connection at all; sleep implements inter-attempt backoff.
	probeTCP func(ctx context.Context, endpoint models.Endpoint, timeout time.Duration) error
	sleep    func(ctx context.Context, d time.Duration) error
}

// reachabilityProber is an optional upgrade on Dialer: transports that
// can answer reachability themselves (in-memory fakes, tunneled links)
// replace the raw TCP probe.
type reachabilityProber interface {
	ProbeTCP(ctx context.Context, endpoint models.Endpoint, timeout time.Duration) error
}

// NewManager builds a Manager around a transport dialer.
func NewManager(config Config, dialer terminal.Dialer, log logger.Logger) *Manager {
	m := &Manager{
		config:   config.withDefaults(),
		dialer:   dialer,
		logger:   log.WithComponent("conn"),
		pool:     newPool(),
		probeTCP: probeTCPDial,
		sleep:    sleepCtx,
	}

	if p, ok := dialer.(reachabilityProber); ok {
		m.probeTCP = p.ProbeTCP
	}

	return m
}

// Connect returns a verified session for the endpoint, reusing a recent
// idle one when its no-op verification still passes. The session is
// checked out: the caller owns it exclusively and must hand it back with
// Release (or Close on a wedged link) when done. Failures come back as
// ErrUnreachable, ErrHandshakeFailed, or ErrVerificationFailed, all of
// which callers treat as "skip this terminal for this pass".
func (m *Manager) Connect(ctx context.Context, endpoint models.Endpoint) (*Session, error) {
	if s := m.reuseRecent(ctx, endpoint); s != nil {
		return s, nil
	}

	var lastErr error

	for attempt := 1; attempt <= m.config.MaxRetries; attempt++ {
		session, err := m.connectOnce(ctx, endpoint)
		if err == nil {
			return session, nil
		}

		lastErr = err

		m.logger.Debug().
			Str("endpoint", endpoint.ID()).
			Int("attempt", attempt).
			Err(err).
			Msg("Connect attempt failed")

		if attempt < m.config.MaxRetries {
			delay := time.Duration(m.config.BackoffBase) << (attempt - 1)
			if err := m.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	m.logger.Warn().
		Str("endpoint", endpoint.ID()).
		Int("attempts", m.config.MaxRetries).
		Err(lastErr).
		Msg("Giving up on terminal")

	return nil, lastErr
}

// reuseRecent checks out and verifies an idle session younger than the
// reuse window. A dead session is discarded so the caller reconnects.
// take removes the session from the pool, so this goroutine holds it
// exclusively from here on.
func (m *Manager) reuseRecent(ctx context.Context, endpoint models.Endpoint) *Session {
	session := m.pool.take(endpoint.ID())
	if session == nil {
		return nil
	}

	if time.Since(session.LastVerifiedAt) >= time.Duration(m.config.ReuseWindow) {
		m.discard(session)
		return nil
	}

	if _, err := session.Conn.GetTime(ctx); err != nil {
		m.logger.Debug().
			Str("endpoint", endpoint.ID()).
			Err(err).
			Msg("Pooled session is dead, discarding")
		m.discard(session)

		return nil
	}

	session.LastVerifiedAt = time.Now()

	return session
}

// connectOnce runs one attempt: TCP probe, then the variant fallback walk,
// each candidate verified with a no-op command before being accepted.
func (m *Manager) connectOnce(ctx context.Context, endpoint models.Endpoint) (*Session, error) {
	if err := m.probeTCP(ctx, endpoint, time.Duration(m.config.ProbeTimeout)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, endpoint.ID())
	}

	variants := fallbackVariants
	if endpoint.Variant != models.VariantAuto {
		variants = []models.ProtocolVariant{endpoint.Variant}
	}

	sawHandshake := false

	for _, variant := range variants {
		c, err := m.dialer.Dial(ctx, endpoint, variant, time.Duration(m.config.ConnectTimeout))
		if err != nil {
			continue
		}

		sawHandshake = true

		if _, err := c.GetTime(ctx); err != nil {
			_ = c.Disconnect()
			continue
		}

		m.logger.Info().
			Str("endpoint", endpoint.ID()).
			Str("variant", variant.String()).
			Msg("Connected to terminal")

		return &Session{
			Endpoint:       endpoint,
			Conn:           c,
			Variant:        variant,
			LastVerifiedAt: time.Now(),
		}, nil
	}

	if sawHandshake {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, endpoint.ID())
	}

	return nil, fmt.Errorf("%w: %s", ErrHandshakeFailed, endpoint.ID())
}

// IsOnline reports whether the endpoint answers a protocol handshake.
// connectOnce already runs the TCP probe, and the session is parked
// afterwards, so a status sweep warms sessions for the pass that
// follows. Single attempt, no backoff: a liveness check that takes
// retry-long to say "no" is useless.
func (m *Manager) IsOnline(ctx context.Context, endpoint models.Endpoint) bool {
	session := m.reuseRecent(ctx, endpoint)
	if session == nil {
		var err error

		session, err = m.connectOnce(ctx, endpoint)
		if err != nil {
			return false
		}
	}

	m.Release(session)

	return true
}

// SyncTime pushes the host clock to the terminal.
func (m *Manager) SyncTime(ctx context.Context, endpoint models.Endpoint) error {
	session, err := m.Connect(ctx, endpoint)
	if err != nil {
		return err
	}

	if err := session.Conn.SetTime(ctx, time.Now()); err != nil {
		m.Close(session)
		return err
	}

	m.Release(session)

	return nil
}

// Beep asks the terminal to sound its voice test, a field-tech aid for
// locating a unit.
func (m *Manager) Beep(ctx context.Context, endpoint models.Endpoint) error {
	session, err := m.Connect(ctx, endpoint)
	if err != nil {
		return err
	}

	if err := session.Conn.TestVoice(ctx); err != nil {
		m.Close(session)
		return err
	}

	m.Release(session)

	return nil
}

// Release parks a checked-out session for reuse by a later Connect. The
// caller must not touch the session afterwards.
func (m *Manager) Release(session *Session) {
	if session == nil {
		return
	}

	session.LastVerifiedAt = time.Now()

	if displaced := m.pool.put(session); displaced != nil {
		_ = displaced.Conn.Disconnect()
	}
}

// Close tears down a session instead of returning it to the pool. For
// sessions whose link state is no longer trusted.
func (m *Manager) Close(session *Session) {
	if session == nil {
		return
	}

	m.discard(session)
}

// CloseAll tears down every pooled session.
func (m *Manager) CloseAll() {
	for _, session := range m.pool.drain() {
		_ = session.Conn.Disconnect()
	}
}

func (m *Manager) discard(session *Session) {
	m.pool.evict(session)
	_ = session.Conn.Disconnect()
}

// probeTCPDial is the production reachability probe: a bare TCP dial with
// a short deadline, so dead hosts never cost a full handshake.
func probeTCPDial(ctx context.Context, endpoint models.Endpoint, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}

	c, err := dialer.DialContext(ctx, "tcp", endpoint.ID())
	if err != nil {
		return err
	}

	return c.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
