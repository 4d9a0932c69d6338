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

package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/db"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/terminal"
)

type engineHarness struct {
	dialer *terminal.FakeDialer
	engine *Engine
}

// newEngineHarness wires an engine over fake terminals with single-shot
// connects so unreachable endpoints fail fast, and a no-op batch pause.
func newEngineHarness(t *testing.T, repo db.Repository) *engineHarness {
	t.Helper()

	log := logger.NewTestLogger()
	dialer := terminal.NewFakeDialer()
	manager := conn.NewManager(conn.Config{MaxRetries: 1}, dialer, log)

	engine := NewEngine(manager, repo, nil, nil, log)
	engine.sleep = func(context.Context, time.Duration) error { return nil }

	return &engineHarness{dialer: dialer, engine: engine}
}

func ep(addr string) models.Endpoint {
	return models.Endpoint{Address: addr, Port: 4370, GroupID: "area-1"}
}

func user(id string, slot int) models.UserRecord {
	return models.UserRecord{ExternalID: id, DeviceSlot: slot, DisplayName: "user " + id}
}

func TestReconcilePropagatesMasterRoster(t *testing.T) {
	h := newEngineHarness(t, nil)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 1), []byte{0x01})
	a.AddUser(user("1002", 2), []byte{0x02})
	a.AddUser(user("1003", 3))
	h.dialer.Attach(ep("10.0.0.1"), a)

	b := terminal.NewFakeTerminal()
	b.AddUser(user("1001", 1))
	h.dialer.Attach(ep("10.0.0.2"), b)

	res := h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}, Options{})

	require.Empty(t, res.Errors)
	assert.False(t, res.Skipped)
	assert.Equal(t, "10.0.0.1:4370", res.Master)
	assert.Equal(t, 2, res.UsersAdded)

	// 1001 existed on the target without templates, so its fingerprint is
	// gap-filled alongside 1002's.
	assert.Equal(t, 2, res.TemplatesAdded)

	// Slots carry over from the master when free.
	assert.Equal(t, "1002", b.Users[2].ExternalID)
	assert.Equal(t, "1003", b.Users[3].ExternalID)
	assert.Len(t, b.Fingerprints[1], 1)
	assert.Len(t, b.Fingerprints[2], 1)

	// The master is never written to on a one-way pass.
	assert.Len(t, a.Users, 3)
}

func TestReconcileSlotCollisionFallsBack(t *testing.T) {
	h := newEngineHarness(t, nil)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 2))
	h.dialer.Attach(ep("10.0.0.1"), a)

	b := terminal.NewFakeTerminal()
	b.AddUser(user("2001", 2))
	h.dialer.Attach(ep("10.0.0.2"), b)

	// Equal scores; 10.0.0.1 wins the tie and pushes 1001 to b, where
	// slot 2 is taken by someone else.
	res := h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}, Options{})

	require.Empty(t, res.Errors)
	assert.Equal(t, "10.0.0.1:4370", res.Master)
	assert.Equal(t, 1, res.UsersAdded)
	assert.Equal(t, "2001", b.Users[2].ExternalID, "occupied slot must not be overwritten")
	assert.Equal(t, "1001", b.Users[3].ExternalID, "collision falls back to max+1")
}

func TestReconcileNeverOverwritesTemplates(t *testing.T) {
	h := newEngineHarness(t, nil)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 1), []byte{0x01})
	h.dialer.Attach(ep("10.0.0.1"), a)

	b := terminal.NewFakeTerminal()
	b.AddUser(user("1001", 1), []byte{0xFF})
	h.dialer.Attach(ep("10.0.0.2"), b)

	res := h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}, Options{})

	require.Empty(t, res.Errors)
	assert.Zero(t, res.TemplatesAdded)
	require.Len(t, b.Fingerprints[1], 1)
	assert.Equal(t, []byte{0xFF}, b.Fingerprints[1][0].Data, "existing enrollment must survive")
}

func TestReconcileFaceGapFill(t *testing.T) {
	h := newEngineHarness(t, nil)

	a := terminal.NewFakeTerminal()
	a.FaceCapable = true
	a.AddUser(user("1001", 1))
	a.AddFace(1, []byte{0xAA})
	h.dialer.Attach(ep("10.0.0.1"), a)

	b := terminal.NewFakeTerminal()
	b.FaceCapable = true
	b.AddUser(user("1001", 1))
	h.dialer.Attach(ep("10.0.0.2"), b)

	res := h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}, Options{})

	require.Empty(t, res.Errors)
	assert.Equal(t, 1, res.TemplatesAdded)
	assert.Equal(t, []byte{0xAA}, b.Faces[1].Data)
}

func TestReconcileFaceRejectionIsSilent(t *testing.T) {
	h := newEngineHarness(t, nil)

	a := terminal.NewFakeTerminal()
	a.FaceCapable = true
	a.AddUser(user("1001", 1))
	a.AddUser(user("1002", 2))
	a.AddFace(1, []byte{0xAA})
	a.AddFace(2, []byte{0xBB})
	h.dialer.Attach(ep("10.0.0.1"), a)

	// Fingerprint-only hardware refuses face writes; that is a capability
	// mismatch, not a pass error.
	b := terminal.NewFakeTerminal()
	h.dialer.Attach(ep("10.0.0.2"), b)

	res := h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}, Options{})

	require.Empty(t, res.Errors)
	assert.Equal(t, 2, res.UsersAdded)
	assert.Zero(t, res.TemplatesAdded)
	assert.Empty(t, b.Faces)
}

func TestReconcileBidirectional(t *testing.T) {
	setup := func(t *testing.T) (*engineHarness, *terminal.FakeTerminal, *terminal.FakeTerminal) {
		h := newEngineHarness(t, nil)

		a := terminal.NewFakeTerminal()
		a.AddUser(user("1001", 1))
		a.AddUser(user("1002", 2))
		h.dialer.Attach(ep("10.0.0.1"), a)

		b := terminal.NewFakeTerminal()
		b.AddUser(user("1001", 1))
		b.AddUser(user("3001", 9))
		h.dialer.Attach(ep("10.0.0.2"), b)

		return h, a, b
	}

	endpoints := []models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}

	t.Run("off by default", func(t *testing.T) {
		h, a, b := setup(t)

		res := h.engine.Reconcile(context.Background(), "area-1", endpoints, Options{})

		require.Empty(t, res.Errors)
		assert.Contains(t, b.Users, 2, "master roster reaches the target")
		assert.Len(t, a.Users, 2, "target-only users stay where they are")
	})

	t.Run("on", func(t *testing.T) {
		h, a, b := setup(t)

		res := h.engine.Reconcile(context.Background(), "area-1", endpoints, Options{Bidirectional: true})

		require.Empty(t, res.Errors)
		assert.Equal(t, "3001", a.Users[9].ExternalID, "union roster reaches the master")
		assert.Contains(t, b.Users, 2)
		assert.Equal(t, 2, res.UsersAdded)
	})
}

func TestReconcileTemplateOnlyPassPausesBetweenBatches(t *testing.T) {
	h := newEngineHarness(t, nil)

	var pauses []time.Duration

	h.engine.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	// Both rosters already converged: 25 users on matching slots, but the
	// target is missing every fingerprint. The pass is pure gap-fill.
	a := terminal.NewFakeTerminal()
	b := terminal.NewFakeTerminal()

	for i := 1; i <= 25; i++ {
		u := user(fmt.Sprintf("10%02d", i), i)
		a.AddUser(u, []byte{byte(i)})
		b.AddUser(u)
	}

	a.AddUser(user("9001", 100))
	h.dialer.Attach(ep("10.0.0.1"), a)
	h.dialer.Attach(ep("10.0.0.2"), b)

	res := h.engine.Reconcile(context.Background(), "area-1",
		[]models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}, Options{})

	require.Empty(t, res.Errors)
	assert.Equal(t, 25, res.TemplatesAdded)

	// 25 template writes plus one user add cross the 10-write batch mark
	// twice; rapid-fire writes without pauses wedge these terminals.
	assert.Len(t, pauses, 2)
	assert.Equal(t, defaultBatchPause, pauses[0])
}

func TestReconcileLeaseHeldSkips(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.dialer.Attach(ep("10.0.0.1"), terminal.NewFakeTerminal())

	require.True(t, h.engine.leases.tryAcquire("area-1"))

	res := h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1")}, Options{})
	assert.True(t, res.Skipped)
	assert.Empty(t, h.dialer.Attempts, "a skipped pass must not touch terminals")

	h.engine.leases.release("area-1")

	res = h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1")}, Options{})
	assert.False(t, res.Skipped)
}

// blockingNotifier parks the first pass inside the engine so a second
// pass can be started while the lease is held.
type blockingNotifier struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (n *blockingNotifier) Notify(event ProgressEvent) {
	if event.Stage != "started" {
		return
	}

	n.once.Do(func() {
		close(n.entered)
		<-n.release
	})
}

func TestReconcileConcurrentPassesAreExclusive(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.dialer.Attach(ep("10.0.0.1"), terminal.NewFakeTerminal())

	notifier := &blockingNotifier{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	h.engine.notifier = notifier

	endpoints := []models.Endpoint{ep("10.0.0.1")}

	done := make(chan *Result, 1)

	go func() {
		done <- h.engine.Reconcile(context.Background(), "area-1", endpoints, Options{})
	}()

	<-notifier.entered

	second := h.engine.Reconcile(context.Background(), "area-1", endpoints, Options{})
	assert.True(t, second.Skipped)

	close(notifier.release)

	first := <-done
	assert.False(t, first.Skipped)
}

func TestReconcileBudgetStopsPropagation(t *testing.T) {
	h := newEngineHarness(t, nil)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 1))
	a.AddUser(user("1002", 2))
	h.dialer.Attach(ep("10.0.0.1"), a)

	b := terminal.NewFakeTerminal()
	h.dialer.Attach(ep("10.0.0.2"), b)

	res := h.engine.Reconcile(context.Background(), "area-1",
		[]models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")},
		Options{Budget: time.Nanosecond})

	assert.True(t, res.BudgetExceeded)
	assert.Zero(t, res.UsersAdded)
	assert.Empty(t, b.Users)
}

func TestReconcileEndpointFailureIsIsolated(t *testing.T) {
	h := newEngineHarness(t, nil)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 1))
	a.AddUser(user("1002", 2))
	h.dialer.Attach(ep("10.0.0.1"), a)

	b := terminal.NewFakeTerminal()
	b.AddUser(user("1001", 1))
	h.dialer.Attach(ep("10.0.0.2"), b)

	// 10.0.0.3 is dark: its failure lands in Errors, the rest reconcile.
	res := h.engine.Reconcile(context.Background(), "area-1",
		[]models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2"), ep("10.0.0.3")}, Options{})

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "10.0.0.3:4370")
	assert.Equal(t, 1, res.UsersAdded)
	assert.Contains(t, b.Users, 2)
}

func TestReconcileEndpointCap(t *testing.T) {
	h := newEngineHarness(t, nil)

	endpoints := make([]models.Endpoint, 0, 7)
	for i := 1; i <= 7; i++ {
		e := ep("10.0.1." + string(rune('0'+i)))
		h.dialer.Attach(e, terminal.NewFakeTerminal())
		endpoints = append(endpoints, e)
	}

	h.engine.Reconcile(context.Background(), "area-1", endpoints, Options{})

	seen := make(map[string]bool)
	for _, attempt := range h.dialer.Attempts {
		seen[attempt.EndpointID] = true
	}

	assert.Len(t, seen, defaultMaxEndpoints)
}

func TestReconcileMarksEndpointLiveness(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := db.NewMockRepository(ctrl)

	h := newEngineHarness(t, repo)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 1))
	h.dialer.Attach(ep("10.0.0.1"), a)

	// 10.0.0.2 never answers: it must be flipped offline so a fleet
	// readout stops advertising it.
	repo.EXPECT().MarkEndpointOnline(gomock.Any(), "10.0.0.1:4370", true).Return(nil)
	repo.EXPECT().MarkEndpointOnline(gomock.Any(), "10.0.0.2:4370", false).Return(nil)

	res := h.engine.Reconcile(context.Background(), "area-1",
		[]models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}, Options{})

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "10.0.0.2:4370")
}

func TestReconcileWritesBackPropagatedUsers(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := db.NewMockRepository(ctrl)

	h := newEngineHarness(t, repo)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 1))
	a.AddUser(user("1002", 2))
	h.dialer.Attach(ep("10.0.0.1"), a)

	b := terminal.NewFakeTerminal()
	b.AddUser(user("1001", 1))
	h.dialer.Attach(ep("10.0.0.2"), b)

	repo.EXPECT().MarkEndpointOnline(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	var written []string

	repo.EXPECT().UpsertUser(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, u models.UserRecord) error {
			written = append(written, u.ExternalID)
			return nil
		}).Times(1)

	res := h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}, Options{})

	require.Empty(t, res.Errors)
	assert.Equal(t, []string{"1002"}, written)
}

func TestReconcileRemoveInactiveGated(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := db.NewMockRepository(ctrl)

	h := newEngineHarness(t, repo)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 1))
	a.AddUser(user("1002", 2))
	h.dialer.Attach(ep("10.0.0.1"), a)

	b := terminal.NewFakeTerminal()
	b.AddUser(user("1001", 1))
	b.AddUser(user("1002", 2))
	h.dialer.Attach(ep("10.0.0.2"), b)

	repo.EXPECT().MarkEndpointOnline(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	endpoints := []models.Endpoint{ep("10.0.0.1"), ep("10.0.0.2")}

	// Default pass: no removal, no inactive-user lookup.
	res := h.engine.Reconcile(context.Background(), "area-1", endpoints, Options{})
	require.Empty(t, res.Errors)
	assert.Zero(t, res.UsersRemoved)

	repo.EXPECT().ListInactiveUsers(gomock.Any(), "area-1").Return([]string{"1002"}, nil)

	res = h.engine.Reconcile(context.Background(), "area-1", endpoints, Options{RemoveInactive: true})
	require.Empty(t, res.Errors)
	assert.Equal(t, 2, res.UsersRemoved)
	assert.NotContains(t, a.Users, 2)
	assert.NotContains(t, b.Users, 2)
}

func TestReconcileSingleTerminalIsANoOp(t *testing.T) {
	h := newEngineHarness(t, nil)

	a := terminal.NewFakeTerminal()
	a.AddUser(user("1001", 1))
	h.dialer.Attach(ep("10.0.0.1"), a)

	res := h.engine.Reconcile(context.Background(), "area-1", []models.Endpoint{ep("10.0.0.1")}, Options{})

	require.Empty(t, res.Errors)
	assert.Empty(t, res.Master)
	assert.Zero(t, res.UsersAdded)
}
