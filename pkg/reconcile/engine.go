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

// Package reconcile converges the user rosters and biometric templates of
// a terminal group. One pass elects the richest terminal as master and
// propagates what the others are missing. Data is only ever added, never
// overwritten; a corrupt master can therefore not destroy enrollments on
// the rest of the fleet.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/db"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/snapshot"
	"github.com/veritime/termsync/pkg/terminal"
)

const (
	defaultBatchSize    = 10
	defaultBatchPause   = 500 * time.Millisecond
	defaultBudget       = 5 * time.Minute
	defaultMaxEndpoints = 5
)

// Options tunes one reconciliation pass.
type Options struct {
	// Bidirectional propagates the union of all rosters instead of only
	// the master's. Off by default: terminals in the field carry stale
	// rosters, and pulling those back across the fleet is rarely wanted.
	Bidirectional bool

	// RemoveInactive deletes users the repository marks terminated from
	// every terminal in the group. Destructive, so off by default.
	RemoveInactive bool

	// IncludePhotos extends propagation to user photos.
	IncludePhotos bool

	// SnapshotLimit caps users per snapshot; 0 means no cap.
	SnapshotLimit int

	BatchSize    int
	BatchPause   time.Duration
	Budget       time.Duration
	MaxEndpoints int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}

	if o.BatchPause <= 0 {
		o.BatchPause = defaultBatchPause
	}

	if o.Budget <= 0 {
		o.Budget = defaultBudget
	}

	if o.MaxEndpoints <= 0 {
		o.MaxEndpoints = defaultMaxEndpoints
	}

	return o
}

// Result aggregates one pass. Errors holds per-endpoint and per-write
// failures; none of them abort the pass.
type Result struct {
	GroupID        string        `json:"group_id"`
	Master         string        `json:"master,omitempty"`
	UsersAdded     int           `json:"users_added"`
	TemplatesAdded int           `json:"templates_added"`
	UsersRemoved   int           `json:"users_removed,omitempty"`
	Skipped        bool          `json:"skipped"`
	BudgetExceeded bool          `json:"budget_exceeded"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// participant is one terminal that made it into the pass: a live session
// plus the snapshot taken over it.
type participant struct {
	endpoint models.Endpoint
	session  *conn.Session
	snap     *models.DeviceSnapshot

	// faceRejected latches once the terminal answers a face write with
	// ErrNotSupported, so a fingerprint-only unit costs one refused call
	// per pass instead of one per user.
	faceRejected bool
}

// Engine runs reconciliation passes. Safe for concurrent use; the lease
// registry serializes passes per group.
type Engine struct {
	conns    *conn.Manager
	fetcher  *snapshot.Fetcher
	repo     db.Repository
	metrics  Metrics
	notifier Notifier
	logger   logger.Logger
	leases   *leaseRegistry

	// Test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine wires a reconciliation engine. Nil metrics or notifier fall
// back to no-ops.
func NewEngine(conns *conn.Manager, repo db.Repository, metrics Metrics, notifier Notifier, log logger.Logger) *Engine {
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	if notifier == nil {
		notifier = &NoOpNotifier{}
	}

	return &Engine{
		conns:    conns,
		fetcher:  snapshot.NewFetcher(log),
		repo:     repo,
		metrics:  metrics,
		notifier: notifier,
		logger:   log.WithComponent("reconcile"),
		leases:   newLeaseRegistry(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// LeaseHeldSince reports whether a group's lease is currently held.
func (e *Engine) LeaseHeldSince(groupID string) (time.Time, bool) {
	return e.leases.heldSince(groupID)
}

// Reconcile runs one pass over the group. It never returns an error:
// everything that goes wrong is folded into the Result so the scheduler
// treats a rough pass the same as a clean one.
func (e *Engine) Reconcile(ctx context.Context, groupID string, endpoints []models.Endpoint, opts Options) *Result {
	opts = opts.withDefaults()
	result := &Result{GroupID: groupID}

	e.metrics.RecordPassAttempt(groupID)

	if !e.leases.tryAcquire(groupID) {
		e.logger.Info().Str("group", groupID).Msg("Reconciliation already running for group, skipping")
		e.metrics.RecordPassSkipped(groupID)

		result.Skipped = true

		return result
	}
	defer e.leases.release(groupID)

	start := e.now()
	defer func() { result.Duration = e.now().Sub(start) }()

	e.notify(ProgressEvent{GroupID: groupID, Stage: "started"})

	if len(endpoints) > opts.MaxEndpoints {
		e.logger.Warn().
			Str("group", groupID).
			Int("endpoints", len(endpoints)).
			Int("max", opts.MaxEndpoints).
			Msg("Group exceeds per-pass endpoint cap, truncating")

		endpoints = endpoints[:opts.MaxEndpoints]
	}

	participants := e.gather(ctx, groupID, endpoints, opts, result)
	defer e.releaseAll(participants)

	if len(participants) >= 2 {
		master := electMaster(snapshotsOf(participants))
		result.Master = master.Endpoint.ID()

		e.logger.Info().
			Str("group", groupID).
			Str("master", result.Master).
			Int("users", master.UserCount()).
			Int("templates", master.TemplateCount()).
			Msg("Master elected")

		e.propagate(ctx, start, master, participants, opts, result)
	}

	if opts.RemoveInactive && len(participants) > 0 {
		e.removeInactive(ctx, groupID, participants, result)
	}

	e.metrics.RecordPassSuccess(groupID, result.UsersAdded, result.TemplatesAdded, e.now().Sub(start))

	if result.BudgetExceeded {
		e.metrics.RecordPassBudgetExceeded(groupID)
	}

	e.notify(ProgressEvent{
		GroupID:   groupID,
		Stage:     "finished",
		Users:     result.UsersAdded,
		Templates: result.TemplatesAdded,
	})

	e.logger.Info().
		Str("group", groupID).
		Int("users_added", result.UsersAdded).
		Int("templates_added", result.TemplatesAdded).
		Bool("budget_exceeded", result.BudgetExceeded).
		Int("errors", len(result.Errors)).
		Msg("Reconciliation pass finished")

	return result
}

// gather connects to each endpoint and snapshots it. A terminal that
// cannot be reached or read just sits this pass out.
func (e *Engine) gather(ctx context.Context, groupID string, endpoints []models.Endpoint, opts Options, result *Result) []*participant {
	participants := make([]*participant, 0, len(endpoints))

	for _, endpoint := range endpoints {
		session, err := e.conns.Connect(ctx, endpoint)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: connect: %v", endpoint.ID(), err))
			e.metrics.RecordEndpointFailure(groupID, endpoint.ID())
			e.markEndpoint(ctx, endpoint, false)

			continue
		}

		e.markEndpoint(ctx, endpoint, true)

		snap, err := e.fetcher.Fetch(ctx, session, snapshot.Options{
			Limit:         opts.SnapshotLimit,
			IncludePhotos: opts.IncludePhotos,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: snapshot: %v", endpoint.ID(), err))
			e.metrics.RecordEndpointFailure(groupID, endpoint.ID())
			e.conns.Close(session)

			continue
		}

		e.notify(ProgressEvent{
			GroupID:  groupID,
			Stage:    "snapshot",
			Endpoint: endpoint.ID(),
			Users:    snap.UserCount(),
		})

		participants = append(participants, &participant{endpoint: endpoint, session: session, snap: snap})
	}

	return participants
}

// propagate pushes missing users and templates to every non-master
// terminal. Writes run in batches with a pause between them so a pass
// does not monopolize slow terminal links, and the whole pass stops at
// the wall-clock budget.
func (e *Engine) propagate(ctx context.Context, start time.Time, master *models.DeviceSnapshot, participants []*participant, opts Options, result *Result) {
	sources := e.sourceRoster(master, participants, opts)

	for _, target := range participants {
		// A bidirectional pass treats the master as a target too, so
		// users known only to other terminals reach it. Its own entries
		// are already present and fall through as no-ops.
		if target.snap == master && !opts.Bidirectional {
			continue
		}

		if result.BudgetExceeded {
			return
		}

		e.propagateToTarget(ctx, start, sources, target, opts, result)
	}
}

// rosterEntry pairs a user with the snapshot that contributes their
// templates.
type rosterEntry struct {
	user   models.UserRecord
	source *models.DeviceSnapshot
}

// sourceRoster builds the set of users eligible for propagation. The
// master contributes everyone; with Bidirectional set, users known only
// to other terminals join too, each backed by the snapshot holding them.
func (e *Engine) sourceRoster(master *models.DeviceSnapshot, participants []*participant, opts Options) map[string]rosterEntry {
	sources := make(map[string]rosterEntry)

	for id, user := range master.Users {
		sources[id] = rosterEntry{user: user, source: master}
	}

	if !opts.Bidirectional {
		return sources
	}

	for _, p := range participants {
		if p.snap == master {
			continue
		}

		for id, user := range p.snap.Users {
			if _, known := sources[id]; !known {
				sources[id] = rosterEntry{user: user, source: p.snap}
			}
		}
	}

	return sources
}

func (e *Engine) propagateToTarget(ctx context.Context, start time.Time, sources map[string]rosterEntry, target *participant, opts Options, result *Result) {
	used := make(map[int]bool, len(target.snap.Users))
	for _, u := range target.snap.Users {
		used[u.DeviceSlot] = true
	}

	// writes counts every command that mutated the terminal: user adds
	// and template fills alike. A pass that only gap-fills templates onto
	// a converged roster still hammers the link, so it pauses on the same
	// schedule as one adding users.
	writes := 0

	for externalID, entry := range sources {
		if e.now().Sub(start) > opts.Budget {
			e.logger.Warn().
				Str("endpoint", target.endpoint.ID()).
				Dur("budget", opts.Budget).
				Msg("Pass budget exhausted, stopping propagation")

			result.BudgetExceeded = true

			return
		}

		writes += e.propagateUser(ctx, externalID, entry, target, used, opts, result)

		if writes >= opts.BatchSize {
			writes = 0

			if err := e.sleep(ctx, opts.BatchPause); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", target.endpoint.ID(), err))
				return
			}
		}
	}
}

// propagateUser lands one source user on the target, adding the roster
// entry when missing and filling template gaps either way. Returns the
// number of terminal writes it performed.
func (e *Engine) propagateUser(ctx context.Context, externalID string, entry rosterEntry, target *participant, used map[int]bool, opts Options, result *Result) int {
	existing, present := target.snap.Users[externalID]

	if present {
		// Roster already converged for this user; only fill template
		// gaps on their existing slot.
		added := e.fillTemplates(ctx, entry, target, externalID, existing.DeviceSlot, opts, result)
		result.TemplatesAdded += added

		return added
	}

	slot, ok := allocateSlot(entry.user.DeviceSlot, used)
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: no free slot for user %s", target.endpoint.ID(), externalID))
		return 0
	}

	record := entry.user
	record.DeviceSlot = slot

	if err := target.session.Conn.SetUser(ctx, record); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: add user %s: %v", target.endpoint.ID(), externalID, err))
		return 0
	}

	used[slot] = true
	target.snap.Users[externalID] = record
	result.UsersAdded++

	if e.repo != nil {
		if err := e.repo.UpsertUser(ctx, record); err != nil {
			e.logger.Warn().Str("external_id", externalID).Err(err).Msg("User write-back failed")
		}
	}

	added := e.fillTemplates(ctx, entry, target, externalID, slot, opts, result)
	result.TemplatesAdded += added

	return 1 + added
}

// fillTemplates copies the source's templates for one user onto the
// target, strictly gap-filling: a user who already has any fingerprint
// on the target keeps what they have, and an enrolled face is never
// replaced.
func (e *Engine) fillTemplates(ctx context.Context, entry rosterEntry, target *participant, externalID string, slot int, opts Options, result *Result) int {
	added := 0

	if !target.snap.HasFingerprints(externalID) {
		for _, tpl := range entry.source.FingerprintTemplates[externalID] {
			raw := terminal.RawTemplate{Slot: slot, FingerID: tpl.FingerID, Data: tpl.Data}

			if err := target.session.Conn.SaveTemplate(ctx, raw); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: template %s/%d: %v", target.endpoint.ID(), externalID, tpl.FingerID, err))
				continue
			}

			added++
		}

		if added > 0 {
			target.snap.FingerprintTemplates[externalID] = entry.source.FingerprintTemplates[externalID]
		}
	}

	// A zero enrollment count probes as unsupported even on face-capable
	// hardware, so face support cannot gate this write. The terminal
	// itself is the authority: ErrNotSupported latches the skip.
	if !target.faceRejected && !target.snap.HasFace(externalID) {
		if face, ok := entry.source.FaceTemplates[externalID]; ok {
			raw := terminal.RawFace{Slot: slot, Data: face.Data}

			switch err := target.session.Conn.SetFaceTemplate(ctx, raw); {
			case err == nil:
				target.snap.FaceTemplates[externalID] = face
				added++
			case errors.Is(err, terminal.ErrNotSupported):
				target.faceRejected = true
			default:
				result.Errors = append(result.Errors, fmt.Sprintf("%s: face %s: %v", target.endpoint.ID(), externalID, err))
			}
		}

		if opts.IncludePhotos && !target.faceRejected {
			if photo, ok := entry.source.Photos[externalID]; ok && len(target.snap.Photos[externalID]) == 0 {
				if err := target.session.Conn.SetUserPhoto(ctx, slot, photo); err == nil {
					target.snap.Photos[externalID] = photo
				}
			}
		}
	}

	return added
}

// removeInactive deletes terminated users from every participant. Gated
// behind an option because it is the one destructive thing a pass can do.
func (e *Engine) removeInactive(ctx context.Context, groupID string, participants []*participant, result *Result) {
	if e.repo == nil {
		return
	}

	inactive, err := e.repo.ListInactiveUsers(ctx, groupID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list inactive users: %v", err))
		return
	}

	for _, externalID := range inactive {
		for _, p := range participants {
			user, ok := p.snap.Users[externalID]
			if !ok {
				continue
			}

			if err := p.session.Conn.DeleteUser(ctx, user.DeviceSlot); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: remove user %s: %v", p.endpoint.ID(), externalID, err))
				continue
			}

			delete(p.snap.Users, externalID)
			result.UsersRemoved++
		}
	}
}

// markEndpoint records the terminal's liveness in the repository. The
// flag also clears: a terminal that stops answering goes back offline.
func (e *Engine) markEndpoint(ctx context.Context, endpoint models.Endpoint, online bool) {
	if e.repo == nil {
		return
	}

	if err := e.repo.MarkEndpointOnline(ctx, endpoint.ID(), online); err != nil {
		e.logger.Warn().Str("endpoint", endpoint.ID()).Err(err).Msg("Failed to record endpoint liveness")
	}
}

// releaseAll hands the pass's sessions back to the connection manager.
func (e *Engine) releaseAll(participants []*participant) {
	for _, p := range participants {
		e.conns.Release(p.session)
	}
}

func (e *Engine) notify(event ProgressEvent) {
	event.At = e.now()
	e.notifier.Notify(event)
}

func snapshotsOf(participants []*participant) []*models.DeviceSnapshot {
	snaps := make([]*models.DeviceSnapshot, 0, len(participants))
	for _, p := range participants {
		snaps = append(snaps, p.snap)
	}

	return snaps
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
