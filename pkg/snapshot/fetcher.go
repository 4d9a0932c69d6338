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

// Package snapshot pulls a terminal's full state into a DeviceSnapshot.
// Users and fingerprints come down in two bulk calls; faces and photos
// are per-user and therefore gated on probed face support, because on an
// unsupported terminal every one of those calls fails and the cost scales
// with roster size.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/probe"
	"github.com/veritime/termsync/pkg/terminal"
)

var errUserFetch = errors.New("user list fetch failed")

// Options tunes one fetch.
type Options struct {
	// Limit caps how many users are processed; 0 means no cap. A capped
	// fetch marks the snapshot Partial.
	Limit int

	// IncludePhotos also pulls user photos on face-capable terminals.
	IncludePhotos bool
}

// Fetcher builds snapshots over live sessions.
type Fetcher struct {
	logger logger.Logger
	prober *probe.Prober
}

// NewFetcher creates a Fetcher.
func NewFetcher(log logger.Logger) *Fetcher {
	return &Fetcher{
		logger: log.WithComponent("snapshot"),
		prober: probe.New(log),
	}
}

// Fetch reads the terminal's users, templates, and (when supported) face
// data. Per-user sub-operation failures are omissions, never fetch
// failures; only a failed user list aborts, because nothing downstream
// can be keyed without it.
func (f *Fetcher) Fetch(ctx context.Context, session *conn.Session, opts Options) (*models.DeviceSnapshot, error) {
	snap := &models.DeviceSnapshot{
		Endpoint:             session.Endpoint,
		Users:                make(map[string]models.UserRecord),
		FingerprintTemplates: make(map[string][]models.TemplateBlob),
		FaceTemplates:        make(map[string]models.TemplateBlob),
		Photos:               make(map[string][]byte),
		FaceSupport:          models.FaceUnknown,
		FetchedAt:            time.Now(),
	}

	users, err := session.Conn.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errUserFetch, session.Endpoint.ID(), err)
	}

	users = f.capUsers(snap, users, opts.Limit)

	slotToExternal := make(map[int]string, len(users))

	for _, u := range users {
		if u.ExternalID == "" {
			continue
		}

		snap.Users[u.ExternalID] = u
		slotToExternal[u.DeviceSlot] = u.ExternalID
	}

	f.fetchFingerprints(ctx, session, snap, slotToExternal)

	// The user fetch above is what makes the probe's primary signal
	// trustworthy; keep that ordering.
	caps := f.prober.Probe(ctx, session, true)
	snap.FaceSupport = caps.FaceSupport

	if caps.FaceSupport == models.FaceSupported {
		f.fetchFaces(ctx, session, snap, users, opts.IncludePhotos)
	}

	f.logger.Debug().
		Str("endpoint", session.Endpoint.ID()).
		Int("users", snap.UserCount()).
		Int("templates", snap.TemplateCount()).
		Bool("partial", snap.Partial).
		Msg("Snapshot fetched")

	return snap, nil
}

// capUsers applies the Limit option deterministically (lowest slots
// first) so repeated capped fetches see the same subset.
func (f *Fetcher) capUsers(snap *models.DeviceSnapshot, users []models.UserRecord, limit int) []models.UserRecord {
	if limit <= 0 || len(users) <= limit {
		return users
	}

	sort.Slice(users, func(i, j int) bool { return users[i].DeviceSlot < users[j].DeviceSlot })

	f.logger.Warn().
		Str("endpoint", snap.Endpoint.ID()).
		Int("roster", len(users)).
		Int("limit", limit).
		Msg("Large roster capped, snapshot marked partial")

	snap.Partial = true

	return users[:limit]
}

// fetchFingerprints pulls all templates in one bulk call and re-keys
// them from terminal-local slot to external ID.
func (f *Fetcher) fetchFingerprints(ctx context.Context, session *conn.Session, snap *models.DeviceSnapshot, slotToExternal map[int]string) {
	raw, err := session.Conn.GetTemplates(ctx)
	if err != nil {
		f.logger.Warn().
			Str("endpoint", session.Endpoint.ID()).
			Err(err).
			Msg("Bulk template fetch failed, continuing without fingerprints")

		snap.Partial = true

		return
	}

	for _, tpl := range raw {
		externalID, ok := slotToExternal[tpl.Slot]
		if !ok {
			// Template for a user outside the (possibly capped) roster.
			continue
		}

		snap.FingerprintTemplates[externalID] = append(snap.FingerprintTemplates[externalID], models.TemplateBlob{
			ExternalID: externalID,
			Kind:       models.KindFingerprint,
			FingerID:   tpl.FingerID,
			Data:       tpl.Data,
		})
	}
}

// fetchFaces walks users one by one; each miss or failure just leaves
// that user's face data out of the snapshot.
func (f *Fetcher) fetchFaces(ctx context.Context, session *conn.Session, snap *models.DeviceSnapshot, users []models.UserRecord, includePhotos bool) {
	for _, u := range users {
		if u.ExternalID == "" {
			continue
		}

		face, err := session.Conn.GetFaceTemplate(ctx, u.DeviceSlot)

		switch {
		case err == nil:
			snap.FaceTemplates[u.ExternalID] = models.TemplateBlob{
				ExternalID: u.ExternalID,
				Kind:       models.KindFace,
				Data:       face.Data,
			}
		case errors.Is(err, terminal.ErrNotFound):
			// User simply has no face enrolled.
		default:
			f.logger.Debug().
				Str("endpoint", session.Endpoint.ID()).
				Str("external_id", u.ExternalID).
				Err(err).
				Msg("Face template fetch failed for user, omitting")
		}

		if !includePhotos {
			continue
		}

		photo, err := session.Conn.GetUserPhoto(ctx, u.DeviceSlot)
		if err == nil && len(photo) > 0 {
			snap.Photos[u.ExternalID] = photo
		}
	}
}
