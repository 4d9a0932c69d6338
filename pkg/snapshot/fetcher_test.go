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

package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/terminal"
)

func sessionFor(t *testing.T, ft *terminal.FakeTerminal) *conn.Session {
	t.Helper()

	endpoint := models.Endpoint{Address: "10.0.0.30", Port: 4370}
	dialer := terminal.NewFakeDialer()
	dialer.Attach(endpoint, ft)

	c, err := dialer.Dial(context.Background(), endpoint, models.VariantUDPNoPing, time.Second)
	require.NoError(t, err)

	return &conn.Session{Endpoint: endpoint, Conn: c, LastVerifiedAt: time.Now()}
}

func TestFetchRekeysTemplatesByExternalID(t *testing.T) {
	ft := terminal.NewFakeTerminal()
	ft.AddUser(models.UserRecord{ExternalID: "1001", DeviceSlot: 3}, []byte{1}, []byte{2})
	ft.AddUser(models.UserRecord{ExternalID: "1002", DeviceSlot: 7}, []byte{3})

	snap, err := NewFetcher(logger.NewTestLogger()).Fetch(context.Background(), sessionFor(t, ft), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, snap.UserCount())
	assert.Len(t, snap.FingerprintTemplates["1001"], 2)
	assert.Len(t, snap.FingerprintTemplates["1002"], 1)
	assert.False(t, snap.Partial)
	assert.Equal(t, models.FaceUnsupported, snap.FaceSupport)
}

func TestFetchLimitMarksPartial(t *testing.T) {
	ft := terminal.NewFakeTerminal()
	for slot := 1; slot <= 10; slot++ {
		ft.AddUser(models.UserRecord{ExternalID: externalID(slot), DeviceSlot: slot})
	}

	snap, err := NewFetcher(logger.NewTestLogger()).Fetch(context.Background(), sessionFor(t, ft), Options{Limit: 4})
	require.NoError(t, err)

	assert.True(t, snap.Partial)
	assert.Equal(t, 4, snap.UserCount())

	// Deterministic subset: lowest slots win.
	for slot := 1; slot <= 4; slot++ {
		assert.Contains(t, snap.Users, externalID(slot))
	}
}

func TestFetchFacesOnlyWhenSupported(t *testing.T) {
	ft := terminal.NewFakeTerminal()
	ft.FaceCapable = true
	ft.AddUser(models.UserRecord{ExternalID: "1001", DeviceSlot: 1})
	ft.AddUser(models.UserRecord{ExternalID: "1002", DeviceSlot: 2})
	ft.AddFace(1, []byte{0xAA})

	snap, err := NewFetcher(logger.NewTestLogger()).Fetch(context.Background(), sessionFor(t, ft), Options{})
	require.NoError(t, err)

	assert.Equal(t, models.FaceSupported, snap.FaceSupport)
	assert.True(t, snap.HasFace("1001"))
	assert.False(t, snap.HasFace("1002"))
}

func TestFetchPhotosGatedByOption(t *testing.T) {
	ft := terminal.NewFakeTerminal()
	ft.FaceCapable = true
	ft.AddUser(models.UserRecord{ExternalID: "1001", DeviceSlot: 1})
	ft.AddFace(1, []byte{0xAA})
	ft.Photos[1] = []byte{0xBB}

	fetcher := NewFetcher(logger.NewTestLogger())

	snap, err := fetcher.Fetch(context.Background(), sessionFor(t, ft), Options{})
	require.NoError(t, err)
	assert.Empty(t, snap.Photos)

	snap, err = fetcher.Fetch(context.Background(), sessionFor(t, ft), Options{IncludePhotos: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBB}, snap.Photos["1001"])
}

func TestFetchUserFailureAborts(t *testing.T) {
	ft := terminal.NewFakeTerminal()
	ft.GetUsersErr = errors.New("buffer overrun")

	_, err := NewFetcher(logger.NewTestLogger()).Fetch(context.Background(), sessionFor(t, ft), Options{})
	require.Error(t, err)
}

func TestFetchTemplateFailureIsPartialNotFatal(t *testing.T) {
	ft := terminal.NewFakeTerminal()
	ft.AddUser(models.UserRecord{ExternalID: "1001", DeviceSlot: 1}, []byte{1})
	ft.GetTemplatesErr = errors.New("buffer overrun")

	snap, err := NewFetcher(logger.NewTestLogger()).Fetch(context.Background(), sessionFor(t, ft), Options{})
	require.NoError(t, err)

	assert.True(t, snap.Partial)
	assert.Empty(t, snap.FingerprintTemplates)
	assert.Equal(t, 1, snap.UserCount())
}

func TestFetchInfoCountsDays(t *testing.T) {
	now := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)

	ft := terminal.NewFakeTerminal()
	ft.Serial = "A8N5201760001"
	ft.Now = now
	ft.AddUser(models.UserRecord{ExternalID: "1001", DeviceSlot: 1}, []byte{1})
	ft.AddPunch("1001", 1, now.Add(-time.Hour), 0)
	ft.AddPunch("1001", 1, now.AddDate(0, 0, -1), 1)
	ft.AddPunch("1001", 1, now.AddDate(0, 0, -9), 0)

	info := NewFetcher(logger.NewTestLogger()).FetchInfo(context.Background(), sessionFor(t, ft))

	assert.Equal(t, "A8N5201760001", info.Serial)
	assert.Equal(t, 1, info.UserCount)
	assert.Equal(t, 1, info.FingerCount)
	assert.Equal(t, 3, info.LogCount)
	assert.Equal(t, 1, info.TodayLogs)
	assert.Equal(t, 1, info.YesterdayLogs)
}

func externalID(slot int) string {
	return string(rune('A'+slot-1)) + "000"
}
