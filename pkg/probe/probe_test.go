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

package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
	"github.com/veritime/termsync/pkg/terminal"
)

// dialFake opens a session straight through the fake dialer, optionally
// fetching users first to emulate the snapshot fetcher's ordering.
func dialFake(t *testing.T, ft *terminal.FakeTerminal, fetchUsers bool) *conn.Session {
	t.Helper()

	endpoint := models.Endpoint{Address: "10.0.0.20", Port: 4370}
	dialer := terminal.NewFakeDialer()
	dialer.Attach(endpoint, ft)

	c, err := dialer.Dial(context.Background(), endpoint, models.VariantUDPNoPing, time.Second)
	require.NoError(t, err)

	if fetchUsers {
		_, err = c.GetUsers(context.Background())
		require.NoError(t, err)
	}

	return &conn.Session{Endpoint: endpoint, Conn: c}
}

func faceTerminal() *terminal.FakeTerminal {
	ft := terminal.NewFakeTerminal()
	ft.FaceCapable = true
	ft.AddUser(models.UserRecord{ExternalID: "1001", DeviceSlot: 1})
	ft.AddFace(1, []byte{0xCA, 0xFE})

	return ft
}

func TestProbeSupportedAfterUserFetch(t *testing.T) {
	session := dialFake(t, faceTerminal(), true)

	caps := New(logger.NewTestLogger()).Probe(context.Background(), session, true)
	assert.Equal(t, models.FaceSupported, caps.FaceSupport)
	assert.Equal(t, 1, caps.ReportedFaceCount)
}

func TestProbeUnsupportedRequiresUserFetch(t *testing.T) {
	ft := terminal.NewFakeTerminal()
	ft.AddUser(models.UserRecord{ExternalID: "1001", DeviceSlot: 1})

	session := dialFake(t, ft, true)

	caps := New(logger.NewTestLogger()).Probe(context.Background(), session, true)
	assert.Equal(t, models.FaceUnsupported, caps.FaceSupport)
}

// Without the users-fetched flag a zero count proves nothing: the result
// must never be Unsupported.
func TestProbeBeforeUserFetchNeverUnsupported(t *testing.T) {
	session := dialFake(t, faceTerminal(), false)

	caps := New(logger.NewTestLogger()).Probe(context.Background(), session, false)
	assert.NotEqual(t, models.FaceUnsupported, caps.FaceSupport)
	assert.Equal(t, models.FaceUnknown, caps.FaceSupport)
}

func TestProbeSecondarySignalsBreakUnknown(t *testing.T) {
	ft := faceTerminal()
	ft.FaceVersion = 7

	session := dialFake(t, ft, false)

	// Count is masked (no user fetch) but the version number vouches.
	caps := New(logger.NewTestLogger()).Probe(context.Background(), session, false)
	assert.Equal(t, models.FaceSupported, caps.FaceSupport)
	assert.Equal(t, 7, caps.FaceVersion)
}

func TestProbeCounterFailureIsUnknown(t *testing.T) {
	ft := faceTerminal()

	session := dialFake(t, ft, true)
	require.NoError(t, session.Conn.Disconnect())

	caps := New(logger.NewTestLogger()).Probe(context.Background(), session, true)
	assert.Equal(t, models.FaceUnknown, caps.FaceSupport)
}
