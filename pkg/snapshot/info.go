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
	"time"

	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/models"
)

// FetchInfo reads the lightweight status readout the web layer shows per
// terminal. Individual read failures leave zero values rather than
// failing the whole readout; the result sits behind the TTL cache so
// terminals are not hammered by dashboard refreshes.
func (f *Fetcher) FetchInfo(ctx context.Context, session *conn.Session) *models.DeviceInfo {
	info := &models.DeviceInfo{}

	if serial, err := session.Conn.GetSerialNumber(ctx); err == nil {
		info.Serial = serial
	}

	if t, err := session.Conn.GetTime(ctx); err == nil {
		info.DeviceTime = t
	}

	// Users first: the counter read below reports faces reliably only
	// after the roster has been walked once on this session.
	users, err := session.Conn.GetUsers(ctx)
	if err == nil {
		info.UserCount = len(users)
	} else {
		f.logger.Warn().
			Str("endpoint", session.Endpoint.ID()).
			Err(err).
			Msg("User count read failed")
	}

	if counters, err := session.Conn.ReadCounters(ctx); err == nil {
		info.FingerCount = counters.FingerCount
		info.FaceCount = counters.FaceCount
	}

	if punches, err := session.Conn.GetAttendance(ctx); err == nil {
		info.LogCount = len(punches)

		today := info.DeviceTime
		if today.IsZero() {
			today = session.LastVerifiedAt
		}

		for _, p := range punches {
			switch {
			case sameDay(p.Timestamp, today):
				info.TodayLogs++
			case sameDay(p.Timestamp, today.AddDate(0, 0, -1)):
				info.YesterdayLogs++
			}
		}
	}

	return info
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	return ay == by && am == bm && ad == bd
}
