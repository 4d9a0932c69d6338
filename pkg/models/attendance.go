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

package models

import "time"

// PunchStatus is the semantic meaning of a terminal punch code.
type PunchStatus string

const (
	PunchCheckIn  PunchStatus = "Check In"
	PunchCheckOut PunchStatus = "Check Out"
	PunchBreakOut PunchStatus = "Break Out"
	PunchBreakIn  PunchStatus = "Break In"
	PunchOTIn     PunchStatus = "OT In"
	PunchOTOut    PunchStatus = "OT Out"
	PunchUnknown  PunchStatus = "Unknown"
)

// StatusForPunchCode maps the terminal's numeric punch code to its
// semantic status. Codes outside the table come back Unknown rather
// than failing; field firmware has been seen emitting junk codes.
func StatusForPunchCode(code int) PunchStatus {
	switch code {
	case 0:
		return PunchCheckIn
	case 1:
		return PunchCheckOut
	case 2:
		return PunchBreakOut
	case 3:
		return PunchBreakIn
	case 4:
		return PunchOTIn
	case 5:
		return PunchOTOut
	default:
		return PunchUnknown
	}
}

// AttendanceEvent is one punch pulled from a terminal's buffer.
// (EndpointID, ExternalID, Timestamp) is the natural key that makes
// repeated collection idempotent.
type AttendanceEvent struct {
	ExternalID string      `json:"external_id"`
	EndpointID string      `json:"endpoint_id"`
	Timestamp  time.Time   `json:"timestamp"`
	PunchCode  int         `json:"punch_code"`
	Status     PunchStatus `json:"status"`
}
