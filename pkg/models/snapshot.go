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

// FaceSupport is the capability-negotiation result for face operations.
// Unknown must never be used to gate a propagation decision.
type FaceSupport int

const (
	FaceUnknown FaceSupport = iota
	FaceSupported
	FaceUnsupported
)

func (f FaceSupport) String() string {
	switch f {
	case FaceSupported:
		return "supported"
	case FaceUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// DeviceSnapshot is a point-in-time read of one terminal's state, keyed by
// ExternalID throughout. Created fresh per reconciliation pass and
// discarded after use; never persisted as-is.
type DeviceSnapshot struct {
	Endpoint             Endpoint
	Users                map[string]UserRecord
	FingerprintTemplates map[string][]TemplateBlob
	FaceTemplates        map[string]TemplateBlob
	Photos               map[string][]byte
	FaceSupport          FaceSupport
	Partial              bool
	FetchedAt            time.Time
}

// UserCount reports how many users the snapshot holds.
func (s *DeviceSnapshot) UserCount() int {
	return len(s.Users)
}

// TemplateCount reports fingerprint plus face template totals, the score
// used for master election.
func (s *DeviceSnapshot) TemplateCount() int {
	count := len(s.FaceTemplates)
	for _, blobs := range s.FingerprintTemplates {
		count += len(blobs)
	}

	return count
}

// HasFingerprints reports whether the user holds at least one fingerprint
// template on this terminal.
func (s *DeviceSnapshot) HasFingerprints(externalID string) bool {
	return len(s.FingerprintTemplates[externalID]) > 0
}

// HasFace reports whether the user holds a face template on this terminal.
func (s *DeviceSnapshot) HasFace(externalID string) bool {
	_, ok := s.FaceTemplates[externalID]
	return ok
}

// DeviceInfo is the lightweight status readout served to the web layer
// through the TTL cache.
type DeviceInfo struct {
	Serial        string    `json:"serial"`
	DeviceTime    time.Time `json:"device_time"`
	UserCount     int       `json:"user_count"`
	FingerCount   int       `json:"finger_count"`
	FaceCount     int       `json:"face_count"`
	LogCount      int       `json:"log_count"`
	TodayLogs     int       `json:"today_logs"`
	YesterdayLogs int       `json:"yesterday_logs"`
}
