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

// MaxDeviceSlot is the largest slot number the terminal firmware accepts.
// External IDs above this must be wrapped before use as a slot.
const MaxDeviceSlot = 65535

// UserRecord is one user as held by a terminal. ExternalID is the only
// identity that is stable across terminals; DeviceSlot is a terminal-local
// index and must be renumbered on propagation to avoid collisions.
type UserRecord struct {
	ExternalID  string `json:"external_id"`
	DeviceSlot  int    `json:"device_slot"`
	DisplayName string `json:"display_name"`
	Privilege   int    `json:"privilege"`
	Password    string `json:"password,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	CardNumber  string `json:"card_number,omitempty"`
}

// TemplateKind distinguishes fingerprint slots from face templates.
type TemplateKind int

const (
	KindFingerprint TemplateKind = iota
	KindFace
)

func (k TemplateKind) String() string {
	if k == KindFace {
		return "face"
	}

	return "fingerprint"
}

// TemplateBlob is an opaque biometric payload. The engine never interprets
// the bytes; it only transports them and compares presence/absence.
type TemplateBlob struct {
	ExternalID string       `json:"external_id"`
	Kind       TemplateKind `json:"kind"`
	FingerID   int          `json:"finger_id"` // 0-9 for fingerprints, 0 for faces
	Data       []byte       `json:"-"`
}
