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

// Package terminal defines the seam over the vendor wire protocol. The
// byte layout belongs to the vendor SDK binding; the engine only sees the
// request/response operations below. A session is strictly sequential:
// one command in flight at a time, no multiplexing.
package terminal

import (
	"context"
	"errors"
	"time"

	"github.com/veritime/termsync/pkg/models"
)

var (
	// ErrNotSupported is returned by terminals that lack an operation
	// (face templates and photos on fingerprint-only models).
	ErrNotSupported = errors.New("operation not supported by terminal")

	// ErrNotFound is returned when a slot has no data for the requested
	// operation.
	ErrNotFound = errors.New("no data for slot")
)

// RawTemplate is a fingerprint template as the wire protocol returns it,
// keyed by the terminal-local user slot.
type RawTemplate struct {
	Slot     int
	FingerID int // 0-9
	Data     []byte
}

// RawFace is a face template keyed by the terminal-local user slot.
type RawFace struct {
	Slot int
	Data []byte
}

// RawPunch is one attendance record as read from the terminal buffer.
type RawPunch struct {
	Slot       int
	ExternalID string
	Timestamp  time.Time
	Code       int
}

// Counters is the terminal-reported bookkeeping read alongside the user
// list. The face fields feed capability probing: FaceCount is only
// trustworthy after a user fetch has run on the session.
type Counters struct {
	UserCount   int
	FingerCount int
	FaceCount   int
	RecordCount int
	FaceFuncOn  bool
	FaceVersion int
}

// Conn is one live protocol session. Implementations are not safe for
// concurrent use; the connection manager enforces exclusive ownership.
type Conn interface {
	GetTime(ctx context.Context) (time.Time, error)
	SetTime(ctx context.Context, t time.Time) error
	GetSerialNumber(ctx context.Context) (string, error)

	GetUsers(ctx context.Context) ([]models.UserRecord, error)
	SetUser(ctx context.Context, user models.UserRecord) error
	DeleteUser(ctx context.Context, slot int) error

	GetTemplates(ctx context.Context) ([]RawTemplate, error)
	SaveTemplate(ctx context.Context, tpl RawTemplate) error

	GetFaceTemplate(ctx context.Context, slot int) (RawFace, error)
	SetFaceTemplate(ctx context.Context, face RawFace) error

	GetUserPhoto(ctx context.Context, slot int) ([]byte, error)
	SetUserPhoto(ctx context.Context, slot int, photo []byte) error

	GetAttendance(ctx context.Context) ([]RawPunch, error)
	ReadCounters(ctx context.Context) (Counters, error)

	TestVoice(ctx context.Context) error
	Disconnect() error
}

// Dialer opens a session to an endpoint using one protocol variant. Errors
// distinguish a rejected handshake from an unreachable host only insofar
// as the transport surfaces it; the connection manager layers its own
// probe and retry policy on top.
type Dialer interface {
	Dial(ctx context.Context, endpoint models.Endpoint, variant models.ProtocolVariant, timeout time.Duration) (Conn, error)
}
