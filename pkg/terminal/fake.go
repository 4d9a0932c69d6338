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

package terminal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/veritime/termsync/pkg/models"
)

var (
	errTerminalOffline  = errors.New("fake: terminal offline")
	errVariantRejected  = errors.New("fake: protocol variant rejected")
	errSessionClosed    = errors.New("fake: session closed")
	errSlotOccupied     = errors.New("fake: slot already occupied")
	errUnknownSlot      = errors.New("fake: unknown slot")
	errVerificationDown = errors.New("fake: get time failure injected")
)

// The in-memory transport doubles as the development binding, selectable
// from config next to the vendor SDK names.
func init() {
	RegisterDialer("memory", func() (Dialer, error) {
		return NewFakeDialer(), nil
	})
}

// FakeTerminal is an in-memory terminal used across the engine's tests.
// State is shared by every session dialed to it, mirroring a real device.
type FakeTerminal struct {
	mu sync.Mutex

	Users        map[int]models.UserRecord // by device slot
	Fingerprints map[int][]RawTemplate
	Faces        map[int]RawFace
	Photos       map[int][]byte
	Punches      []RawPunch

	Serial      string
	FaceCapable bool
	FaceFuncOn  bool
	FaceVersion int

	Now time.Time

	// Accept restricts which protocol variants connect; empty accepts all.
	Accept []models.ProtocolVariant

	// Error injection. GetTimeErr poisons session verification;
	// the others poison the corresponding bulk call.
	GetTimeErr      error
	GetUsersErr     error
	GetTemplatesErr error
	SetUserErr      error
	SaveTemplateErr error
}

// NewFakeTerminal returns an empty, reachable, all-variant terminal.
func NewFakeTerminal() *FakeTerminal {
	return &FakeTerminal{
		Users:        make(map[int]models.UserRecord),
		Fingerprints: make(map[int][]RawTemplate),
		Faces:        make(map[int]RawFace),
		Photos:       make(map[int][]byte),
		Now:          time.Now(),
	}
}

// AddUser seeds a user plus optional fingerprint payloads.
func (ft *FakeTerminal) AddUser(user models.UserRecord, fingerprints ...[]byte) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.Users[user.DeviceSlot] = user

	for i, data := range fingerprints {
		ft.Fingerprints[user.DeviceSlot] = append(ft.Fingerprints[user.DeviceSlot], RawTemplate{
			Slot:     user.DeviceSlot,
			FingerID: i,
			Data:     data,
		})
	}
}

// AddFace seeds a face template for a slot.
func (ft *FakeTerminal) AddFace(slot int, data []byte) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.Faces[slot] = RawFace{Slot: slot, Data: data}
}

// AddPunch seeds one attendance record.
func (ft *FakeTerminal) AddPunch(externalID string, slot int, ts time.Time, code int) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.Punches = append(ft.Punches, RawPunch{
		Slot:       slot,
		ExternalID: externalID,
		Timestamp:  ts,
		Code:       code,
	})
}

func (ft *FakeTerminal) accepts(variant models.ProtocolVariant) bool {
	if len(ft.Accept) == 0 {
		return true
	}

	for _, v := range ft.Accept {
		if v == variant {
			return true
		}
	}

	return false
}

// DialAttempt records one handshake try against the fake dialer.
type DialAttempt struct {
	EndpointID string
	Variant    models.ProtocolVariant
}

// FakeDialer serves fake terminals keyed by endpoint ID and records every
// handshake attempt for assertions on retry and fallback order.
type FakeDialer struct {
	mu        sync.Mutex
	Terminals map[string]*FakeTerminal
	Attempts  []DialAttempt
}

// NewFakeDialer returns a dialer with no terminals attached.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{Terminals: make(map[string]*FakeTerminal)}
}

// Attach makes a terminal reachable at the endpoint.
func (d *FakeDialer) Attach(endpoint models.Endpoint, ft *FakeTerminal) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Terminals[endpoint.ID()] = ft
}

// ProbeTCP answers reachability from the attachment table, standing in
// for the raw TCP probe the production transport uses.
func (d *FakeDialer) ProbeTCP(_ context.Context, endpoint models.Endpoint, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.Terminals[endpoint.ID()]; !ok {
		return errTerminalOffline
	}

	return nil
}

// AttemptCount reports how many handshakes were tried for an endpoint.
func (d *FakeDialer) AttemptCount(endpointID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0

	for _, a := range d.Attempts {
		if a.EndpointID == endpointID {
			n++
		}
	}

	return n
}

func (d *FakeDialer) Dial(_ context.Context, endpoint models.Endpoint, variant models.ProtocolVariant, _ time.Duration) (Conn, error) {
	d.mu.Lock()
	d.Attempts = append(d.Attempts, DialAttempt{EndpointID: endpoint.ID(), Variant: variant})
	ft, ok := d.Terminals[endpoint.ID()]
	d.mu.Unlock()

	if !ok {
		return nil, errTerminalOffline
	}

	if !ft.accepts(variant) {
		return nil, errVariantRejected
	}

	return &fakeConn{terminal: ft}, nil
}

type fakeConn struct {
	mu           sync.Mutex
	terminal     *FakeTerminal
	closed       bool
	usersFetched bool
}

func (c *fakeConn) guard() (*FakeTerminal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errSessionClosed
	}

	return c.terminal, nil
}

func (c *fakeConn) GetTime(_ context.Context) (time.Time, error) {
	ft, err := c.guard()
	if err != nil {
		return time.Time{}, err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.GetTimeErr != nil {
		return time.Time{}, ft.GetTimeErr
	}

	return ft.Now, nil
}

func (c *fakeConn) GetSerialNumber(_ context.Context) (string, error) {
	ft, err := c.guard()
	if err != nil {
		return "", err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	return ft.Serial, nil
}

func (c *fakeConn) SetTime(_ context.Context, t time.Time) error {
	ft, err := c.guard()
	if err != nil {
		return err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.Now = t

	return nil
}

func (c *fakeConn) GetUsers(_ context.Context) ([]models.UserRecord, error) {
	ft, err := c.guard()
	if err != nil {
		return nil, err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.GetUsersErr != nil {
		return nil, ft.GetUsersErr
	}

	c.mu.Lock()
	c.usersFetched = true
	c.mu.Unlock()

	users := make([]models.UserRecord, 0, len(ft.Users))
	for _, u := range ft.Users {
		users = append(users, u)
	}

	return users, nil
}

func (c *fakeConn) SetUser(_ context.Context, user models.UserRecord) error {
	ft, err := c.guard()
	if err != nil {
		return err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.SetUserErr != nil {
		return ft.SetUserErr
	}

	if existing, ok := ft.Users[user.DeviceSlot]; ok && existing.ExternalID != user.ExternalID {
		return errSlotOccupied
	}

	ft.Users[user.DeviceSlot] = user

	return nil
}

func (c *fakeConn) DeleteUser(_ context.Context, slot int) error {
	ft, err := c.guard()
	if err != nil {
		return err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if _, ok := ft.Users[slot]; !ok {
		return errUnknownSlot
	}

	delete(ft.Users, slot)
	delete(ft.Fingerprints, slot)
	delete(ft.Faces, slot)
	delete(ft.Photos, slot)

	return nil
}

func (c *fakeConn) GetTemplates(_ context.Context) ([]RawTemplate, error) {
	ft, err := c.guard()
	if err != nil {
		return nil, err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.GetTemplatesErr != nil {
		return nil, ft.GetTemplatesErr
	}

	var all []RawTemplate
	for _, tpls := range ft.Fingerprints {
		all = append(all, tpls...)
	}

	return all, nil
}

func (c *fakeConn) SaveTemplate(_ context.Context, tpl RawTemplate) error {
	ft, err := c.guard()
	if err != nil {
		return err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.SaveTemplateErr != nil {
		return ft.SaveTemplateErr
	}

	ft.Fingerprints[tpl.Slot] = append(ft.Fingerprints[tpl.Slot], tpl)

	return nil
}

func (c *fakeConn) GetFaceTemplate(_ context.Context, slot int) (RawFace, error) {
	ft, err := c.guard()
	if err != nil {
		return RawFace{}, err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if !ft.FaceCapable {
		return RawFace{}, ErrNotSupported
	}

	face, ok := ft.Faces[slot]
	if !ok {
		return RawFace{}, ErrNotFound
	}

	return face, nil
}

func (c *fakeConn) SetFaceTemplate(_ context.Context, face RawFace) error {
	ft, err := c.guard()
	if err != nil {
		return err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if !ft.FaceCapable {
		return ErrNotSupported
	}

	ft.Faces[face.Slot] = face

	return nil
}

func (c *fakeConn) GetUserPhoto(_ context.Context, slot int) ([]byte, error) {
	ft, err := c.guard()
	if err != nil {
		return nil, err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if !ft.FaceCapable {
		return nil, ErrNotSupported
	}

	photo, ok := ft.Photos[slot]
	if !ok {
		return nil, ErrNotFound
	}

	return photo, nil
}

func (c *fakeConn) SetUserPhoto(_ context.Context, slot int, photo []byte) error {
	ft, err := c.guard()
	if err != nil {
		return err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if !ft.FaceCapable {
		return ErrNotSupported
	}

	ft.Photos[slot] = photo

	return nil
}

func (c *fakeConn) GetAttendance(_ context.Context) ([]RawPunch, error) {
	ft, err := c.guard()
	if err != nil {
		return nil, err
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	punches := make([]RawPunch, len(ft.Punches))
	copy(punches, ft.Punches)

	return punches, nil
}

// ReadCounters mirrors the firmware quirk the prober is built around: the
// face count reads zero until the session has fetched users once.
func (c *fakeConn) ReadCounters(_ context.Context) (Counters, error) {
	ft, err := c.guard()
	if err != nil {
		return Counters{}, err
	}

	c.mu.Lock()
	usersFetched := c.usersFetched
	c.mu.Unlock()

	ft.mu.Lock()
	defer ft.mu.Unlock()

	fingers := 0
	for _, tpls := range ft.Fingerprints {
		fingers += len(tpls)
	}

	counters := Counters{
		UserCount:   len(ft.Users),
		FingerCount: fingers,
		RecordCount: len(ft.Punches),
		FaceFuncOn:  ft.FaceFuncOn,
		FaceVersion: ft.FaceVersion,
	}

	if usersFetched {
		counters.FaceCount = len(ft.Faces)
	}

	return counters, nil
}

func (c *fakeConn) TestVoice(_ context.Context) error {
	_, err := c.guard()
	return err
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}
