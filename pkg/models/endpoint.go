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

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultTerminalPort is the fixed port the vendor protocol listens on.
const DefaultTerminalPort = 4370

// ProtocolVariant selects how the vendor wire protocol is spoken to a
// terminal. Terminals in the field differ in which variant they accept,
// so connection setup walks an ordered list of variants.
type ProtocolVariant int

const (
	// VariantAuto lets the connection manager pick by fallback.
	VariantAuto ProtocolVariant = iota
	// VariantUDPNoPing is connectionless with the ping probe omitted.
	VariantUDPNoPing
	// VariantTCPNoPing is connection-oriented with the ping probe omitted.
	VariantTCPNoPing
	// VariantTCPPing is connection-oriented with the ping probe enabled.
	VariantTCPPing
)

func (v ProtocolVariant) String() string {
	switch v {
	case VariantUDPNoPing:
		return "udp-no-ping"
	case VariantTCPNoPing:
		return "tcp-no-ping"
	case VariantTCPPing:
		return "tcp-ping"
	default:
		return "auto"
	}
}

// Endpoint identifies one terminal on the network. Immutable once a
// session exists for it.
type Endpoint struct {
	Address string          `json:"address"`
	Port    int             `json:"port"`
	Variant ProtocolVariant `json:"variant,omitempty"`
	GroupID string          `json:"group_id,omitempty"`
	Name    string          `json:"name,omitempty"`
}

// ID returns the stable "address:port" identity used for attendance
// dedup keys and cache keys.
func (e Endpoint) ID() string {
	port := e.Port
	if port == 0 {
		port = DefaultTerminalPort
	}

	return net.JoinHostPort(e.Address, strconv.Itoa(port))
}

func (e Endpoint) String() string {
	if e.Name != "" {
		return fmt.Sprintf("%s (%s)", e.Name, e.ID())
	}

	return e.ID()
}
