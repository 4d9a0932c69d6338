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

// Package probe determines what a terminal supports. The result is
// returned once and threaded through as data; call sites never re-check
// capabilities ad hoc.
package probe

import (
	"context"

	"github.com/veritime/termsync/pkg/conn"
	"github.com/veritime/termsync/pkg/logger"
	"github.com/veritime/termsync/pkg/models"
)

// Capabilities is the negotiation result for one terminal.
type Capabilities struct {
	FaceSupport       models.FaceSupport
	ReportedFaceCount int
	FaceVersion       int
}

// Prober reads capability signals off a live session.
type Prober struct {
	logger logger.Logger
}

// New creates a Prober.
func New(log logger.Logger) *Prober {
	return &Prober{logger: log.WithComponent("probe")}
}

// Probe reads the terminal counters and classifies face support.
//
// The terminal-reported face count is only populated after the session
// has fetched the user list once; probing before that read produced
// false negatives in the field. Callers therefore fetch users first and
// pass usersFetched=true. Without the flag a zero count means nothing,
// so the result can be Unknown or Supported but never Unsupported.
func (p *Prober) Probe(ctx context.Context, session *conn.Session, usersFetched bool) Capabilities {
	caps := Capabilities{FaceSupport: models.FaceUnknown}

	counters, err := session.Conn.ReadCounters(ctx)
	if err != nil {
		p.logger.Warn().
			Str("endpoint", session.Endpoint.ID()).
			Err(err).
			Msg("Counter read failed, face support unknown")

		return caps
	}

	caps.ReportedFaceCount = counters.FaceCount
	caps.FaceVersion = counters.FaceVersion

	switch {
	case counters.FaceCount > 0:
		// A positive count is trustworthy either way.
		caps.FaceSupport = models.FaceSupported
	case usersFetched:
		// Zero after a user fetch is definitive.
		caps.FaceSupport = models.FaceUnsupported
	default:
		caps.FaceSupport = models.FaceUnknown
	}

	// Secondary signals only break an Unknown; they never override the
	// primary count.
	if caps.FaceSupport == models.FaceUnknown {
		if counters.FaceFuncOn || counters.FaceVersion > 0 {
			caps.FaceSupport = models.FaceSupported
		}
	}

	p.logger.Debug().
		Str("endpoint", session.Endpoint.ID()).
		Str("face_support", caps.FaceSupport.String()).
		Int("face_count", caps.ReportedFaceCount).
		Bool("users_fetched", usersFetched).
		Msg("Capability probe complete")

	return caps
}
