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

package reconcile

import (
	"sync"
	"time"
)

// leaseRegistry hands out at most one reconciliation lease per group.
// Acquisition never blocks; a held lease means the caller skips the pass.
type leaseRegistry struct {
	mu     sync.Mutex
	leases map[string]time.Time
}

func newLeaseRegistry() *leaseRegistry {
	return &leaseRegistry{leases: make(map[string]time.Time)}
}

// tryAcquire takes the lease for a group, reporting false when another
// pass already holds it.
func (r *leaseRegistry) tryAcquire(groupID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.leases[groupID]; held {
		return false
	}

	r.leases[groupID] = time.Now()

	return true
}

func (r *leaseRegistry) release(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.leases, groupID)
}

// heldSince reports when the lease was taken, for the admin surface.
func (r *leaseRegistry) heldSince(groupID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	since, held := r.leases[groupID]

	return since, held
}
