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

import "github.com/veritime/termsync/pkg/models"

// electMaster picks the richest snapshot as the propagation source:
// highest user count plus template count, ties broken by the
// lexicographically smallest address so elections are deterministic.
func electMaster(snapshots []*models.DeviceSnapshot) *models.DeviceSnapshot {
	var master *models.DeviceSnapshot

	for _, snap := range snapshots {
		if snap == nil {
			continue
		}

		if master == nil {
			master = snap
			continue
		}

		score := snap.UserCount() + snap.TemplateCount()
		best := master.UserCount() + master.TemplateCount()

		switch {
		case score > best:
			master = snap
		case score == best && snap.Endpoint.Address < master.Endpoint.Address:
			master = snap
		}
	}

	return master
}
