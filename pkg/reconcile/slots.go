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

// allocateSlot picks the terminal-local slot for a user being added.
// The source terminal's slot is preserved when free so the same person
// keeps the same slot across the fleet; on collision the next slot past
// the current maximum is used. Slots past the device ceiling wrap to the
// first free slot from 1. Returns false only when the terminal is full.
func allocateSlot(preferred int, used map[int]bool) (int, bool) {
	if preferred > 0 && preferred <= models.MaxDeviceSlot && !used[preferred] {
		return preferred, true
	}

	next := 0
	for slot := range used {
		if slot > next {
			next = slot
		}
	}

	next++

	if next <= models.MaxDeviceSlot {
		return next, true
	}

	for slot := 1; slot <= models.MaxDeviceSlot; slot++ {
		if !used[slot] {
			return slot, true
		}
	}

	return 0, false
}
