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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veritime/termsync/pkg/models"
)

func TestAllocateSlotPrefersSourceSlot(t *testing.T) {
	slot, ok := allocateSlot(7, map[int]bool{1: true, 2: true})
	assert.True(t, ok)
	assert.Equal(t, 7, slot)
}

func TestAllocateSlotCollisionFallsBackToMaxPlusOne(t *testing.T) {
	slot, ok := allocateSlot(2, map[int]bool{2: true, 9: true})
	assert.True(t, ok)
	assert.Equal(t, 10, slot)
}

func TestAllocateSlotOversizedPreferredFallsBack(t *testing.T) {
	slot, ok := allocateSlot(models.MaxDeviceSlot+100, map[int]bool{3: true})
	assert.True(t, ok)
	assert.Equal(t, 4, slot)
}

func TestAllocateSlotWrapsPastCeiling(t *testing.T) {
	used := map[int]bool{1: true, models.MaxDeviceSlot: true}

	slot, ok := allocateSlot(models.MaxDeviceSlot, used)
	assert.True(t, ok)
	assert.Equal(t, 2, slot)
}

func TestAllocateSlotEmptySet(t *testing.T) {
	slot, ok := allocateSlot(0, map[int]bool{})
	assert.True(t, ok)
	assert.Equal(t, 1, slot)
}
