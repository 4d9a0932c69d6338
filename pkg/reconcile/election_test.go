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
	"github.com/stretchr/testify/require"

	"github.com/veritime/termsync/pkg/models"
)

func snapWith(address string, users, templates int) *models.DeviceSnapshot {
	snap := &models.DeviceSnapshot{
		Endpoint:             models.Endpoint{Address: address, Port: 4370},
		Users:                make(map[string]models.UserRecord),
		FingerprintTemplates: make(map[string][]models.TemplateBlob),
	}

	for i := 0; i < users; i++ {
		id := address + "-u" + string(rune('a'+i))
		snap.Users[id] = models.UserRecord{ExternalID: id, DeviceSlot: i + 1}
	}

	for i := 0; i < templates; i++ {
		id := address + "-u" + string(rune('a'+i%users))
		snap.FingerprintTemplates[id] = append(snap.FingerprintTemplates[id], models.TemplateBlob{ExternalID: id})
	}

	return snap
}

func TestElectMasterRichestWins(t *testing.T) {
	poor := snapWith("10.0.0.2", 2, 1)
	rich := snapWith("10.0.0.3", 3, 4)

	master := electMaster([]*models.DeviceSnapshot{poor, rich})
	require.NotNil(t, master)
	assert.Equal(t, "10.0.0.3", master.Endpoint.Address)
}

func TestElectMasterTemplatesBreakUserTie(t *testing.T) {
	fewTemplates := snapWith("10.0.0.2", 3, 1)
	manyTemplates := snapWith("10.0.0.3", 3, 3)

	master := electMaster([]*models.DeviceSnapshot{fewTemplates, manyTemplates})
	assert.Equal(t, "10.0.0.3", master.Endpoint.Address)
}

func TestElectMasterTieBreaksOnAddress(t *testing.T) {
	a := snapWith("10.0.0.9", 2, 2)
	b := snapWith("10.0.0.2", 2, 2)

	// Same score either way round; the smaller address must win.
	assert.Equal(t, "10.0.0.2", electMaster([]*models.DeviceSnapshot{a, b}).Endpoint.Address)
	assert.Equal(t, "10.0.0.2", electMaster([]*models.DeviceSnapshot{b, a}).Endpoint.Address)
}

func TestElectMasterHandlesNilAndEmpty(t *testing.T) {
	assert.Nil(t, electMaster(nil))
	assert.Nil(t, electMaster([]*models.DeviceSnapshot{nil}))

	only := snapWith("10.0.0.2", 1, 0)
	assert.Same(t, only, electMaster([]*models.DeviceSnapshot{nil, only}))
}
