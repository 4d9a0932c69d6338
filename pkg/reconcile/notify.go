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

import "time"

// ProgressEvent is emitted at pass milestones so surfaces like the
// websocket feed can show live sync progress.
type ProgressEvent struct {
	GroupID   string    `json:"group_id"`
	Stage     string    `json:"stage"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Users     int       `json:"users,omitempty"`
	Templates int       `json:"templates,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier receives progress events. Implementations must not block;
// the engine calls them inline during a pass.
type Notifier interface {
	Notify(event ProgressEvent)
}

// NoOpNotifier drops events.
type NoOpNotifier struct{}

func (*NoOpNotifier) Notify(ProgressEvent) {}
