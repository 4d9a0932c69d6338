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
	"fmt"
	"sort"
	"sync"
)

// DialerFactory builds a Dialer for one transport binding.
type DialerFactory func() (Dialer, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]DialerFactory)
)

// RegisterDialer makes a transport binding selectable by name from config.
// Vendor SDK bindings register themselves in init; tests register fakes.
func RegisterDialer(name string, factory DialerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[name] = factory
}

// NewDialer instantiates the named transport binding.
func NewDialer(name string) (Dialer, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown terminal transport %q (registered: %v)", name, registeredNames())
	}

	return factory()
}

func registeredNames() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
