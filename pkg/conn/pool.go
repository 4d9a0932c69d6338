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

package conn

import "sync"

// pool holds at most one idle session per endpoint. It is an owned
// object of the Manager, not module state, so two Managers never share
// sessions. Sessions in the map are idle: take checks one out, and it
// only comes back through put.
type pool struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newPool() *pool {
	return &pool{sessions: make(map[string]*Session)}
}

// take checks the endpoint's idle session out of the pool. The caller
// owns it exclusively until it is put back or discarded.
func (p *pool) take(endpointID string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	session := p.sessions[endpointID]
	delete(p.sessions, endpointID)

	return session
}

// put parks an idle session. If another session for the same endpoint
// was already parked, it is returned so the caller can close it.
func (p *pool) put(session *Session) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := session.Endpoint.ID()

	displaced := p.sessions[id]
	if displaced == session {
		displaced = nil
	}

	p.sessions[id] = session

	return displaced
}

// evict drops the session from the pool if it happens to be parked
// there. A checked-out session is simply not found, and an unrelated
// idle session for the same endpoint stays put.
func (p *pool) evict(session *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := session.Endpoint.ID()
	if p.sessions[id] == session {
		delete(p.sessions, id)
	}
}

func (p *pool) drain() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}

	p.sessions = make(map[string]*Session)

	return out
}
