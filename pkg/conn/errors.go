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

import "errors"

var (
	// ErrUnreachable means the TCP reachability probe never succeeded.
	ErrUnreachable = errors.New("terminal unreachable")

	// ErrHandshakeFailed means every protocol variant was rejected.
	ErrHandshakeFailed = errors.New("all protocol variants rejected")

	// ErrVerificationFailed means a handshake succeeded but the no-op
	// verification command did not.
	ErrVerificationFailed = errors.New("session verification failed")
)
