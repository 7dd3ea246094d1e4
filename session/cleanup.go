/*
 * Copyright 2025 Averho and its licensors
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
 *
 */

package session

import (
	"time"
)

// DefaultCleanupInterval is the interval at which expired sessions are
// reaped.
const DefaultCleanupInterval = 60 * time.Second

// purgeExpired removes all sessions whose expiry has passed. It iterates a
// snapshot and removes per session, never holding a registry-wide lock.
// Sessions with an outstanding logout round-trip are skipped, the logout
// orchestrator owns their removal.
func (m *Manager) purgeExpired() {
	now := time.Now()
	var expired []string
	for entry := range m.table.IterBuffered() {
		s := entry.Val.(*Session)
		if s.LogoutRequestData() != nil {
			continue
		}
		if s.ExpireAt().Before(now) {
			expired = append(expired, entry.Key)
		}
	}

	for _, id := range expired {
		m.Remove(id)
	}

	if len(expired) > 0 {
		m.logger.WithField("count", len(expired)).Debugln("reaped expired sessions")
	}
}
