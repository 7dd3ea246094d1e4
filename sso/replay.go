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

package sso

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map"
)

const replayValidDuration = 10 * time.Minute

// replayCache remembers message ids which were already consumed, so that a
// captured assertion or logout message cannot be presented twice.
type replayCache struct {
	table cmap.ConcurrentMap
}

func newReplayCache(ctx context.Context) *replayCache {
	rc := &replayCache{
		table: cmap.New(),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rc.purgeExpired()
			case <-ctx.Done():
				return
			}
		}
	}()

	return rc
}

// consume records the provided message id and returns true when it was not
// seen before.
func (rc *replayCache) consume(id string) bool {
	if id == "" {
		return false
	}

	return rc.table.SetIfAbsent(id, time.Now())
}

func (rc *replayCache) purgeExpired() {
	var expired []string
	deadline := time.Now().Add(-replayValidDuration)
	for entry := range rc.table.IterBuffered() {
		if entry.Val.(time.Time).Before(deadline) {
			expired = append(expired, entry.Key)
		}
	}
	for _, id := range expired {
		rc.table.Remove(id)
	}
}
