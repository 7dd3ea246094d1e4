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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averho/broker/idm"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return NewManager(ctx, &ManagerConfig{
		Logger: logger,
	})
}

func testPrincipal() *idm.Principal {
	return &idm.Principal{Name: "alice", Domain: "example.com"}
}

func TestCreateUniqueIDs(t *testing.T) {
	m := testManager(t)

	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		s, err := m.Create(testPrincipal(), "password", "", "")
		require.NoError(t, err)
		require.False(t, seen[s.ID()], "duplicate session id")
		seen[s.ID()] = true
	}
}

func TestEnsureParticipantIdempotent(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(testPrincipal(), "password", "", "")
	require.NoError(t, err)

	p1 := m.EnsureParticipant(s, "https://rp-a.example.com")
	p2 := m.EnsureParticipant(s, "https://rp-a.example.com")
	assert.Equal(t, p1.ID, p2.ID)
	assert.Len(t, s.Participants(), 1)

	p3 := m.EnsureParticipant(s, "https://rp-b.example.com")
	assert.NotEqual(t, p1.ID, p3.ID)
	assert.Len(t, s.Participants(), 2)
}

func TestParticipantViewsStayInSync(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(testPrincipal(), "password", "", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	urls := []string{
		"https://rp-a.example.com",
		"https://rp-b.example.com",
		"https://rp-c.example.com",
	}
	for i := 0; i < 50; i++ {
		for _, url := range urls {
			wg.Add(1)
			go func(url string) {
				defer wg.Done()
				m.EnsureParticipant(s, url)
			}(url)
		}
	}
	wg.Wait()

	require.Len(t, s.Participants(), len(urls))
	for _, url := range urls {
		byURL, ok := s.GetParticipantByURL(url)
		require.True(t, ok, url)
		byID, ok := s.GetParticipant(byURL.ID)
		require.True(t, ok, url)
		assert.Equal(t, byURL, byID)
	}
}

func TestRemoveParticipantRemovesBothViews(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(testPrincipal(), "password", "", "")
	require.NoError(t, err)

	p := m.EnsureParticipant(s, "https://rp-a.example.com")
	s.RemoveParticipant(p.ID)

	_, ok := s.GetParticipant(p.ID)
	assert.False(t, ok)
	_, ok = s.GetParticipantByURL(p.URL)
	assert.False(t, ok)
}

func TestLookupByParticipantAndLogoutRequest(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(testPrincipal(), "password", "https://idp.example.com", "idp-session-1")
	require.NoError(t, err)

	p := m.EnsureParticipant(s, "https://rp-a.example.com")

	found, ok := m.GetByParticipant(p.ID)
	require.True(t, ok)
	assert.Equal(t, s.ID(), found.ID())

	m.TrackLogoutRequest(s, &LogoutRequestData{
		InitiatorURL:       p.URL,
		InitiatorRequestID: "rp-req-1",
		CurrentRequestID:   "idp-req-1",
	})

	found, ok = m.GetByLogoutRequestID("idp-req-1")
	require.True(t, ok)
	assert.Equal(t, s.ID(), found.ID())

	found, ok = m.GetByExternalIDPSessionID("idp-session-1")
	require.True(t, ok)
	assert.Equal(t, s.ID(), found.ID())
}

func TestRemoveCleansIndexes(t *testing.T) {
	m := testManager(t)
	s, err := m.Create(testPrincipal(), "password", "", "")
	require.NoError(t, err)

	p := m.EnsureParticipant(s, "https://rp-a.example.com")
	m.TrackLogoutRequest(s, &LogoutRequestData{CurrentRequestID: "idp-req-1"})

	m.Remove(s.ID())

	_, ok := m.Get(s.ID())
	assert.False(t, ok)
	_, ok = m.GetByParticipant(p.ID)
	assert.False(t, ok)
	_, ok = m.GetByLogoutRequestID("idp-req-1")
	assert.False(t, ok)
}

func TestGetAllIsolatedSnapshot(t *testing.T) {
	m := testManager(t)
	for i := 0; i < 10; i++ {
		_, err := m.Create(testPrincipal(), "password", "", "")
		require.NoError(t, err)
	}

	snapshot := m.GetAll()
	require.Len(t, snapshot, 10)

	// Mutating the registry while iterating the snapshot is safe.
	for _, s := range snapshot {
		m.Remove(s.ID())
	}
	assert.Equal(t, 0, m.Count())
	assert.Len(t, snapshot, 10)
}

func TestPurgeExpired(t *testing.T) {
	m := testManager(t)

	expired, err := m.Create(testPrincipal(), "password", "", "")
	require.NoError(t, err)
	expired.Extend(time.Now().Add(-time.Minute))

	inLogout, err := m.Create(testPrincipal(), "password", "", "")
	require.NoError(t, err)
	inLogout.Extend(time.Now().Add(-time.Minute))
	m.TrackLogoutRequest(inLogout, &LogoutRequestData{CurrentRequestID: "idp-req-1"})

	active, err := m.Create(testPrincipal(), "password", "", "")
	require.NoError(t, err)

	m.purgeExpired()

	_, ok := m.Get(expired.ID())
	assert.False(t, ok, "expired session is reaped")
	_, ok = m.Get(inLogout.ID())
	assert.True(t, ok, "session with outstanding logout is skipped")
	_, ok = m.Get(active.ID())
	assert.True(t, ok, "active session stays")
}
