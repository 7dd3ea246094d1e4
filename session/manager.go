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
	"errors"
	"time"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"
	"stash.kopano.io/kgol/rndm"

	"github.com/averho/broker/idm"
)

const (
	sessionIDSize = 32

	// DefaultSessionValidity is the session lifetime applied when the
	// manager configuration does not set one.
	DefaultSessionValidity = 8 * time.Hour
)

// ErrSessionIDCollision is returned when a freshly generated session id is
// already in use. With 32 bytes of randomness this is practically
// unreachable, a collision indicates a broken random source.
var ErrSessionIDCollision = errors.New("session id collision")

// ManagerConfig carries the settings of a session Manager.
type ManagerConfig struct {
	Logger logrus.FieldLogger

	// Validity is the lifetime of created sessions. Zero selects
	// DefaultSessionValidity.
	Validity time.Duration

	// CleanupInterval is the interval of the expiry reaper. Zero selects
	// DefaultCleanupInterval.
	CleanupInterval time.Duration
}

// Manager is the process-wide session registry. Sessions are held in
// concurrent maps so that lookups never take a registry-wide lock. The
// manager's methods are safe to call from multiple Go routines.
type Manager struct {
	logger   logrus.FieldLogger
	validity time.Duration

	table cmap.ConcurrentMap

	// participantIndex maps participant session ids onto session ids,
	// logoutRequestIndex maps outstanding logout request ids onto session
	// ids. Both are maintained by the mutating methods below.
	participantIndex   cmap.ConcurrentMap
	logoutRequestIndex cmap.ConcurrentMap
}

// NewManager creates a new Manager with the provided config and starts its
// expiry reaper bound to the provided context.
func NewManager(ctx context.Context, c *ManagerConfig) *Manager {
	m := &Manager{
		logger:   c.Logger,
		validity: c.Validity,

		table:              cmap.New(),
		participantIndex:   cmap.New(),
		logoutRequestIndex: cmap.New(),
	}
	if m.validity <= 0 {
		m.validity = DefaultSessionValidity
	}

	interval := c.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.purgeExpired()
			case <-ctx.Done():
				return
			}
		}
	}()

	return m
}

// Create creates and registers a new session for the provided principal.
// The external identity provider entity and session ids are set for
// federated logins and empty otherwise.
func (m *Manager) Create(principal *idm.Principal, authnMethod string, externalIDPEntityID string, externalIDPSessionID string) (*Session, error) {
	s := &Session{
		id:          rndm.GenerateRandomString(sessionIDSize),
		principal:   principal,
		authnMethod: authnMethod,
		expireAt:    time.Now().Add(m.validity),

		usingExternalIDP:     externalIDPEntityID != "",
		externalIDPEntityID:  externalIDPEntityID,
		externalIDPSessionID: externalIDPSessionID,

		participantsByID:  make(map[string]*Participant),
		participantsByURL: make(map[string]*Participant),
	}

	if ok := m.table.SetIfAbsent(s.id, s); !ok {
		return nil, ErrSessionIDCollision
	}

	m.logger.WithFields(logrus.Fields{
		"session":   s.id,
		"principal": principal.ID(),
		"federated": s.usingExternalIDP,
	}).Debugln("created session")

	return s, nil
}

// Get returns the session with the provided id.
func (m *Manager) Get(id string) (*Session, bool) {
	stored, ok := m.table.Get(id)
	if !ok {
		return nil, false
	}

	return stored.(*Session), true
}

// EnsureParticipant adds the provided relying party URL to the session and
// indexes the resulting participant id for reverse lookup.
func (m *Manager) EnsureParticipant(s *Session, url string) *Participant {
	p := s.EnsureParticipant(url)
	m.participantIndex.Set(p.ID, s.id)

	return p
}

// GetByParticipant returns the session which the provided participant
// session id belongs to.
func (m *Manager) GetByParticipant(participantID string) (*Session, bool) {
	stored, ok := m.participantIndex.Get(participantID)
	if !ok {
		return nil, false
	}

	return m.Get(stored.(string))
}

// TrackLogoutRequest attaches the provided logout tracking data to the
// session and indexes its outstanding request id, when it has one, for
// correlation of the asynchronous response.
func (m *Manager) TrackLogoutRequest(s *Session, data *LogoutRequestData) {
	s.SetLogoutRequestData(data)
	if data != nil && data.CurrentRequestID != "" {
		m.logoutRequestIndex.Set(data.CurrentRequestID, s.id)
	}
}

// GetByLogoutRequestID returns the session whose outstanding logout
// request has the provided id.
func (m *Manager) GetByLogoutRequestID(requestID string) (*Session, bool) {
	stored, ok := m.logoutRequestIndex.Get(requestID)
	if !ok {
		return nil, false
	}

	return m.Get(stored.(string))
}

// GetByExternalIDPSessionID returns the session bound to the provided
// external identity provider session id. Used for unsolicited
// IdP-initiated logout where the only correlation is the IdP's own
// session index.
func (m *Manager) GetByExternalIDPSessionID(externalSessionID string) (*Session, bool) {
	for entry := range m.table.IterBuffered() {
		s := entry.Val.(*Session)
		if s.externalIDPSessionID != "" && s.externalIDPSessionID == externalSessionID {
			return s, true
		}
	}

	return nil, false
}

// GetAll returns an isolated snapshot of all current sessions, safe to
// iterate while other Go routines mutate the registry.
func (m *Manager) GetAll() []*Session {
	result := make([]*Session, 0, m.table.Count())
	for entry := range m.table.IterBuffered() {
		result = append(result, entry.Val.(*Session))
	}

	return result
}

// Remove removes the session with the provided id together with all of its
// index entries.
func (m *Manager) Remove(id string) {
	stored, ok := m.table.Pop(id)
	if !ok {
		return
	}
	s := stored.(*Session)

	for _, p := range s.Participants() {
		m.participantIndex.Remove(p.ID)
	}
	if data := s.LogoutRequestData(); data != nil && data.CurrentRequestID != "" {
		m.logoutRequestIndex.Remove(data.CurrentRequestID)
	}

	m.logger.WithField("session", id).Debugln("removed session")
}

// Clear removes all sessions.
func (m *Manager) Clear() {
	for entry := range m.table.IterBuffered() {
		m.Remove(entry.Key)
	}
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	return m.table.Count()
}
