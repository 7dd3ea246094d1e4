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
	"sync"
	"time"

	"stash.kopano.io/kgol/rndm"

	"github.com/averho/broker/idm"
)

// participantIDSize is the length of generated participant session ids.
const participantIDSize = 24

// Participant is one relying party taking part in a session. Participants
// are immutable once created.
type Participant struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// LogoutRequestData tracks one outstanding single logout round-trip. It is
// attached to a session while logout propagation is in flight and removed
// when the session terminates.
type LogoutRequestData struct {
	// InitiatorURL and InitiatorRequestID identify the relying party which
	// started the logout and the request id its response must correlate to.
	InitiatorURL       string
	InitiatorRequestID string

	// InitiatorRelayState is echoed back to the initiator with the logout
	// response.
	InitiatorRelayState string

	// CurrentRequestID is the id of the logout request currently awaiting
	// a response from the external identity provider, when there is one.
	CurrentRequestID string

	CorrelationID string

	StartedAt time.Time
}

// Session is one authenticated browser session at the broker. All methods
// are safe to call from multiple Go routines.
type Session struct {
	mutex sync.RWMutex

	id          string
	principal   *idm.Principal
	authnMethod string
	expireAt    time.Time

	usingExternalIDP     bool
	externalIDPEntityID  string
	externalIDPSessionID string

	participantsByID  map[string]*Participant
	participantsByURL map[string]*Participant

	logoutRequestData *LogoutRequestData
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Principal returns the principal the session belongs to.
func (s *Session) Principal() *idm.Principal {
	return s.principal
}

// AuthnMethod returns the method the session was authenticated with.
func (s *Session) AuthnMethod() string {
	return s.authnMethod
}

// ExpireAt returns the time the session expires.
func (s *Session) ExpireAt() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.expireAt
}

// Extend moves the session expiry to the provided time.
func (s *Session) Extend(expireAt time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.expireAt = expireAt
}

// UsingExternalIDP returns true when the session originated from a
// federated login, together with the external identity provider's entity
// id and its session id.
func (s *Session) UsingExternalIDP() (bool, string, string) {
	return s.usingExternalIDP, s.externalIDPEntityID, s.externalIDPSessionID
}

// EnsureParticipant returns the participant for the provided relying party
// URL, creating it when the URL does not take part in the session yet. The
// call is idempotent, repeated calls with the same URL return the same
// participant. The by-id and by-URL views are updated together under the
// session lock so that neither can be observed without the other.
func (s *Session) EnsureParticipant(url string) *Participant {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if p, ok := s.participantsByURL[url]; ok {
		return p
	}

	p := &Participant{
		ID:  rndm.GenerateRandomString(participantIDSize),
		URL: url,
	}
	s.participantsByID[p.ID] = p
	s.participantsByURL[url] = p

	return p
}

// GetParticipant returns the participant with the provided id.
func (s *Session) GetParticipant(id string) (*Participant, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, ok := s.participantsByID[id]
	return p, ok
}

// GetParticipantByURL returns the participant with the provided relying
// party URL.
func (s *Session) GetParticipantByURL(url string) (*Participant, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, ok := s.participantsByURL[url]
	return p, ok
}

// RemoveParticipant removes the participant with the provided id from both
// views atomically.
func (s *Session) RemoveParticipant(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p, ok := s.participantsByID[id]
	if !ok {
		return
	}
	delete(s.participantsByID, id)
	delete(s.participantsByURL, p.URL)
}

// Participants returns a snapshot of all current participants.
func (s *Session) Participants() []*Participant {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]*Participant, 0, len(s.participantsByID))
	for _, p := range s.participantsByID {
		result = append(result, p)
	}

	return result
}

// SetLogoutRequestData attaches the provided logout tracking data to the
// session.
func (s *Session) SetLogoutRequestData(data *LogoutRequestData) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.logoutRequestData = data
}

// LogoutRequestData returns the currently attached logout tracking data,
// nil when no logout round-trip is outstanding.
func (s *Session) LogoutRequestData() *LogoutRequestData {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.logoutRequestData
}
