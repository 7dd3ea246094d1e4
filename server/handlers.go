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

package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/averho/broker/session"
	"github.com/averho/broker/utils"
)

// HealthCheckHandler implements the HTTP handler for health check requests.
func (s *Server) HealthCheckHandler(rw http.ResponseWriter, req *http.Request) {
	rw.WriteHeader(http.StatusOK)
}

// JWKSHandler publishes the broker's token signing keys.
func (s *Server) JWKSHandler(rw http.ResponseWriter, req *http.Request) {
	err := utils.WriteJSON(rw, http.StatusOK, s.config.Issuer.JSONWebKeySet(), "")
	if err != nil {
		s.logger.WithError(err).Errorln("failed to write jwks response")
	}
}

type sessionEntry struct {
	ID           string                 `json:"id"`
	Principal    string                 `json:"principal"`
	AuthnMethod  string                 `json:"authn_method"`
	ExpireAt     time.Time              `json:"expire_at"`
	Federated    bool                   `json:"federated"`
	Participants []*session.Participant `json:"participants"`
}

// SessionsHandler lists all current sessions. Requires the administrative
// role.
func (s *Server) SessionsHandler(rw http.ResponseWriter, req *http.Request) {
	sessions := s.config.Sessions.GetAll()

	entries := make([]*sessionEntry, 0, len(sessions))
	for _, current := range sessions {
		federated, _, _ := current.UsingExternalIDP()
		entries = append(entries, &sessionEntry{
			ID:           current.ID(),
			Principal:    current.Principal().ID(),
			AuthnMethod:  current.AuthnMethod(),
			ExpireAt:     current.ExpireAt(),
			Federated:    federated,
			Participants: current.Participants(),
		})
	}

	err := utils.WriteJSON(rw, http.StatusOK, map[string]interface{}{
		"sessions": entries,
	}, "")
	if err != nil {
		s.logger.WithError(err).Errorln("failed to write sessions response")
	}
}

// SessionRemoveHandler removes the session with the id from the request
// path. Requires the administrative role.
func (s *Server) SessionRemoveHandler(rw http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	if _, ok := s.config.Sessions.Get(id); !ok {
		http.Error(rw, "no such session", http.StatusNotFound)
		return
	}

	s.config.Sessions.Remove(id)
	rw.WriteHeader(http.StatusNoContent)
}
