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

	"github.com/averho/broker"
	"github.com/averho/broker/authz"
	"github.com/averho/broker/token"
	"github.com/averho/broker/utils"
)

// secureHeader is set by a trusted proxy to mark requests which arrived
// over TLS at its front.
const secureHeader = "X-SSL-SECURE"

// withRequiredRole wraps the provided handler with token verification and
// an authorization decision. The handler only runs for requests carrying a
// verified token whose effective role satisfies the required role. The
// verified identity is attached to the request context.
func (s *Server) withRequiredRole(required authz.Role, next http.Handler) http.Handler {
	access := authz.NewResourceAccessRequest(required, nil)

	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		info, err := s.extractor.Extract(req)
		if err != nil {
			s.writeAuthError(rw, http.StatusUnauthorized, err)
			return
		}
		if info == nil {
			rw.Header().Set("WWW-Authenticate", "Bearer")
			s.writeAuthError(rw, http.StatusUnauthorized, token.NewInvalidRequestError(token.ReasonMalformed, "no token in request"))
			return
		}

		verifier, ok := s.verifiers[info.Type]
		if !ok {
			s.writeAuthError(rw, http.StatusUnauthorized, token.NewInvalidTokenError(token.ReasonBadType, "unsupported token type"))
			return
		}
		if info.Type == token.TypeHolderOfKey && !utils.IsRequestSecure(req, secureHeader) {
			s.logger.WithField("remoteAddr", req.RemoteAddr).Warnln("holder-of-key token received over insecure transport")
		}

		at, err := verifier.Verify(req.Context(), req, info)
		if err != nil {
			s.logger.WithError(utils.DescribeError(err)).Debugln("token verification failed")
			s.writeAuthError(rw, http.StatusUnauthorized, err)
			return
		}

		role, err := access.Decide(at)
		if err != nil {
			s.logger.WithError(utils.DescribeError(err)).WithField("subject", at.Subject).Debugln("access denied")
			s.writeAuthError(rw, http.StatusForbidden, err)
			return
		}

		subject := at.Subject
		if at.Domain != "" {
			subject = subject + "@" + at.Domain
		}
		identity := &broker.RequestIdentity{
			Subject: subject,
			Tenant:  at.Domain,
			Role:    role.String(),
			Groups:  at.Groups,
		}

		next.ServeHTTP(rw, req.WithContext(broker.NewRequestIdentityContext(req.Context(), identity)))
	})
}

// withTrustedSource limits the provided handler to requests from the
// configured trusted proxy addresses. Without any configured addresses all
// requests pass.
func (s *Server) withTrustedSource(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ips := s.config.Config.TrustedProxyIPs
		nets := s.config.Config.TrustedProxyNets
		if len(ips) > 0 || len(nets) > 0 {
			trusted, err := utils.IsRequestFromTrustedSource(req, ips, nets)
			if err != nil || !trusted {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(rw, req)
	})
}

func (s *Server) writeAuthError(rw http.ResponseWriter, code int, err error) {
	response := map[string]string{
		"error": err.Error(),
	}
	if described, ok := err.(utils.ErrorWithDescription); ok {
		response["error_description"] = described.Description()
	}

	writeErr := utils.WriteJSON(rw, code, response, "")
	if writeErr != nil {
		s.logger.WithError(writeErr).Errorln("failed to write error response")
	}
}
