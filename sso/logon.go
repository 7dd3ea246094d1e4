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
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/go-querystring/query"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/averho/broker"
	"github.com/averho/broker/idm"
	"github.com/averho/broker/rp"
	"github.com/averho/broker/session"
	"github.com/averho/broker/sso/payload"
	"github.com/averho/broker/token"
	"github.com/averho/broker/utils"
)

// AuthnMethodSAML2 is the authentication method recorded on sessions which
// originated from a federated SAML logon.
const AuthnMethodSAML2 = "saml2"

// LogonHandler starts a federated logon. The relying party redirects the
// browser here, the broker forwards it to the external identity provider
// with the relay state protected for the round-trip.
func (p *Provider) LogonHandler(rw http.ResponseWriter, req *http.Request) {
	registration, ok := p.relyingParties.Get(req.Context(), req.FormValue("rp"))
	if !ok {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "unknown relying party")
		return
	}

	authority := p.authorities.Default(req.Context())
	if authorityID := req.FormValue("authority"); authorityID != "" {
		authority, ok = p.authorities.Get(req.Context(), authorityID)
		if !ok {
			utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "unknown authority")
			return
		}
	}
	if authority == nil {
		utils.WriteErrorPage(rw, http.StatusServiceUnavailable, "no_authority", "no external authority is configured")
		return
	}

	state, err := p.encodeRelayState(&relayState{
		AuthorityID: authority.ID,
		RPID:        registration.ID,
		RelayState:  req.FormValue("RelayState"),
	})
	if err != nil {
		p.logger.WithError(err).Errorln("failed to encode relay state")
		utils.WriteErrorPage(rw, http.StatusInternalServerError, "internal_error", "")
		return
	}

	sp := p.serviceProvider(authority)
	authURL, err := sp.BuildAuthURL(state)
	if err != nil {
		p.logger.WithError(err).Errorln("failed to build authentication request")
		utils.WriteErrorPage(rw, http.StatusInternalServerError, "internal_error", "")
		return
	}

	rw.Header().Set("Cache-Control", "no-store")
	http.Redirect(rw, req, authURL, http.StatusFound)
}

// ACSHandler implements the broker's assertion consumer endpoint. It
// verifies the external identity provider's response, provisions the
// subject when required, establishes the session and hands a freshly
// minted token to the relying party through an auto-submitting form.
func (p *Provider) ACSHandler(rw http.ResponseWriter, req *http.Request) {
	var state *relayState
	var registration *rp.Registration
	var at *token.AccessToken
	var principal *idm.Principal
	var s *session.Session
	var accessToken string
	var err error

	logger := p.logger.WithField("correlation", uuid.NewV4().String())

	if err = req.ParseForm(); err != nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "failed to parse form")
		return
	}

	state, err = p.decodeRelayState(req.PostFormValue("RelayState"))
	if err != nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	registration, _ = p.relyingParties.Get(req.Context(), state.RPID)
	if registration == nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "unknown relying party")
		return
	}

	authority, ok := p.authorities.Get(req.Context(), state.AuthorityID)
	if !ok {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "unknown authority")
		return
	}

	verifier := token.NewSAMLVerifier(&token.SAMLVerifierConfig{
		Logger:          logger,
		Provider:        p.serviceProvider(authority),
		GroupsAttribute: authority.GroupsAttribute,
		RoleAttribute:   authority.RoleAttribute,
	})

	at, err = verifier.Verify(req.Context(), req, &token.Info{
		Style: token.StyleBody,
		Type:  token.TypeSAML,
		Raw:   req.PostFormValue("SAMLResponse"),
	})
	if err != nil {
		goto done
	}

	if !p.replay.consume(at.ID) {
		err = token.NewInvalidTokenError(token.ReasonMalformed, "assertion already consumed")
		goto done
	}

	principal, err = p.logon(req, authority.JITEnabled, at)
	if err != nil {
		goto done
	}

	s, err = p.sessions.Create(principal, AuthnMethodSAML2, authority.EntityID, at.ExternalSessionID)
	if err != nil {
		goto done
	}
	p.sessions.EnsureParticipant(s, registration.ACSURL().String())

	accessToken, err = p.issuer.Issue(&token.Claims{
		StandardClaims: jwt.StandardClaims{
			Subject: principal.ID(),
		},
		Audience:    token.Audience{registration.ID},
		TokenClass:  broker.TokenClassBearer,
		Tenant:      principal.Domain,
		Role:        principal.Role,
		Groups:      principal.Groups,
		AuthnMethod: AuthnMethodSAML2,
		SessionID:   s.ID(),
	})
	if err != nil {
		goto done
	}

done:
	p.logonResponse(rw, req, logger, registration, state, accessToken, err)
}

// logon resolves the validated external identity to a local principal,
// provisioning and group syncing it when the authority has just-in-time
// provisioning enabled.
func (p *Provider) logon(req *http.Request, jitEnabled bool, at *token.AccessToken) (*idm.Principal, error) {
	ctx := req.Context()

	principal, err := p.principals.Resolve(ctx, at.Subject, at.Domain)
	switch err {
	case nil:
		// breaks
	case idm.ErrPrincipalNotFound:
		if !jitEnabled {
			return nil, &idm.InsufficientTrustError{
				ErrorDescription: "subject is not known and provisioning is not enabled for this authority",
			}
		}

		principal = &idm.Principal{
			Name:     at.Subject,
			Domain:   at.Domain,
			Role:     at.Role,
			External: true,
		}
		if err = p.principals.Provision(ctx, principal); err != nil && err != idm.ErrPrincipalExists {
			return nil, &idm.InternalError{Err: err, ErrorDescription: "failed to provision principal"}
		}
	default:
		return nil, &idm.InternalError{Err: err, ErrorDescription: "failed to resolve principal"}
	}

	if jitEnabled {
		// Group sync failure is fatal. Issuing a token on a stale group
		// set would grant a wrong authorization set.
		if err = p.principals.SyncGroups(ctx, principal, at.Groups); err != nil {
			return nil, &idm.InternalError{Err: err, ErrorDescription: "failed to sync groups"}
		}
	}

	return principal, nil
}

// logonResponse completes the logon flow towards the relying party, either
// with the auto-submitting token form or with an explicit error. The
// browser is mid-redirect here, a silent drop is never acceptable.
func (p *Provider) logonResponse(rw http.ResponseWriter, req *http.Request, logger logrus.FieldLogger, registration *rp.Registration, state *relayState, accessToken string, err error) {
	if err != nil {
		p.metrics.logons.WithLabelValues("failed").Inc()
		logger.WithError(err).WithField("rp", registration.ID).Debugln("federated logon failed")

		status := http.StatusForbidden
		if idm.IsInternalError(err) {
			status = http.StatusInternalServerError
		}
		utils.WriteErrorPage(rw, status, err.Error(), utils.DescribeError(err).Error())
		return
	}

	p.metrics.logons.WithLabelValues("success").Inc()
	logger.WithField("rp", registration.ID).Debugln("federated logon succeeded")

	values, _ := query.Values(&payload.LogonResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		RelayState:  state.RelayState,
	})
	fields := make(map[string]string, len(values))
	for name := range values {
		fields[name] = values.Get(name)
	}

	if writeErr := writeAutoSubmitForm(rw, registration.ACSURL().String(), fields); writeErr != nil {
		p.logger.WithError(writeErr).Errorln("failed to write logon response")
	}
}
