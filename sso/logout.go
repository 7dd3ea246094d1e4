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
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/google/go-querystring/query"
	saml2 "github.com/russellhaering/gosaml2"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/averho/broker/session"
	"github.com/averho/broker/sso/payload"
	"github.com/averho/broker/utils"
)

// SLOHandler implements the broker's single logout endpoint. It dispatches
// on the message found in the request: a SAMLRequest is an unsolicited
// logout from an external identity provider, a SAMLResponse is the answer
// to a logout request the broker sent upstream, anything else is a logout
// request from one of the broker's own relying parties.
func (p *Provider) SLOHandler(rw http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "failed to parse form")
		return
	}

	switch {
	case req.Form.Get("SAMLRequest") != "":
		p.idpInitiatedLogout(rw, req)
	case req.Form.Get("SAMLResponse") != "":
		p.externalLogoutResponse(rw, req)
	default:
		p.rpLogoutRequest(rw, req)
	}
}

// flowFor returns the logout flow of the provided session, creating it on
// first use.
func (p *Provider) flowFor(sessionID string) *logoutFlow {
	flow := newLogoutFlow(sessionID)
	if ok := p.flows.SetIfAbsent(sessionID, flow); !ok {
		stored, _ := p.flows.Get(sessionID)
		return stored.(*logoutFlow)
	}

	return flow
}

// rpLogoutRequest handles a logout request from a relying party. The
// session is looked up through the participant id, the initiator recorded,
// and the flow either hops to the external identity provider first or
// propagates to the remaining participants directly.
func (p *Provider) rpLogoutRequest(rw http.ResponseWriter, req *http.Request) {
	lr, err := payload.DecodeLogoutRequest(req)
	if err != nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if lr == nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "no logout message")
		return
	}

	if !p.replay.consume("rp-logout:" + lr.RequestID) {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "logout request already consumed")
		return
	}

	s, ok := p.sessions.GetByParticipant(lr.ParticipantID)
	if !ok {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "unknown participant")
		return
	}
	participant, _ := s.GetParticipant(lr.ParticipantID)

	flow := p.flowFor(s.ID())
	if err := flow.advance(LogoutStateRequestReceived); err != nil {
		utils.WriteErrorPage(rw, http.StatusConflict, "invalid_request", "logout already in progress")
		return
	}

	data := &session.LogoutRequestData{
		InitiatorURL:        participant.URL,
		InitiatorRequestID:  lr.RequestID,
		InitiatorRelayState: lr.RelayState,
		CorrelationID:       uuid.NewV4().String(),
		StartedAt:           time.Now(),
	}

	logger := p.logger.WithFields(logrus.Fields{
		"session":     s.ID(),
		"correlation": data.CorrelationID,
	})

	usingExternalIDP, entityID, externalSessionID := s.UsingExternalIDP()
	if usingExternalIDP {
		authority, ok := p.authorities.GetByEntityID(req.Context(), entityID)
		if ok && authority.SLOEndpoint() != nil {
			sp := p.serviceProvider(authority)
			doc, err := sp.BuildLogoutRequestDocument(s.Principal().ID(), externalSessionID)
			if err != nil {
				logger.WithError(err).Errorln("failed to build logout request for external authority")
				p.failLogout(rw, req, s, flow, data)
				return
			}

			data.CurrentRequestID = doc.Root().SelectAttrValue("ID", "")
			p.sessions.TrackLogoutRequest(s, data)
			if err := flow.advance(LogoutStateAwaitingExternalResponse); err != nil {
				logger.WithError(err).Errorln("logout state error")
				p.failLogout(rw, req, s, flow, data)
				return
			}

			redirect, err := sp.BuildLogoutURLRedirect("", doc)
			if err != nil {
				logger.WithError(err).Errorln("failed to build logout redirect for external authority")
				p.failLogout(rw, req, s, flow, data)
				return
			}

			logger.Debugln("forwarding logout to external authority")
			rw.Header().Set("Cache-Control", "no-store")
			http.Redirect(rw, req, redirect, http.StatusFound)
			return
		}
	}

	p.sessions.TrackLogoutRequest(s, data)
	p.completeLogout(rw, req, s, flow, data)
}

// externalLogoutResponse handles the asynchronous answer of an external
// identity provider to a logout request the broker sent. Correlation uses
// the InResponseTo attribute, then the message is validated against the
// issuing authority before the flow continues towards the initiator.
func (p *Provider) externalLogoutResponse(rw http.ResponseWriter, req *http.Request) {
	encoded := req.Form.Get("SAMLResponse")

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "invalid logout response encoding")
		return
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil || doc.Root() == nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "invalid logout response document")
		return
	}

	inResponseTo := doc.Root().SelectAttrValue("InResponseTo", "")
	s, ok := p.sessions.GetByLogoutRequestID(inResponseTo)
	if !ok {
		// Nothing outstanding with that id. Either a very late answer for
		// a session which is gone already or junk, both get logged and
		// dropped.
		p.logger.WithField("in_response_to", inResponseTo).Debugln("ignoring uncorrelated logout response")
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "no matching logout request")
		return
	}

	data := s.LogoutRequestData()
	flow := p.flowFor(s.ID())

	_, entityID, _ := s.UsingExternalIDP()
	authority, ok := p.authorities.GetByEntityID(req.Context(), entityID)
	if !ok {
		p.failLogout(rw, req, s, flow, data)
		return
	}

	sp := p.serviceProvider(authority)
	response, err := sp.ValidateEncodedLogoutResponsePOST(encoded)
	if err != nil {
		p.logger.WithError(err).Debugln("logout response validation failed")
		p.failLogout(rw, req, s, flow, data)
		return
	}

	success := response.Status != nil && response.Status.StatusCode != nil &&
		response.Status.StatusCode.Value == saml2.StatusCodeSuccess
	if !success {
		p.failLogout(rw, req, s, flow, data)
		return
	}

	p.completeLogout(rw, req, s, flow, data)
}

// idpInitiatedLogout handles an unsolicited logout request from an
// external identity provider. An unknown session is logged and ignored,
// from this broker's perspective that session is gone already. Beyond the
// transport-level acknowledgment no response is expected upstream.
func (p *Provider) idpInitiatedLogout(rw http.ResponseWriter, req *http.Request) {
	encoded := req.Form.Get("SAMLRequest")

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "invalid logout request encoding")
		return
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil || doc.Root() == nil {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "invalid logout request document")
		return
	}

	var issuer, sessionIndex string
	for _, el := range doc.Root().ChildElements() {
		switch el.Tag {
		case "Issuer":
			issuer = el.Text()
		case "SessionIndex":
			sessionIndex = el.Text()
		}
	}

	authority, ok := p.authorities.GetByEntityID(req.Context(), issuer)
	if !ok {
		p.logger.WithField("issuer", issuer).Debugln("ignoring logout request from unknown authority")
		utils.WriteErrorPage(rw, http.StatusForbidden, "invalid_request", "unknown issuer")
		return
	}

	sp := p.serviceProvider(authority)
	request, err := sp.ValidateEncodedLogoutRequestPOST(encoded)
	if err != nil {
		p.logger.WithError(err).Debugln("logout request validation failed")
		utils.WriteErrorPage(rw, http.StatusForbidden, "invalid_request", "logout request validation failed")
		return
	}

	if !p.replay.consume("idp-logout:" + request.ID) {
		utils.WriteErrorPage(rw, http.StatusBadRequest, "invalid_request", "logout request already consumed")
		return
	}

	s, ok := p.sessions.GetByExternalIDPSessionID(sessionIndex)
	if !ok {
		// The session is already gone from this server's perspective,
		// which is not an error.
		p.logger.WithFields(logrus.Fields{
			"issuer":        issuer,
			"session_index": sessionIndex,
		}).Infoln("ignoring unsolicited logout for unknown session")
		rw.WriteHeader(http.StatusOK)
		return
	}

	p.metrics.logouts.WithLabelValues("idp", "success").Inc()
	p.propagateLogout(s, "")
	p.sessions.Remove(s.ID())
	p.flows.Remove(s.ID())

	rw.WriteHeader(http.StatusOK)
}

// propagateLogout sends a logout request to every participant of the
// session except the one with the provided URL. Dispatch is fire and
// forget, responses of the participants are neither awaited nor required
// for the flow to proceed.
func (p *Provider) propagateLogout(s *session.Session, excludeURL string) {
	for _, participant := range s.Participants() {
		if participant.URL == excludeURL {
			continue
		}

		registration, ok := p.relyingParties.GetByACSURL(context.Background(), participant.URL)
		if !ok || registration.SLOURL() == nil {
			continue
		}

		values, err := query.Values(&payload.LogoutRequest{
			RequestID:     uuid.NewV4().String(),
			ParticipantID: participant.ID,
		})
		if err != nil {
			continue
		}

		target := registration.SLOURL().String()
		logger := p.logger.WithFields(logrus.Fields{
			"session": s.ID(),
			"target":  target,
		})
		go func() {
			resp, err := p.httpClient.PostForm(target, values)
			if err != nil {
				logger.WithError(err).Warnln("logout propagation failed")
				return
			}
			resp.Body.Close()
			logger.Debugln("propagated logout")
		}()
	}
}

// completeLogout propagates logout to the remaining participants and sends
// the successful logout response to the initiator. The session is removed
// only once the flow reached its terminal state.
func (p *Provider) completeLogout(rw http.ResponseWriter, req *http.Request, s *session.Session, flow *logoutFlow, data *session.LogoutRequestData) {
	if err := flow.advance(LogoutStatePropagating); err != nil {
		p.logger.WithError(err).Errorln("logout state error")
		p.failLogout(rw, req, s, flow, data)
		return
	}
	p.propagateLogout(s, data.InitiatorURL)

	if err := flow.advance(LogoutStateResponding); err != nil {
		p.logger.WithError(err).Errorln("logout state error")
		p.failLogout(rw, req, s, flow, data)
		return
	}

	p.respondToInitiator(rw, req, data, payload.LogoutStatusSuccess)

	flow.advance(LogoutStateDone)
	p.metrics.logouts.WithLabelValues("sp", "success").Inc()
	p.sessions.Remove(s.ID())
	p.flows.Remove(s.ID())
}

// failLogout terminates the flow with an error surfaced to the initiator.
func (p *Provider) failLogout(rw http.ResponseWriter, req *http.Request, s *session.Session, flow *logoutFlow, data *session.LogoutRequestData) {
	flow.advance(LogoutStateFailed)
	p.metrics.logouts.WithLabelValues("sp", "failed").Inc()

	p.respondToInitiator(rw, req, data, payload.LogoutStatusFailed)

	p.sessions.Remove(s.ID())
	p.flows.Remove(s.ID())
}

// respondToInitiator redirects the browser back to the relying party which
// initiated logout, carrying the logout response message.
func (p *Provider) respondToInitiator(rw http.ResponseWriter, req *http.Request, data *session.LogoutRequestData, status string) {
	var target *url.URL
	if registration, ok := p.relyingParties.GetByACSURL(req.Context(), data.InitiatorURL); ok && registration.SLOURL() != nil {
		target = registration.SLOURL()
	} else {
		target, _ = url.Parse(data.InitiatorURL)
	}
	if target == nil {
		utils.WriteErrorPage(rw, http.StatusInternalServerError, "internal_error", "no initiator target")
		return
	}

	err := utils.WriteRedirect(rw, http.StatusFound, target, &payload.LogoutResponse{
		InResponseTo: data.InitiatorRequestID,
		Status:       status,
		RelayState:   data.InitiatorRelayState,
	}, false)
	if err != nil {
		p.logger.WithError(err).Errorln("failed to write logout response redirect")
	}
}
