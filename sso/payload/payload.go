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

// Package payload defines the wire messages exchanged between the broker
// and its relying parties. The field names are part of the wire contract.
package payload

import (
	"errors"
	"net/http"

	"github.com/gorilla/schema"
)

// decodeSchema is the shared payload URL form decoder.
var decodeSchema = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.SetAliasTag("url")

	return d
}()

// LogonResponse is the message posted to a relying party's assertion
// consumer endpoint after successful logon, carried in an auto-submitting
// HTML form.
type LogonResponse struct {
	AccessToken string `url:"access_token"`
	TokenType   string `url:"token_type"`
	RelayState  string `url:"RelayState,omitempty"`
}

// LogoutRequest is the single logout request message, sent by a relying
// party to start logout and by the broker to propagate logout to the other
// participants of a session.
type LogoutRequest struct {
	RequestID     string `url:"slo_request_id"`
	ParticipantID string `url:"participant_id"`
	RelayState    string `url:"RelayState,omitempty"`
}

// LogoutResponse is the single logout response message, sent by the broker
// to the relying party which initiated logout.
type LogoutResponse struct {
	InResponseTo string `url:"slo_in_response_to"`
	Status       string `url:"slo_status"`
	RelayState   string `url:"RelayState,omitempty"`
}

// Logout status values.
const (
	LogoutStatusSuccess = "success"
	LogoutStatusFailed  = "failed"
)

// DecodeLogoutRequest decodes a LogoutRequest from the provided request's
// form parameters. Requests without a logout request id yield nil.
func DecodeLogoutRequest(req *http.Request) (*LogoutRequest, error) {
	if err := req.ParseForm(); err != nil {
		return nil, err
	}

	lr := &LogoutRequest{}
	if err := decodeSchema.Decode(lr, req.Form); err != nil {
		return nil, err
	}
	if lr.RequestID == "" {
		return nil, nil
	}
	if lr.ParticipantID == "" {
		return nil, errors.New("logout request without participant_id")
	}

	return lr, nil
}
