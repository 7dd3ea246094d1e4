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

package rp

import (
	"errors"
	"fmt"
	"net/url"

	jose "gopkg.in/square/go-jose.v2"
)

// RegistryData is the base structure of the relying party registration
// configuration file. The file is YAML, decoded through a JSON round trip
// so that the embedded key set uses the JWK unmarshalers.
type RegistryData struct {
	RelyingParties []*Registration `json:"relying_parties"`
}

// Registration defines a relying party with its properties.
type Registration struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// RawACSURL is the assertion consumer endpoint tokens are posted to
	// after logon, RawSLOURL the endpoint logout requests and responses
	// are sent to.
	RawACSURL string `json:"acs_url"`
	RawSLOURL string `json:"slo_url"`

	Trusted  bool `json:"trusted"`
	Insecure bool `json:"insecure"`

	// JWKS holds the registered public keys of the relying party, used to
	// verify holder-of-key request signatures of its clients.
	JWKS *jose.JSONWebKeySet `json:"jwks"`

	acsURL *url.URL
	sloURL *url.URL
}

// Validate validates the associated registration data and returns an error
// when the data is not usable.
func (reg *Registration) Validate() error {
	if reg.RawACSURL == "" {
		return errors.New("acs_url is empty")
	}

	u, err := url.Parse(reg.RawACSURL)
	if err != nil {
		return fmt.Errorf("invalid acs_url value: %v", err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid acs_url %v - invalid or no hostname", reg.RawACSURL)
	}
	if u.Scheme != "https" && !reg.Insecure {
		return fmt.Errorf("invalid acs_url %v - make sure to use https", u)
	}
	reg.acsURL = u

	if reg.RawSLOURL != "" {
		u, err := url.Parse(reg.RawSLOURL)
		if err != nil {
			return fmt.Errorf("invalid slo_url value: %v", err)
		}
		reg.sloURL = u
	}

	return nil
}

// ACSURL returns the assertion consumer endpoint of the relying party.
func (reg *Registration) ACSURL() *url.URL {
	return reg.acsURL
}

// SLOURL returns the single logout endpoint of the relying party, nil when
// the relying party does not take part in logout propagation.
func (reg *Registration) SLOURL() *url.URL {
	return reg.sloURL
}
