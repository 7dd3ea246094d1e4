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

package token

import (
	"encoding/json"

	"github.com/dgrijalva/jwt-go"
	jose "gopkg.in/square/go-jose.v2"
)

// Audience is a JWT aud claim which accepts both the single string and the
// array form on the wire.
type Audience []string

// UnmarshalJSON implements the json.Unmarshaler interface.
func (a *Audience) UnmarshalJSON(data []byte) error {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	switch v := value.(type) {
	case string:
		*a = Audience{v}
	case []interface{}:
		result := make(Audience, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				result = append(result, s)
			}
		}
		*a = result
	}

	return nil
}

// Contains returns true if the provided value is one of the audiences.
func (a Audience) Contains(value string) bool {
	for _, entry := range a {
		if entry == value {
			return true
		}
	}

	return false
}

// Claims is the claim set of tokens issued and consumed by this broker.
type Claims struct {
	jwt.StandardClaims

	Audience Audience `json:"aud,omitempty"`

	TokenClass      string               `json:"token_class"`
	Tenant          string               `json:"tenant,omitempty"`
	Role            string               `json:"admin_server_role,omitempty"`
	Groups          []string             `json:"groups,omitempty"`
	ConfirmationKey *jose.JSONWebKeySet  `json:"hotk,omitempty"`
	AuthnMethod     string               `json:"authn_method,omitempty"`
	SessionID       string               `json:"sid,omitempty"`
}

// Valid implements the jwt.Claims interface. Validation is intentionally a
// no-op here since the verification pipeline performs all claim checks
// itself with its own skew and audience rules.
func (c *Claims) Valid() error {
	return nil
}
