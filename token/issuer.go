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
	"crypto/rsa"
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
	uuid "github.com/satori/go.uuid"
	jose "gopkg.in/square/go-jose.v2"
)

// DefaultTokenValidity is the lifetime of issued tokens when the issuer
// configuration does not set one.
const DefaultTokenValidity = 10 * time.Minute

// IssuerConfig carries the settings of an Issuer.
type IssuerConfig struct {
	// Issuer is the value of the iss claim of all issued tokens.
	Issuer string

	// SigningKeyID is the kid header value identifying the signing key in
	// the published key set.
	SigningKeyID string

	// SigningKey is the RSA key tokens are signed with.
	SigningKey *rsa.PrivateKey

	// Validity is the lifetime of issued tokens. Zero selects
	// DefaultTokenValidity.
	Validity time.Duration

	// Now returns the current time. Nil selects time.Now.
	Now func() time.Time
}

// Issuer mints the broker's own signed tokens.
type Issuer struct {
	config *IssuerConfig
}

// NewIssuer creates a new Issuer with the provided config.
func NewIssuer(c *IssuerConfig) (*Issuer, error) {
	if c.SigningKey == nil {
		return nil, errors.New("issuer requires a signing key")
	}
	if c.SigningKeyID == "" {
		return nil, errors.New("issuer requires a signing key id")
	}

	return &Issuer{config: c}, nil
}

// Issue signs the provided claims as a RS256 JWT. Issuer, issued-at and
// expiry claims are filled in when not already set by the caller.
func (iss *Issuer) Issue(claims *Claims) (string, error) {
	now := time.Now()
	if iss.config.Now != nil {
		now = iss.config.Now()
	}
	validity := iss.config.Validity
	if validity <= 0 {
		validity = DefaultTokenValidity
	}

	if claims.Issuer == "" {
		claims.Issuer = iss.config.Issuer
	}
	if claims.Id == "" {
		claims.Id = uuid.NewV4().String()
	}
	if claims.IssuedAt == 0 {
		claims.IssuedAt = now.Unix()
	}
	if claims.ExpiresAt == 0 {
		claims.ExpiresAt = now.Add(validity).Unix()
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = iss.config.SigningKeyID

	return t.SignedString(iss.config.SigningKey)
}

// Keyfunc returns a jwt.Keyfunc resolving the issuer's own signing key,
// for verifying tokens the broker issued itself.
func (iss *Issuer) Keyfunc() jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if kid, _ := t.Header["kid"].(string); kid != "" && kid != iss.config.SigningKeyID {
			return nil, errors.New("unknown signing key id")
		}

		return &iss.config.SigningKey.PublicKey, nil
	}
}

// JSONWebKeySet returns the public keys of the issuer for publication at
// the JWKS endpoint.
func (iss *Issuer) JSONWebKeySet() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       &iss.config.SigningKey.PublicKey,
				KeyID:     iss.config.SigningKeyID,
				Algorithm: "RS256",
				Use:       "sig",
			},
		},
	}
}
