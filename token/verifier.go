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
	"context"
	"crypto"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/sirupsen/logrus"
)

// DefaultClockSkew is the tolerance applied to token timestamp checks when
// the verifier configuration does not set one.
const DefaultClockSkew = 60 * time.Second

// Verifier verifies raw token material found in a request and returns the
// contained access token when, and only when, every check passed.
type Verifier interface {
	Verify(ctx context.Context, req *http.Request, info *Info) (*AccessToken, error)
}

// VerifierConfig carries the settings shared by all token verifiers.
type VerifierConfig struct {
	Logger logrus.FieldLogger

	// Audience is the value which must appear in the aud claim of every
	// accepted token.
	Audience string

	// ClockSkew is the tolerance applied to iat and exp checks. Nil
	// selects DefaultClockSkew, a pointer to zero disables the tolerance.
	ClockSkew *time.Duration

	// Keyfunc resolves the public key to check token signatures with,
	// based on the token header (kid) and claims (iss).
	Keyfunc jwt.Keyfunc

	// TrustedConfirmationKeys returns the registered relying party client
	// keys. When set, holder-of-key tokens are only accepted when bound to
	// one of them. Nil accepts any confirmation key.
	TrustedConfirmationKeys func() []crypto.PublicKey

	// Now returns the current time. Nil selects time.Now.
	Now func() time.Time
}

func (c *VerifierConfig) skew() time.Duration {
	if c.ClockSkew == nil {
		return DefaultClockSkew
	}
	return *c.ClockSkew
}

func (c *VerifierConfig) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// NewVerifier creates the verifier for the provided token type. SAML tokens
// need identity provider state and have their own constructor, see
// NewSAMLVerifier.
func NewVerifier(t Type, c *VerifierConfig) Verifier {
	switch t {
	case TypeBearer:
		return &BearerVerifier{config: c, class: TypeBearer}
	case TypeHolderOfKey:
		return &HoKVerifier{BearerVerifier{config: c, class: TypeHolderOfKey}}
	case TypeSAML:
		panic("token: use NewSAMLVerifier for SAML tokens")
	}

	panic("token: no verifier for token type " + t.String())
}

// BearerVerifier verifies bearer tokens. The checks run in a fixed order
// and stop at the first failure: token class, signature, timestamps,
// audience. Holder-of-key verification extends this with the request
// signature check.
type BearerVerifier struct {
	config *VerifierConfig
	class  Type
}

// Verify implements the Verifier interface.
func (v *BearerVerifier) Verify(ctx context.Context, req *http.Request, info *Info) (*AccessToken, error) {
	return v.verifyJWT(info)
}

func (v *BearerVerifier) verifyJWT(info *Info) (*AccessToken, error) {
	at, claims, err := ParseUnverified(info.Raw, info.Type)
	if err != nil {
		return nil, err
	}

	// Step 1: token class. A token whose embedded class does not match the
	// way it was presented is rejected before any cryptography runs.
	tokenClass, ok := TypeFromString(claims.TokenClass)
	if !ok || tokenClass != v.class {
		return nil, NewInvalidTokenError(ReasonBadType, "token class does not match expected token type")
	}

	// Step 2: signature.
	if err := v.checkSignature(info.Raw); err != nil {
		return nil, err
	}

	// Step 3: timestamps, boundary inclusive with skew tolerance.
	if err := v.checkTimestamps(at); err != nil {
		return nil, err
	}

	// Step 4: audience.
	if !claims.Audience.Contains(v.config.Audience) {
		return nil, NewInvalidTokenError(ReasonBadAudience, "token audience does not include this service")
	}

	if claims.ConfirmationKey != nil && len(claims.ConfirmationKey.Keys) > 0 {
		at.ConfirmationKey = claims.ConfirmationKey.Keys[0].Key
	}

	return at, nil
}

func (v *BearerVerifier) checkSignature(raw string) error {
	parser := &jwt.Parser{
		ValidMethods:         []string{"RS256", "RS384", "RS512"},
		SkipClaimsValidation: true,
	}
	_, err := parser.Parse(raw, v.config.Keyfunc)
	if err != nil {
		if v.config.Logger != nil {
			v.config.Logger.WithError(err).Debugln("token signature check failed")
		}
		return NewInvalidTokenError(ReasonBadSignature, "token signature verification failed")
	}

	return nil
}

func (v *BearerVerifier) checkTimestamps(at *AccessToken) error {
	now := v.config.now()
	skew := v.config.skew()

	// A token without both timestamps is invalid, not valid forever.
	if at.IssuedAt.IsZero() || at.ExpiresAt.IsZero() {
		return NewInvalidTokenError(ReasonBadTimestamp, "token is missing iat or exp")
	}

	if now.Before(at.IssuedAt.Add(-skew)) {
		return NewInvalidTokenError(ReasonBadTimestamp, "token is not yet valid")
	}
	if now.After(at.ExpiresAt.Add(skew)) {
		return NewInvalidTokenError(ReasonBadTimestamp, "token has expired")
	}

	return nil
}
