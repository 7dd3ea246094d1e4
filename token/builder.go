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
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// unverifiedParser decodes token claims without checking the signature.
// The signature check is a dedicated step of the verification pipeline.
var unverifiedParser = &jwt.Parser{}

// ParseUnverified decodes the provided raw JWT into its claims without
// verifying the signature. The returned AccessToken must not be trusted
// before it passed a Verifier.
func ParseUnverified(raw string, expected Type) (*AccessToken, *Claims, error) {
	claims := &Claims{}
	_, _, err := unverifiedParser.ParseUnverified(raw, claims)
	if err != nil {
		return nil, nil, NewInvalidTokenError(ReasonMalformed, "failed to parse token")
	}

	at := &AccessToken{
		Type:      expected,
		ID:        claims.Id,
		Issuer:    claims.Issuer,
		Audience:  claims.Audience,
		Role:      claims.Role,
		Groups:    claims.Groups,
		SessionID: claims.SessionID,
		Raw:       raw,
	}
	// Absent timestamps stay zero so that verification can treat them as
	// missing rather than as the epoch.
	if claims.IssuedAt != 0 {
		at.IssuedAt = time.Unix(claims.IssuedAt, 0)
	}
	if claims.ExpiresAt != 0 {
		at.ExpiresAt = time.Unix(claims.ExpiresAt, 0)
	}
	at.Subject, at.Domain = SplitSubject(claims.Subject)
	if claims.Tenant != "" {
		at.Domain = claims.Tenant
	}

	return at, claims, nil
}

// SplitSubject splits a subject of the form "name@domain" into its name
// and domain parts. A subject without a domain yields an empty domain.
func SplitSubject(subject string) (string, string) {
	idx := strings.LastIndex(subject, "@")
	if idx < 0 {
		return subject, ""
	}

	return subject[:idx], subject[idx+1:]
}
