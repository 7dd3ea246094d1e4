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

	"github.com/averho/broker/signing"
)

// HoKVerifier verifies holder-of-key tokens. On top of the bearer checks
// it requires the request to carry a signature made with the private key
// matching the token's confirmation key, proving possession.
type HoKVerifier struct {
	BearerVerifier
}

// Verify implements the Verifier interface.
func (v *HoKVerifier) Verify(ctx context.Context, req *http.Request, info *Info) (*AccessToken, error) {
	at, err := v.verifyJWT(info)
	if err != nil {
		return nil, err
	}

	// Step 5: proof of possession. A missing signature is a request the
	// client never completed, a mismatching one is treated like any other
	// failed token signature.
	if info.Signature == "" {
		return nil, NewInvalidRequestError(ReasonMissingSignature, "holder-of-key request carries no signature")
	}

	if at.ConfirmationKey == nil {
		return nil, NewInvalidTokenError(ReasonBadType, "holder-of-key token carries no confirmation key")
	}

	if v.config.TrustedConfirmationKeys != nil {
		if !containsKey(v.config.TrustedConfirmationKeys(), at.ConfirmationKey) {
			return nil, NewInvalidTokenError(ReasonBadSignature, "holder-of-key confirmation key is not registered")
		}
	}

	canonical, err := signing.NewCanonicalRequest(req)
	if err != nil {
		return nil, NewInvalidRequestError(ReasonMalformed, "failed to canonicalize request")
	}

	ok, err := signing.Verify(info.Signature, canonical.SigningString(), at.ConfirmationKey)
	if err != nil {
		return nil, NewInvalidRequestError(ReasonMalformedSignature, "holder-of-key request signature is malformed")
	}
	if !ok {
		return nil, NewInvalidTokenError(ReasonBadSignature, "holder-of-key request signature does not verify")
	}

	return at, nil
}

// containsKey reports whether key equals one of the candidates. Key types
// without an Equal method never match.
func containsKey(candidates []crypto.PublicKey, key crypto.PublicKey) bool {
	k, ok := key.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}

	for _, candidate := range candidates {
		if k.Equal(candidate) {
			return true
		}
	}

	return false
}
