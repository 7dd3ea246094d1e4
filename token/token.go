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
	"crypto"
	"strings"
	"time"

	"github.com/averho/broker"
)

// Type is the closed set of security token types understood by the broker.
// Adding a type requires extending every switch dispatching on it.
type Type int

// Supported token types.
const (
	TypeBearer Type = iota
	TypeHolderOfKey
	TypeSAML
)

// String implements the fmt.Stringer interface.
func (t Type) String() string {
	switch t {
	case TypeBearer:
		return broker.TokenClassBearer
	case TypeHolderOfKey:
		return broker.TokenClassHolderOfKey
	case TypeSAML:
		return broker.TokenClassSAML
	}

	return "unknown"
}

// TypeFromString maps a wire token type value to its Type. The mapping is
// case-insensitive and accepts both the claim values and the Authorization
// header scheme names.
func TypeFromString(value string) (Type, bool) {
	switch strings.ToLower(value) {
	case broker.TokenClassBearer:
		return TypeBearer, true
	case broker.TokenClassHolderOfKey, "hotk":
		return TypeHolderOfKey, true
	case broker.TokenClassSAML:
		return TypeSAML, true
	}

	return 0, false
}

// Style describes where in a request token material was found.
type Style int

// Supported token styles.
const (
	StyleHeader Style = iota
	StyleQuery
	StyleBody
)

// String implements the fmt.Stringer interface.
func (s Style) String() string {
	switch s {
	case StyleHeader:
		return "header"
	case StyleQuery:
		return "query"
	case StyleBody:
		return "body"
	}

	return "unknown"
}

// Info holds raw token material as located in a request, before any
// parsing or verification took place.
type Info struct {
	Style Style
	Type  Type

	Raw string

	// Signature holds the accompanying request signature of holder-of-key
	// requests, hex encoded. Empty when the client did not provide one.
	Signature string
}

// AccessToken is the parsed, in-memory form of a security token. Fields
// are populated by the builder for the respective token type; none of them
// are trustworthy before verification.
type AccessToken struct {
	Type Type

	// ID is the unique message id of the token, the jti claim of a JWT or
	// the assertion id of a SAML token. Used for replay detection.
	ID string

	Subject string
	Domain  string

	Issuer   string
	Audience []string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// Role, when set, is the sole arbiter for authorization decisions and
	// Groups must be ignored.
	Role   string
	Groups []string

	// ConfirmationKey is the public key a holder-of-key token is bound to.
	ConfirmationKey crypto.PublicKey

	// SessionID is the broker session identifier carried in the sid claim
	// of locally issued tokens.
	SessionID string

	// ExternalSessionID is the session identifier at the issuing identity
	// provider, when the token carries one (SAML SessionIndex).
	ExternalSessionID string

	Raw string
}
