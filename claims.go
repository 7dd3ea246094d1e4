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

package broker

// Token claim names used by tokens issued and consumed by this broker. The
// names are part of the wire contract with already-deployed relying parties
// and must not change.
const (
	// TokenClassClaim holds the token class (bearer or hotk-pk).
	TokenClassClaim = "token_class"

	// RoleClaim holds the single authoritative role of the subject. When
	// present it overrides any groups claim.
	RoleClaim = "admin_server_role"

	// GroupsClaim holds the group membership list of the subject.
	GroupsClaim = "groups"

	// ConfirmationKeyClaim holds the JWK the holder-of-key token is bound to.
	ConfirmationKeyClaim = "hotk"

	// AuthnMethodClaim holds the method with which the subject was
	// originally authenticated.
	AuthnMethodClaim = "authn_method"

	// SessionIDClaim holds the broker session identifier a token was
	// issued under.
	SessionIDClaim = "sid"

	// TenantClaim holds the tenant the subject belongs to.
	TenantClaim = "tenant"
)

// Token class values as used in the TokenClassClaim.
const (
	TokenClassBearer      = "bearer"
	TokenClassHolderOfKey = "hotk-pk"
	TokenClassSAML        = "saml"
)
