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

package idm

import (
	"context"
	"crypto"
	"crypto/rsa"
	"time"
)

// Principal is a locally known identity, either created directly or
// provisioned on the fly from a validated external identity.
type Principal struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`

	Groups []string `json:"groups,omitempty"`
	Role   string   `json:"role,omitempty"`

	// External marks principals which were provisioned just-in-time from
	// an external identity provider.
	External bool `json:"external,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ID returns the unique identifier of the principal.
func (p *Principal) ID() string {
	if p.Domain == "" {
		return p.Name
	}

	return p.Name + "@" + p.Domain
}

// PrincipalStore resolves and maintains principals.
type PrincipalStore interface {
	// Resolve looks up the principal with the provided name and domain. An
	// unknown principal yields ErrPrincipalNotFound.
	Resolve(ctx context.Context, name string, domain string) (*Principal, error)

	// Provision creates the provided principal. Provisioning an already
	// existing principal yields ErrPrincipalExists.
	Provision(ctx context.Context, principal *Principal) error

	// SyncGroups replaces the group memberships of the provided principal
	// with the provided set.
	SyncGroups(ctx context.Context, principal *Principal, groups []string) error
}

// Keystore supplies private keys and trusted certificate chains by logical
// name. Implementations treat key material as opaque.
type Keystore interface {
	// PrivateKey returns the private key registered under the provided
	// name.
	PrivateKey(name string) (*rsa.PrivateKey, error)

	// TrustedKeys returns the trusted public keys or certificates
	// registered under the provided name.
	TrustedKeys(name string) ([]crypto.PublicKey, error)
}
