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

import (
	"context"
)

// key is an unexported type for keys defined in this package.
// This prevents collisions with keys defined in other packages.
type key int

var requestIdentityKey key

// RequestIdentity carries the verified identity attached to a request
// context after successful token verification.
type RequestIdentity struct {
	Subject string
	Tenant  string
	Role    string
	Groups  []string
}

// NewRequestIdentityContext returns a new Context that carries the provided
// request identity.
func NewRequestIdentityContext(ctx context.Context, identity *RequestIdentity) context.Context {
	return context.WithValue(ctx, requestIdentityKey, identity)
}

// FromRequestIdentityContext returns the RequestIdentity value stored in
// ctx, if any.
func FromRequestIdentityContext(ctx context.Context) (*RequestIdentity, bool) {
	identity, ok := ctx.Value(requestIdentityKey).(*RequestIdentity)
	return identity, ok
}
