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

package authz

import (
	"github.com/averho/broker/token"
)

// ResourceAccessRequest is an authorization decision for one resource. It
// is created per request with the role the resource requires and decides
// based on a verified access token.
type ResourceAccessRequest struct {
	RequiredRole Role

	mapper *RoleMapper
}

// NewResourceAccessRequest creates a new ResourceAccessRequest requiring
// the provided role. A nil mapper selects the default role to group
// mapping.
func NewResourceAccessRequest(required Role, mapper *RoleMapper) *ResourceAccessRequest {
	if mapper == nil {
		mapper = NewRoleMapper(nil)
	}

	return &ResourceAccessRequest{
		RequiredRole: required,
		mapper:       mapper,
	}
}

// Decide returns the effective role of the provided verified token when it
// satisfies the required role, and an InsufficientRoleError otherwise.
//
// A role claim, when present, is authoritative and group memberships are
// not consulted at all. Without one the effective role is derived from the
// groups.
func (r *ResourceAccessRequest) Decide(at *token.AccessToken) (Role, error) {
	var effective Role

	if at.Role != "" {
		role, ok := RoleFromString(at.Role)
		if !ok {
			return 0, &InsufficientRoleError{Required: r.RequiredRole, Effective: RoleGuestUser}
		}
		effective = role
	} else {
		effective = r.mapper.RoleForGroups(at.Groups)
	}

	if !effective.Implies(r.RequiredRole) {
		return 0, &InsufficientRoleError{Required: r.RequiredRole, Effective: effective}
	}

	return effective, nil
}
