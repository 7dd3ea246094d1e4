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
	"strings"
)

// Role is a level in the strict role hierarchy. Higher roles imply all
// lower ones.
type Role int

// Known roles, in ascending order of privilege.
const (
	RoleGuestUser Role = iota
	RoleRegularUser
	RoleConfigurationUser
	RoleTrustedUser
	RoleAdministrator
)

// roles lists all known roles in ascending order.
var roles = []Role{
	RoleGuestUser,
	RoleRegularUser,
	RoleConfigurationUser,
	RoleTrustedUser,
	RoleAdministrator,
}

// Implies returns true if the associated role grants at least the
// privileges of the provided role.
func (r Role) Implies(required Role) bool {
	return r >= required
}

// String implements the fmt.Stringer interface, returning the wire name of
// the role as used in the role claim.
func (r Role) String() string {
	switch r {
	case RoleGuestUser:
		return "GuestUser"
	case RoleRegularUser:
		return "RegularUser"
	case RoleConfigurationUser:
		return "ConfigurationUser"
	case RoleTrustedUser:
		return "TrustedUser"
	case RoleAdministrator:
		return "Administrator"
	}

	return "unknown"
}

// RoleFromString maps a wire role name onto its Role. The mapping is case
// insensitive.
func RoleFromString(value string) (Role, bool) {
	for _, r := range roles {
		if strings.EqualFold(r.String(), value) {
			return r, true
		}
	}

	return 0, false
}

// DefaultRoleGroups is the default mapping of roles onto the directory
// group which grants them.
var DefaultRoleGroups = map[Role]string{
	RoleAdministrator:     "Administrators",
	RoleTrustedUser:       "TrustedUsers",
	RoleConfigurationUser: "SystemConfiguration.Administrators",
	RoleRegularUser:       "Users",
	RoleGuestUser:         "Everyone",
}

// RoleMapper derives a subject's effective role from its group
// memberships.
type RoleMapper struct {
	groups map[Role]string
}

// NewRoleMapper creates a new RoleMapper with the provided role to group
// mapping. A nil mapping selects DefaultRoleGroups.
func NewRoleMapper(groups map[Role]string) *RoleMapper {
	if groups == nil {
		groups = DefaultRoleGroups
	}

	return &RoleMapper{groups: groups}
}

// RoleForGroups walks the role hierarchy from the highest role downwards
// and returns the first role whose mapped group appears in the provided
// membership list. Group comparison is case insensitive and ignores any
// domain prefix of the form "domain\group". Membership in no mapped group
// yields RoleGuestUser.
func (m *RoleMapper) RoleForGroups(groups []string) Role {
	for i := len(roles) - 1; i >= 0; i-- {
		r := roles[i]
		mapped, ok := m.groups[r]
		if !ok {
			continue
		}
		for _, g := range groups {
			if idx := strings.LastIndexAny(g, "\\/"); idx >= 0 {
				g = g[idx+1:]
			}
			if strings.EqualFold(g, mapped) {
				return r
			}
		}
	}

	return RoleGuestUser
}
