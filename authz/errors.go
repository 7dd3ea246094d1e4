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
	"fmt"
)

// ErrorIDInsufficientRole is the client facing error id of role denials.
const ErrorIDInsufficientRole = "insufficient_role"

// InsufficientRoleError is returned when a verified subject lacks the role
// required for a resource. It deliberately carries no token details.
type InsufficientRoleError struct {
	Required  Role
	Effective Role
}

// Error implements the error interface.
func (err *InsufficientRoleError) Error() string {
	return ErrorIDInsufficientRole
}

// Description implements the utils.ErrorWithDescription interface.
func (err *InsufficientRoleError) Description() string {
	return fmt.Sprintf("requires role %s, subject has %s", err.Required, err.Effective)
}

// IsInsufficientRole returns true if the provided error is an
// InsufficientRoleError.
func IsInsufficientRole(err error) bool {
	_, ok := err.(*InsufficientRoleError)
	return ok
}
