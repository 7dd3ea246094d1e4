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
	"errors"
)

// Client facing error ids.
const (
	ErrorIDInsufficientTrust = "insufficient_trust"
	ErrorIDInternalError     = "internal_error"
)

// Store level errors.
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalExists   = errors.New("principal already exists")
	ErrKeyNotFound       = errors.New("key not found")
)

// InsufficientTrustError is returned when a validated external identity
// cannot be accepted because no local principal exists and just-in-time
// provisioning is not enabled for the issuing identity provider.
type InsufficientTrustError struct {
	ErrorDescription string
}

// Error implements the error interface.
func (err *InsufficientTrustError) Error() string {
	return ErrorIDInsufficientTrust
}

// Description implements the utils.ErrorWithDescription interface.
func (err *InsufficientTrustError) Description() string {
	return err.ErrorDescription
}

// InternalError is returned when an infrastructure operation failed in a
// way the client cannot remedy. The wrapped error is for logs only and
// never surfaces to clients.
type InternalError struct {
	Err              error
	ErrorDescription string
}

// Error implements the error interface.
func (err *InternalError) Error() string {
	return ErrorIDInternalError
}

// Description implements the utils.ErrorWithDescription interface.
func (err *InternalError) Description() string {
	return err.ErrorDescription
}

// Unwrap returns the wrapped cause.
func (err *InternalError) Unwrap() error {
	return err.Err
}

// IsInsufficientTrust returns true if the provided error is an
// InsufficientTrustError.
func IsInsufficientTrust(err error) bool {
	_, ok := err.(*InsufficientTrustError)
	return ok
}

// IsInternalError returns true if the provided error is an InternalError.
func IsInternalError(err error) bool {
	_, ok := err.(*InternalError)
	return ok
}
