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
	"github.com/averho/broker/utils"
)

// Error ids of the client facing verification error classes.
const (
	ErrorIDInvalidToken   = "invalid_token"
	ErrorIDInvalidRequest = "invalid_request"
)

// Reasons of InvalidTokenError.
const (
	ReasonMalformed    = "malformed"
	ReasonBadType      = "bad_type"
	ReasonBadSignature = "bad_signature"
	ReasonBadTimestamp = "bad_timestamp"
	ReasonBadAudience  = "bad_audience"
	ReasonBadSubject   = "bad_subject"
)

// Reasons of InvalidRequestError.
const (
	ReasonMissingSignature   = "missing_signature"
	ReasonMalformedSignature = "malformed_signature"
)

// InvalidTokenError is the error returned when a presented token fails
// verification. The reason records which pipeline step rejected the token.
type InvalidTokenError struct {
	Reason           string `json:"error_reason"`
	ErrorDescription string `json:"error_description"`
}

// Error implements the error interface.
func (err *InvalidTokenError) Error() string {
	return ErrorIDInvalidToken
}

// Description implements the utils.ErrorWithDescription interface.
func (err *InvalidTokenError) Description() string {
	return err.ErrorDescription
}

// NewInvalidTokenError creates a new InvalidTokenError with the provided
// reason and description.
func NewInvalidTokenError(reason string, description string) utils.ErrorWithDescription {
	return &InvalidTokenError{reason, description}
}

// InvalidRequestError is the error returned when the request carrying a
// token is itself unusable, for example when a holder-of-key request lacks
// its proof-of-possession signature. This is a client error distinct from a
// forged or expired token.
type InvalidRequestError struct {
	Reason           string `json:"error_reason"`
	ErrorDescription string `json:"error_description"`
}

// Error implements the error interface.
func (err *InvalidRequestError) Error() string {
	return ErrorIDInvalidRequest
}

// Description implements the utils.ErrorWithDescription interface.
func (err *InvalidRequestError) Description() string {
	return err.ErrorDescription
}

// NewInvalidRequestError creates a new InvalidRequestError with the
// provided reason and description.
func NewInvalidRequestError(reason string, description string) utils.ErrorWithDescription {
	return &InvalidRequestError{reason, description}
}

// IsInvalidTokenWithReason returns true if the provided error is an
// InvalidTokenError with the provided reason.
func IsInvalidTokenWithReason(err error, reason string) bool {
	tokenErr, ok := err.(*InvalidTokenError)
	if !ok {
		return false
	}

	return tokenErr.Reason == reason
}

// IsInvalidRequestWithReason returns true if the provided error is an
// InvalidRequestError with the provided reason.
func IsInvalidRequestWithReason(err error, reason string) bool {
	requestErr, ok := err.(*InvalidRequestError)
	if !ok {
		return false
	}

	return requestErr.Reason == reason
}
