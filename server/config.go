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

package server

import (
	"crypto"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/averho/broker/authz"
	"github.com/averho/broker/config"
	"github.com/averho/broker/session"
	"github.com/averho/broker/sso"
	"github.com/averho/broker/token"
)

// Config defines a Server's configuration settings.
type Config struct {
	Config *config.Config

	// EntityID is the broker's own identifier, expected as audience of
	// tokens presented to the administrative API.
	EntityID string

	Provider *sso.Provider
	Sessions *session.Manager
	Issuer   *token.Issuer

	// AdminRole is the role required for the administrative API.
	AdminRole authz.Role

	// TrustedConfirmationKeys returns the registered relying party client
	// keys holder-of-key tokens presented to the API may be bound to. Nil
	// accepts any confirmation key.
	TrustedConfirmationKeys func() []crypto.PublicKey

	// Registry receives the server's and provider's metrics. Nil creates
	// a fresh registry.
	Registry *prometheus.Registry
}
