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

// Package sso implements the broker's federated logon and single logout
// flows between relying parties and external SAML identity providers.
package sso

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/prometheus/client_golang/prometheus"
	saml2 "github.com/russellhaering/gosaml2"
	"github.com/sirupsen/logrus"

	"github.com/averho/broker/authorities"
	"github.com/averho/broker/config"
	"github.com/averho/broker/encryption"
	"github.com/averho/broker/idm"
	"github.com/averho/broker/rp"
	"github.com/averho/broker/session"
	"github.com/averho/broker/token"
)

// Provider bundles the state of the single sign-on endpoints.
type Provider struct {
	logger logrus.FieldLogger

	entityID string
	acsURL   string

	sessions       *session.Manager
	principals     idm.PrincipalStore
	authorities    *authorities.Registry
	relyingParties *rp.Registry
	issuer         *token.Issuer

	encryptionKey *[encryption.KeySize]byte
	httpClient    *http.Client

	replay  *replayCache
	metrics *metrics

	// flows tracks the logout state machine of each session with an
	// outstanding single logout round-trip.
	flows cmap.ConcurrentMap

	mutex            sync.RWMutex
	serviceProviders map[string]*saml2.SAMLServiceProvider

	insecure bool
}

// Config carries the settings to create a sso Provider.
type Config struct {
	Config *config.Config

	// EntityID is the broker's own SAML entity id and token issuer
	// identifier.
	EntityID string

	// BaseURI is the external base address of the broker, used to derive
	// the assertion consumer and logout endpoints announced to identity
	// providers.
	BaseURI *url.URL

	Sessions       *session.Manager
	Principals     idm.PrincipalStore
	Authorities    *authorities.Registry
	RelyingParties *rp.Registry
	Issuer         *token.Issuer

	// EncryptionKey protects the relay state the broker round-trips
	// through external identity providers.
	EncryptionKey *[encryption.KeySize]byte

	// Insecure disables signature validation of incoming assertions. For
	// development setups only.
	Insecure bool
}

// NewProvider creates a new Provider with the provided config and binds
// its background tasks to the provided context.
func NewProvider(ctx context.Context, c *Config) (*Provider, error) {
	if c.EntityID == "" {
		return nil, errors.New("sso provider requires an entity id")
	}
	if c.BaseURI == nil {
		return nil, errors.New("sso provider requires a base uri")
	}
	if c.EncryptionKey == nil {
		return nil, errors.New("sso provider requires an encryption key")
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}
	if c.Config.HTTPTransport != nil {
		httpClient.Transport = c.Config.HTTPTransport
	}

	p := &Provider{
		logger: c.Config.Logger,

		entityID: c.EntityID,
		acsURL:   c.BaseURI.String() + "/sso/acs",

		sessions:       c.Sessions,
		principals:     c.Principals,
		authorities:    c.Authorities,
		relyingParties: c.RelyingParties,
		issuer:         c.Issuer,

		encryptionKey: c.EncryptionKey,
		httpClient:    httpClient,

		replay: newReplayCache(ctx),
		flows:  cmap.New(),

		serviceProviders: make(map[string]*saml2.SAMLServiceProvider),

		insecure: c.Insecure,
	}
	p.metrics = newMetrics(p.sessions.Count)

	return p, nil
}

// RegisterMetrics registers the provider's metrics with the provided
// registerer.
func (p *Provider) RegisterMetrics(reg prometheus.Registerer) {
	p.metrics.MustRegister(reg)
}

// serviceProvider returns the service provider bound to the provided
// authority, creating and caching it on first use.
func (p *Provider) serviceProvider(authority *authorities.AuthorityRegistration) *saml2.SAMLServiceProvider {
	p.mutex.RLock()
	sp, ok := p.serviceProviders[authority.ID]
	p.mutex.RUnlock()
	if ok {
		return sp
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	if sp, ok = p.serviceProviders[authority.ID]; ok {
		return sp
	}

	sp = authority.ServiceProvider(p.entityID, p.acsURL, p.entityID, p.insecure)
	p.serviceProviders[authority.ID] = sp

	return sp
}

// relayState is the state the broker round-trips through external identity
// providers, encrypted and base64 encoded on the wire.
type relayState struct {
	AuthorityID string `json:"a"`
	RPID        string `json:"r"`
	RelayState  string `json:"s,omitempty"`

	IssuedAt int64 `json:"iat"`
}

const relayStateValidity = 10 * time.Minute

func (p *Provider) encodeRelayState(state *relayState) (string, error) {
	state.IssuedAt = time.Now().Unix()
	raw, err := json.Marshal(state)
	if err != nil {
		return "", err
	}

	encrypted, err := encryption.Encrypt(raw, p.encryptionKey)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(encrypted), nil
}

func (p *Provider) decodeRelayState(value string) (*relayState, error) {
	encrypted, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, errors.New("invalid relay state encoding")
	}

	raw, err := encryption.Decrypt(encrypted, p.encryptionKey)
	if err != nil {
		return nil, errors.New("relay state decryption failed")
	}

	state := &relayState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, errors.New("invalid relay state data")
	}
	if time.Since(time.Unix(state.IssuedAt, 0)) > relayStateValidity {
		return nil, errors.New("relay state expired")
	}

	return state, nil
}
