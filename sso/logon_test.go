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

package sso

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averho/broker/idm"
	"github.com/averho/broker/token"
)

func TestLogonResolvesKnownPrincipal(t *testing.T) {
	tp := newTestProvider(t)

	existing := &idm.Principal{Name: "alice", Domain: "example.com"}
	require.NoError(t, tp.provider.principals.Provision(context.Background(), existing))

	req := httptest.NewRequest(http.MethodPost, "https://broker.example.com/sso/acs", nil)
	principal, err := tp.provider.logon(req, false, &token.AccessToken{
		Subject: "alice",
		Domain:  "example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", principal.ID())
}

func TestLogonJITProvisionsUnknownPrincipal(t *testing.T) {
	tp := newTestProvider(t)

	req := httptest.NewRequest(http.MethodPost, "https://broker.example.com/sso/acs", nil)
	principal, err := tp.provider.logon(req, true, &token.AccessToken{
		Subject: "bob",
		Domain:  "example.com",
		Groups:  []string{"Users"},
	})
	require.NoError(t, err)
	assert.True(t, principal.External)
	assert.Equal(t, []string{"Users"}, principal.Groups)

	// The principal is durable now.
	resolved, err := tp.provider.principals.Resolve(context.Background(), "bob", "example.com")
	require.NoError(t, err)
	assert.True(t, resolved.External)
}

func TestLogonUnknownPrincipalWithoutJIT(t *testing.T) {
	tp := newTestProvider(t)

	req := httptest.NewRequest(http.MethodPost, "https://broker.example.com/sso/acs", nil)
	_, err := tp.provider.logon(req, false, &token.AccessToken{
		Subject: "carol",
		Domain:  "example.com",
	})
	require.Error(t, err)
	assert.True(t, idm.IsInsufficientTrust(err))
}

func TestLogonGroupSyncFailureIsFatal(t *testing.T) {
	tp := newTestProvider(t)
	tp.provider.principals = &failingGroupSyncStore{inner: tp.provider.principals}

	req := httptest.NewRequest(http.MethodPost, "https://broker.example.com/sso/acs", nil)
	_, err := tp.provider.logon(req, true, &token.AccessToken{
		Subject: "dave",
		Domain:  "example.com",
		Groups:  []string{"Users"},
	})
	require.Error(t, err)
	assert.True(t, idm.IsInternalError(err))
}

type failingGroupSyncStore struct {
	inner idm.PrincipalStore
}

func (s *failingGroupSyncStore) Resolve(ctx context.Context, name string, domain string) (*idm.Principal, error) {
	return s.inner.Resolve(ctx, name, domain)
}

func (s *failingGroupSyncStore) Provision(ctx context.Context, principal *idm.Principal) error {
	return s.inner.Provision(ctx, principal)
}

func (s *failingGroupSyncStore) SyncGroups(ctx context.Context, principal *idm.Principal, groups []string) error {
	return errors.New("directory unavailable")
}

func TestRelayStateRoundtrip(t *testing.T) {
	tp := newTestProvider(t)

	encoded, err := tp.provider.encodeRelayState(&relayState{
		AuthorityID: "idp-1",
		RPID:        "rp-a",
		RelayState:  "original",
	})
	require.NoError(t, err)

	state, err := tp.provider.decodeRelayState(encoded)
	require.NoError(t, err)
	assert.Equal(t, "idp-1", state.AuthorityID)
	assert.Equal(t, "rp-a", state.RPID)
	assert.Equal(t, "original", state.RelayState)

	// Tampered state does not decode.
	_, err = tp.provider.decodeRelayState(encoded[:len(encoded)-4] + "AAAA")
	assert.Error(t, err)
}
