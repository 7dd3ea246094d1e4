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
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averho/broker"
	"github.com/averho/broker/authorities"
	"github.com/averho/broker/authz"
	"github.com/averho/broker/config"
	"github.com/averho/broker/encryption"
	"github.com/averho/broker/idm"
	"github.com/averho/broker/rp"
	"github.com/averho/broker/session"
	"github.com/averho/broker/sso"
	"github.com/averho/broker/token"
)

const testEntityID = "https://broker.example.com"

type testServer struct {
	server   *Server
	sessions *session.Manager
	issuer   *token.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sessions := session.NewManager(ctx, &session.ManagerConfig{Logger: logger})

	authorityRegistry, err := authorities.NewRegistry("", logger)
	require.NoError(t, err)

	rpRegistry, err := rp.NewRegistry(ctx, "", logger)
	require.NoError(t, err)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	issuer, err := token.NewIssuer(&token.IssuerConfig{
		Issuer:       testEntityID,
		SigningKeyID: "test-1",
		SigningKey:   key,
	})
	require.NoError(t, err)

	encryptionKey, err := encryption.GenerateKey()
	require.NoError(t, err)

	baseURI, _ := url.Parse(testEntityID)
	provider, err := sso.NewProvider(ctx, &sso.Config{
		Config:         &config.Config{Logger: logger},
		EntityID:       testEntityID,
		BaseURI:        baseURI,
		Sessions:       sessions,
		Principals:     idm.NewMemoryStore(logger),
		Authorities:    authorityRegistry,
		RelyingParties: rpRegistry,
		Issuer:         issuer,
		EncryptionKey:  encryptionKey,
	})
	require.NoError(t, err)

	srv, err := NewServer(&Config{
		Config: &config.Config{
			Logger:     logger,
			ListenAddr: "127.0.0.1:0",
		},
		EntityID:  testEntityID,
		Provider:  provider,
		Sessions:  sessions,
		Issuer:    issuer,
		AdminRole: authz.RoleAdministrator,
	})
	require.NoError(t, err)

	return &testServer{
		server:   srv,
		sessions: sessions,
		issuer:   issuer,
	}
}

func (ts *testServer) mintToken(t *testing.T, role string) string {
	t.Helper()

	raw, err := ts.issuer.Issue(&token.Claims{
		StandardClaims: jwt.StandardClaims{
			Subject: "admin@example.com",
		},
		Audience:   token.Audience{testEntityID},
		TokenClass: broker.TokenClassBearer,
		Role:       role,
	})
	require.NoError(t, err)

	return raw
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health-check", nil)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWKS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jwks.json", nil)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var jwks struct {
		Keys []struct {
			KID string `json:"kid"`
			Use string `json:"use"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "test-1", jwks.Keys[0].KID)
	assert.Equal(t, "sig", jwks.Keys[0].Use)
}

func TestSessionsAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestSessionsAPIWithAdminToken(t *testing.T) {
	ts := newTestServer(t)

	s, err := ts.sessions.Create(&idm.Principal{Name: "alice", Domain: "example.com"}, "password", "", "")
	require.NoError(t, err)
	ts.sessions.EnsureParticipant(s, "https://rp-a.example.com/acs")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+ts.mintToken(t, "Administrator"))
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Sessions []struct {
			ID           string `json:"id"`
			Principal    string `json:"principal"`
			Participants []struct {
				URL string `json:"url"`
			} `json:"participants"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Sessions, 1)
	assert.Equal(t, s.ID(), response.Sessions[0].ID)
	assert.Equal(t, "alice@example.com", response.Sessions[0].Principal)
	require.Len(t, response.Sessions[0].Participants, 1)
	assert.Equal(t, "https://rp-a.example.com/acs", response.Sessions[0].Participants[0].URL)
}

func TestSessionsAPIInsufficientRole(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+ts.mintToken(t, "RegularUser"))
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionsAPIBadToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionRemove(t *testing.T) {
	ts := newTestServer(t)

	s, err := ts.sessions.Create(&idm.Principal{Name: "alice", Domain: "example.com"}, "password", "", "")
	require.NoError(t, err)

	adminToken := ts.mintToken(t, "Administrator")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+s.ID(), nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := ts.sessions.Get(s.ID())
	assert.False(t, ok)

	// Removing it again is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+s.ID(), nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
