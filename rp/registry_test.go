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

package rp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return logger
}

func TestNewRegistryLoadsJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks, err := json.Marshal(&jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{Key: &key.PublicKey, KeyID: "client-1", Use: "sig"}},
	})
	require.NoError(t, err)

	conf := fmt.Sprintf(`relying_parties:
  - id: rp-1
    name: Test relying party
    acs_url: https://rp.example.com/acs
    trusted: true
    jwks: %s
`, jwks)

	fn := filepath.Join(t.TempDir(), "rp.yaml")
	require.NoError(t, ioutil.WriteFile(fn, []byte(conf), 0600))

	registry, err := NewRegistry(context.Background(), fn, testLogger())
	require.NoError(t, err)

	registration, ok := registry.Get(context.Background(), "rp-1")
	require.True(t, ok)
	require.NotNil(t, registration.JWKS)
	require.Len(t, registration.JWKS.Keys, 1)

	// The registered key must come back as a usable public key, not as an
	// empty JWK shell.
	loaded, ok := registration.JWKS.Keys[0].Key.(*rsa.PublicKey)
	require.True(t, ok, "expected a RSA public key")
	assert.True(t, loaded.Equal(&key.PublicKey))
	assert.Equal(t, "client-1", registration.JWKS.Keys[0].KeyID)
}

func TestNewRegistrySkipsInvalidEntries(t *testing.T) {
	conf := `relying_parties:
  - id: rp-1
    acs_url: http://rp.example.com/acs
  - id: rp-2
    acs_url: https://rp2.example.com/acs
`

	fn := filepath.Join(t.TempDir(), "rp.yaml")
	require.NoError(t, ioutil.WriteFile(fn, []byte(conf), 0600))

	registry, err := NewRegistry(context.Background(), fn, testLogger())
	require.NoError(t, err)

	// rp-1 uses plain http without the insecure flag and is skipped.
	_, ok := registry.Get(context.Background(), "rp-1")
	assert.False(t, ok)
	_, ok = registry.Get(context.Background(), "rp-2")
	assert.True(t, ok)
}
