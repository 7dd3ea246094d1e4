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
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/averho/broker"
	"github.com/averho/broker/signing"
)

const testAudience = "https://rp.example.com"

type testEnv struct {
	issuerKey *rsa.PrivateKey
	issuer    *Issuer
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	issuer, err := NewIssuer(&IssuerConfig{
		Issuer:       "https://broker.example.com",
		SigningKeyID: "test-1",
		SigningKey:   key,
	})
	require.NoError(t, err)

	return &testEnv{
		issuerKey: key,
		issuer:    issuer,
		now:       time.Unix(1700000000, 0),
	}
}

func (env *testEnv) mint(t *testing.T, mutate func(*Claims)) string {
	t.Helper()

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   "alice@example.com",
			IssuedAt:  env.now.Unix(),
			ExpiresAt: env.now.Add(600 * time.Second).Unix(),
		},
		Audience:   Audience{testAudience},
		TokenClass: broker.TokenClassBearer,
	}
	if mutate != nil {
		mutate(claims)
	}

	raw, err := env.issuer.Issue(claims)
	require.NoError(t, err)

	return raw
}

func (env *testEnv) verifier(t Type, at time.Time) Verifier {
	return NewVerifier(t, &VerifierConfig{
		Audience: testAudience,
		Keyfunc:  env.issuer.Keyfunc(),
		Now:      func() time.Time { return at },
	})
}

func TestBearerVerify(t *testing.T) {
	env := newTestEnv(t)
	raw := env.mint(t, nil)

	v := env.verifier(TypeBearer, env.now.Add(10*time.Second))
	at, err := v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
	require.NoError(t, err)

	assert.Equal(t, "alice", at.Subject)
	assert.Equal(t, "example.com", at.Domain)
	assert.Equal(t, TypeBearer, at.Type)
}

func TestBearerVerifyBadType(t *testing.T) {
	env := newTestEnv(t)
	raw := env.mint(t, func(claims *Claims) {
		claims.TokenClass = broker.TokenClassHolderOfKey
	})

	v := env.verifier(TypeBearer, env.now)
	_, err := v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadType))
}

func TestBearerVerifyBadSignature(t *testing.T) {
	env := newTestEnv(t)
	other := newTestEnv(t)
	raw := other.mint(t, nil)

	v := env.verifier(TypeBearer, env.now)
	_, err := v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadSignature))
}

func TestBearerVerifyTimestampSkew(t *testing.T) {
	env := newTestEnv(t)
	raw := env.mint(t, nil)

	// The token expires at T+600s and the default tolerance is 60s, so
	// T+650s is still acceptable while T+670s is not. The boundary itself
	// is inclusive.
	for _, tc := range []struct {
		offset time.Duration
		ok     bool
	}{
		{650 * time.Second, true},
		{660 * time.Second, true},
		{670 * time.Second, false},
		{-60 * time.Second, true},
		{-90 * time.Second, false},
	} {
		v := env.verifier(TypeBearer, env.now.Add(tc.offset))
		_, err := v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
		if tc.ok {
			assert.NoError(t, err, "offset %s", tc.offset)
		} else {
			require.Error(t, err, "offset %s", tc.offset)
			assert.True(t, IsInvalidTokenWithReason(err, ReasonBadTimestamp), "offset %s", tc.offset)
		}
	}
}

func TestBearerVerifyZeroClockSkew(t *testing.T) {
	env := newTestEnv(t)
	raw := env.mint(t, nil)

	// With the tolerance explicitly set to zero, a token one second past
	// its expiry is rejected, while the nil default still tolerates it.
	zero := time.Duration(0)
	v := NewVerifier(TypeBearer, &VerifierConfig{
		Audience:  testAudience,
		ClockSkew: &zero,
		Keyfunc:   env.issuer.Keyfunc(),
		Now:       func() time.Time { return env.now.Add(601 * time.Second) },
	})
	_, err := v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadTimestamp))

	v = env.verifier(TypeBearer, env.now.Add(601*time.Second))
	_, err = v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
	assert.NoError(t, err)
}

func TestNewVerifierUnsupportedType(t *testing.T) {
	c := &VerifierConfig{Audience: testAudience}

	require.Panics(t, func() { NewVerifier(TypeSAML, c) })
	require.Panics(t, func() { NewVerifier(Type(99), c) })
}

func TestBearerVerifyMissingTimestamps(t *testing.T) {
	env := newTestEnv(t)

	// Signed directly, bypassing the issuer which would fill the missing
	// exp claim in. A token without both timestamps is invalid, not valid
	// forever.
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:  "alice@example.com",
			IssuedAt: env.now.Unix(),
		},
		Audience:   Audience{testAudience},
		TokenClass: broker.TokenClassBearer,
	}
	tkn := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tkn.Header["kid"] = "test-1"
	raw, err := tkn.SignedString(env.issuerKey)
	require.NoError(t, err)

	v := env.verifier(TypeBearer, env.now)
	_, err = v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadTimestamp))
}

func TestBearerVerifyBadAudience(t *testing.T) {
	env := newTestEnv(t)
	raw := env.mint(t, func(claims *Claims) {
		claims.Audience = Audience{"https://other.example.com"}
	})

	v := env.verifier(TypeBearer, env.now)
	_, err := v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadAudience))
}

func TestBearerVerifyShortCircuitOrder(t *testing.T) {
	env := newTestEnv(t)
	other := newTestEnv(t)

	// Expired, wrong audience and wrongly signed at once. The signature
	// check runs before the timestamp and audience checks.
	raw := other.mint(t, func(claims *Claims) {
		claims.ExpiresAt = env.now.Add(-time.Hour).Unix()
		claims.Audience = Audience{"https://other.example.com"}
	})

	v := env.verifier(TypeBearer, env.now)
	_, err := v.Verify(context.Background(), nil, &Info{Type: TypeBearer, Raw: raw})
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadSignature))
}

func hokRequest(t *testing.T, key *rsa.PrivateKey, sign bool) (*http.Request, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, "https://rp.example.com/api/v1/resource?a=1", strings.NewReader(`{"op":"get"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Date", signing.FormatDate(time.Unix(1700000000, 0)))

	if !sign {
		return req, ""
	}

	canonical, err := signing.NewCanonicalRequest(req)
	require.NoError(t, err)
	signature, err := signing.Sign(canonical.SigningString(), key)
	require.NoError(t, err)

	return req, signature
}

func TestHoKVerify(t *testing.T) {
	env := newTestEnv(t)

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw := env.mint(t, func(claims *Claims) {
		claims.TokenClass = broker.TokenClassHolderOfKey
		claims.ConfirmationKey = &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{Key: &clientKey.PublicKey, KeyID: "client-1"}},
		}
	})

	req, signature := hokRequest(t, clientKey, true)

	v := env.verifier(TypeHolderOfKey, env.now)
	at, err := v.Verify(context.Background(), req, &Info{Type: TypeHolderOfKey, Raw: raw, Signature: signature})
	require.NoError(t, err)
	assert.Equal(t, TypeHolderOfKey, at.Type)
	assert.NotNil(t, at.ConfirmationKey)
}

func TestHoKVerifyBodyToken(t *testing.T) {
	env := newTestEnv(t)

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw := env.mint(t, func(claims *Claims) {
		claims.TokenClass = broker.TokenClassHolderOfKey
		claims.ConfirmationKey = &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{Key: &clientKey.PublicKey}},
		}
	})

	form := url.Values{}
	form.Set("access_token", raw)
	form.Set("token_type", broker.TokenClassHolderOfKey)
	encoded := form.Encode()

	req, err := http.NewRequest(http.MethodPost, "https://rp.example.com/api/v1/resource", strings.NewReader(encoded))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	date := signing.FormatDate(time.Unix(1700000000, 0))
	req.Header.Set("Date", date)

	// The client signs the body it actually transmits, so the signature
	// cannot itself travel in the form and accompanies the token separately.
	signingString := signing.BuildSigningString(http.MethodPost, signing.HashBody([]byte(encoded)), "application/x-www-form-urlencoded", date, "/api/v1/resource")
	signature, err := signing.Sign(signingString, clientKey)
	require.NoError(t, err)

	e := NewExtractor(nil)
	info, err := e.Extract(req)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, StyleBody, info.Style)
	info.Signature = signature

	v := env.verifier(TypeHolderOfKey, env.now)
	at, err := v.Verify(context.Background(), req, info)
	require.NoError(t, err)
	assert.Equal(t, TypeHolderOfKey, at.Type)
}

func TestHoKVerifyMissingSignature(t *testing.T) {
	env := newTestEnv(t)

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw := env.mint(t, func(claims *Claims) {
		claims.TokenClass = broker.TokenClassHolderOfKey
		claims.ConfirmationKey = &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{Key: &clientKey.PublicKey}},
		}
	})

	req, _ := hokRequest(t, clientKey, false)

	v := env.verifier(TypeHolderOfKey, env.now)
	_, err = v.Verify(context.Background(), req, &Info{Type: TypeHolderOfKey, Raw: raw})
	require.Error(t, err)
	assert.True(t, IsInvalidRequestWithReason(err, ReasonMissingSignature))
}

func TestHoKVerifyWrongKey(t *testing.T) {
	env := newTestEnv(t)

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw := env.mint(t, func(claims *Claims) {
		claims.TokenClass = broker.TokenClassHolderOfKey
		claims.ConfirmationKey = &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{Key: &clientKey.PublicKey}},
		}
	})

	// Signed with a key which is not the one the token is bound to.
	req, signature := hokRequest(t, otherKey, true)

	v := env.verifier(TypeHolderOfKey, env.now)
	_, err = v.Verify(context.Background(), req, &Info{Type: TypeHolderOfKey, Raw: raw, Signature: signature})
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadSignature))
}

func TestHoKVerifyRegisteredConfirmationKey(t *testing.T) {
	env := newTestEnv(t)

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw := env.mint(t, func(claims *Claims) {
		claims.TokenClass = broker.TokenClassHolderOfKey
		claims.ConfirmationKey = &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{Key: &clientKey.PublicKey}},
		}
	})

	req, signature := hokRequest(t, clientKey, true)

	v := NewVerifier(TypeHolderOfKey, &VerifierConfig{
		Audience: testAudience,
		Keyfunc:  env.issuer.Keyfunc(),
		Now:      func() time.Time { return env.now },
		TrustedConfirmationKeys: func() []crypto.PublicKey {
			return []crypto.PublicKey{&clientKey.PublicKey}
		},
	})
	at, err := v.Verify(context.Background(), req, &Info{Type: TypeHolderOfKey, Raw: raw, Signature: signature})
	require.NoError(t, err)
	assert.NotNil(t, at.ConfirmationKey)
}

func TestHoKVerifyUnregisteredConfirmationKey(t *testing.T) {
	env := newTestEnv(t)

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	registeredKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw := env.mint(t, func(claims *Claims) {
		claims.TokenClass = broker.TokenClassHolderOfKey
		claims.ConfirmationKey = &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{Key: &clientKey.PublicKey}},
		}
	})

	// The request signature itself is fine, but the token is bound to a key
	// which is not among the registered relying party keys.
	req, signature := hokRequest(t, clientKey, true)

	v := NewVerifier(TypeHolderOfKey, &VerifierConfig{
		Audience: testAudience,
		Keyfunc:  env.issuer.Keyfunc(),
		Now:      func() time.Time { return env.now },
		TrustedConfirmationKeys: func() []crypto.PublicKey {
			return []crypto.PublicKey{&registeredKey.PublicKey}
		},
	})
	_, err = v.Verify(context.Background(), req, &Info{Type: TypeHolderOfKey, Raw: raw, Signature: signature})
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadSignature))
}

func TestHoKVerifyMalformedSignature(t *testing.T) {
	env := newTestEnv(t)

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	raw := env.mint(t, func(claims *Claims) {
		claims.TokenClass = broker.TokenClassHolderOfKey
		claims.ConfirmationKey = &jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{Key: &clientKey.PublicKey}},
		}
	})

	req, _ := hokRequest(t, clientKey, false)

	v := env.verifier(TypeHolderOfKey, env.now)
	_, err = v.Verify(context.Background(), req, &Info{Type: TypeHolderOfKey, Raw: raw, Signature: "not-hex!"})
	require.Error(t, err)
	assert.True(t, IsInvalidRequestWithReason(err, ReasonMalformedSignature))
}
