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
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFromAuthorizationHeader(t *testing.T) {
	e := NewExtractor(nil)

	req, _ := http.NewRequest(http.MethodGet, "https://rp.example.com/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")

	info, err := e.Extract(req)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, StyleHeader, info.Style)
	assert.Equal(t, TypeBearer, info.Type)
	assert.Equal(t, "abc.def.ghi", info.Raw)
	assert.Empty(t, info.Signature)
}

func TestExtractHoKWithSignature(t *testing.T) {
	e := NewExtractor(nil)

	// The token itself contains no colons, so the last colon separates the
	// request signature.
	req, _ := http.NewRequest(http.MethodGet, "https://rp.example.com/", nil)
	req.Header.Set("Authorization", "hotk-pk abc.def.ghi:cafe01")

	info, err := e.Extract(req)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, TypeHolderOfKey, info.Type)
	assert.Equal(t, "abc.def.ghi", info.Raw)
	assert.Equal(t, "cafe01", info.Signature)
}

func TestExtractUnsupportedScheme(t *testing.T) {
	e := NewExtractor(nil)

	req, _ := http.NewRequest(http.MethodGet, "https://rp.example.com/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	_, err := e.Extract(req)
	require.Error(t, err)
	assert.True(t, IsInvalidTokenWithReason(err, ReasonBadType))
}

func TestExtractFromQuery(t *testing.T) {
	e := NewExtractor(nil)

	req, _ := http.NewRequest(http.MethodGet, "https://rp.example.com/?access_token=abc.def.ghi&token_type=bearer", nil)

	info, err := e.Extract(req)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, StyleQuery, info.Style)
	assert.Equal(t, TypeBearer, info.Type)
	assert.Equal(t, "abc.def.ghi", info.Raw)
}

func TestExtractFromBody(t *testing.T) {
	e := NewExtractor(nil)

	form := url.Values{}
	form.Set("access_token", "abc.def.ghi")
	form.Set("token_type", "hotk-pk")
	form.Set("token_signature", "cafe01")

	req, _ := http.NewRequest(http.MethodPost, "https://rp.example.com/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	info, err := e.Extract(req)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, StyleBody, info.Style)
	assert.Equal(t, TypeHolderOfKey, info.Type)
	assert.Equal(t, "abc.def.ghi", info.Raw)
	assert.Equal(t, "cafe01", info.Signature)
}

func TestExtractFromBodyKeepsBody(t *testing.T) {
	e := NewExtractor(nil)

	form := url.Values{}
	form.Set("access_token", "abc.def.ghi")
	form.Set("token_type", "hotk-pk")
	encoded := form.Encode()

	req, _ := http.NewRequest(http.MethodPost, "https://rp.example.com/", strings.NewReader(encoded))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	info, err := e.Extract(req)
	require.NoError(t, err)
	require.NotNil(t, info)

	// The canonical form of holder-of-key request signatures covers the
	// body as transmitted, so extraction must leave it readable.
	body, err := ioutil.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, encoded, string(body))
}

func TestExtractCustomParamNames(t *testing.T) {
	e := NewExtractor(&ExtractorConfig{
		AccessTokenParam: "sso_token",
		TokenTypeParam:   "sso_token_type",
	})

	req, _ := http.NewRequest(http.MethodGet, "https://rp.example.com/?sso_token=abc&sso_token_type=bearer", nil)

	info, err := e.Extract(req)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "abc", info.Raw)

	// The default names are no longer honored.
	req, _ = http.NewRequest(http.MethodGet, "https://rp.example.com/?access_token=abc", nil)
	info, err = e.Extract(req)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestExtractNoToken(t *testing.T) {
	e := NewExtractor(nil)

	req, _ := http.NewRequest(http.MethodGet, "https://rp.example.com/", nil)

	info, err := e.Extract(req)
	require.NoError(t, err)
	assert.Nil(t, info)
}
