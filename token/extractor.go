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
	"bytes"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/averho/broker"
)

// Default request parameter names used by the extractor. All of them can
// be overridden through the ExtractorConfig.
const (
	DefaultAccessTokenParam    = "access_token"
	DefaultTokenTypeParam      = "token_type"
	DefaultTokenSignatureParam = "token_signature"
)

// ExtractorConfig carries the request parameter names an Extractor looks
// at. Zero values select the defaults.
type ExtractorConfig struct {
	AccessTokenParam    string
	TokenTypeParam      string
	TokenSignatureParam string
}

// Extractor locates raw access token material in incoming HTTP requests.
// It looks at the Authorization header first, then at query parameters and
// finally at form encoded body parameters. Extraction never validates
// anything beyond basic shape.
type Extractor struct {
	accessTokenParam    string
	tokenTypeParam      string
	tokenSignatureParam string
}

// NewExtractor creates a new Extractor with the provided configuration.
func NewExtractor(c *ExtractorConfig) *Extractor {
	e := &Extractor{
		accessTokenParam:    DefaultAccessTokenParam,
		tokenTypeParam:      DefaultTokenTypeParam,
		tokenSignatureParam: DefaultTokenSignatureParam,
	}
	if c != nil {
		if c.AccessTokenParam != "" {
			e.accessTokenParam = c.AccessTokenParam
		}
		if c.TokenTypeParam != "" {
			e.tokenTypeParam = c.TokenTypeParam
		}
		if c.TokenSignatureParam != "" {
			e.tokenSignatureParam = c.TokenSignatureParam
		}
	}

	return e
}

// Extract locates token material in the provided request. It returns nil
// with a nil error when the request carries no token at all. A token which
// is present but unusable yields an InvalidRequestError.
func (e *Extractor) Extract(req *http.Request) (*Info, error) {
	if authorization := req.Header.Get("Authorization"); authorization != "" {
		return e.extractFromAuthorization(authorization)
	}

	if req.URL != nil {
		if info, err := e.extractFromValues(req.URL.Query(), StyleQuery); info != nil || err != nil {
			return info, err
		}
	}

	if req.Method == http.MethodPost {
		// ParseForm consumes the request body, but the body bytes as
		// transmitted are part of the canonical form holder-of-key request
		// signatures are computed over. Read and restore it.
		var body []byte
		if req.Body != nil {
			var readErr error
			body, readErr = ioutil.ReadAll(req.Body)
			if readErr != nil {
				return nil, NewInvalidRequestError(ReasonMalformed, "failed to read request body")
			}
			req.Body.Close()
			req.Body = ioutil.NopCloser(bytes.NewReader(body))
		}
		if err := req.ParseForm(); err != nil {
			return nil, NewInvalidRequestError(ReasonMalformed, "failed to parse request form")
		}
		if body != nil {
			req.Body = ioutil.NopCloser(bytes.NewReader(body))
		}
		if info, err := e.extractFromValues(req.PostForm, StyleBody); info != nil || err != nil {
			return info, err
		}
	}

	return nil, nil
}

// extractFromAuthorization parses an Authorization header of the form
// "<type> <token>[:<signature>]". The signature part is only meaningful for
// holder-of-key tokens and is split off at the last colon since the token
// itself may contain colons.
func (e *Extractor) extractFromAuthorization(authorization string) (*Info, error) {
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 {
		return nil, NewInvalidRequestError(ReasonMalformed, "malformed Authorization header")
	}

	tokenType, ok := TypeFromString(strings.TrimSpace(parts[0]))
	if !ok {
		return nil, NewInvalidTokenError(ReasonBadType, "unsupported token type in Authorization header")
	}

	value := strings.TrimSpace(parts[1])
	if value == "" {
		return nil, NewInvalidRequestError(ReasonMalformed, "empty token in Authorization header")
	}

	info := &Info{
		Style: StyleHeader,
		Type:  tokenType,
		Raw:   value,
	}

	if tokenType == TypeHolderOfKey {
		if idx := strings.LastIndex(value, ":"); idx >= 0 {
			info.Raw = value[:idx]
			info.Signature = value[idx+1:]
		}
	}

	return info, nil
}

func (e *Extractor) extractFromValues(values url.Values, style Style) (*Info, error) {
	raw := values.Get(e.accessTokenParam)
	if raw == "" {
		return nil, nil
	}

	typeValue := values.Get(e.tokenTypeParam)
	if typeValue == "" {
		typeValue = broker.TokenClassBearer
	}
	tokenType, ok := TypeFromString(typeValue)
	if !ok {
		return nil, NewInvalidTokenError(ReasonBadType, "unsupported token type parameter")
	}

	return &Info{
		Style:     style,
		Type:      tokenType,
		Raw:       raw,
		Signature: values.Get(e.tokenSignatureParam),
	}, nil
}
