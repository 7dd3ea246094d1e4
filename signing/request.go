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

package signing

import (
	"bytes"
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"io/ioutil"
	"mime"
	"net/http"
	"strings"
	"time"
)

// Errors used by request signing and verification.
var (
	ErrMalformedSignature = errors.New("malformed request signature")
	ErrUnsupportedKeyType = errors.New("unsupported key type")
)

// CanonicalRequest is the normalized form of a HTTP request which request
// signatures are computed over. Scheme, host and port are deliberately not
// part of the canonical form so that requests passing through proxies or
// load balancers sign identically.
type CanonicalRequest struct {
	Method      string
	ContentHash string
	MediaType   string
	Date        string
	URI         string
}

// NewCanonicalRequest creates the canonical form of the provided request.
// The request body is read and replaced so that downstream handlers can
// still consume it.
func NewCanonicalRequest(req *http.Request) (*CanonicalRequest, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = ioutil.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = ioutil.NopCloser(bytes.NewReader(body))
	}

	mediaType := req.Header.Get("Content-Type")
	if mediaType != "" {
		if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
			mediaType = mt
		}
	}

	date := req.Header.Get("Date")
	if date != "" {
		if t, err := http.ParseTime(date); err == nil {
			date = FormatDate(t)
		}
	}

	return &CanonicalRequest{
		Method:      req.Method,
		ContentHash: HashBody(body),
		MediaType:   mediaType,
		Date:        date,
		URI:         SanitizeURI(req),
	}, nil
}

// SigningString returns the deterministic string representation of the
// associated canonical request. The field order and newline separation are
// a wire contract shared with clients which compute the same string
// independently.
func (cr *CanonicalRequest) SigningString() string {
	return BuildSigningString(cr.Method, cr.ContentHash, cr.MediaType, cr.Date, cr.URI)
}

// BuildSigningString concatenates the provided canonical request fields
// with newline separators in the fixed order method, body hash, media type,
// date, URI.
func BuildSigningString(method string, bodyHash string, mediaType string, date string, uri string) string {
	return strings.Join([]string{method, bodyHash, mediaType, date, uri}, "\n")
}

// HashBody returns the lowercase hex MD5 digest of the provided body. A nil
// or empty body hashes as the empty string.
func HashBody(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// FormatDate formats the provided time as a RFC-1123 style GMT date as used
// in the canonical request.
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// SanitizeURI strips scheme, host and port from the provided request URI,
// retaining path, query and fragment.
func SanitizeURI(req *http.Request) string {
	u := *req.URL
	u.Scheme = ""
	u.Host = ""
	u.Opaque = ""
	u.User = nil

	return u.String()
}

// Sign computes the RSA SHA-256 signature of the provided signing string
// with the provided private key and returns it hex encoded.
func Sign(signingString string, key *rsa.PrivateKey) (string, error) {
	hashed := sha256.Sum256([]byte(signingString))

	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(signature), nil
}

// Verify checks the provided hex encoded RSA SHA-256 signature against the
// provided signing string and public key. A signature which simply does not
// match yields false with a nil error. Malformed input or an unusable key
// yields false with an error, so that callers can distinguish a client
// which never produced a valid proof from one whose proof failed.
func Verify(hexSignature string, signingString string, key crypto.PublicKey) (bool, error) {
	signature, err := hex.DecodeString(hexSignature)
	if err != nil {
		return false, ErrMalformedSignature
	}

	publicKey, err := publicKeyOf(key)
	if err != nil {
		return false, err
	}

	hashed := sha256.Sum256([]byte(signingString))
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, hashed[:], signature); err != nil {
		return false, nil
	}

	return true, nil
}

func publicKeyOf(key crypto.PublicKey) (*rsa.PublicKey, error) {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return k, nil
	case *x509.Certificate:
		if rsaKey, ok := k.PublicKey.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
	}

	return nil, ErrUnsupportedKeyType
}
