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

package authorities

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// Supported authority type string values.
const (
	AuthorityTypeSAML2 = "saml2"
)

// RegistryData is the base structure of the authority registration
// configuration file.
type RegistryData struct {
	Authorities []*AuthorityRegistration `yaml:"authorities,flow"`
}

// AuthorityRegistration defines an external identity provider with its
// properties.
type AuthorityRegistration struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	AuthorityType string `yaml:"authority_type"`

	EntityID string `yaml:"entity_id"`

	RawSSOEndpoint string `yaml:"sso_endpoint"`
	RawSLOEndpoint string `yaml:"slo_endpoint"`

	// Certificates holds the PEM encoded signing certificates of the
	// identity provider.
	Certificates []string `yaml:"certificates,flow"`

	Default  bool `yaml:"default"`
	Insecure bool `yaml:"insecure"`

	// JITEnabled controls whether validated but unknown subjects from
	// this authority get a local principal provisioned on the fly.
	JITEnabled bool `yaml:"jit_enabled"`

	// GroupsAttribute and RoleAttribute name the assertion attributes
	// carrying group memberships and the role.
	GroupsAttribute string `yaml:"groups_attribute"`
	RoleAttribute   string `yaml:"role_attribute"`

	ssoEndpoint *url.URL
	sloEndpoint *url.URL

	certificateStore *dsig.MemoryX509CertificateStore
}

// Validate validates the associated authority registration data and
// returns an error when the data is not usable.
func (ar *AuthorityRegistration) Validate() error {
	if ar.AuthorityType != AuthorityTypeSAML2 {
		return fmt.Errorf("unknown authority type: %v", ar.AuthorityType)
	}
	if ar.EntityID == "" {
		return errors.New("entity_id is empty")
	}

	if ar.RawSSOEndpoint != "" {
		u, err := url.Parse(ar.RawSSOEndpoint)
		if err != nil {
			return fmt.Errorf("invalid sso_endpoint value: %v", err)
		}
		if u.Scheme != "https" && !ar.Insecure {
			return errors.New("sso_endpoint must be https")
		}
		ar.ssoEndpoint = u
	} else {
		return errors.New("sso_endpoint is empty")
	}

	if ar.RawSLOEndpoint != "" {
		u, err := url.Parse(ar.RawSLOEndpoint)
		if err != nil {
			return fmt.Errorf("invalid slo_endpoint value: %v", err)
		}
		ar.sloEndpoint = u
	}

	store := &dsig.MemoryX509CertificateStore{}
	for _, raw := range ar.Certificates {
		block, _ := pem.Decode([]byte(raw))
		if block == nil {
			return errors.New("invalid certificate pem data")
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("invalid certificate: %v", err)
		}
		store.Roots = append(store.Roots, cert)
	}
	if len(store.Roots) == 0 && !ar.Insecure {
		return errors.New("no certificates")
	}
	ar.certificateStore = store

	return nil
}

// SSOEndpoint returns the single sign-on endpoint of the authority.
func (ar *AuthorityRegistration) SSOEndpoint() *url.URL {
	return ar.ssoEndpoint
}

// SLOEndpoint returns the single logout endpoint of the authority, nil
// when the authority does not support logout.
func (ar *AuthorityRegistration) SLOEndpoint() *url.URL {
	return ar.sloEndpoint
}

// ServiceProvider creates the service provider bound to this authority for
// the provided own entity id and assertion consumer endpoint.
func (ar *AuthorityRegistration) ServiceProvider(spEntityID string, acsURL string, audience string, skipSignatureValidation bool) *saml2.SAMLServiceProvider {
	sloURL := ""
	if ar.sloEndpoint != nil {
		sloURL = ar.sloEndpoint.String()
	}

	return &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      ar.ssoEndpoint.String(),
		IdentityProviderSLOURL:      sloURL,
		IdentityProviderIssuer:      ar.EntityID,
		ServiceProviderIssuer:       spEntityID,
		AssertionConsumerServiceURL: acsURL,
		AudienceURI:                 audience,
		IDPCertificateStore:         ar.certificateStore,
		SkipSignatureValidation:     skipSignatureValidation || ar.Insecure,
	}
}
