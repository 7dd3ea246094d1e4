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
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	"github.com/russellhaering/gosaml2/types"
	"github.com/sirupsen/logrus"
)

// Default SAML attribute names tokens are expected to carry identity
// details in.
const (
	DefaultGroupsAttribute = "Groups"
	DefaultRoleAttribute   = "Role"
)

// samlHolderOfKeyMethod is the subject confirmation method of holder-of-key
// assertions. Accepting one would require checking the proof key, which is
// not implemented, so such assertions are rejected.
const samlHolderOfKeyMethod = "urn:oasis:names:tc:SAML:2.0:cm:holder-of-key"

// SAMLVerifierConfig carries the settings of a SAMLVerifier.
type SAMLVerifierConfig struct {
	Logger logrus.FieldLogger

	// Provider is the configured service provider of the issuing identity
	// provider. It holds the trusted certificates and expected audience.
	Provider *saml2.SAMLServiceProvider

	// GroupsAttribute and RoleAttribute name the assertion attributes to
	// read group membership and role from. Zero values select the
	// defaults.
	GroupsAttribute string
	RoleAttribute   string
}

// SAMLVerifier verifies base64 encoded SAML responses. Signature, validity
// window and audience checks are delegated to the service provider, whose
// findings are mapped onto the same rejection reasons used for JWTs.
type SAMLVerifier struct {
	config *SAMLVerifierConfig

	groupsAttribute string
	roleAttribute   string
}

// NewSAMLVerifier creates a new SAMLVerifier with the provided config.
func NewSAMLVerifier(c *SAMLVerifierConfig) *SAMLVerifier {
	v := &SAMLVerifier{
		config:          c,
		groupsAttribute: c.GroupsAttribute,
		roleAttribute:   c.RoleAttribute,
	}
	if v.groupsAttribute == "" {
		v.groupsAttribute = DefaultGroupsAttribute
	}
	if v.roleAttribute == "" {
		v.roleAttribute = DefaultRoleAttribute
	}

	return v
}

// Verify implements the Verifier interface.
func (v *SAMLVerifier) Verify(ctx context.Context, req *http.Request, info *Info) (*AccessToken, error) {
	assertionInfo, err := v.config.Provider.RetrieveAssertionInfo(info.Raw)
	if err != nil {
		if v.config.Logger != nil {
			v.config.Logger.WithError(err).Debugln("assertion verification failed")
		}
		return nil, NewInvalidTokenError(ReasonBadSignature, "assertion signature verification failed")
	}

	if err := checkSubjectConfirmations(assertionInfo.Assertions); err != nil {
		return nil, err
	}

	if assertionInfo.WarningInfo != nil {
		if assertionInfo.WarningInfo.InvalidTime {
			return nil, NewInvalidTokenError(ReasonBadTimestamp, "assertion is outside its validity window")
		}
		if assertionInfo.WarningInfo.NotInAudience {
			return nil, NewInvalidTokenError(ReasonBadAudience, "assertion audience does not include this service")
		}
	}

	at := &AccessToken{
		Type:              TypeSAML,
		Issuer:            v.config.Provider.IdentityProviderIssuer,
		ExternalSessionID: assertionInfo.SessionIndex,
		Raw:               info.Raw,
	}
	at.Subject, at.Domain = SplitSubject(assertionInfo.NameID)
	if len(assertionInfo.Assertions) > 0 {
		at.ID = assertionInfo.Assertions[0].ID
	}

	for _, attr := range assertionInfo.Values {
		switch attr.Name {
		case v.groupsAttribute:
			for _, value := range attr.Values {
				at.Groups = append(at.Groups, value.Value)
			}
		case v.roleAttribute:
			if len(attr.Values) > 0 {
				at.Role = attr.Values[0].Value
			}
		}
	}

	return at, nil
}

// checkSubjectConfirmations rejects assertions whose subject confirmation
// requires a proof the broker does not check.
func checkSubjectConfirmations(assertions []types.Assertion) error {
	for _, assertion := range assertions {
		if assertion.Subject == nil || assertion.Subject.SubjectConfirmation == nil {
			continue
		}
		if assertion.Subject.SubjectConfirmation.Method == samlHolderOfKeyMethod {
			return NewInvalidTokenError(ReasonBadType, "holder-of-key subject confirmation is not supported")
		}
	}

	return nil
}
