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
	"context"
	"errors"
	"io/ioutil"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Registry implements the registry for registered external identity
// provider authorities.
type Registry struct {
	mutex sync.RWMutex

	defaultID   string
	authorities map[string]*AuthorityRegistration

	logger logrus.FieldLogger
}

// NewRegistry creates a new authorities Registry, loading registrations
// from the provided configuration file when one is set.
func NewRegistry(registrationConfFilepath string, logger logrus.FieldLogger) (*Registry, error) {
	registryData := &RegistryData{}

	if registrationConfFilepath != "" {
		logger.Debugf("parsing authorities registration conf from %v", registrationConfFilepath)
		registryFile, err := ioutil.ReadFile(registrationConfFilepath)
		if err != nil {
			return nil, err
		}

		err = yaml.Unmarshal(registryFile, registryData)
		if err != nil {
			return nil, err
		}
	}

	r := &Registry{
		authorities: make(map[string]*AuthorityRegistration),

		logger: logger,
	}

	var defaultAuthority *AuthorityRegistration
	for _, authority := range registryData.Authorities {
		validateErr := authority.Validate()
		registerErr := r.Register(authority)
		fields := logrus.Fields{
			"id":             authority.ID,
			"entity_id":      authority.EntityID,
			"authority_type": authority.AuthorityType,
			"insecure":       authority.Insecure,
			"default":        authority.Default,
			"jit_enabled":    authority.JITEnabled,
		}

		if validateErr != nil {
			logger.WithError(validateErr).WithFields(fields).Warnln("skipped registration of invalid authority entry")
			continue
		}
		if registerErr != nil {
			logger.WithError(registerErr).WithFields(fields).Warnln("skipped registration of invalid authority")
			continue
		}
		if authority.Default {
			if defaultAuthority == nil {
				defaultAuthority = authority
			} else {
				logger.Warnln("ignored default authority flag since already have a default")
			}
		} else if defaultAuthority == nil {
			defaultAuthority = authority
		}

		logger.WithFields(fields).Debugln("registered authority")
	}

	if defaultAuthority != nil {
		r.defaultID = defaultAuthority.ID
		logger.WithField("id", defaultAuthority.ID).Infoln("using external default authority")
	}

	return r, nil
}

// Register validates the provided authority registration and adds the
// authority to the associated registry if valid. Returns error otherwise.
func (r *Registry) Register(authority *AuthorityRegistration) error {
	if authority.ID == "" {
		if authority.Name != "" {
			authority.ID = authority.Name
			r.logger.WithField("id", authority.ID).Warnln("authority has no id, using name")
		} else {
			return errors.New("no authority id")
		}
	}
	if authority.certificateStore == nil && !authority.Insecure {
		return errors.New("authority not validated")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.authorities[authority.ID] = authority

	return nil
}

// Get returns the registered authority registration for the provided id.
func (r *Registry) Get(ctx context.Context, authorityID string) (*AuthorityRegistration, bool) {
	if authorityID == "" {
		return nil, false
	}

	r.mutex.RLock()
	registration, ok := r.authorities[authorityID]
	r.mutex.RUnlock()

	return registration, ok
}

// GetByEntityID returns the registered authority with the provided SAML
// entity id.
func (r *Registry) GetByEntityID(ctx context.Context, entityID string) (*AuthorityRegistration, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, registration := range r.authorities {
		if registration.EntityID == entityID {
			return registration, true
		}
	}

	return nil, false
}

// Default returns the default authority from the associated registry if
// any.
func (r *Registry) Default(ctx context.Context) *AuthorityRegistration {
	authority, _ := r.Get(ctx, r.defaultID)
	return authority
}
