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

// Package rp implements the registry of relying parties which are allowed
// to consume tokens from this broker.
package rp

import (
	"context"
	"errors"
	"io/ioutil"
	"sync"

	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
)

// Registry implements the registry for registered relying parties.
type Registry struct {
	mutex sync.RWMutex

	relyingParties map[string]*Registration
	byACSURL       map[string]*Registration

	logger logrus.FieldLogger
}

// NewRegistry creates a new relying party Registry, loading registrations
// from the provided configuration file when one is set.
func NewRegistry(ctx context.Context, registrationConfFilepath string, logger logrus.FieldLogger) (*Registry, error) {
	registryData := &RegistryData{}

	if registrationConfFilepath != "" {
		logger.Debugf("parsing relying party registration conf from %v", registrationConfFilepath)
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
		relyingParties: make(map[string]*Registration),
		byACSURL:       make(map[string]*Registration),

		logger: logger,
	}

	for _, registration := range registryData.RelyingParties {
		validateErr := registration.Validate()
		registerErr := r.Register(registration)
		fields := logrus.Fields{
			"id":       registration.ID,
			"acs_url":  registration.RawACSURL,
			"slo_url":  registration.RawSLOURL,
			"trusted":  registration.Trusted,
			"insecure": registration.Insecure,
		}

		if validateErr != nil {
			logger.WithError(validateErr).WithFields(fields).Warnln("skipped registration of invalid relying party entry")
			continue
		}
		if registerErr != nil {
			logger.WithError(registerErr).WithFields(fields).Warnln("skipped registration of invalid relying party")
			continue
		}
		logger.WithFields(fields).Debugln("registered relying party")
	}

	return r, nil
}

// Register validates the provided registration and adds the relying party
// to the associated registry if valid. Returns error otherwise.
func (r *Registry) Register(registration *Registration) error {
	if registration.ID == "" {
		return errors.New("invalid relying party id")
	}
	if registration.acsURL == nil {
		return errors.New("relying party not validated")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.relyingParties[registration.ID] = registration
	r.byACSURL[registration.acsURL.String()] = registration

	return nil
}

// Get returns the registered relying party for the provided id.
func (r *Registry) Get(ctx context.Context, id string) (*Registration, bool) {
	if id == "" {
		return nil, false
	}

	r.mutex.RLock()
	registration, ok := r.relyingParties[id]
	r.mutex.RUnlock()

	return registration, ok
}

// GetByACSURL returns the registered relying party for the provided
// assertion consumer endpoint.
func (r *Registry) GetByACSURL(ctx context.Context, acsURL string) (*Registration, bool) {
	r.mutex.RLock()
	registration, ok := r.byACSURL[acsURL]
	r.mutex.RUnlock()

	return registration, ok
}

// GetAll returns a snapshot of all registered relying parties.
func (r *Registry) GetAll(ctx context.Context) []*Registration {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*Registration, 0, len(r.relyingParties))
	for _, registration := range r.relyingParties {
		result = append(result, registration)
	}

	return result
}
