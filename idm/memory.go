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

package idm

import (
	"context"
	"crypto"
	"crypto/rsa"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"
)

// MemoryStore is an in-process PrincipalStore. It backs deployments which
// delegate durable identity storage to an external directory and only need
// the broker's own working set.
type MemoryStore struct {
	logger     logrus.FieldLogger
	principals cmap.ConcurrentMap
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore(logger logrus.FieldLogger) *MemoryStore {
	return &MemoryStore{
		logger:     logger,
		principals: cmap.New(),
	}
}

func principalKey(name string, domain string) string {
	return strings.ToLower(name) + "@" + strings.ToLower(domain)
}

// Resolve implements the PrincipalStore interface.
func (s *MemoryStore) Resolve(_ context.Context, name string, domain string) (*Principal, error) {
	stored, ok := s.principals.Get(principalKey(name, domain))
	if !ok {
		return nil, ErrPrincipalNotFound
	}

	principal := stored.(Principal)
	return &principal, nil
}

// Provision implements the PrincipalStore interface.
func (s *MemoryStore) Provision(_ context.Context, principal *Principal) error {
	now := time.Now()
	record := *principal
	record.CreatedAt = now
	record.UpdatedAt = now

	if ok := s.principals.SetIfAbsent(principalKey(principal.Name, principal.Domain), record); !ok {
		return ErrPrincipalExists
	}

	s.logger.WithFields(logrus.Fields{
		"principal": principal.ID(),
		"external":  principal.External,
	}).Debugln("provisioned principal")

	return nil
}

// SyncGroups implements the PrincipalStore interface. The stored group set
// is replaced, deduplicated and sorted order preserving as provided.
func (s *MemoryStore) SyncGroups(_ context.Context, principal *Principal, groups []string) error {
	key := principalKey(principal.Name, principal.Domain)
	stored, ok := s.principals.Get(key)
	if !ok {
		return ErrPrincipalNotFound
	}

	seen := mapset.NewSet()
	deduped := make([]string, 0, len(groups))
	for _, g := range groups {
		if seen.Add(strings.ToLower(g)) {
			deduped = append(deduped, g)
		}
	}

	record := stored.(Principal)
	record.Groups = deduped
	record.UpdatedAt = time.Now()
	s.principals.Set(key, record)

	principal.Groups = deduped

	return nil
}

// MemoryKeystore is an in-process Keystore holding key material loaded at
// startup.
type MemoryKeystore struct {
	privateKeys map[string]*rsa.PrivateKey
	trustedKeys map[string][]crypto.PublicKey
}

// NewMemoryKeystore creates a new empty MemoryKeystore.
func NewMemoryKeystore() *MemoryKeystore {
	return &MemoryKeystore{
		privateKeys: make(map[string]*rsa.PrivateKey),
		trustedKeys: make(map[string][]crypto.PublicKey),
	}
}

// AddPrivateKey registers the provided private key under the provided
// name. Not safe for concurrent use with lookups, registration happens at
// startup only.
func (ks *MemoryKeystore) AddPrivateKey(name string, key *rsa.PrivateKey) {
	ks.privateKeys[name] = key
}

// AddTrustedKey registers the provided public key or certificate under the
// provided name.
func (ks *MemoryKeystore) AddTrustedKey(name string, key crypto.PublicKey) {
	ks.trustedKeys[name] = append(ks.trustedKeys[name], key)
}

// PrivateKey implements the Keystore interface.
func (ks *MemoryKeystore) PrivateKey(name string) (*rsa.PrivateKey, error) {
	key, ok := ks.privateKeys[name]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return key, nil
}

// TrustedKeys implements the Keystore interface.
func (ks *MemoryKeystore) TrustedKeys(name string) ([]crypto.PublicKey, error) {
	keys, ok := ks.trustedKeys[name]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return keys, nil
}
