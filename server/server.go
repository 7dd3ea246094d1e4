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

// Package server binds the broker's HTTP endpoints together.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/averho/broker/token"
)

// Server is our HTTP server implementation.
type Server struct {
	config *Config
	logger logrus.FieldLogger

	mux http.Handler

	extractor *token.Extractor
	verifiers map[token.Type]token.Verifier
}

// NewServer constructs a Server from the provided parameters.
func NewServer(c *Config) (*Server, error) {
	s := &Server{
		config: c,
		logger: c.Config.Logger,

		extractor: token.NewExtractor(nil),
	}

	verifierConfig := &token.VerifierConfig{
		Logger:   s.logger,
		Audience: c.EntityID,
		Keyfunc:  c.Issuer.Keyfunc(),

		TrustedConfirmationKeys: c.TrustedConfirmationKeys,
	}
	s.verifiers = map[token.Type]token.Verifier{
		token.TypeBearer:      token.NewVerifier(token.TypeBearer, verifierConfig),
		token.TypeHolderOfKey: token.NewVerifier(token.TypeHolderOfKey, verifierConfig),
	}

	registry := c.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c.Provider.RegisterMetrics(registry)

	router := mux.NewRouter()
	s.AddRoutes(router, registry)
	s.mux = router

	return s, nil
}

// AddRoutes registers the broker's routes with the provided router.
func (s *Server) AddRoutes(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/health-check", http.HandlerFunc(s.HealthCheckHandler))
	router.Handle("/metrics", s.withTrustedSource(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.Handle("/jwks.json", http.HandlerFunc(s.JWKSHandler)).Methods(http.MethodGet)

	router.Handle("/sso", http.HandlerFunc(s.config.Provider.LogonHandler)).Methods(http.MethodGet)
	router.Handle("/sso/acs", http.HandlerFunc(s.config.Provider.ACSHandler)).Methods(http.MethodPost)
	router.Handle("/slo", http.HandlerFunc(s.config.Provider.SLOHandler))

	router.Handle("/api/v1/sessions", s.withRequiredRole(s.config.AdminRole, http.HandlerFunc(s.SessionsHandler))).Methods(http.MethodGet)
	router.Handle("/api/v1/sessions/{id}", s.withRequiredRole(s.config.AdminRole, http.HandlerFunc(s.SessionRemoveHandler))).Methods(http.MethodDelete)
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.mux.ServeHTTP(rw, req)
}

// Serve starts the HTTP listener and blocks until the provided context is
// done, then shuts the listener down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.Config.ListenAddr,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("listenAddr", srv.Addr).Infoln("starting http listener")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
