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

package main

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io/ioutil"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"stash.kopano.io/kgol/rndm"

	"github.com/averho/broker/authorities"
	"github.com/averho/broker/authz"
	"github.com/averho/broker/config"
	"github.com/averho/broker/encryption"
	"github.com/averho/broker/idm"
	"github.com/averho/broker/rp"
	"github.com/averho/broker/server"
	"github.com/averho/broker/session"
	"github.com/averho/broker/sso"
	"github.com/averho/broker/token"
	"github.com/averho/broker/utils"
)

func commandServe() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start broker and listen for requests",
		Run: func(cmd *cobra.Command, args []string) {
			if err := serve(cmd, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("listen", defaultListenAddr, "TCP listen address")
	serveCmd.Flags().String("iss", "http://localhost:8778", "Issuer URL, also used as the broker's entity id")
	serveCmd.Flags().String("signing-private-key", "", "PEM key file (RSA) for token signing")
	serveCmd.Flags().String("signing-kid", "default", "Key id of the token signing key")
	serveCmd.Flags().String("encryption-secret", "", fmt.Sprintf("File with the relay state encryption secret (length must be %d bytes)", encryption.KeySize))
	serveCmd.Flags().String("authorities-registration-conf", "", "Path to a authorities.yaml registration file")
	serveCmd.Flags().String("rp-registration-conf", "", "Path to a relying party registration file")
	serveCmd.Flags().StringArray("trusted-proxy", nil, "Trusted proxy IP or CIDR network, can be used multiple times")
	serveCmd.Flags().Bool("insecure", false, "Disable TLS certificate and hostname validation")
	serveCmd.Flags().String("log-level", "info", "Log level (one of panic, fatal, error, warn, info or debug)")
	serveCmd.Flags().Bool("log-timestamp", true, "Prefix each log line with timestamp")

	return serveCmd
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logTimestamp, _ := cmd.Flags().GetBool("log-timestamp")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(!logTimestamp, logLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}
	logger.Infoln("serve start")

	cfg := &config.Config{
		Logger: logger,
	}

	issString, _ := cmd.Flags().GetString("iss")
	issURI, err := url.Parse(issString)
	if err != nil || !issURI.IsAbs() {
		return fmt.Errorf("invalid iss value, must be an absolute URL")
	}

	tlsInsecureSkipVerify, _ := cmd.Flags().GetBool("insecure")
	var tlsClientConfig *tls.Config
	if tlsInsecureSkipVerify {
		tlsClientConfig = &tls.Config{
			InsecureSkipVerify: tlsInsecureSkipVerify,
		}
		logger.Warnln("insecure mode, TLS client connections are susceptible to man-in-the-middle attacks")
	}
	cfg.HTTPTransport = utils.HTTPTransportWithTLSClientConfig(tlsClientConfig)

	if trustedProxies, _ := cmd.Flags().GetStringArray("trusted-proxy"); len(trustedProxies) > 0 {
		for _, trustedProxy := range trustedProxies {
			if ip := net.ParseIP(trustedProxy); ip != nil {
				cfg.TrustedProxyIPs = append(cfg.TrustedProxyIPs, &ip)
				continue
			}
			if _, ipNet, errParse := net.ParseCIDR(trustedProxy); errParse == nil {
				cfg.TrustedProxyNets = append(cfg.TrustedProxyNets, ipNet)
				continue
			}
			return fmt.Errorf("invalid trusted-proxy value: %v", trustedProxy)
		}
	}

	keystore := idm.NewMemoryKeystore()
	signingKeyID, _ := cmd.Flags().GetString("signing-kid")
	if keyFn, _ := cmd.Flags().GetString("signing-private-key"); keyFn != "" {
		logger.WithField("file", keyFn).Infoln("loading signing key from file")
		key, loadErr := loadSigningKey(keyFn)
		if loadErr != nil {
			return loadErr
		}
		keystore.AddPrivateKey(signingKeyID, key)
	} else {
		key, genErr := rsa.GenerateKey(rand.Reader, 2048)
		if genErr != nil {
			return fmt.Errorf("failed to create signing key: %v", genErr)
		}
		keystore.AddPrivateKey(signingKeyID, key)
		logger.Warnln("missing --signing-private-key parameter, created random RSA key pair")
	}
	signingKey, err := keystore.PrivateKey(signingKeyID)
	if err != nil {
		return fmt.Errorf("no signing key: %v", err)
	}

	var encryptionSecret []byte
	if encryptionSecretFn, _ := cmd.Flags().GetString("encryption-secret"); encryptionSecretFn != "" {
		logger.WithField("file", encryptionSecretFn).Infoln("loading encryption secret from file")
		encryptionSecret, err = ioutil.ReadFile(encryptionSecretFn)
		if err != nil {
			return fmt.Errorf("failed to load encryption secret: %v", err)
		}
	} else {
		logger.Warnln("missing --encryption-secret parameter, using random encryption secret")
		encryptionSecret = rndm.GenerateRandomBytes(encryption.KeySize)
	}
	encryptionKey, err := encryption.KeyFromBytes(encryptionSecret)
	if err != nil {
		return fmt.Errorf("invalid --encryption-secret parameter value: %v", err)
	}

	issuer, err := token.NewIssuer(&token.IssuerConfig{
		Issuer:       issURI.String(),
		SigningKeyID: signingKeyID,
		SigningKey:   signingKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create issuer: %v", err)
	}

	sessions := session.NewManager(ctx, &session.ManagerConfig{
		Logger: logger,
	})

	authoritiesConf, _ := cmd.Flags().GetString("authorities-registration-conf")
	authorityRegistry, err := authorities.NewRegistry(authoritiesConf, logger)
	if err != nil {
		return fmt.Errorf("failed to load authorities registration: %v", err)
	}

	rpConf, _ := cmd.Flags().GetString("rp-registration-conf")
	rpRegistry, err := rp.NewRegistry(ctx, rpConf, logger)
	if err != nil {
		return fmt.Errorf("failed to load relying party registration: %v", err)
	}
	haveTrustedKeys := false
	for _, registration := range rpRegistry.GetAll(ctx) {
		if registration.JWKS == nil {
			continue
		}
		for _, jwk := range registration.JWKS.Keys {
			keystore.AddTrustedKey(registration.ID, jwk.Key)
			haveTrustedKeys = true
		}
	}

	// With registered relying party keys, holder-of-key tokens presented to
	// the API are restricted to those keys. Without any, the restriction
	// stays off.
	var trustedConfirmationKeys func() []crypto.PublicKey
	if haveTrustedKeys {
		trustedConfirmationKeys = func() []crypto.PublicKey {
			var keys []crypto.PublicKey
			for _, registration := range rpRegistry.GetAll(ctx) {
				registered, keysErr := keystore.TrustedKeys(registration.ID)
				if keysErr != nil {
					continue
				}
				keys = append(keys, registered...)
			}

			return keys
		}
	}

	provider, err := sso.NewProvider(ctx, &sso.Config{
		Config: cfg,

		EntityID: issURI.String(),
		BaseURI:  issURI,

		Sessions:       sessions,
		Principals:     idm.NewMemoryStore(logger),
		Authorities:    authorityRegistry,
		RelyingParties: rpRegistry,
		Issuer:         issuer,

		EncryptionKey: encryptionKey,

		Insecure: tlsInsecureSkipVerify,
	})
	if err != nil {
		return fmt.Errorf("failed to create sso provider: %v", err)
	}

	listenAddr, _ := cmd.Flags().GetString("listen")
	cfg.ListenAddr = listenAddr

	srv, err := server.NewServer(&server.Config{
		Config: cfg,

		EntityID: issURI.String(),

		Provider: provider,
		Sessions: sessions,
		Issuer:   issuer,

		AdminRole: authz.RoleAdministrator,

		TrustedConfirmationKeys: trustedConfirmationKeys,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		logger.WithField("signal", sig).Infoln("shutting down")
		cancel()
	}()

	logger.Infoln("serve started")
	return srv.Serve(ctx)
}

func loadSigningKey(fn string) (*rsa.PrivateKey, error) {
	pemBytes, err := ioutil.ReadFile(fn)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %v", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", fn)
	}

	if key, errParse := x509.ParsePKCS1PrivateKey(block.Bytes); errParse == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file: %v", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type in %s, must be RSA", fn)
	}

	return key, nil
}
