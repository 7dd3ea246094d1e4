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

package config

import (
	"net"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Config bundles the shared runtime configuration of the broker.
type Config struct {
	Logger logrus.FieldLogger

	ListenAddr string

	HTTPTransport http.RoundTripper

	TrustedProxyIPs  []*net.IP
	TrustedProxyNets []*net.IPNet
}
