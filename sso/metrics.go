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

package sso

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	logons  *prometheus.CounterVec
	logouts *prometheus.CounterVec

	sessions prometheus.GaugeFunc
}

func newMetrics(sessionCount func() int) *metrics {
	return &metrics{
		logons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Subsystem: "sso",
			Name:      "logons_total",
			Help:      "Total number of federated logon attempts by outcome.",
		}, []string{"status"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Subsystem: "sso",
			Name:      "logouts_total",
			Help:      "Total number of single logout flows by trigger and outcome.",
		}, []string{"trigger", "status"}),
		sessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "broker",
			Subsystem: "sso",
			Name:      "sessions",
			Help:      "Current number of active sessions.",
		}, func() float64 {
			return float64(sessionCount())
		}),
	}
}

// MustRegister registers all metrics with the provided registerer.
func (m *metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.logons, m.logouts, m.sessions)
}
