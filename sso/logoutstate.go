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
	"fmt"
	"sync"
)

// LogoutState is the state of one single logout flow.
type LogoutState int

// Logout flow states. A flow starts out idle and ends in either done or
// failed.
const (
	LogoutStateIdle LogoutState = iota
	LogoutStateRequestReceived
	LogoutStatePropagating
	LogoutStateAwaitingExternalResponse
	LogoutStateResponding
	LogoutStateDone
	LogoutStateFailed
)

// String implements the fmt.Stringer interface.
func (s LogoutState) String() string {
	switch s {
	case LogoutStateIdle:
		return "idle"
	case LogoutStateRequestReceived:
		return "request_received"
	case LogoutStatePropagating:
		return "propagating"
	case LogoutStateAwaitingExternalResponse:
		return "awaiting_external_response"
	case LogoutStateResponding:
		return "responding"
	case LogoutStateDone:
		return "done"
	case LogoutStateFailed:
		return "failed"
	}

	return "unknown"
}

// logoutTransitions defines the allowed forward transitions. Failed is
// additionally reachable from every non-terminal state.
var logoutTransitions = map[LogoutState][]LogoutState{
	LogoutStateIdle:                     {LogoutStateRequestReceived},
	LogoutStateRequestReceived:          {LogoutStatePropagating, LogoutStateAwaitingExternalResponse},
	LogoutStateAwaitingExternalResponse: {LogoutStatePropagating, LogoutStateResponding},
	LogoutStatePropagating:              {LogoutStateResponding},
	LogoutStateResponding:               {LogoutStateDone},
}

// logoutFlow tracks the state machine of one single logout round-trip. Its
// methods are safe to call from multiple Go routines.
type logoutFlow struct {
	mutex sync.Mutex

	sessionID string
	state     LogoutState
}

func newLogoutFlow(sessionID string) *logoutFlow {
	return &logoutFlow{
		sessionID: sessionID,
		state:     LogoutStateIdle,
	}
}

// State returns the current state of the flow.
func (f *logoutFlow) State() LogoutState {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.state
}

// advance moves the flow to the provided state, enforcing the transition
// table. Moving to failed is allowed from every non-terminal state.
func (f *logoutFlow) advance(to LogoutState) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.state == LogoutStateDone || f.state == LogoutStateFailed {
		return fmt.Errorf("logout flow is already terminal in state %s", f.state)
	}
	if to == LogoutStateFailed {
		f.state = to
		return nil
	}

	for _, allowed := range logoutTransitions[f.state] {
		if allowed == to {
			f.state = to
			return nil
		}
	}

	return fmt.Errorf("invalid logout state transition from %s to %s", f.state, to)
}

// terminal returns true once the flow reached done or failed.
func (f *logoutFlow) terminal() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.state == LogoutStateDone || f.state == LogoutStateFailed
}
