// Copyright 2025 The Opslog Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package host

import "sync"

// Loopback is a Host that records every delivered Op and, if Peer is set,
// resubmits it to a paired engine as though it arrived over the wire —
// useful for exercising two replicas within a single test process without
// a real transport.
type Loopback struct {
	mu  sync.Mutex
	log []Op

	// Peer receives a copy of every delivered Op when non-nil. It is set
	// after construction (wiring two Loopbacks to each other requires
	// both to exist first).
	Peer func(op Op)
}

// NewLoopback constructs an idle Loopback; call SetPeer before use if the
// Op stream should be replayed to another engine.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// SetPeer wires this Loopback's delivered ops to fn, typically another
// Engine's Submit.
func (l *Loopback) SetPeer(fn func(op Op)) {
	l.mu.Lock()
	l.Peer = fn
	l.mu.Unlock()
}

// Deliver implements Host: it records op and, if a peer is wired, hands it
// a copy.
func (l *Loopback) Deliver(op Op) {
	l.mu.Lock()
	l.log = append(l.log, op)
	peer := l.Peer
	l.mu.Unlock()
	if peer != nil {
		peer(op)
	}
}

// Log returns every Op delivered so far, in delivery order.
func (l *Loopback) Log() []Op {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Op(nil), l.log...)
}

// Reset clears the recorded log without touching the wired peer.
func (l *Loopback) Reset() {
	l.mu.Lock()
	l.log = nil
	l.mu.Unlock()
}
