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

// Package host defines the boundary between the engine and whatever
// transport carries ops to and from other replicas (spec.md §5: the engine
// itself is transport-agnostic). A Host both accepts ops the engine wants
// to send outward and is the thing the engine's caller feeds incoming ops
// into.
package host

// Host is anything that can receive an outgoing Op from the engine — a
// peer connection, a test recorder, or (via Loopback) the same process.
type Host interface {
	Deliver(op Op)
}

// Op mirrors engine.Op's wire shape without importing the engine package,
// so host implementations do not need to depend on dispatch internals.
type Op struct {
	Spec   string
	Value  string
	Source string
}

// Func adapts a plain function to the Host interface.
type Func func(op Op)

func (f Func) Deliver(op Op) { f(op) }
