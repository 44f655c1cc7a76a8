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

import (
	"context"

	"opslog/internal/engine"
)

// EngineAdapter implements engine.Deliverer on top of a Host, translating
// between the two packages' identical but independently-declared Op types
// so neither package has to import the other's concrete struct.
type EngineAdapter struct {
	H Host
}

func (a EngineAdapter) Deliver(op engine.Op) {
	a.H.Deliver(Op{Spec: op.Spec, Value: op.Value, Source: op.Source})
}

// SubmitFunc adapts an *engine.Engine into the func(Op) shape Loopback.Peer
// expects, re-anchoring nothing — the engine is expected to be the peer
// replica's own Engine, and ctx is fixed at construction since Loopback's
// Peer signature carries no context.
func SubmitFunc(ctx context.Context, e *engine.Engine) func(Op) {
	return func(op Op) {
		e.Submit(ctx, engine.Op{Spec: op.Spec, Value: op.Value, Source: op.Source})
	}
}
