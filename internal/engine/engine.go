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

// Package engine implements the causal operation-log store: parsing and
// classifying incoming ops, building subscription patches, and serializing
// per-object writes over a pluggable KV backend.
package engine

import (
	"context"

	"opslog/internal/kvstore"
)

// Deliverer is the one thing the engine needs from its Host: a way to hand
// an outgoing Op to whatever carries it to a peer, or loops it back to a
// local subscriber.
type Deliverer interface {
	Deliver(op Op)
}

// Engine ties a KV backend, a Config, and a Deliverer together behind a
// sharded pool of per-shard Queues (spec.md §4.8, widened in
// SPEC_FULL.md's shard-router expansion for inter-object parallelism).
type Engine struct {
	backend kvstore.Backend
	router  *ShardRouter
}

// New constructs an Engine. hostID is this replica's own id, used to
// suppress loop-back "on" reciprocation (spec.md §4.4).
func New(backend kvstore.Backend, cfg Config, hostID string, host Deliverer) *Engine {
	cfg = cfg.WithDefaults()
	router := NewShardRouter(cfg.Shards, func(int) *Queue {
		return NewQueue(backend, cfg, hostID, host.Deliver)
	})
	return &Engine{backend: backend, router: router}
}

// Submit enqueues an incoming Op for processing, routed to its object's
// shard. If that shard's Queue is idle, Submit dispatches on the calling
// goroutine, and the responses (or a synthesized ".error") reach the
// Deliverer given to New before it returns; if the Queue is busy, the op is
// left for the goroutine already draining it.
func (e *Engine) Submit(ctx context.Context, op Op) {
	e.router.Route(objectPrefixOf(op.Spec)).Push(ctx, op)
}

// Close releases the underlying backend. Queued-but-undispatched ops are
// discarded; Submit must not be called after Close.
func (e *Engine) Close() error {
	return e.backend.Close()
}
