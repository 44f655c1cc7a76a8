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

package engine

import (
	"container/list"
	"context"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"opslog/internal/kvstore"
	"opslog/internal/telemetry"
	"opslog/pkg/spec"
)

var queueSeq atomic.Int64

// Queue serializes the ops routed to one shard, which receives every op of
// each object it owns: spec.md §4.8 requires at
// most one Request in flight per object at a time, with a later op parked
// until the current one finishes. A bundled ".diff" is unbundled into its
// inner ops only once it reaches the front of the queue and is about to be
// dispatched, never at enqueue time — anything already queued ahead of it
// keeps its place (spec.md §4.8, §5's per-object FIFO guarantee).
type Queue struct {
	cfg     Config
	hostID  string
	backend kvstore.Backend
	deliver func(Op)
	label   string

	mu    sync.Mutex
	items *list.List // of Op
	busy  bool
}

// NewQueue constructs a Queue bound to one backend and one delivery
// callback (typically Host.Deliver).
func NewQueue(backend kvstore.Backend, cfg Config, hostID string, deliver func(Op)) *Queue {
	return &Queue{
		cfg:     cfg,
		hostID:  hostID,
		backend: backend,
		deliver: deliver,
		label:   strconv.FormatInt(queueSeq.Add(1), 10),
		items:   list.New(),
	}
}

// Push enqueues op as-is (a ".diff" is left bundled until drain-time). If
// no Request is currently running, Push drains the queue itself on the
// calling goroutine and returns once it is empty; if another call is
// already draining, Push only enqueues and returns at once. This keeps the
// one-Request-at-a-time guarantee without an extra worker goroutine per
// shard.
func (q *Queue) Push(ctx context.Context, op Op) {
	q.mu.Lock()
	q.enqueueLocked(op)
	if q.busy {
		q.mu.Unlock()
		return
	}
	q.busy = true
	q.mu.Unlock()
	q.drain(ctx)
}

func (q *Queue) enqueueLocked(op Op) {
	q.items.PushBack(op)
	telemetry.SetQueueDepth(q.label, q.items.Len())
}

// drain runs Dispatch for every queued op until the queue empties,
// delivering each response (or a synthesized ".error") to the Host in
// between (spec.md §4.9: "done" or "error", then drain the next item). A
// ".diff" is unbundled only here, right as it reaches the front and is
// about to be dispatched — not at enqueue time — so an op that was already
// waiting behind it in the queue is never jumped by a diff that arrives
// later (spec.md §4.8's per-object FIFO guarantee).
func (q *Queue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		front := q.items.Front()
		if front == nil {
			q.busy = false
			q.mu.Unlock()
			return
		}
		op := q.items.Remove(front).(Op)
		if sp, err := spec.Parse(op.Spec); err == nil && sp.Op() == "diff" {
			inner := UnbundleDiff(sp.ObjectPrefix(), op.Value, op.Source)
			for i := len(inner) - 1; i >= 0; i-- {
				q.items.PushFront(inner[i])
			}
			telemetry.SetQueueDepth(q.label, q.items.Len())
			q.mu.Unlock()
			continue
		}
		telemetry.SetQueueDepth(q.label, q.items.Len())
		q.mu.Unlock()

		responses, err := Dispatch(ctx, q.backend, q.cfg, q.hostID, op)
		if err != nil {
			objPrefix := objectPrefixOf(op.Spec)
			log.Printf("engine: %s failed: %v", op.Spec, err)
			q.deliver(errorOp(objPrefix, err))
			continue
		}
		for _, r := range responses {
			q.deliver(r)
		}
	}
}

// objectPrefixOf extracts "/Type#Id" from a full op spec, tolerating a spec
// that failed to parse entirely (the raw text is reused as a best-effort
// prefix so the error op still names something recognizable).
func objectPrefixOf(rawSpec string) string {
	sp, err := spec.Parse(rawSpec)
	if err != nil {
		return rawSpec
	}
	return sp.ObjectPrefix()
}
