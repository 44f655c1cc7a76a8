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
	"context"
	"sync"
	"testing"
	"time"

	"opslog/internal/kvstore"
	"opslog/internal/recordkey"
)

// gateOnceBackend blocks the first Scan call on gate, then behaves exactly
// like the wrapped backend. Used to hold a Dispatch call open so a test can
// Push further ops while the queue is busy but nothing has drained yet.
type gateOnceBackend struct {
	kvstore.Backend
	gate chan struct{}
	once sync.Once
}

func (g *gateOnceBackend) Scan(ctx context.Context, gte, lt string) (kvstore.Iterator, error) {
	g.once.Do(func() { <-g.gate })
	return g.Backend.Scan(ctx, gte, lt)
}

// waitUntilBusy polls q's internal busy flag until it is set, with a test
// timeout — used to synchronize a test goroutine with a Push that is
// draining on another goroutine, without sleeping a fixed duration.
func waitUntilBusy(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		q.mu.Lock()
		busy := q.busy
		q.mu.Unlock()
		if busy {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("queue never became busy")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueueFIFOPerObject(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	prefix := recordkey.ObjectPrefix("T", "A")
	seed(t, ctx, be, prefix, "01", "X")

	var mu sync.Mutex
	var delivered []Op
	q := NewQueue(be, Config{}, "H", func(op Op) {
		mu.Lock()
		delivered = append(delivered, op)
		mu.Unlock()
	})

	q.Push(ctx, Op{Spec: "/T#A!02+X.set", Value: "a"})
	q.Push(ctx, Op{Spec: "/T#A!03+X.set", Value: "b"})
	q.Push(ctx, Op{Spec: "/T#A!04+X.set", Value: "c"})

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 3 {
		t.Fatalf("delivered %d ops, want 3: %+v", len(delivered), delivered)
	}
	want := []string{"/T#A!02+X.set", "/T#A!03+X.set", "/T#A!04+X.set"}
	for i, w := range want {
		if delivered[i].Spec != w {
			t.Errorf("delivered[%d].Spec = %q, want %q", i, delivered[i].Spec, w)
		}
	}
}

func TestQueueUnbundlesDiffInOrder(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	prefix := recordkey.ObjectPrefix("T", "A")
	seed(t, ctx, be, prefix, "01", "X")

	var delivered []Op
	q := NewQueue(be, Config{}, "H", func(op Op) {
		delivered = append(delivered, op)
	})

	payload := "\t!02+X.set\ta\n\t!03+X.set\tb\n"
	q.Push(ctx, Op{Spec: "/T#A.diff", Value: payload, Source: "P"})

	if len(delivered) != 2 {
		t.Fatalf("delivered %d ops, want 2 (both unbundled inner ops): %+v", len(delivered), delivered)
	}
	if delivered[0].Spec != "/T#A!02+X.set" || delivered[1].Spec != "/T#A!03+X.set" {
		t.Errorf("delivered = %+v, want inner ops in payload order", delivered)
	}
}

// TestQueueDiffDoesNotJumpAheadOfQueuedOp covers spec.md §4.8's ordering
// requirement directly: a same-object op already waiting in the queue
// (behind an in-flight dispatch) must drain before the inner ops of a diff
// that arrives afterward, even though the diff's inner ops used to be
// unbundled and pushed to the front at enqueue time.
func TestQueueDiffDoesNotJumpAheadOfQueuedOp(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemory()
	prefix := recordkey.ObjectPrefix("T", "A")
	seed(t, ctx, mem, prefix, "01", "X")

	gate := make(chan struct{})
	be := &gateOnceBackend{Backend: mem, gate: gate}

	var mu sync.Mutex
	var delivered []Op
	q := NewQueue(be, Config{}, "H", func(op Op) {
		mu.Lock()
		delivered = append(delivered, op)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.Push(ctx, Op{Spec: "/T#A!02+X.set", Value: "a"})
		close(done)
	}()

	// Block until op1's Push has marked the queue busy, so the following
	// Pushes enqueue without draining synchronously.
	waitUntilBusy(t, q)

	// op2: queued behind op1, still waiting when the diff below arrives.
	q.Push(ctx, Op{Spec: "/T#A!03+X.set", Value: "b"})

	// A diff bundling two further ops, arriving after op2 was already
	// queued. Its inner ops must drain after op2, not before it.
	payload := "\t!04+X.set\tc\n\t!05+X.set\td\n"
	q.Push(ctx, Op{Spec: "/T#A.diff", Value: payload, Source: "P"})

	close(gate) // release op1's blocked Scan call
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/T#A!02+X.set", "/T#A!03+X.set", "/T#A!04+X.set", "/T#A!05+X.set"}
	if len(delivered) != len(want) {
		t.Fatalf("delivered %d ops, want %d: %+v", len(delivered), len(want), delivered)
	}
	for i, w := range want {
		if delivered[i].Spec != w {
			t.Errorf("delivered[%d].Spec = %q, want %q (diff must not jump ahead of already-queued op2)", i, delivered[i].Spec, w)
		}
	}
}

func TestQueueDeliversErrorOpOnDispatchFailure(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()

	var delivered []Op
	q := NewQueue(be, Config{}, "H", func(op Op) {
		delivered = append(delivered, op)
	})

	// No such object exists yet: the anyop path must fail with
	// KindErrNoSuchObject, synthesized by the queue as a ".error" op.
	q.Push(ctx, Op{Spec: "/T#A!05+X.set", Value: "v"})

	if len(delivered) != 1 {
		t.Fatalf("delivered %d ops, want 1 synthesized .error", len(delivered))
	}
	if delivered[0].Spec != "/T#A.error" {
		t.Errorf("delivered[0].Spec = %q, want /T#A.error", delivered[0].Spec)
	}
}
