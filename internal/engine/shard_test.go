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
	"fmt"
	"testing"
)

func newTestRouter(n int) *ShardRouter {
	return NewShardRouter(n, func(i int) *Queue {
		return NewQueue(nil, Config{}, "H", func(Op) {})
	})
}

func TestShardRouterStableForSameObject(t *testing.T) {
	sr := newTestRouter(8)
	prefix := "/T#A"
	first := sr.Route(prefix)
	for i := 0; i < 100; i++ {
		if got := sr.Route(prefix); got != first {
			t.Fatalf("Route(%q) drifted across calls: got a different shard on iteration %d", prefix, i)
		}
	}
}

func TestShardRouterSpreadsAcrossObjects(t *testing.T) {
	sr := newTestRouter(8)
	hit := make(map[*Queue]int)
	for i := 0; i < 200; i++ {
		obj := fmt.Sprintf("/T#obj-%d", i)
		hit[sr.Route(obj)]++
	}
	if len(hit) < 2 {
		t.Fatalf("200 distinct objects over 8 shards landed on only %d shard(s), want spread", len(hit))
	}
}

func TestShardRouterSingleShardFallback(t *testing.T) {
	sr := newTestRouter(1)
	if got := sr.Shards(); len(got) != 1 {
		t.Fatalf("Shards() = %d, want 1", len(got))
	}
	if sr.Route("/T#A") != sr.Shards()[0] {
		t.Fatal("Route with a single shard must return that shard")
	}
}

func TestShardRouterNonPositiveCountDefaultsToOne(t *testing.T) {
	sr := newTestRouter(0)
	if len(sr.Shards()) != 1 {
		t.Fatalf("Shards() = %d for n<=0, want 1", len(sr.Shards()))
	}
}
