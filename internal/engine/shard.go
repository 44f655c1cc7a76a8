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
	"strconv"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
)

// ShardRouter assigns each object's Queue to one of a fixed pool of shards
// by rendezvous (highest-random-weight) hashing on the object prefix. Two
// ops for the same object always land on the same shard and so serialize
// through the same Queue (spec.md §4.8's per-object ordering); ops for
// different objects land on different shards whenever HRW spreads them
// there, giving the engine inter-object parallelism the log-structured
// design otherwise leaves on the table (SPEC_FULL.md's shard-router
// expansion, grounded on the teacher's sharded rate-limiter bucket
// routing).
type ShardRouter struct {
	rv     *rendezvous.Rendezvous
	shards []*Queue
}

// NewShardRouter builds a router over n shards (at least one), constructing
// one Queue per shard by calling newQueue with the shard's index.
func NewShardRouter(n int, newQueue func(shardIdx int) *Queue) *ShardRouter {
	if n <= 0 {
		n = 1
	}
	nodes := make([]string, n)
	shards := make([]*Queue, n)
	for i := 0; i < n; i++ {
		nodes[i] = strconv.Itoa(i)
		shards[i] = newQueue(i)
	}
	rv := rendezvous.New(nodes, xxhash.Sum64String)
	return &ShardRouter{rv: rv, shards: shards}
}

// Route returns the Queue responsible for objPrefix.
func (sr *ShardRouter) Route(objPrefix string) *Queue {
	node := sr.rv.Lookup(objPrefix)
	idx, err := strconv.Atoi(node)
	if err != nil || idx < 0 || idx >= len(sr.shards) {
		return sr.shards[0]
	}
	return sr.shards[idx]
}

// Shards returns every shard's Queue, in index order — used by tests that
// need to address a specific shard directly.
func (sr *ShardRouter) Shards() []*Queue { return sr.shards }
