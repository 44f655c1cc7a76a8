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

// Package engine implements the causal operation-log storage engine: the
// reentrant Request loop, the op dispatcher, the subscription patch
// builder, the regular-op ingestor, and the per-shard FIFO queues that
// give same-object ops strict ordering while letting different objects
// proceed in parallel.
package engine

import "runtime"

// Config holds the recognized engine-wide options (spec.md §6).
type Config struct {
	// Bookmarking, when true, writes ".bm&source" on every accepted
	// regular op so a later subscription from that peer can resume from
	// a log bookmark instead of a version vector.
	Bookmarking bool

	// MaxLogSize is an advisory threshold: when a late-arriving op's scan
	// loads more than MaxLogSize log records, the engine increments the
	// log-size-threshold metric. It writes no log line and never compacts;
	// other ops do not check the threshold. The compaction decision stays
	// with the Host (spec.md §9).
	MaxLogSize int

	// Shards is the number of Shard Router queues. Every op for one
	// object always lands on the same shard, so Shards bounds how many
	// objects can be processed concurrently. 0 or negative defaults to
	// runtime.GOMAXPROCS(0).
	Shards int
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// their documented defaults.
func (cfg Config) WithDefaults() Config {
	out := cfg
	if out.MaxLogSize <= 0 {
		out.MaxLogSize = 10
	}
	if out.Shards <= 0 {
		out.Shards = runtime.GOMAXPROCS(0)
	}
	return out
}
