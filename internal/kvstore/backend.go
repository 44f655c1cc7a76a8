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

// Package kvstore defines the minimal ordered key-value contract the
// engine depends on (spec.md §6) and ships two implementations: an
// in-memory backend for tests and the demo binary, and a BoltDB-backed
// backend for durable single-node use.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kvstore: key not found")

// WriteKind distinguishes a Put from a Del within a Batch.
type WriteKind int

const (
	Put WriteKind = iota
	Del
)

// Write is one mutation within an atomic Batch.
type Write struct {
	Kind  WriteKind
	Key   string
	Value string
}

// KV is a single key/value pair returned by a scan.
type KV struct {
	Key   string
	Value string
}

// emptyMarker substitutes for a literal empty value on backends that
// cannot represent one; Backend implementations restore it to "" on read
// (spec.md §6).
const emptyMarker = " "

// encodeValue applies the empty-value substitution described in spec.md §6.
func encodeValue(v string) string {
	if v == "" {
		return emptyMarker
	}
	return v
}

// decodeValue reverses encodeValue.
func decodeValue(v string) string {
	if v == emptyMarker {
		return ""
	}
	return v
}

// Iterator streams the results of a Scan in ascending key order. Callers
// must call Close when done, even after an error or early exit.
type Iterator interface {
	// Next advances the iterator and reports whether a result is
	// available. It returns false at end of range or on error; callers
	// must then check Err.
	Next() bool
	// Key and Value return the current result. Valid only after a Next
	// call that returned true.
	Key() string
	Value() string
	// Err returns the first error encountered, if any.
	Err() error
	// Close releases resources held by the iterator.
	Close() error
}

// Backend is the ordered key-value contract the engine depends on. Get is
// a point read; Scan is a half-open ascending range read over [gte, lt);
// Batch commits a list of writes atomically.
type Backend interface {
	// Get returns the value stored at key, or ErrNotFound if absent.
	Get(ctx context.Context, key string) (string, error)

	// Scan returns a streamed, ascending iterator over keys in
	// [gte, lt). An empty lt means "no upper bound".
	Scan(ctx context.Context, gte, lt string) (Iterator, error)

	// Batch commits writes atomically: either all of them are applied or
	// none are.
	Batch(ctx context.Context, writes []Write) error

	// Close releases resources held by the backend. Safe to call once.
	Close() error
}

// ScanAll drains an Iterator into a slice. Convenience for callers (like
// the engine's Request loader) that need the whole bounded range at once
// rather than streaming it.
func ScanAll(ctx context.Context, b Backend, gte, lt string) ([]KV, error) {
	it, err := b.Scan(ctx, gte, lt)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []KV
	for it.Next() {
		out = append(out, KV{Key: it.Key(), Value: it.Value()})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
