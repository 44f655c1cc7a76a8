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

package spec

import "fmt"

// Version is one "!timestamp+source" token identifying a single op.
// Timestamp embeds wall-clock-plus-counter semantics opaque to this
// package; ordering is plain lexicographic string comparison, which is
// why callers must keep timestamps rendered in a fixed-width, sortable
// form upstream (the engine never generates timestamps itself).
type Version struct {
	Timestamp string
	Source    string
}

// ParseVersion parses a single "!timestamp+source" token.
func ParseVersion(s string) (Version, error) {
	sp, err := Parse(s)
	if err != nil {
		return Version{}, err
	}
	v, ok := sp.Version()
	if !ok {
		return Version{}, fmt.Errorf("spec: %q is not a version token", s)
	}
	return v, nil
}

// String renders the canonical "!timestamp+source" form.
func (v Version) String() string {
	return string(Ver) + v.Timestamp + "+" + v.Source
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool { return v.Timestamp == "" && v.Source == "" }

// Less reports whether v sorts strictly before o by timestamp, using the
// source as a tiebreaker so that distinct versions with equal timestamps
// still total-order (two sources should never race-produce an identical
// timestamp in a well-behaved clock, but the tiebreaker keeps the
// comparison a strict order regardless).
func (v Version) Less(o Version) bool {
	if v.Timestamp != o.Timestamp {
		return v.Timestamp < o.Timestamp
	}
	return v.Source < o.Source
}

// Equal reports whether v and o denote the same version.
func (v Version) Equal(o Version) bool {
	return v.Timestamp == o.Timestamp && v.Source == o.Source
}
