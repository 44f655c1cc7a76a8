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

import "sort"

// Map is a version vector: source -> the maximum timestamp accepted from
// that source. The zero value is a valid, empty vector.
//
// Map instances are not safe to share mutably across Requests (see the
// "VersionMap aliasing" design note): callers that need an independent
// copy must call Clone first. Map itself never aliases internal state
// behind the caller's back — every constructor below returns a freshly
// allocated map.
type Map map[string]string

// NewMap builds a Map from a set of tokens, keeping the maximum timestamp
// per source. This is how a Spec's Filter(Ver) result becomes a version
// vector.
func NewMap(tokens ...Token) Map {
	m := make(Map, len(tokens))
	for _, t := range tokens {
		m.raise(t.Ext, t.Bare)
	}
	return m
}

// ParseMap parses a rendered version-vector string (a concatenation of
// "!timestamp+source" tokens) into a Map.
func ParseMap(s string) (Map, error) {
	sp, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return NewMap(sp.Filter(Ver)...), nil
}

// Clone returns an independent copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m Map) raise(source, ts string) {
	if cur, ok := m[source]; !ok || ts > cur {
		m[source] = ts
	}
}

// Add monotonically raises the entry for v.Source to v.Timestamp if it is
// larger than what is already recorded (or absent). Mutates m in place;
// callers that must not mutate a shared Map should Clone first.
func (m *Map) Add(v Version) {
	if *m == nil {
		*m = make(Map)
	}
	(*m).raise(v.Source, v.Timestamp)
}

// Covers reports whether m has accepted v, i.e. its recorded timestamp for
// v.Source is greater than or equal to v.Timestamp.
func (m Map) Covers(v Version) bool {
	cur, ok := m[v.Source]
	if !ok {
		return false
	}
	return cur >= v.Timestamp
}

// CoversAll reports whether m covers every entry of other (componentwise
// m[source] >= other[source] for all sources in other).
func (m Map) CoversAll(other Map) bool {
	for source, ts := range other {
		cur, ok := m[source]
		if !ok || cur < ts {
			return false
		}
	}
	return true
}

// MaxTs returns the largest timestamp recorded across all sources, or the
// empty string if m is empty.
func (m Map) MaxTs() string {
	var max string
	for _, ts := range m {
		if ts > max {
			max = ts
		}
	}
	return max
}

// MinTs returns the smallest timestamp recorded across all sources, or the
// empty string if m is empty.
func (m Map) MinTs() string {
	var min string
	first := true
	for _, ts := range m {
		if first || ts < min {
			min = ts
			first = false
		}
	}
	return min
}

// Union returns a new Map containing, for every source present in either m
// or other, the larger of the two timestamps.
func (m Map) Union(other Map) Map {
	out := m.Clone()
	for source, ts := range other {
		out.raise(source, ts)
	}
	return out
}

// LowerUnion returns a new Map containing, for every source present in
// both m and other, the smaller (componentwise minimum) of the two
// timestamps. A source present in only one of the two inputs is omitted.
func (m Map) LowerUnion(other Map) Map {
	out := make(Map)
	for source, ts := range m {
		if ots, ok := other[source]; ok {
			if ots < ts {
				ts = ots
			}
			out[source] = ts
		}
	}
	return out
}

// Empty reports whether m has no entries.
func (m Map) Empty() bool { return len(m) == 0 }

// String renders m as a sorted-by-source concatenation of
// "!timestamp+source" tokens, the canonical wire form (spec.md §6).
func (m Map) String() string {
	sources := make([]string, 0, len(m))
	for s := range m {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	var b []byte
	for _, s := range sources {
		tok := Token{Sigil: Ver, Bare: m[s], Ext: s}
		b = append(b, tok.String()...)
	}
	return string(b)
}
