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

// Package recordkey builds and parses the byte keys the engine stores in
// the KV Adapter for one object's records (spec.md §3).
//
// The wire-level Spec grammar (sigils '/', '#', '!', '.') is what peers
// exchange in op payloads; it is not, byte-for-byte, what we use as a KV
// storage key. Plain ASCII puts '.' (0x2E) after '!' (0x21), which is
// backwards from the invariant this package must provide — manifest
// records ('.'-suffixed) must sort before every op/snapshot/backreference
// record ('!'-suffixed) so that a single cheap range scan can return all
// manifest records for an object. We get that ordering by prepending one
// internal tag byte per record group (never transmitted to a peer) ahead
// of the suffix text; within a group the original suffix text still sorts
// correctly because it is never reordered, only tagged.
package recordkey

import (
	"fmt"
	"strings"

	"opslog/pkg/spec"
)

const (
	tagMeta byte = 0x00 // '.'-suffixed manifest/bookmark records
	tagLog  byte = 0x01 // '!'-suffixed op/snapshot/backreference records
)

// ObjectPrefix renders the "/Type#Id" prefix shared by every record of one
// object.
func ObjectPrefix(typ, id string) string {
	return string(spec.Kind) + typ + string(spec.ID) + id
}

// PrefixEnd returns the smallest key that is strictly greater than every
// key with the given prefix, for use as the exclusive upper bound of a
// prefix scan (the teleport/etcd "next key" idiom).
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// prefix is all 0xff bytes; there is no finite upper bound, so scan to
	// the largest possible key instead of wrapping.
	return string(append(b, 0xff))
}

// Kind identifies which of the eight record classes a parsed key names.
type Kind int

const (
	KindBaseState Kind = iota
	KindRecentState
	KindTip
	KindBookmark
	KindEchoBookmark
	KindOp
	KindStateSnapshot
	KindBackref
)

func (k Kind) String() string {
	switch k {
	case KindBaseState:
		return "base_state"
	case KindRecentState:
		return "recent_state"
	case KindTip:
		return "tip"
	case KindBookmark:
		return "bookmark"
	case KindEchoBookmark:
		return "echo_bookmark"
	case KindOp:
		return "op"
	case KindStateSnapshot:
		return "state_snapshot"
	case KindBackref:
		return "backref"
	default:
		return "unknown"
	}
}

// --- meta-group key builders ---

func BaseState(prefix string) string { return prefix + string(tagMeta) + ".base_state" }

func RecentState(prefix string) string { return prefix + string(tagMeta) + ".recent_state" }

func Tip(prefix string) string { return prefix + string(tagMeta) + ".tip" }

func Bookmark(prefix, source string) string { return prefix + string(tagMeta) + ".bm&" + source }

func EchoBookmark(prefix, source string) string {
	return prefix + string(tagMeta) + ".ebm&" + source
}

// --- log-group key builders ---

// Op builds the key for one operation record. The real op name (e.g.
// "set") is kept in the key, not a generic placeholder, because a
// subscription patch must reproduce the op's original wire spec
// (".../!version.<opname>") verbatim — only "state" and "~br" are reserved
// op names, used exclusively by StateSnapshot and Backref respectively.
func Op(prefix string, v spec.Version, opName string) string {
	return prefix + string(tagLog) + v.String() + "." + opName
}

// StateSnapshot builds the key for one state-snapshot record. rawSuffix is
// the literal "!v1!v2....state" text of the op that created it — kept
// verbatim, duplicate version tokens and all, rather than re-rendered from
// a deduplicated Map, so a later subscription patch reproduces the
// snapshot's original wire line exactly (spec.md §8 scenario 1).
func StateSnapshot(prefix, rawSuffix string) string {
	return prefix + string(tagLog) + rawSuffix
}

func Backref(prefix string, tip spec.Version) string {
	return prefix + string(tagLog) + tip.String() + ".~br"
}

// --- scan ranges ---

// MetaRange returns the half-open [gte, lt) range that contains exactly
// the manifest/bookmark records of the object at prefix — a cheap,
// bounded scan regardless of how long the operation log has grown.
func MetaRange(prefix string) (gte, lt string) {
	return prefix + string(tagMeta), prefix + string(tagLog)
}

// LogRange returns the half-open [gte, lt) range that contains every
// op/snapshot/backreference record of the object at prefix.
func LogRange(prefix string) (gte, lt string) {
	return prefix + string(tagLog), PrefixEnd(prefix)
}

// LogRangeFrom returns the half-open [gte, lt) range starting at the
// given version (inclusive) through the end of the object's log group —
// the tail-read this engine is built around.
func LogRangeFrom(prefix string, from spec.Version) (gte, lt string) {
	return prefix + string(tagLog) + from.String(), PrefixEnd(prefix)
}

// FullRange returns the half-open [gte, lt) range containing every record
// (meta and log) of the object at prefix. Scanning it is the one
// documented worst case spec.md §1 allows (full-log fallback in patch
// case 5 when recent_state does not cover the peer's base).
func FullRange(prefix string) (gte, lt string) {
	return prefix + string(tagMeta), PrefixEnd(prefix)
}

// Parsed is the decoded form of one record key, relative to its object
// prefix.
type Parsed struct {
	Kind    Kind
	Source  string       // Bookmark / EchoBookmark
	Version spec.Version // Op / Backref (the op's or the backref's indexing tip)
	VV      spec.Map     // StateSnapshot: deduplicated, for set-membership math
	OpName  string       // Op only: the real op name, e.g. "set"
	Raw     string       // log-group kinds only: the verbatim suffix text, as stored
}

// Parse decodes a full record key given the object prefix it was built
// with.
func Parse(prefix, key string) (Parsed, error) {
	if !strings.HasPrefix(key, prefix) {
		return Parsed{}, fmt.Errorf("recordkey: key %q does not have prefix %q", key, prefix)
	}
	rest := key[len(prefix):]
	if rest == "" {
		return Parsed{}, fmt.Errorf("recordkey: key %q has no suffix past prefix %q", key, prefix)
	}
	tag, body := rest[0], rest[1:]
	switch tag {
	case tagMeta:
		return parseMeta(body)
	case tagLog:
		return parseLog(body)
	default:
		return Parsed{}, fmt.Errorf("recordkey: key %q has unrecognized tag byte %#x", key, tag)
	}
}

func parseMeta(body string) (Parsed, error) {
	switch {
	case body == ".base_state":
		return Parsed{Kind: KindBaseState}, nil
	case body == ".recent_state":
		return Parsed{Kind: KindRecentState}, nil
	case body == ".tip":
		return Parsed{Kind: KindTip}, nil
	case strings.HasPrefix(body, ".bm&"):
		return Parsed{Kind: KindBookmark, Source: body[len(".bm&"):]}, nil
	case strings.HasPrefix(body, ".ebm&"):
		return Parsed{Kind: KindEchoBookmark, Source: body[len(".ebm&"):]}, nil
	default:
		return Parsed{}, fmt.Errorf("recordkey: unrecognized manifest suffix %q", body)
	}
}

func parseLog(body string) (Parsed, error) {
	sp, err := spec.Parse(body)
	if err != nil {
		return Parsed{}, fmt.Errorf("recordkey: %w", err)
	}
	vv := spec.NewMap(sp.Filter(spec.Ver)...)
	v, _ := sp.Version()
	switch name := sp.Op(); name {
	case "":
		return Parsed{}, fmt.Errorf("recordkey: log suffix %q has no op name", body)
	case "state":
		return Parsed{Kind: KindStateSnapshot, VV: vv, Raw: body}, nil
	case "~br":
		return Parsed{Kind: KindBackref, Version: v, Raw: body}, nil
	default:
		return Parsed{Kind: KindOp, Version: v, OpName: name, Raw: body}, nil
	}
}
