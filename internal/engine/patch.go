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
	"strings"

	"opslog/internal/recordkey"
	"opslog/internal/telemetry"
	"opslog/pkg/spec"
)

// diffLine is one bundled line of a ".diff" response payload.
type diffLine struct {
	spec  string // suffix only: the object prefix is not repeated per line
	value string
}

// renderDiff joins diffLine entries into the wire-exact "\tspec\tvalue\n"
// payload (spec.md §6).
func renderDiff(lines []diffLine) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteByte('\t')
		b.WriteString(l.spec)
		b.WriteByte('\t')
		b.WriteString(l.value)
		b.WriteByte('\n')
	}
	return b.String()
}

// onHandler implements the "on" subscription handler and the patch builder
// it drives (spec.md §4.4). hostID is this engine's own replica id, used to
// suppress a reciprocal "on" that would otherwise loop back to its origin.
func onHandler(hostID string, cfg Config, sp spec.Spec, op Op) handler {
	base := op.Value
	return func(rq *Request) (bool, error) {
		rq.onSource = op.Source
		var lines []diffLine
		sendPatch := base != "~" // "~" means "no patches please": skip patch construction entirely.
		if sendPatch {
			ready, built, err := buildPatch(rq, base)
			if err != nil {
				return false, err
			}
			if !ready {
				return false, nil
			}
			lines = built
		}

		reciprocalBase, suppress, ready, err := reciprocal(rq, hostID, op.Source, base)
		if err != nil {
			return false, err
		}
		if !ready {
			return false, nil
		}

		objPrefix := sp.ObjectPrefix()
		if sendPatch {
			rq.Responses = append(rq.Responses, Op{Spec: objPrefix + ".diff", Value: renderDiff(lines)})
		}
		if !suppress {
			rq.Responses = append(rq.Responses, Op{Spec: objPrefix + ".on", Value: reciprocalBase})
		}
		return true, nil
	}
}

// buildPatch dispatches on the shape of base and returns the bundled patch
// lines once the scan has loaded enough of the log to answer definitively.
func buildPatch(rq *Request, base string) (ready bool, lines []diffLine, err error) {
	switch {
	case base == "":
		telemetry.ObservePatchShape("empty")
		return patchFromEmpty(rq)
	case base == "!~":
		telemetry.ObservePatchShape("no_patches")
		return true, nil, nil
	case base == "-":
		telemetry.ObservePatchShape("bookmark")
		ebm, ok := rq.echoBookmark(rq.onSource)
		if !ok {
			return false, nil, newErrorf(KindErrBaseUnparseable, "base unparseable: %q", base)
		}
		vv := spec.NewMap(spec.Token{Sigil: spec.Ver, Bare: ebm.Timestamp, Ext: ebm.Source})
		return patchFromVector(rq, vv)
	default:
		vv, ok := parseVersionVectorBase(base)
		if !ok {
			return false, nil, newErrorf(KindErrBaseUnparseable, "base unparseable: %q", base)
		}
		telemetry.ObservePatchShape("vector")
		return patchFromVector(rq, vv)
	}
}

// parseVersionVectorBase accepts a base string only if it parses as one or
// more "!timestamp+source" tokens and nothing else — the wire shape shared
// by a single bookmark and a general version vector. A lone version token
// is deliberately routed through the same general-vector path as a
// multi-entry one (case 3's "treat as case 5" instruction, and scenario 5
// of spec.md §8, both exercise a one-entry base through the richer
// recent-state-aware path), so this implementation does not special-case a
// single-token "bookmark" shape during patch construction.
func parseVersionVectorBase(base string) (spec.Map, bool) {
	sp, err := spec.Parse(base)
	if err != nil || len(sp.Tokens()) == 0 {
		return nil, false
	}
	for _, t := range sp.Tokens() {
		if t.Sigil != spec.Ver {
			return nil, false
		}
	}
	return spec.NewMap(sp.Tokens()...), true
}

// patchFromEmpty implements case 1: peer has nothing, send the most recent
// snapshot plus every op not covered by it.
func patchFromEmpty(rq *Request) (bool, []diffLine, error) {
	recentVV, ok := rq.recentState()
	if !ok {
		return true, nil, nil // stateless object: nothing to send yet.
	}
	// The snapshot's own key is the verbatim wire suffix, its tokens
	// ordered alphabetically by source (spec.md §6) rather than by
	// timestamp magnitude, so its first token is not necessarily the one
	// holding MaxTs. Scanning from MinTs is the only bound guaranteed to
	// sort at or below that first token regardless of which source comes
	// first alphabetically.
	target := spec.Version{Timestamp: recentVV.MinTs()}
	if !rq.markLoaded(target) {
		rq.extendLog(target)
		return false, nil, nil
	}
	if !rq.backrefsLoaded() {
		return false, nil, nil
	}

	var lines []diffLine
	for _, r := range rq.log {
		if r.parsed.Kind == recordkey.KindStateSnapshot && r.parsed.VV.String() == recentVV.String() {
			lines = append(lines, diffLine{spec: r.parsed.Raw, value: r.value})
			break
		}
	}
	for _, r := range rq.log {
		if r.parsed.Kind != recordkey.KindOp {
			continue
		}
		if recentVV.Covers(r.parsed.Version) {
			continue
		}
		lines = append(lines, diffLine{spec: r.parsed.Raw, value: r.value})
	}
	return true, lines, nil
}

// patchFromVector implements case 5 (and, per parseVersionVectorBase's
// doc, the degenerate single-entry case the spec separately numbers as
// case 4): scan from recent_state's tip if it already covers base, else
// fall back to the documented full-log scan from "!0".
func patchFromVector(rq *Request, baseVV spec.Map) (bool, []diffLine, error) {
	recentVV, hasRecent := rq.recentState()
	var target spec.Version
	if hasRecent && recentVV.CoversAll(baseVV) {
		target = spec.Version{Timestamp: recentVV.MaxTs()}
	} else {
		target = spec.Version{Timestamp: "0"}
	}
	if !rq.markLoaded(target) {
		rq.extendLog(target)
		return false, nil, nil
	}
	if !rq.backrefsLoaded() {
		return false, nil, nil
	}

	var lines []diffLine
	for _, r := range rq.log {
		if r.parsed.Kind != recordkey.KindOp {
			continue
		}
		if baseVV.Covers(r.parsed.Version) {
			continue
		}
		lines = append(lines, diffLine{spec: r.parsed.Raw, value: r.value})
	}
	return true, lines, nil
}

// reciprocal implements the reciprocal-subscription-choice table of
// spec.md §4.4. onSource is the immediate sender of the "on" op; onHandler
// has already stored it on rq before buildPatch ran, which is what lets
// buildPatch's "-" case look up the right echo bookmark.
func reciprocal(rq *Request, hostID, onSource, base string) (recBase string, suppress bool, ready bool, err error) {
	rq.onSource = onSource
	if onSource == hostID {
		return "", true, true, nil
	}

	if _, hasBaseState := rq.baseState(); !hasBaseState {
		return "", false, true, nil
	}

	if base == "" {
		return rq.tip().String(), false, true, nil
	}

	if bm, ok := rq.bookmark(onSource); ok {
		return bm.String(), false, true, nil
	}

	if isBookmarkShape(base) {
		return "", false, true, nil
	}

	recentVV, ok := rq.recentState()
	if !ok {
		recentVV = spec.Map{}
	}
	target := spec.Version{Timestamp: recentVV.MaxTs()}
	if !rq.markLoaded(target) {
		rq.extendLog(target)
		return "", false, false, nil
	}
	if !rq.backrefsLoaded() {
		return "", false, false, nil
	}
	vv := recentVV.Clone()
	for _, r := range rq.log {
		switch r.parsed.Kind {
		case recordkey.KindOp:
			vv.Add(r.parsed.Version)
		case recordkey.KindBackref:
			brvv, perr := spec.ParseMap(r.value)
			if perr == nil {
				for source, ts := range brvv {
					vv.Add(spec.Version{Timestamp: ts, Source: source})
				}
			}
		}
	}
	return vv.String(), false, true, nil
}

// isBookmarkShape reports whether base is the echo-bookmark sentinel or a
// single version token — the "peer already knows via its echo bookmark"
// branch of the reciprocal table.
func isBookmarkShape(base string) bool {
	if base == "-" {
		return true
	}
	sp, err := spec.Parse(base)
	if err != nil {
		return false
	}
	toks := sp.Tokens()
	return len(toks) == 1 && toks[0].Sigil == spec.Ver
}
