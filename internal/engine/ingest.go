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
	"opslog/internal/kvstore"
	"opslog/internal/recordkey"
	"opslog/internal/telemetry"
	"opslog/pkg/spec"
)

// ingestOp implements the regular-op ingestor ("anyop", spec.md §4.6): it
// classifies op as no-such-object / echo / late-arrival (causal violation,
// replay, or reorder) / new-in-order, and populates rq.Writes/rq.Responses
// accordingly.
func ingestOp(cfg Config, sp spec.Spec, op Op) handler {
	v, _ := sp.Version()
	opName := sp.Op()
	return func(rq *Request) (bool, error) {
		if !rq.hasTip() {
			return false, newErrorf(KindErrNoSuchObject, "no such object")
		}
		tip := rq.tip()

		switch {
		case v.Equal(tip):
			rq.Writes = append(rq.Writes, putMeta(recordkey.EchoBookmark(rq.prefix, op.Source), tip.String()))
			telemetry.ObserveOp("echo")
			return true, nil

		case v.Less(tip):
			if !rq.markLoaded(v) {
				rq.extendLog(v)
				return false, nil
			}
			return lateArrival(cfg, rq, opName, op, v, tip)

		default: // v > tip, new in-order
			rq.Writes = append(rq.Writes,
				kvstore.Write{Kind: kvstore.Put, Key: recordkey.Op(rq.prefix, v, opName), Value: op.Value},
				putMeta(recordkey.Tip(rq.prefix), v.String()),
			)
			if cfg.Bookmarking {
				rq.Writes = append(rq.Writes, putMeta(recordkey.Bookmark(rq.prefix, op.Source), v.String()))
			}
			rq.Responses = append(rq.Responses, op)
			telemetry.ObserveOp("accepted")
			return true, nil
		}
	}
}

func lateArrival(cfg Config, rq *Request, opName string, op Op, v, tip spec.Version) (bool, error) {
	if len(rq.log) > cfg.MaxLogSize {
		telemetry.ObserveLogSizeThresholdCrossed()
	}
	for _, r := range rq.log {
		if r.parsed.Kind != recordkey.KindOp || r.parsed.Version.Source != v.Source {
			continue
		}
		switch {
		case v.Less(r.parsed.Version):
			return false, newErrorf(KindErrOutOfOrder, "op is out of order")
		case r.parsed.Version.Equal(v):
			telemetry.ObserveOp("replay")
			return true, nil
		}
	}

	rq.Writes = append(rq.Writes, kvstore.Write{Kind: kvstore.Put, Key: recordkey.Op(rq.prefix, v, opName), Value: op.Value})

	// invariant 3 plus the §9 open-question resolution: the "earliest
	// reorder wins" guard is scoped to the backref record keyed by the
	// CURRENT tip. A reorder observed at a new, higher tip always starts a
	// fresh record rather than consulting an older tip's record.
	brKey := recordkey.Backref(rq.prefix, tip)
	existing, _ := lookupLogValue(rq, brKey)
	vv, _ := spec.ParseMap(existing)
	if _, present := vv[v.Source]; !present {
		vv = vv.Clone()
		vv.Add(v)
		rq.Writes = append(rq.Writes, kvstore.Write{Kind: kvstore.Put, Key: brKey, Value: vv.String()})
		telemetry.ObserveBackrefWrite()
	}

	if cfg.Bookmarking {
		rq.Writes = append(rq.Writes, putMeta(recordkey.Bookmark(rq.prefix, op.Source), v.String()))
	}
	rq.Responses = append(rq.Responses, op)
	telemetry.ObserveOp("reorder")
	return true, nil
}

func lookupLogValue(rq *Request, key string) (string, bool) {
	for _, r := range rq.log {
		if r.key == key {
			return r.value, true
		}
	}
	return "", false
}

func putMeta(key, value string) kvstore.Write {
	return kvstore.Write{Kind: kvstore.Put, Key: key, Value: value}
}
