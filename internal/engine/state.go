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
	"opslog/pkg/spec"
)

// swarmAuthor is the reserved author name for a base-state overwrite
// (spec.md §9: declared not implemented, left as a typed reserved error).
const swarmAuthor = "swarm"

// stateHandler implements the state-snapshot handler of spec.md §4.5.
func stateHandler(hostID string, sp spec.Spec, op Op) handler {
	vv := spec.NewMap(sp.Filter(spec.Ver)...)
	author := sp.Author()
	rawSuffix := sp.Suffix()

	return func(rq *Request) (bool, error) {
		switch {
		case !rq.hasTip():
			rq.Writes = append(rq.Writes,
				putMeta(recordkey.BaseState(rq.prefix), vv.String()),
				putMeta(recordkey.RecentState(rq.prefix), vv.String()),
				kvstore.Write{Kind: kvstore.Put, Key: recordkey.StateSnapshot(rq.prefix, rawSuffix), Value: op.Value},
				putMeta(recordkey.Tip(rq.prefix), spec.Version{Timestamp: vv.MaxTs()}.String()),
			)
			return true, nil

		case author == hostID:
			if prevVV, hasPrev := rq.recentState(); hasPrev {
				// Scan from MinTs, not MaxTs: the snapshot's key is the
				// verbatim wire suffix ordered alphabetically by source
				// (spec.md §6), so its first token can hold any of
				// prevVV's timestamps, not necessarily the largest one.
				target := spec.Version{Timestamp: prevVV.MinTs()}
				if !rq.markLoaded(target) {
					rq.extendLog(target)
					return false, nil
				}
				for _, r := range rq.log {
					if r.parsed.Kind == recordkey.KindStateSnapshot && r.parsed.VV.String() == prevVV.String() {
						rq.Writes = append(rq.Writes, kvstore.Write{Kind: kvstore.Del, Key: r.key})
						break
					}
				}
			}
			rq.Writes = append(rq.Writes,
				kvstore.Write{Kind: kvstore.Put, Key: recordkey.StateSnapshot(rq.prefix, rawSuffix), Value: op.Value},
				putMeta(recordkey.RecentState(rq.prefix), vv.String()),
			)
			return true, nil

		case author == swarmAuthor:
			return false, newErrorf(KindErrNotImplemented, "base-state overwrite not implemented")

		default:
			return false, newErrorf(KindErrHaveState, "have state already")
		}
	}
}
