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
	"context"
	"fmt"
	"log"
	"time"

	"opslog/internal/kvstore"
	"opslog/internal/telemetry"
)

// Dispatch selects a handler by op kind (spec.md §4.3), drives it through
// the reentrant Request loop, commits the resulting write batch atomically,
// and returns the response ops to deliver to the Host. Diff ops must be
// unbundled by the Queue before reaching Dispatch; Error ops are logged
// here and otherwise dropped (diagnostic only).
func Dispatch(ctx context.Context, backend kvstore.Backend, cfg Config, hostID string, op Op) ([]Op, error) {
	sp, kind, err := Classify(op)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindOff:
		return nil, nil
	case KindError:
		log.Printf("engine: error op %s from %q: %s", op.Spec, op.Source, op.Value)
		return nil, nil
	case KindDiff:
		return nil, fmt.Errorf("engine: diff op reached Dispatch unbundled (%q)", op.Spec)
	}

	prefix := sp.ObjectPrefix()
	rq, err := newRequest(ctx, backend, prefix)
	if err != nil {
		return nil, err
	}

	var h handler
	switch kind {
	case KindOn:
		h = onHandler(hostID, cfg, sp, op)
	case KindState:
		h = stateHandler(hostID, sp, op)
	default:
		h = ingestOp(cfg, sp, op)
	}

	if err := rq.run(h); err != nil {
		telemetry.ObserveOp(errorOutcome(err))
		return nil, err
	}

	if len(rq.Writes) > 0 {
		start := time.Now()
		err := backend.Batch(ctx, rq.Writes)
		telemetry.ObserveCommit(time.Since(start), err)
		if err != nil {
			return nil, newErrorf(KindErrBackend, "commit: %v", err)
		}
	}
	telemetry.ObserveOp("done")
	return rq.Responses, nil
}

// errorOutcome derives the telemetry outcome label from a Request failure,
// falling back to "unknown" for an error this package did not originate.
func errorOutcome(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Kind.String()
	}
	return "unknown"
}

// UnbundleDiff splits a bundled ".diff" payload into its inner ops, per
// spec.md §6's "\tspec\tvalue\n" line format. Each payload line carries a
// relative spec (no object prefix); UnbundleDiff prepends objPrefix to it,
// so the returned ops can be handed straight to Dispatch.
func UnbundleDiff(objPrefix, payload, source string) []Op {
	var ops []Op
	i := 0
	for i < len(payload) {
		if payload[i] != '\t' {
			break
		}
		i++
		specEnd := indexByteFrom(payload, i, '\t')
		if specEnd < 0 {
			break
		}
		suffix := payload[i:specEnd]
		i = specEnd + 1
		valueEnd := indexByteFrom(payload, i, '\n')
		if valueEnd < 0 {
			valueEnd = len(payload)
		}
		value := payload[i:valueEnd]
		i = valueEnd + 1
		ops = append(ops, Op{Spec: objPrefix + suffix, Value: value, Source: source})
	}
	return ops
}

func indexByteFrom(s string, from int, b byte) int {
	for i := from; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
