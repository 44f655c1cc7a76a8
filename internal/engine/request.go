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
	"time"

	"opslog/internal/kvstore"
	"opslog/internal/recordkey"
	"opslog/internal/telemetry"
	"opslog/pkg/spec"
)

// logRecord is one loaded log-group record (op, state snapshot, or
// backreference), parsed once at load time.
type logRecord struct {
	key    string
	parsed recordkey.Parsed
	value  string
}

// Request holds everything derived from one incoming op: the scanned
// manifest, the scanned log tail, the pending write batch and response
// list, and the two cursors (logFrom, pendingExtend) that drive the
// reentrant load/dispatch loop of spec.md §4.2.
//
// The meta scan always happens exactly once, unconditionally, at
// construction — it is a single bounded range read over recordkey.MetaRange
// regardless of how large the object's log has grown. The log scan is the
// part that reenters: a handler that needs older data calls extendLog with
// a version and returns later; the driver widens the tail read down to
// that version (replacing, not merging, the accumulated log, which is
// simpler than delta-bookkeeping and still bounds work to one tail read per
// terminal handler outcome) and invokes the handler again.
type Request struct {
	ctx     context.Context
	backend kvstore.Backend
	prefix  string

	meta map[string]string

	log            []logRecord
	logFrom        *spec.Version // nil until the log has been scanned at least once
	pendingExtend  *spec.Version

	Writes    []kvstore.Write
	Responses []Op

	// onSource caches the immediate sender of an "on" op across reentries,
	// so the patch builder's "-" (echo bookmark) case can look up the
	// right bookmark without threading it through every call.
	onSource string
}

// newRequest constructs a Request and performs its one mandatory meta scan.
func newRequest(ctx context.Context, backend kvstore.Backend, prefix string) (*Request, error) {
	rq := &Request{ctx: ctx, backend: backend, prefix: prefix, meta: make(map[string]string)}
	gte, lt := recordkey.MetaRange(prefix)
	kvs, err := kvstore.ScanAll(ctx, backend, gte, lt)
	if err != nil {
		return nil, newErrorf(KindErrBackend, "meta scan: %v", err)
	}
	for _, kv := range kvs {
		rq.meta[kv.Key] = kv.Value
	}
	return rq, nil
}

// metaGet returns the raw value stored at a manifest key, and whether it is
// present at all.
func (rq *Request) metaGet(key string) (string, bool) {
	v, ok := rq.meta[key]
	return v, ok
}

func (rq *Request) hasTip() bool {
	_, ok := rq.metaGet(recordkey.Tip(rq.prefix))
	return ok
}

// tip returns the full version (timestamp and authoring source) of the
// last-accepted op. Storing the full version, not just its timestamp, is
// what lets a peer use our tip as a self-fulfilling echo bookmark (spec.md
// §4.4, scenario 1 of §8) and lets an echo check compare the whole token.
func (rq *Request) tip() spec.Version {
	v, ok := rq.metaGet(recordkey.Tip(rq.prefix))
	if !ok {
		return spec.Version{}
	}
	ver, err := spec.ParseVersion(v)
	if err != nil {
		return spec.Version{}
	}
	return ver
}

func (rq *Request) baseState() (spec.Map, bool) {
	v, ok := rq.metaGet(recordkey.BaseState(rq.prefix))
	if !ok {
		return nil, false
	}
	m, _ := spec.ParseMap(v)
	return m, true
}

func (rq *Request) recentState() (spec.Map, bool) {
	v, ok := rq.metaGet(recordkey.RecentState(rq.prefix))
	if !ok {
		return nil, false
	}
	m, _ := spec.ParseMap(v)
	return m, true
}

func (rq *Request) bookmark(source string) (spec.Version, bool) {
	v, ok := rq.metaGet(recordkey.Bookmark(rq.prefix, source))
	if !ok {
		return spec.Version{}, false
	}
	ver, err := spec.ParseVersion(v)
	if err != nil {
		return spec.Version{}, false
	}
	return ver, true
}

func (rq *Request) echoBookmark(source string) (spec.Version, bool) {
	v, ok := rq.metaGet(recordkey.EchoBookmark(rq.prefix, source))
	if !ok {
		return spec.Version{}, false
	}
	ver, err := spec.ParseVersion(v)
	if err != nil {
		return spec.Version{}, false
	}
	return ver, true
}

// extendLog records that the current handler needs the log tail to reach
// back at least to v. A Version with Timestamp "0" (the patch builder's
// full-scan fallback) means "from the very start of the log".
func (rq *Request) extendLog(v spec.Version) {
	if rq.pendingExtend == nil || v.Less(*rq.pendingExtend) {
		cp := v
		rq.pendingExtend = &cp
	}
}

// markLoaded reports whether the log tail already scanned reaches back far
// enough to include v.
func (rq *Request) markLoaded(v spec.Version) bool {
	return rq.logFrom != nil && !v.Less(*rq.logFrom)
}

// backrefsLoaded reports whether every backreference observed so far in the
// loaded log is itself fully covered by the loaded tail (spec.md §4.4): the
// tail must reach back at least to the smallest timestamp found in any
// loaded `~br` vector. Backreferences never chain (invariant 3), so at most
// one extension is ever required.
func (rq *Request) backrefsLoaded() bool {
	var minTs string
	found := false
	for _, r := range rq.log {
		if r.parsed.Kind != recordkey.KindBackref {
			continue
		}
		vv, err := spec.ParseMap(r.value)
		if err != nil || vv.Empty() {
			continue
		}
		if ts := vv.MinTs(); !found || ts < minTs {
			minTs, found = ts, true
		}
	}
	if !found {
		return true
	}
	return rq.markLoaded(spec.Version{Timestamp: minTs})
}

// loadLog performs the next tail-read iteration of the reentrant loop,
// scanning from rq.pendingExtend through the end of the object's log group.
func (rq *Request) loadLog() error {
	from := *rq.pendingExtend
	gte, lt := recordkey.LogRangeFrom(rq.prefix, from)
	start := time.Now()
	kvs, err := kvstore.ScanAll(rq.ctx, rq.backend, gte, lt)
	telemetry.ObserveLogScan(time.Since(start))
	if err != nil {
		return newErrorf(KindErrBackend, "log scan: %v", err)
	}
	records := make([]logRecord, 0, len(kvs))
	for _, kv := range kvs {
		p, err := recordkey.Parse(rq.prefix, kv.Key)
		if err != nil {
			return newErrorf(KindErrParse, "log record %q: %v", kv.Key, err)
		}
		records = append(records, logRecord{key: kv.Key, parsed: p, value: kv.Value})
	}
	rq.log = records
	rq.logFrom = &from
	rq.pendingExtend = nil
	return nil
}

// handler is a pure, synchronous function of the Request's currently loaded
// state. It returns true for "done" (writes/responses are final) or false
// for "later", having called extendLog to widen the next scan.
type handler func(rq *Request) (done bool, err error)

// run drives the reentrant load/dispatch loop: invoke the handler, and if
// it asks for more log data, extend the scan and invoke it again, until it
// reports done or fails.
func (rq *Request) run(h handler) error {
	for {
		done, err := h(rq)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if rq.pendingExtend == nil {
			return fmt.Errorf("engine: handler returned later without extending the scan")
		}
		if err := rq.loadLog(); err != nil {
			return err
		}
	}
}
