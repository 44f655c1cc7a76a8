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
	"strings"
	"testing"

	"opslog/internal/kvstore"
)

func TestOnEmptyBaseSendsFullCatchUp(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A!10+X!10+X.state", Value: "snap"})
	dispatchOrFatal(t, ctx, be, Config{}, "X", Op{Spec: "/T#A!11+X.set", Value: "v1"})

	resp := dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A.on", Value: "", Source: "P"})
	var diff *Op
	for i := range resp {
		if strings.HasSuffix(resp[i].Spec, ".diff") {
			diff = &resp[i]
		}
	}
	if diff == nil {
		t.Fatalf("responses %+v contain no .diff", resp)
	}
	if !strings.Contains(diff.Value, "!10+X!10+X.state") {
		t.Errorf(".diff payload %q missing the verbatim state-snapshot line", diff.Value)
	}
	if !strings.Contains(diff.Value, "!11+X.set") {
		t.Errorf(".diff payload %q missing the trailing op", diff.Value)
	}
}

// TestOnEmptyBaseMultiSourceSnapshotRoundTrips exercises a state snapshot
// whose vector has more than one source, where the verbatim wire suffix's
// first token (alphabetically-first source, spec.md §6) does not hold the
// vector's largest timestamp. A scan bound derived from MaxTs would sort
// above that first token and skip the snapshot's log record entirely.
func TestOnEmptyBaseMultiSourceSnapshotRoundTrips(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#B!05+A!20+Z.state", Value: "snap"})
	dispatchOrFatal(t, ctx, be, Config{}, "X", Op{Spec: "/T#B!21+X.set", Value: "v1"})

	resp := dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#B.on", Value: "", Source: "P"})
	var diff *Op
	for i := range resp {
		if strings.HasSuffix(resp[i].Spec, ".diff") {
			diff = &resp[i]
		}
	}
	if diff == nil {
		t.Fatalf("responses %+v contain no .diff", resp)
	}
	if !strings.Contains(diff.Value, "!05+A!20+Z.state") {
		t.Errorf(".diff payload %q missing the multi-source snapshot line", diff.Value)
	}
	if !strings.Contains(diff.Value, "!21+X.set") {
		t.Errorf(".diff payload %q missing the trailing op", diff.Value)
	}
}

func TestOnNoPatchesSentinelSuppressesDiff(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A!10+X!10+X.state", Value: "snap"})

	resp := dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A.on", Value: "~", Source: "P"})
	for _, r := range resp {
		if strings.HasSuffix(r.Spec, ".diff") {
			t.Fatalf("base \"~\" must suppress patch construction, got %+v", r)
		}
	}
}

func TestOnLoopbackSuppressesReciprocal(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A!10+X!10+X.state", Value: "snap"})

	// onSource equal to our own hostID means this "on" looped back to its
	// origin; the reciprocal ".on" must be suppressed.
	resp := dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A.on", Value: "", Source: "H"})
	for _, r := range resp {
		if strings.HasSuffix(r.Spec, ".on") {
			t.Fatalf("loop-back on must suppress reciprocal .on, got %+v", r)
		}
	}
}

func TestOnVectorBaseOnlySendsUncoveredOps(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A!10+X!10+X.state", Value: "snap"})
	dispatchOrFatal(t, ctx, be, Config{}, "X", Op{Spec: "/T#A!11+X.set", Value: "v1"})
	dispatchOrFatal(t, ctx, be, Config{}, "X", Op{Spec: "/T#A!12+X.set", Value: "v2"})

	resp := dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A.on", Value: "!11+X", Source: "P"})
	var diff *Op
	for i := range resp {
		if strings.HasSuffix(resp[i].Spec, ".diff") {
			diff = &resp[i]
		}
	}
	if diff == nil {
		t.Fatalf("responses %+v contain no .diff", resp)
	}
	if strings.Contains(diff.Value, "!11+X.set") {
		t.Errorf(".diff payload %q should not include the already-covered op", diff.Value)
	}
	if !strings.Contains(diff.Value, "!12+X.set") {
		t.Errorf(".diff payload %q missing the uncovered op", diff.Value)
	}
}

func TestOnFullSentinelSendsNothing(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A!10+X!10+X.state", Value: "snap"})

	resp := dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A.on", Value: "!~", Source: "P"})
	for _, r := range resp {
		if strings.HasSuffix(r.Spec, ".diff") && r.Value != "" {
			t.Fatalf("base \"!~\" must produce an empty diff, got %+v", r)
		}
	}
}

func TestIsBookmarkShape(t *testing.T) {
	if !isBookmarkShape("-") {
		t.Error("isBookmarkShape(\"-\") = false, want true")
	}
	if !isBookmarkShape("!10+X") {
		t.Error("isBookmarkShape(\"!10+X\") = false, want true")
	}
	if isBookmarkShape("!10+X!11+Y") {
		t.Error("isBookmarkShape of a two-entry vector = true, want false")
	}
}
