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
	"testing"

	"opslog/internal/kvstore"
)

func TestDispatchOffIsNoOp(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	resp, err := Dispatch(ctx, be, Config{}, "H", Op{Spec: "/T#A.off", Source: "P"})
	if err != nil || len(resp) != 0 {
		t.Fatalf("Dispatch(.off) = %+v, %v, want no responses, no error", resp, err)
	}
}

func TestDispatchErrorOpIsNoOp(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	resp, err := Dispatch(ctx, be, Config{}, "H", Op{Spec: "/T#A.error", Value: "boom", Source: "P"})
	if err != nil || len(resp) != 0 {
		t.Fatalf("Dispatch(.error) = %+v, %v, want no responses, no error", resp, err)
	}
}

func TestDispatchBundledDiffRejected(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	_, err := Dispatch(ctx, be, Config{}, "H", Op{Spec: "/T#A.diff", Value: "\t!1+X.set\tv\n"})
	if err == nil {
		t.Fatal("Dispatch(.diff) unbundled at the Dispatch layer: want error, got nil")
	}
}

func TestDispatchCommitsWritesAtomically(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	dispatchOrFatal(t, ctx, be, Config{}, "H", Op{Spec: "/T#A!10+X!10+X.state", Value: "snap"})
	resp := dispatchOrFatal(t, ctx, be, Config{}, "X", Op{Spec: "/T#A!11+X.set", Value: "v1"})
	if len(resp) != 1 {
		t.Fatalf("accept response = %+v, want 1 echoed op", resp)
	}
}

func TestUnbundleDiff(t *testing.T) {
	payload := "\t!1+X.set\tv1\n\t!2+X.set\tv2\n"
	ops := UnbundleDiff("/T#A", payload, "P")
	if len(ops) != 2 {
		t.Fatalf("UnbundleDiff produced %d ops, want 2: %+v", len(ops), ops)
	}
	if ops[0].Spec != "/T#A!1+X.set" || ops[0].Value != "v1" || ops[0].Source != "P" {
		t.Errorf("ops[0] = %+v, want {/T#A!1+X.set v1 P}", ops[0])
	}
	if ops[1].Spec != "/T#A!2+X.set" || ops[1].Value != "v2" {
		t.Errorf("ops[1] = %+v, want {/T#A!2+X.set v2 P}", ops[1])
	}
}
