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

package main

import (
	"context"
	"strings"
	"testing"

	"opslog/internal/engine"
	"opslog/internal/host"
	"opslog/internal/kvstore"
)

func TestOpenBackendMemory(t *testing.T) {
	be, err := openBackend("memory", "")
	if err != nil {
		t.Fatalf("openBackend(memory): %v", err)
	}
	if be == nil {
		t.Fatal("openBackend(memory) returned a nil backend")
	}
}

func TestOpenBackendDefaultsToMemory(t *testing.T) {
	if _, err := openBackend("", ""); err != nil {
		t.Fatalf("openBackend(\"\"): %v", err)
	}
}

func TestOpenBackendUnknown(t *testing.T) {
	if _, err := openBackend("redis", ""); err == nil {
		t.Fatal("openBackend(redis) = nil error, want an error naming the unknown backend")
	}
}

func TestReadOpsSubmitsWellFormedLines(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	loop := host.NewLoopback()
	eng := engine.New(be, engine.Config{}, "H", host.EngineAdapter{H: loop})

	input := strings.NewReader(
		"/T#A!10+X!10+X.state\tsnap\t\n" +
			"/T#A!11+X.set\tv1\tX\n",
	)
	readOps(ctx, input, eng, "error")

	log := loop.Log()
	if len(log) != 1 || log[0].Spec != "/T#A!11+X.set" {
		t.Fatalf("loop.Log() = %+v, want a single echoed accept of !11+X.set", log)
	}
}

func TestReadOpsSkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	be := kvstore.NewMemory()
	loop := host.NewLoopback()
	eng := engine.New(be, engine.Config{}, "H", host.EngineAdapter{H: loop})

	input := strings.NewReader("not-enough-fields\n\n/T#A!10+X!10+X.state\tsnap\t\n")
	readOps(ctx, input, eng, "error")

	if len(loop.Log()) != 0 {
		t.Fatalf("loop.Log() = %+v, want none (malformed line skipped, state accept has no response)", loop.Log())
	}
}
