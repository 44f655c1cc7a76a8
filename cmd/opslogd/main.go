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

// Package main is opslogd, a demo binary that wires the engine to a
// concrete KV backend and a loopback Host so the op-log store can be
// exercised end-to-end from a terminal. Real transport/routing between
// replicas is out of scope (the Host contract is just `deliver`); this
// binary reads ops from stdin, one per line as "spec\tvalue\tsource", and
// prints every op the engine emits in response to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"opslog/internal/engine"
	"opslog/internal/host"
	"opslog/internal/kvstore"
	"opslog/internal/telemetry"
)

func main() {
	hostID := flag.String("host-id", "demo", "this replica's id, used to suppress loop-back subscriptions")
	backendName := flag.String("backend", "memory", "KV backend: \"memory\" or \"bolt\"")
	dbPath := flag.String("db-path", "opslog.db", "BoltDB file path when -backend=bolt")
	bookmarking := flag.Bool("bookmarking", false, "write .bm&source on every accepted op")
	maxLogSize := flag.Int("max-log-size", 10, "advisory per-object op-count threshold; crossing it only increments a metric")
	shards := flag.Int("shards", 0, "number of Shard Router queues; 0 picks GOMAXPROCS")
	metricsAddr := flag.String("metrics-addr", "", "if non-empty, serve Prometheus /metrics on this address (e.g., :9090)")
	logLevel := flag.String("log-level", "info", "structured log verbosity (debug, info, warn, error)")
	flag.Parse()

	telemetry.Enable(telemetry.Config{Enabled: *metricsAddr != "", MetricsAddr: *metricsAddr})

	backend, err := openBackend(*backendName, *dbPath)
	if err != nil {
		log.Fatalf("opslogd: %v", err)
	}

	loop := host.NewLoopback()
	loop.SetPeer(func(op host.Op) {
		fmt.Printf("%s\t%s\t%s\n", op.Spec, op.Value, op.Source)
	})

	shardCount := *shards
	if shardCount <= 0 {
		shardCount = runtime.GOMAXPROCS(0)
	}
	eng := engine.New(backend, engine.Config{
		Bookmarking: *bookmarking,
		MaxLogSize:  *maxLogSize,
		Shards:      shardCount,
	}, *hostID, host.EngineAdapter{H: loop})

	logAt(*logLevel, "info", "opslogd started: host_id=%s backend=%s shards=%d", *hostID, *backendName, shardCount)

	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logAt(*logLevel, "info", "opslogd shutting down...")
		cancel()
	}()

	readOps(ctx, os.Stdin, eng, *logLevel)

	if err := eng.Close(); err != nil {
		log.Printf("opslogd: backend close: %v", err)
	}
	logAt(*logLevel, "info", "opslogd stopped.")
}

func openBackend(name, dbPath string) (kvstore.Backend, error) {
	switch name {
	case "bolt":
		b, err := kvstore.OpenBolt(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store %q: %w", dbPath, err)
		}
		return b, nil
	case "memory", "":
		return kvstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want \"memory\" or \"bolt\")", name)
	}
}

// readOps feeds "spec\tvalue\tsource" lines read from r to the engine
// until EOF or ctx is canceled.
func readOps(ctx context.Context, r io.Reader, eng *engine.Engine, logLevel string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 {
			logAt(logLevel, "warn", "opslogd: skipping malformed line %q", line)
			continue
		}
		op := engine.Op{Spec: parts[0], Value: parts[1]}
		if len(parts) == 3 {
			op.Source = parts[2]
		}
		eng.Submit(ctx, op)
	}
}

// logAt prints msg when level is at or above the configured threshold,
// using the same plain fmt/log-style output the rest of this codebase's
// binaries use (no external logging library is pulled in to imitate).
func logAt(configured, level, format string, args ...any) {
	order := map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}
	if order[level] < order[configured] {
		return
	}
	log.Printf("["+strings.ToUpper(level)+"] "+format, args...)
}
