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
	"fmt"
	"strings"
)

// Kind enumerates the engine-local error classes (spec.md §7). Every one of
// them is surfaced to the Host as a ".error" op, never retried internally.
type Kind int

const (
	KindErrParse Kind = iota
	KindErrNoSuchObject
	KindErrHaveState
	KindErrOutOfOrder
	KindErrBaseUnparseable
	KindErrBackend
	KindErrNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindErrParse:
		return "parse"
	case KindErrNoSuchObject:
		return "no-such-object"
	case KindErrHaveState:
		return "have-state"
	case KindErrOutOfOrder:
		return "out-of-order"
	case KindErrBaseUnparseable:
		return "base-unparseable"
	case KindErrBackend:
		return "backend"
	case KindErrNotImplemented:
		return "not-implemented"
	default:
		return "unknown"
	}
}

const maxErrorLen = 50

// Error is the engine's wrapped error type: a closed Kind plus a short,
// newline-stripped, length-capped message suitable for direct inclusion in
// a ".error" op's value.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// newErrorf builds an Error, collapsing newlines and truncating to
// maxErrorLen the way every ".error" op payload must be (spec.md §7).
func newErrorf(kind Kind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return &Error{Kind: kind, msg: msg}
}

// errorOp synthesizes the ".error" op the Queue delivers to the Host when
// Dispatch fails.
func errorOp(objectSpec string, err error) Op {
	return Op{Spec: objectSpec + ".error", Value: err.Error()}
}
