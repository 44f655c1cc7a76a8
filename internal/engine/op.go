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

import "opslog/pkg/spec"

// Op is the single shape exchanged between the engine and the Host in both
// directions: {spec, value, source}. Source is the replica id of the
// immediate sender, which is not necessarily the op's original author (see
// spec.Spec.Author for that).
type Op struct {
	Spec   string
	Value  string
	Source string
}

// OpKind is the closed, finite tag over the ways the dispatcher routes an
// incoming Op. It is modeled as a variant rather than left to virtual
// dispatch because the handler set never grows at runtime.
type OpKind int

const (
	KindOn OpKind = iota
	KindOff
	KindState
	KindDiff
	KindError
	KindRegular
)

func (k OpKind) String() string {
	switch k {
	case KindOn:
		return "on"
	case KindOff:
		return "off"
	case KindState:
		return "state"
	case KindDiff:
		return "diff"
	case KindError:
		return "error"
	default:
		return "regular"
	}
}

// Classify parses op.Spec and returns the parsed Spec alongside the
// OpKind its trailing op-name token selects.
func Classify(op Op) (spec.Spec, OpKind, error) {
	sp, err := spec.Parse(op.Spec)
	if err != nil {
		return spec.Spec{}, 0, newErrorf(KindErrParse, "parse: %v", err)
	}
	switch sp.Op() {
	case "on":
		return sp, KindOn, nil
	case "off":
		return sp, KindOff, nil
	case "state":
		return sp, KindState, nil
	case "diff":
		return sp, KindDiff, nil
	case "error":
		return sp, KindError, nil
	default:
		return sp, KindRegular, nil
	}
}
