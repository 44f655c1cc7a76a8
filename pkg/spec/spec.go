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

// Package spec parses and manipulates the dotted, sigil-prefixed specifier
// strings used throughout the operation log: object identifiers
// ("/Type#Id"), versions ("!timestamp+source"), op names (".op"), and their
// concatenations. A Spec is parsed once per incoming op and then queried by
// sigil or by named token instead of being re-scanned as a raw string on
// every access.
package spec

import (
	"fmt"
	"strings"
)

// Sigil introduces a token. The four recognized sigils and their meaning
// are fixed by the wire format (spec.md §6) and must never change.
type Sigil byte

const (
	Kind   Sigil = '/' // type
	ID     Sigil = '#' // object id
	Ver    Sigil = '!' // version (timestamp[+source])
	OpName Sigil = '.' // operation name
)

// Token is one sigil-introduced component of a Spec: a bare body optionally
// followed by "+ext" (used by Ver tokens to carry the source replica id).
type Token struct {
	Sigil Sigil
	Bare  string
	Ext   string // empty if there was no "+ext" part
}

// HasExt reports whether the token carries a "+ext" suffix.
func (t Token) HasExt() bool { return t.Ext != "" }

// String renders the token back to its canonical wire form.
func (t Token) String() string {
	if t.Ext == "" {
		return string(t.Sigil) + t.Bare
	}
	return string(t.Sigil) + t.Bare + "+" + t.Ext
}

// Spec is a parsed specifier: an ordered array of tokens. Ordering of a
// Spec is lexicographic on the concatenated canonical rendering, which is
// just string comparison of the original text since parsing does not
// reorder tokens.
type Spec struct {
	raw    string
	tokens []Token
}

// Parse decomposes a specifier string into its tokens. A malformed token
// (an unrecognized sigil, or a body containing characters outside
// [A-Za-z0-9_~] and the single separating '+') fails with a parse error;
// callers surface this as the "parse" error kind (spec.md §7).
func Parse(s string) (Spec, error) {
	if s == "" {
		return Spec{raw: s}, nil
	}
	var toks []Token
	i := 0
	for i < len(s) {
		sig := Sigil(s[i])
		switch sig {
		case Kind, ID, Ver, OpName:
		default:
			return Spec{}, fmt.Errorf("spec: unrecognized sigil %q at offset %d in %q", s[i], i, s)
		}
		i++
		start := i
		for i < len(s) && !isSigilByte(s[i]) {
			i++
		}
		body := s[start:i]
		bare, ext, err := splitBody(body)
		if err != nil {
			return Spec{}, fmt.Errorf("spec: %w in token %q of %q", err, body, s)
		}
		toks = append(toks, Token{Sigil: sig, Bare: bare, Ext: ext})
	}
	return Spec{raw: s, tokens: toks}, nil
}

// MustParse is a test/demo helper that panics on a parse error.
func MustParse(s string) Spec {
	sp, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sp
}

func isSigilByte(b byte) bool {
	switch Sigil(b) {
	case Kind, ID, Ver, OpName:
		return true
	default:
		return false
	}
}

func splitBody(body string) (bare, ext string, err error) {
	plus := strings.IndexByte(body, '+')
	if plus < 0 {
		bare = body
	} else {
		bare = body[:plus]
		ext = body[plus+1:]
		if strings.IndexByte(ext, '+') >= 0 {
			return "", "", fmt.Errorf("more than one '+' separator")
		}
	}
	if !validTokenBody(bare) || (ext != "" && !validTokenBody(ext)) {
		return "", "", fmt.Errorf("invalid token body")
	}
	return bare, ext, nil
}

func validTokenBody(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

// String renders the Spec back to its canonical wire form. Parsing then
// rendering is idempotent for any Spec produced by Parse.
func (s Spec) String() string {
	if s.raw != "" {
		return s.raw
	}
	var b strings.Builder
	for _, t := range s.tokens {
		b.WriteString(t.String())
	}
	return b.String()
}

// Tokens returns the parsed tokens in order. The returned slice must not be
// mutated by the caller.
func (s Spec) Tokens() []Token { return s.tokens }

// Filter returns the subsequence of tokens introduced by one of the given
// sigils, preserving order. Filtering to Ver alone yields the version
// vector portion of a Spec.
func (s Spec) Filter(sigils ...Sigil) []Token {
	want := make(map[Sigil]bool, len(sigils))
	for _, sg := range sigils {
		want[sg] = true
	}
	var out []Token
	for _, t := range s.tokens {
		if want[t.Sigil] {
			out = append(out, t)
		}
	}
	return out
}

// token returns the i-th token (0-indexed) introduced by sigil, or false if
// there is no such token.
func (s Spec) token(sigil Sigil, i int) (Token, bool) {
	n := 0
	for _, t := range s.tokens {
		if t.Sigil == sigil {
			if n == i {
				return t, true
			}
			n++
		}
	}
	return Token{}, false
}

// Type returns the object type ("/" token), the empty string if absent.
func (s Spec) Type() string {
	t, ok := s.token(Kind, 0)
	if !ok {
		return ""
	}
	return t.Bare
}

// ID returns the object id ("#" token), the empty string if absent.
func (s Spec) ID() string {
	t, ok := s.token(ID, 0)
	if !ok {
		return ""
	}
	return t.Bare
}

// Op returns the op name (the LAST "." token, since a Spec may carry the
// object prefix's own dotted components followed by the operation name).
// The empty string means no op name is present.
func (s Spec) Op() string {
	var last Token
	found := false
	for _, t := range s.tokens {
		if t.Sigil == OpName {
			last = t
			found = true
		}
	}
	if !found {
		return ""
	}
	return last.Bare
}

// Author returns the source of the FIRST version token, which by
// convention identifies the replica that authored this op (as distinct
// from Source, the immediate sender, which travels alongside the op
// outside the Spec — see engine.Op).
func (s Spec) Author() string {
	t, ok := s.token(Ver, 0)
	if !ok {
		return ""
	}
	return t.Ext
}

// Version returns the first "!" token as a Version. For ops with exactly
// one version token (the common case: any regular op, an "on"/"off", a
// reorder) this is unambiguous. For "state" ops, which may carry both the
// authoring version and a multi-source version vector (see engine's state
// handler), Version still returns the first token; callers needing the
// full vector use Filter(Ver) or ParseMap.
func (s Spec) Version() (Version, bool) {
	t, ok := s.token(Ver, 0)
	if !ok {
		return Version{}, false
	}
	return Version{Timestamp: t.Bare, Source: t.Ext}, true
}

// ObjectPrefix renders just the "/Type#Id" portion of the Spec.
func (s Spec) ObjectPrefix() string {
	var b strings.Builder
	if t, ok := s.token(Kind, 0); ok {
		b.WriteString(t.String())
	}
	if t, ok := s.token(ID, 0); ok {
		b.WriteString(t.String())
	}
	return b.String()
}

// Suffix renders every token after the object prefix (the "/" and "#"
// tokens), i.e. the key-suffix/op-identifying portion of the Spec.
func (s Spec) Suffix() string {
	var b strings.Builder
	for _, t := range s.tokens {
		if t.Sigil == Kind || t.Sigil == ID {
			continue
		}
		b.WriteString(t.String())
	}
	return b.String()
}
