// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package sym holds the type/symbol model and the per-function scope stack
// (spec §3, §4.1): a closed Type variant, named Symbol storage locations
// with stable stack offsets, and insertion-ordered ScopeFrames chained into
// a function's active Scope.
package sym

// Kind is the closed type variant this language supports.
type Kind int

const (
	Int Kind = iota
	Char
	Void
)

type Type struct {
	Kind Kind
}

var (
	TypeInt  = &Type{Kind: Int}
	TypeChar = &Type{Kind: Char}
	TypeVoid = &Type{Kind: Void}
)

func FromKind(k Kind) *Type {
	switch k {
	case Int:
		return TypeInt
	case Char:
		return TypeChar
	case Void:
		return TypeVoid
	}
	panic("unknown type kind")
}

// Size returns sizeof(t) in bytes. void is legal only as a function return
// type; sizeof(void) is 0 and is never used as a storage allocation size.
func (t *Type) Size() int {
	switch t.Kind {
	case Int:
		return 4
	case Char:
		return 1
	case Void:
		return 0
	}
	panic("unknown type kind")
}

func (t *Type) IsVoid() bool { return t.Kind == Void }
func (t *Type) IsInt() bool  { return t.Kind == Int }
func (t *Type) IsChar() bool { return t.Kind == Char }

func (t *Type) String() string {
	switch t.Kind {
	case Int:
		return "int"
	case Char:
		return "char"
	case Void:
		return "void"
	}
	return "?"
}
