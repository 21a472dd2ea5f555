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

package sym

// TempPrefix marks a compiler-generated temporary. Temporaries are always
// Used (nothing ever warns about an unused one) and are never popped with
// the lexical frame they happen to be recorded under — see Scope.CreateTemp.
const TempPrefix = "!T"

// Symbol is a named storage location or compiler temporary: a stack slot at
// a stable byte Offset from the frame pointer (positive here; the emitter
// encodes it as a negative %rbp displacement), plus enough bookkeeping to
// drive "unused variable" diagnostics.
type Symbol struct {
	Name   string
	Type   *Type
	Offset int
	Line   int
	Used   bool
	IsTemp bool

	// ArraySize is reserved for a future array feature; spec.md's Non-goals
	// exclude arrays from this language, so it is always 0 today.
	ArraySize int
}

func (s *Symbol) String() string {
	return s.Name
}

func (s *Symbol) MarkUsed() {
	s.Used = true
}
