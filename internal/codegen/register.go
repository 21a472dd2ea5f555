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

// Package codegen is the x86-64 AT&T assembly emitter: it walks each CFG's
// blocks (in the order wired by internal/ir) using the register assignment
// computed by internal/flow, and prints one System V AMD64-compliant
// function per CFG (spec §4.5).
package codegen

// physReg32/physReg64 are the seven general-purpose registers this design
// hands to the allocator, indexed the same way as ir.CFG.RegisterAssignment.
// r8d/r9d double as two of the first six System V argument registers, which
// is why the prologue has a dedicated swap case (see emitParamPrologue).
var physReg32 = [...]string{"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d"}
var physReg64 = [...]string{"r8", "r9", "r10", "r11", "r12", "r13", "r14"}

const (
	scratch32 = "%r15d"
	scratch64 = "%r15"
	scratch8  = "%r15b"
)

// calleeArgRegs32 holds the first six System V integer-argument registers.
var calleeArgRegs32 = [...]string{"edi", "esi", "edx", "ecx", "r8d", "r9d"}

// callerSaved64 is the full set of registers (the allocator's pool plus the
// scratch register) a call sequence must preserve across the callee.
var callerSaved64 = [...]string{"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

func reg32(i int) string { return "%" + physReg32[i] }
func reg64(i int) string { return "%" + physReg64[i] }

// condSuffix maps a comparison Op to its x86 SETcc/Jcc condition mnemonic.
func condSuffix(name string) string {
	switch name {
	case "lt":
		return "l"
	case "leq":
		return "le"
	case "gt":
		return "g"
	case "geq":
		return "ge"
	case "eq":
		return "e"
	case "neq":
		return "ne"
	}
	panic("codegen: not a comparison op: " + name)
}
