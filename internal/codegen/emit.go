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

package codegen

import (
	"fmt"
	"io"

	"cminor/internal/config"
	"cminor/internal/ir"
	"cminor/internal/sym"
	"cminor/utils"
)

// emitter carries the per-function state the instruction-lowering switch
// needs: which CFG (for its register assignment and frame) and where its
// output goes.
type emitter struct {
	w   io.Writer
	fn  *ir.CFG
	cfg *config.Config
}

// Emit prints one function per CFG in ctx, in declaration order. putchar and
// getchar never reach here: they are never given a CFG (internal/ir only
// creates one for an AST-declared function), so the "externally linked,
// never emitted" rule of spec §6 holds automatically.
func Emit(w io.Writer, ctx *ir.Context, cfg *config.Config) {
	for _, fn := range ctx.Funcs() {
		fn.ResetVisited()
		emitFunction(w, fn, cfg)
	}
}

func symbolName(name string, cfg *config.Config) string {
	if cfg.IsDarwin() {
		return "_" + name
	}
	return name
}

func emitFunction(w io.Writer, fn *ir.CFG, cfg *config.Config) {
	e := &emitter{w: w, fn: fn, cfg: cfg}
	name := symbolName(fn.Name, cfg)
	fmt.Fprintf(w, "\t.globl %s\n%s:\n", name, name)
	fmt.Fprintf(w, "\tpushq %%rbp\n\tmovq %%rsp, %%rbp\n")

	frameSize := utils.Align16(fn.FrameSize())
	if frameSize > 0 {
		fmt.Fprintf(w, "\tsubq $%d, %%rsp\n", frameSize)
	}

	e.emitParamPrologue()
	e.emitBlock(fn.Entry())
}

// emitParamPrologue moves the first six arguments out of their fixed System
// V registers and the 7th+ out of the caller's stack frame, into each
// parameter symbol's allocated register or spill slot. Parameters 5 and 6
// arrive in r8d/r9d, which collide with this design's own register pool; if
// their assigned destinations are exactly swapped (param 5 -> r9d, param 6
// -> r8d) a single xchg resolves the conflict before the generic move loop,
// which otherwise would clobber one argument while copying the other.
func (e *emitter) emitParamPrologue() {
	params := e.fn.Params
	n := len(params)
	if n > 6 {
		n = 6
	}
	current := make([]string, n)
	for i := 0; i < n; i++ {
		current[i] = calleeArgRegs32[i]
	}
	if n == 6 && e.dest(params[4].Sym) == reg32(1) && e.dest(params[5].Sym) == reg32(0) {
		fmt.Fprintf(e.w, "\txchg %%r8d, %%r9d\n")
		current[4], current[5] = current[5], current[4]
	}
	// Parameters 5 and 6 leave r8d/r9d before any other parameter is moved,
	// since any destination may be one of those two registers; parameter 6
	// goes first when parameter 5's destination is the register 6 arrives in.
	order := []int{4, 5, 0, 1, 2, 3}
	if n == 6 && e.dest(params[4].Sym) == "%"+current[5] {
		order[0], order[1] = 5, 4
	}
	for _, i := range order {
		if i >= n {
			continue
		}
		dst := e.dest(params[i].Sym)
		src := "%" + current[i]
		if src == dst {
			continue
		}
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", src, dst)
	}
	for i := 6; i < len(params); i++ {
		off := 16 + 8*(i-6)
		dst := e.dest(params[i].Sym)
		if e.isSpilled(params[i].Sym) {
			fmt.Fprintf(e.w, "\tmovl %d(%%rbp), %s\n", off, scratch32)
			fmt.Fprintf(e.w, "\tmovl %s, %s\n", scratch32, dst)
			continue
		}
		fmt.Fprintf(e.w, "\tmovl %d(%%rbp), %s\n", off, dst)
	}
}

// dest returns s's storage operand: its allocated register, or its spill
// slot expressed as a %rbp-relative memory operand.
func (e *emitter) dest(s *sym.Symbol) string {
	if reg, ok := e.fn.RegisterAssignment[s]; ok {
		return reg32(reg)
	}
	return fmt.Sprintf("-%d(%%rbp)", s.Offset)
}

func (e *emitter) isSpilled(s *sym.Symbol) bool {
	_, ok := e.fn.RegisterAssignment[s]
	return !ok
}

// load ensures s's value is in a register, emitting a load from its spill
// slot into the scratch register if necessary, and returns that register.
func (e *emitter) load(s *sym.Symbol) string {
	if !e.isSpilled(s) {
		return e.dest(s)
	}
	fmt.Fprintf(e.w, "\tmovl %s, %s\n", e.dest(s), scratch32)
	return scratch32
}

// store writes fromReg into dest's final storage, skipping a no-op
// register-to-itself move.
func (e *emitter) store(dest *sym.Symbol, fromReg string) {
	d := e.dest(dest)
	if d == fromReg {
		return
	}
	fmt.Fprintf(e.w, "\tmovl %s, %s\n", fromReg, d)
}

// emitBlock walks the CFG exactly once per block (the "visited idempotence"
// invariant of spec §8), relying on Block.Visited rather than a separate
// worklist.
func (e *emitter) emitBlock(b *ir.Block) {
	if b == nil || b.Visited {
		return
	}
	b.Visited = true
	if b.Label != "" {
		fmt.Fprintf(e.w, "%s:\n", b.Label)
	}
	for _, ins := range b.Instrs {
		e.emitInstruction(ins)
	}
	if b.ExitFalse != nil {
		fmt.Fprintf(e.w, "\tje %s\n", b.ExitFalse.Label)
	}
	if b.ExitTrue != nil && b.ExitTrue.Label != "" {
		fmt.Fprintf(e.w, "\tjmp %s\n", b.ExitTrue.Label)
	}
	e.emitBlock(b.ExitTrue)
	e.emitBlock(b.ExitFalse)
}

var binMnemonic = map[ir.Op]string{
	ir.OpAdd: "addl", ir.OpSub: "subl", ir.OpMul: "imull",
	ir.OpBAnd: "andl", ir.OpBOr: "orl", ir.OpBXor: "xorl",
}

var cmpOpName = map[ir.Op]string{
	ir.OpLt: "lt", ir.OpLeq: "leq", ir.OpGt: "gt", ir.OpGeq: "geq", ir.OpEq: "eq", ir.OpNeq: "neq",
}

func (e *emitter) emitInstruction(ins *ir.Instruction) {
	switch ins.Op {
	case ir.OpParamDecl, ir.OpParam:
		// Structural markers only: the prologue and the call sequence
		// already account for these without replaying them individually.
	case ir.OpLdConst:
		dst := ins.Args[1].Sym
		fmt.Fprintf(e.w, "\tmovl $%s, %s\n", ins.Args[0].Str, e.dest(dst))
	case ir.OpVarAssign:
		e.emitVarAssign(ins.Args[0].Sym, ins.Args[1].Sym)
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpBAnd, ir.OpBOr, ir.OpBXor:
		e.emitBinary(binMnemonic[ins.Op], ins.Args[0].Sym, ins.Args[1].Sym, ins.Args[2].Sym)
	case ir.OpDiv, ir.OpMod:
		e.emitDivMod(ins.Op, ins.Args[0].Sym, ins.Args[1].Sym, ins.Args[2].Sym)
	case ir.OpLt, ir.OpLeq, ir.OpGt, ir.OpGeq, ir.OpEq, ir.OpNeq:
		e.emitCompare(cmpOpName[ins.Op], ins.Args[0].Sym, ins.Args[1].Sym, ins.Args[2].Sym)
	case ir.OpNeg:
		e.emitUnary("negl", ins.Args[0].Sym, ins.Args[1].Sym)
	case ir.OpNot:
		e.emitUnary("notl", ins.Args[0].Sym, ins.Args[1].Sym)
	case ir.OpInc:
		e.emitUnary("incl", ins.Args[0].Sym, ins.Args[1].Sym)
	case ir.OpDec:
		e.emitUnary("decl", ins.Args[0].Sym, ins.Args[1].Sym)
	case ir.OpLNot:
		e.emitLNot(ins.Args[0].Sym, ins.Args[1].Sym)
	case ir.OpCmpNZ:
		reg := e.load(ins.Args[0].Sym)
		fmt.Fprintf(e.w, "\ttestl %s, %s\n", reg, reg)
	case ir.OpCall:
		e.emitCall(ins)
	case ir.OpRet:
		e.emitRet(ins)
	default:
		panic("codegen: unhandled op " + ins.Op.String())
	}
}

func (e *emitter) emitVarAssign(dest, src *sym.Symbol) {
	if e.isSpilled(dest) && e.isSpilled(src) {
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", e.dest(src), scratch32)
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", scratch32, e.dest(dest))
		return
	}
	s := e.dest(src)
	d := e.dest(dest)
	if s == d {
		return
	}
	fmt.Fprintf(e.w, "\tmovl %s, %s\n", s, d)
}

// emitBinary follows spec §4.5's three-way rule: compute straight into the
// destination register when the destination already holds the left operand;
// otherwise move the left operand in first; and when the destination would
// otherwise coincide with the still-needed right operand, stage the
// computation in the scratch register instead of clobbering it.
func (e *emitter) emitBinary(mnemonic string, lhs, rhs, dst *sym.Symbol) {
	lhsLoc, rhsLoc := e.dest(lhs), e.dest(rhs)

	if e.isSpilled(dst) {
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", lhsLoc, scratch32)
		fmt.Fprintf(e.w, "\t%s %s, %s\n", mnemonic, rhsLoc, scratch32)
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", scratch32, e.dest(dst))
		return
	}

	dstLoc := e.dest(dst)
	if lhsLoc == dstLoc {
		fmt.Fprintf(e.w, "\t%s %s, %s\n", mnemonic, rhsLoc, dstLoc)
		return
	}
	if rhsLoc == dstLoc {
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", lhsLoc, scratch32)
		fmt.Fprintf(e.w, "\t%s %s, %s\n", mnemonic, rhsLoc, scratch32)
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", scratch32, dstLoc)
		return
	}
	fmt.Fprintf(e.w, "\tmovl %s, %s\n", lhsLoc, dstLoc)
	fmt.Fprintf(e.w, "\t%s %s, %s\n", mnemonic, rhsLoc, dstLoc)
}

func (e *emitter) emitUnary(mnemonic string, src, dst *sym.Symbol) {
	if e.isSpilled(dst) {
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", e.dest(src), scratch32)
		fmt.Fprintf(e.w, "\t%s %s\n", mnemonic, scratch32)
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", scratch32, e.dest(dst))
		return
	}
	dstLoc := e.dest(dst)
	srcLoc := e.dest(src)
	if srcLoc != dstLoc {
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", srcLoc, dstLoc)
	}
	fmt.Fprintf(e.w, "\t%s %s\n", mnemonic, dstLoc)
}

// emitLNot produces a 0-or-1 result without the source repository's
// spill-slot-clobbering bug (spec §9's open question): it always computes
// into the scratch register before writing the real destination.
func (e *emitter) emitLNot(src, dst *sym.Symbol) {
	reg := e.load(src)
	fmt.Fprintf(e.w, "\ttestl %s, %s\n", reg, reg)
	fmt.Fprintf(e.w, "\tsete %s\n", scratch8)
	fmt.Fprintf(e.w, "\tmovzbl %s, %s\n", scratch8, scratch32)
	e.store(dst, scratch32)
}

func (e *emitter) emitCompare(name string, lhs, rhs, dst *sym.Symbol) {
	lhsLoc, rhsLoc := e.dest(lhs), e.dest(rhs)
	if e.isSpilled(lhs) && e.isSpilled(rhs) {
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", lhsLoc, scratch32)
		lhsLoc = scratch32
	}
	fmt.Fprintf(e.w, "\tcmpl %s, %s\n", rhsLoc, lhsLoc)
	fmt.Fprintf(e.w, "\tset%s %s\n", condSuffix(name), scratch8)
	fmt.Fprintf(e.w, "\tmovzbl %s, %s\n", scratch8, scratch32)
	e.store(dst, scratch32)
}

// emitDivMod keeps the source repository's documented zero-extension
// (movl $0, %edx) rather than the sign-extending cdq/cltd a correct signed
// division would use — spec §9 flags this as a known bug and asks
// implementers to pick one semantic rather than guess the original intent;
// this implementation preserves the documented (buggy) behavior verbatim.
func (e *emitter) emitDivMod(op ir.Op, lhs, rhs, dst *sym.Symbol) {
	fmt.Fprintf(e.w, "\tmovl %s, %%eax\n", e.dest(lhs))
	fmt.Fprintf(e.w, "\tmovl $0, %%edx\n")
	fmt.Fprintf(e.w, "\tidivl %s\n", e.dest(rhs))
	result := "%eax"
	if op == ir.OpMod {
		result = "%edx"
	}
	e.store(dst, result)
}

// emitCall lowers the System V call sequence of spec §4.5: extend the frame
// to a 16-byte boundary, save every register the allocator or the scratch
// slot might be holding a live value in, marshal arguments (the 7th+ pushed
// right-to-left, then the first six into their ABI registers), call, unwind the
// stack-passed arguments, restore the saved registers, release the frame
// extension, then collect a non-void result out of %eax.
func (e *emitter) emitCall(ins *ir.Instruction) {
	name := ins.Args[0].Str
	hasResult := !ins.Type.IsVoid()
	argCount := len(ins.Args) - 1
	if hasResult {
		argCount--
	}
	args := make([]*sym.Symbol, argCount)
	for i := 0; i < argCount; i++ {
		args[i] = ins.Args[i+1].Sym
	}

	frameExt := utils.Align16(e.fn.FrameSize())
	fmt.Fprintf(e.w, "\tsubq $%d, %%rsp\n", frameExt)
	for _, r := range callerSaved64 {
		fmt.Fprintf(e.w, "\tpushq %%%s\n", r)
	}

	// Stack-passed arguments are pushed first, while every pool register
	// still holds its argument.
	stackArgs := len(args) - 6
	for i := len(args) - 1; i >= 6; i-- {
		fmt.Fprintf(e.w, "\tmovl %s, %s\n", e.dest(args[i]), scratch32)
		fmt.Fprintf(e.w, "\tpushq %s\n", scratch64)
	}
	regArgs := len(args)
	if regArgs > 6 {
		regArgs = 6
	}
	for i := 0; i < regArgs; i++ {
		if i == 4 && regArgs == 6 {
			// The 6th argument may be held in %r8d, which the 5th overwrites.
			fmt.Fprintf(e.w, "\tmovl %s, %s\n", e.dest(args[5]), scratch32)
			fmt.Fprintf(e.w, "\tmovl %s, %%r8d\n", e.dest(args[4]))
			fmt.Fprintf(e.w, "\tmovl %s, %%r9d\n", scratch32)
			break
		}
		fmt.Fprintf(e.w, "\tmovl %s, %%%s\n", e.dest(args[i]), calleeArgRegs32[i])
	}

	fmt.Fprintf(e.w, "\tcall %s\n", symbolName(name, e.cfg))

	if stackArgs > 0 {
		fmt.Fprintf(e.w, "\taddq $%d, %%rsp\n", 8*stackArgs)
	}
	for i := len(callerSaved64) - 1; i >= 0; i-- {
		fmt.Fprintf(e.w, "\tpopq %%%s\n", callerSaved64[i])
	}
	fmt.Fprintf(e.w, "\taddq $%d, %%rsp\n", frameExt)

	if hasResult {
		result := ins.Args[len(ins.Args)-1].Sym
		e.store(result, "%eax")
	}
}

func (e *emitter) emitRet(ins *ir.Instruction) {
	if len(ins.Args) > 0 {
		fmt.Fprintf(e.w, "\tmovl %s, %%eax\n", e.dest(ins.Args[0].Sym))
	}
	fmt.Fprintf(e.w, "\tleave\n\tret\n")
}
