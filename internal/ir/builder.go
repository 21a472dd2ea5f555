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

package ir

import (
	"strconv"

	"cminor/internal/ast"
	"cminor/internal/diag"
	"cminor/internal/sym"
)

// Builder is the syntax-directed AST-to-IR walk of spec §4.2: one Builder per
// function, translating statements and expressions into the owning CFG's
// basic blocks. Lowering never aborts on a semantic error — it records the
// diagnostic into ctx.Sink and returns a best-effort sentinel symbol so later
// nodes still get a chance to report their own problems (spec §7).
type Builder struct {
	cfg     *CFG
	ctx     *Context
	current *Block
}

// Compile lowers every function in prog into one CFG each. Signatures are
// registered in a first pass so forward and mutually recursive calls resolve
// (spec §9: "Build it in two passes").
func Compile(sink *diag.Sink, prog *ast.Program) *Context {
	ctx := NewContext(sink)
	for _, fn := range prog.Functions {
		ctx.RegisterSignature(fn)
	}
	for _, fn := range prog.Functions {
		ctx.addCFG(lowerFunction(ctx, fn))
	}
	return ctx
}

func lowerFunction(ctx *Context, fn *ast.FuncDecl) *CFG {
	cfg := NewCFG(ctx, fn.Name, fn.RetType, len(fn.Params))
	entry := cfg.NewBlock("")
	b := &Builder{cfg: cfg, ctx: ctx, current: entry}
	b.lowerFunctionEntry(fn)

	// A void function whose body falls off the end without an explicit
	// return still needs a ret so the emitter's block walk always finds one
	// at every terminal block.
	if cfg.RetType.IsVoid() && b.current.IsTerminal() {
		if last := b.current.Last(); last == nil || last.Op != OpRet {
			b.current.Append(NewInstr(OpRet, sym.TypeVoid))
		}
	}
	return cfg
}

// errorSymbol is the "null symbol" of spec §7: a harmless, always-used
// int temp standing in for a value that could not be resolved, so that
// expressions built on top of a bad subexpression can still be built (and
// lowered further) without a nil check at every call site. Its value is
// never actually defined by any instruction — harmless, since a compilation
// that needed one always has at least one recorded error and never reaches
// assembly emission.
func errorSymbol(cfg *CFG) *sym.Symbol {
	return cfg.Scope.CreateTemp(sym.TypeInt, cfg.AllocOffset)
}

func (b *Builder) lowerFunctionEntry(fn *ast.FuncDecl) {
	b.cfg.Scope.Push() // the parameter frame, outside the body's own frame
	for _, p := range fn.Params {
		if p.Type.IsVoid() {
			b.ctx.Sink.Errorf(p.Line, "Can't create a variable of type void")
			continue
		}
		s, ok := b.cfg.Scope.AddSymbol(p.Name, p.Type, p.Line, b.cfg.AllocOffset)
		if !ok {
			b.ctx.Sink.Errorf(p.Line, "The variable %s has already been declared", p.Name)
			continue
		}
		b.cfg.Params = append(b.cfg.Params, Param{Type: p.Type, Sym: s})
		b.current.Append(NewInstr(OpParamDecl, p.Type, SymOperand(s)))
	}

	b.lowerBlock(fn.Body)

	b.cfg.Scope.Pop(func(s *sym.Symbol) {
		b.ctx.Sink.Warnf(s.Line, "Variable %s not used (declared in line %d)", s.Name, s.Line)
	})
}

// lowerBlock lowers a `{ ... }` block as a pure scoping construct: it never
// allocates a new ir.Block itself (only if/while do that), it only pushes and
// pops a sym.Scope frame around its statements.
func (b *Builder) lowerBlock(blk *ast.BlockStmt) {
	b.cfg.Scope.Push()
	for _, st := range blk.Stmts {
		b.lowerStmt(st)
	}
	b.cfg.Scope.Pop(func(s *sym.Symbol) {
		b.ctx.Sink.Warnf(s.Line, "Variable %s not used (declared in line %d)", s.Name, s.Line)
	})
}

func (b *Builder) lowerStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.BlockStmt:
		b.lowerBlock(n)
	case *ast.DeclStmt:
		b.lowerDecl(n)
	case *ast.AssignStmt:
		b.lowerAssign(n)
	case *ast.ExprStmt:
		b.lowerCall(n.Call, false)
	case *ast.IfStmt:
		if n.Else != nil {
			b.lowerIfElse(n)
		} else {
			b.lowerIf(n)
		}
	case *ast.WhileStmt:
		b.lowerWhile(n)
	case *ast.ReturnStmt:
		b.lowerReturn(n)
	}
}

func (b *Builder) lowerDecl(s *ast.DeclStmt) {
	if s.Type.IsVoid() {
		b.ctx.Sink.Errorf(s.Line, "Can't create a variable of type void")
		for _, d := range s.Declarators {
			if d.Init != nil {
				b.lowerExpr(d.Init)
			}
		}
		return
	}
	for _, d := range s.Declarators {
		target, ok := b.cfg.Scope.AddSymbol(d.Name, s.Type, s.Line, b.cfg.AllocOffset)
		if !ok {
			b.ctx.Sink.Errorf(s.Line, "The variable %s has already been declared", d.Name)
			if d.Init != nil {
				b.lowerExpr(d.Init)
			}
			continue
		}
		if d.Init != nil {
			v := b.lowerExpr(d.Init)
			b.current.Append(NewInstr(OpVarAssign, target.Type, SymOperand(target), SymOperand(v)))
		}
	}
}

func (b *Builder) lowerAssign(s *ast.AssignStmt) {
	target, ok := b.cfg.Scope.Lookup(s.Name)
	if !ok {
		b.ctx.Sink.Errorf(s.Line, "Symbol not found: %s", s.Name)
		b.lowerExpr(s.Value)
		return
	}
	v := b.lowerExpr(s.Value)
	b.current.Append(NewInstr(OpVarAssign, target.Type, SymOperand(target), SymOperand(v)))
}

func (b *Builder) lowerReturn(s *ast.ReturnStmt) {
	retType := b.cfg.RetType
	if retType.IsVoid() {
		if s.Value != nil {
			b.ctx.Sink.Errorf(s.Line, "Void function %s should not return a value", b.cfg.Name)
			b.lowerExpr(s.Value)
		}
		b.current.Append(NewInstr(OpRet, retType))
		return
	}
	if s.Value == nil {
		b.ctx.Sink.Errorf(s.Line, "Non void function %s should return a value", b.cfg.Name)
		b.current.Append(NewInstr(OpRet, retType))
		return
	}
	v := b.lowerExpr(s.Value)
	b.current.Append(NewInstr(OpRet, retType, SymOperand(v)))
}

// lowerIf implements spec §4.2's plain-if block wiring: the condition is
// tested in the block active on entry, which then branches to a fallthrough
// trueBlock or a labeled falseBlock; trueBlock falls through to falseBlock
// once the then-branch is done, and falseBlock inherits whatever the entry
// block's own continuation was (so code after the if keeps flowing
// correctly even when ifs nest directly inside one another's branches).
func (b *Builder) lowerIf(s *ast.IfStmt) {
	cond := b.lowerExpr(s.Cond)
	origExitTrue, origExitFalse := b.current.ExitTrue, b.current.ExitFalse
	b.current.Append(NewInstr(OpCmpNZ, sym.TypeInt, SymOperand(cond)))

	trueBlock := b.cfg.NewBlock("")
	falseBlock := b.cfg.NewBlock(b.cfg.NewLabel())

	b.current.ExitTrue = trueBlock
	b.current.ExitFalse = falseBlock

	trueBlock.ExitTrue = falseBlock

	falseBlock.ExitTrue = origExitTrue
	falseBlock.ExitFalse = origExitFalse

	b.current = trueBlock
	b.lowerBlock(s.Then)

	b.current = falseBlock
}

// lowerIfElse implements the if/else variant: both branches join at a fresh
// labeled endBlock, which inherits the entry block's own continuation.
func (b *Builder) lowerIfElse(s *ast.IfStmt) {
	cond := b.lowerExpr(s.Cond)
	origExitTrue, origExitFalse := b.current.ExitTrue, b.current.ExitFalse
	b.current.Append(NewInstr(OpCmpNZ, sym.TypeInt, SymOperand(cond)))

	trueBlock := b.cfg.NewBlock("")
	elseBlock := b.cfg.NewBlock(b.cfg.NewLabel())
	endBlock := b.cfg.NewBlock(b.cfg.NewLabel())

	b.current.ExitTrue = trueBlock
	b.current.ExitFalse = elseBlock

	trueBlock.ExitTrue = endBlock
	elseBlock.ExitTrue = endBlock

	endBlock.ExitTrue = origExitTrue
	endBlock.ExitFalse = origExitFalse

	b.current = trueBlock
	b.lowerBlock(s.Then)

	b.current = elseBlock
	b.lowerBlock(s.Else)

	b.current = endBlock
}

// lowerWhile implements spec §4.2's loop wiring: a labeled conditionBlock
// (the back-edge's jump target), a bodyBlock that always loops back to it,
// and a labeled endBlock that inherits the entry block's own continuation.
func (b *Builder) lowerWhile(s *ast.WhileStmt) {
	origExitTrue, origExitFalse := b.current.ExitTrue, b.current.ExitFalse

	conditionBlock := b.cfg.NewBlock(b.cfg.NewLabel())
	bodyBlock := b.cfg.NewBlock("")
	endBlock := b.cfg.NewBlock(b.cfg.NewLabel())

	b.current.ExitTrue = conditionBlock
	b.current.ExitFalse = nil

	bodyBlock.ExitTrue = conditionBlock // back-edge, preset so nested
	// control flow inside the body inherits it as "what comes next"

	b.current = conditionBlock
	cond := b.lowerExpr(s.Cond)
	conditionBlock.Append(NewInstr(OpCmpNZ, sym.TypeInt, SymOperand(cond)))
	conditionBlock.ExitTrue = bodyBlock
	conditionBlock.ExitFalse = endBlock

	b.current = bodyBlock
	b.lowerBlock(s.Body)

	endBlock.ExitTrue = origExitTrue
	endBlock.ExitFalse = origExitFalse
	b.current = endBlock
}

func (b *Builder) lowerExpr(e ast.Expr) *sym.Symbol {
	switch n := e.(type) {
	case *ast.IdentExpr:
		s, ok := b.cfg.Scope.Lookup(n.Name)
		if !ok {
			b.ctx.Sink.Errorf(n.Line, "Symbol not found: %s", n.Name)
			return errorSymbol(b.cfg)
		}
		s.MarkUsed()
		return s // ldvar: an identity read, nothing to emit
	case *ast.IntLitExpr:
		dest := b.cfg.Scope.CreateTemp(sym.TypeInt, b.cfg.AllocOffset)
		b.current.Append(NewInstr(OpLdConst, sym.TypeInt, StrOperand(strconv.FormatInt(n.Value, 10)), SymOperand(dest)))
		return dest
	case *ast.CharLitExpr:
		// Character literals are widened to their integer code point at the
		// point of use; the storage-level char type is still 1 byte (see
		// sym.Type.Size), but every value flowing through an IR temp is int.
		dest := b.cfg.Scope.CreateTemp(sym.TypeInt, b.cfg.AllocOffset)
		b.current.Append(NewInstr(OpLdConst, sym.TypeInt, StrOperand(strconv.Itoa(int(n.Value))), SymOperand(dest)))
		return dest
	case *ast.BinaryExpr:
		return b.lowerBinary(n)
	case *ast.UnaryExpr:
		return b.lowerUnary(n)
	case *ast.CallExpr:
		return b.lowerCall(n, true)
	}
	panic("ir: unhandled expression node")
}

var binOps = map[ast.BinOp]Op{
	ast.BAdd: OpAdd, ast.BSub: OpSub, ast.BMul: OpMul, ast.BDiv: OpDiv, ast.BMod: OpMod,
	ast.BAnd: OpBAnd, ast.BOr: OpBOr, ast.BXor: OpBXor,
	ast.BLt: OpLt, ast.BLeq: OpLeq, ast.BGt: OpGt, ast.BGeq: OpGeq,
	ast.BEq: OpEq, ast.BNeq: OpNeq,
}

func (b *Builder) lowerBinary(n *ast.BinaryExpr) *sym.Symbol {
	left := b.lowerExpr(n.Left) // left-to-right evaluation order
	right := b.lowerExpr(n.Right)
	dest := b.cfg.Scope.CreateTemp(sym.TypeInt, b.cfg.AllocOffset)
	b.current.Append(NewInstr(binOps[n.Op], sym.TypeInt, SymOperand(left), SymOperand(right), SymOperand(dest)))
	return dest
}

func (b *Builder) lowerUnary(n *ast.UnaryExpr) *sym.Symbol {
	switch n.Op {
	case ast.UPlus:
		return b.lowerExpr(n.Operand)
	case ast.UMinus:
		v := b.lowerExpr(n.Operand)
		dest := b.cfg.Scope.CreateTemp(sym.TypeInt, b.cfg.AllocOffset)
		b.current.Append(NewInstr(OpNeg, sym.TypeInt, SymOperand(v), SymOperand(dest)))
		return dest
	case ast.UBNot:
		v := b.lowerExpr(n.Operand)
		dest := b.cfg.Scope.CreateTemp(sym.TypeInt, b.cfg.AllocOffset)
		b.current.Append(NewInstr(OpNot, sym.TypeInt, SymOperand(v), SymOperand(dest)))
		return dest
	case ast.ULNot:
		v := b.lowerExpr(n.Operand)
		dest := b.cfg.Scope.CreateTemp(sym.TypeInt, b.cfg.AllocOffset)
		b.current.Append(NewInstr(OpLNot, sym.TypeInt, SymOperand(v), SymOperand(dest)))
		return dest
	case ast.UPreInc, ast.UPreDec:
		return b.lowerIncDec(n)
	}
	panic("ir: unhandled unary operator")
}

// lowerIncDec handles prefix ++/--, which unlike every other unary operator
// both produces a value and writes it back into its operand, so the operand
// must be a plain, already-declared variable.
func (b *Builder) lowerIncDec(n *ast.UnaryExpr) *sym.Symbol {
	ident, ok := n.Operand.(*ast.IdentExpr)
	if !ok {
		b.ctx.Sink.Errorf(n.Line, "Invalid operand for increment/decrement")
		return b.lowerExpr(n.Operand)
	}
	target, found := b.cfg.Scope.Lookup(ident.Name)
	if !found {
		b.ctx.Sink.Errorf(ident.Line, "Symbol not found: %s", ident.Name)
		return errorSymbol(b.cfg)
	}
	target.MarkUsed()
	op := OpInc
	if n.Op == ast.UPreDec {
		op = OpDec
	}
	dest := b.cfg.Scope.CreateTemp(sym.TypeInt, b.cfg.AllocOffset)
	b.current.Append(NewInstr(op, sym.TypeInt, SymOperand(target), SymOperand(dest)))
	b.current.Append(NewInstr(OpVarAssign, target.Type, SymOperand(target), SymOperand(dest)))
	return dest
}

// lowerCall lowers both call-statements (wantValue=false) and calls used as
// an expression value (wantValue=true), covering the arity and void-context
// diagnostics of spec §7.
func (b *Builder) lowerCall(call *ast.CallExpr, wantValue bool) *sym.Symbol {
	sig, ok := b.ctx.Signature(call.Name)
	if !ok {
		b.ctx.Sink.Errorf(call.Line, "Function %s has not been declared", call.Name)
		for _, a := range call.Args {
			b.lowerExpr(a)
		}
		if wantValue {
			return errorSymbol(b.cfg)
		}
		return nil
	}
	if len(call.Args) != len(sig.ParamTypes) {
		b.ctx.Sink.Errorf(call.Line, "Wrong number of parameters in function call to %s: expected %d but found %d",
			call.Name, len(sig.ParamTypes), len(call.Args))
	}

	argSyms := make([]*sym.Symbol, 0, len(call.Args))
	for _, a := range call.Args {
		v := b.lowerExpr(a)
		b.current.Append(NewInstr(OpParam, v.Type, SymOperand(v)))
		b.cfg.PushParam(v)
		argSyms = append(argSyms, v)
	}
	popped := b.cfg.PopParams(len(argSyms))

	callArgs := make([]Operand, 0, len(popped)+2)
	callArgs = append(callArgs, StrOperand(call.Name))
	for _, a := range popped {
		callArgs = append(callArgs, SymOperand(a))
	}

	var result *sym.Symbol
	if !sig.RetType.IsVoid() {
		result = b.cfg.Scope.CreateTemp(sig.RetType, b.cfg.AllocOffset)
		callArgs = append(callArgs, SymOperand(result))
	}
	b.current.Append(NewInstr(OpCall, sig.RetType, callArgs...))

	if sig.RetType.IsVoid() {
		if wantValue {
			b.ctx.Sink.Errorf(call.Line, "Invalid operation with function returning void")
			return errorSymbol(b.cfg)
		}
		return nil
	}
	return result
}
