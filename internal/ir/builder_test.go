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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cminor/internal/ast"
	"cminor/internal/diag"
)

func compile(t *testing.T, src string) (*Context, *diag.Sink) {
	t.Helper()
	sink := diag.NewSink()
	prog := ast.ParseProgram(src)
	ctx := Compile(sink, prog)
	return ctx, sink
}

func errMessages(sink *diag.Sink) []string {
	var out []string
	for _, d := range sink.Diagnostics() {
		if d.Severity == diag.SevError {
			out = append(out, d.String())
		}
	}
	return out
}

func TestLowerConstantReturn(t *testing.T) {
	ctx, sink := compile(t, `int main(){ return 42; }`)
	require.Empty(t, errMessages(sink))

	fn := ctx.Funcs()[0]
	entry := fn.Entry()
	require.True(t, entry.IsTerminal())

	ret := entry.Last()
	require.NotNil(t, ret)
	assert.Equal(t, OpRet, ret.Op)

	ldconst := entry.Instrs[0]
	assert.Equal(t, OpLdConst, ldconst.Op)
	assert.Equal(t, "42", ldconst.Args[0].Str)
}

func TestLowerVariableReturn(t *testing.T) {
	ctx, sink := compile(t, `int main(){ int a = 7; return a; }`)
	require.Empty(t, errMessages(sink))

	fn := ctx.Funcs()[0]
	ret := fn.Entry().Last()
	require.Equal(t, OpRet, ret.Op)
	assert.Equal(t, "a", ret.Args[0].Sym.Name)
}

func TestUndeclaredSymbolIsFatal(t *testing.T) {
	_, sink := compile(t, `int main(){ return y; }`)
	msgs := errMessages(sink)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Symbol not found: y")
	assert.True(t, sink.HasErrors())
}

func TestUnusedVariableWarns(t *testing.T) {
	_, sink := compile(t, `int main(){ int x; return 0; }`)
	require.False(t, sink.HasErrors())

	var warnings []string
	for _, d := range sink.Diagnostics() {
		if d.Severity == diag.SevWarning {
			warnings = append(warnings, d.String())
		}
	}
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Variable x not used")
}

func TestVoidVariableIsRejected(t *testing.T) {
	_, sink := compile(t, `int main(){ void v; return 0; }`)
	msgs := errMessages(sink)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Can't create a variable of type void")
}

func TestRedeclarationIsFatal(t *testing.T) {
	_, sink := compile(t, `int main(){ int a = 1; int a = 2; return a; }`)
	msgs := errMessages(sink)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "The variable a has already been declared")
}

func TestReturnMismatch(t *testing.T) {
	_, sink := compile(t, `void f(){ return 1; } int main(){ f(); return 0; }`)
	msgs := errMessages(sink)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Void function f should not return a value")

	_, sink = compile(t, `int f(){ return; } int main(){ return f(); }`)
	msgs = errMessages(sink)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Non void function f should return a value")
}

func TestCallArityAndUnknownFunction(t *testing.T) {
	_, sink := compile(t, `int f(int a, int b){ return a+b; } int main(){ return f(1); }`)
	msgs := errMessages(sink)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Wrong number of parameters in function call to f: expected 2 but found 1")

	_, sink = compile(t, `int main(){ return g(1); }`)
	msgs = errMessages(sink)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Function g has not been declared")
}

func TestVoidCallUsedAsValueIsFatal(t *testing.T) {
	_, sink := compile(t, `void f(){ return; } int main(){ return f(); }`)
	msgs := errMessages(sink)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Invalid operation with function returning void")
}

func TestCharLiteralWidensToCodePoint(t *testing.T) {
	ctx, sink := compile(t, `int main(){ return 'A'; }`)
	require.Empty(t, errMessages(sink))

	fn := ctx.Funcs()[0]
	ldconst := fn.Entry().Instrs[0]
	assert.Equal(t, OpLdConst, ldconst.Op)
	assert.Equal(t, "65", ldconst.Args[0].Str)
}

// TestIfElseBothBranchesWriteSameVariable grounds spec §8's "nested if/else
// where both branches write the same variable" boundary case: both writes
// must target the very same Symbol (the interference graph is built from
// that fact downstream, not from anything re-checked here).
func TestIfElseBothBranchesWriteSameVariable(t *testing.T) {
	ctx, sink := compile(t, `
		int main(){
			int a = 5;
			if (a > 3) { a = 1; } else { a = 2; }
			return a;
		}
	`)
	require.Empty(t, errMessages(sink))

	fn := ctx.Funcs()[0]
	var writes []*Instruction
	for _, b := range fn.Blocks {
		for _, ins := range b.Instrs {
			if ins.Op == OpVarAssign {
				writes = append(writes, ins)
			}
		}
	}
	require.Len(t, writes, 3, "the initializer plus one write per branch")
	for _, w := range writes[1:] {
		assert.Same(t, writes[0].Args[0].Sym, w.Args[0].Sym, "every write targets the same declared symbol")
	}
}

// TestIfBlockWiring checks spec §4.2's plain-if linking: trueBlock falls
// through to falseBlock, and falseBlock inherits the entry block's original
// continuation so code following the if still executes.
func TestIfBlockWiring(t *testing.T) {
	ctx, sink := compile(t, `
		int main(){
			int a = 5;
			if (a > 3) { a = 1; }
			return a;
		}
	`)
	require.Empty(t, errMessages(sink))

	fn := ctx.Funcs()[0]
	entry := fn.Entry()
	require.True(t, entry.IsConditional())

	trueBlock := entry.ExitTrue
	falseBlock := entry.ExitFalse
	assert.Same(t, falseBlock, trueBlock.ExitTrue, "then-branch falls through to the false block")
	require.True(t, falseBlock.IsTerminal(), "the label block itself must carry the trailing return")
}

// TestWhileBackEdge grounds spec §8's "while condition reads a variable
// assigned only in the body" case and the back-edge wiring of spec §4.2.
func TestWhileBackEdge(t *testing.T) {
	ctx, sink := compile(t, `
		int main(){
			int i = 0;
			int s = 0;
			while (i < 10) {
				s = s + i;
				i = i + 1;
			}
			return s;
		}
	`)
	require.Empty(t, errMessages(sink))

	fn := ctx.Funcs()[0]
	var condBlock *Block
	for _, b := range fn.Blocks {
		if b.IsConditional() && b.Label != "" {
			condBlock = b
			break
		}
	}
	require.NotNil(t, condBlock)
	body := condBlock.ExitTrue
	assert.Same(t, condBlock, body.ExitTrue, "the loop body must jump back to the condition block")
}

func TestSixAndSevenParameterFunctions(t *testing.T) {
	ctx, sink := compile(t, `
		int f(int a, int b, int c, int d, int e, int g){ return a+b+c+d+e+g; }
		int main(){ return f(1,2,3,4,5,6); }
	`)
	require.Empty(t, errMessages(sink))
	fns := ctx.Funcs()
	require.Len(t, fns[0].Params, 6)

	ctx, sink = compile(t, `
		int f(int a, int b, int c, int d, int e, int g, int h){ return a+b+c+d+e+g+h; }
		int main(){ return f(1,2,3,4,5,6,7); }
	`)
	require.Empty(t, errMessages(sink))
	fns = ctx.Funcs()
	require.Len(t, fns[0].Params, 7)
	assert.True(t, fns[0].Params[6].Sym.Offset >= 0, "the 7th parameter still gets a stack-offset slot in its own frame")
}
