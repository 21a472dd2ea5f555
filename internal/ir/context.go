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
	"fmt"

	"cminor/internal/ast"
	"cminor/internal/diag"
	"cminor/internal/sym"
)

// Signature is a function's calling-convention-relevant shape, known after
// the first registration pass and consulted (read-only) by every later call
// lowering (spec §9: "Build it in two passes").
type Signature struct {
	Name       string
	RetType    *sym.Type
	ParamTypes []*sym.Type
	Line       int
	// External marks putchar/getchar: their CFG entries (if any) exist only
	// for type/arity checking and are never emitted (spec §6).
	External bool
}

// Context is the compilation-wide, process-scoped function table: one CFG
// per declared function, plus the diagnostic sink every lowering step
// reports into. No symbol or block is ever shared across two CFGs.
type Context struct {
	Sink *diag.Sink

	sigs  map[string]*Signature
	funcs map[string]*CFG
	order []string

	labelCounter int
}

func NewContext(sink *diag.Sink) *Context {
	return &Context{
		Sink:  sink,
		sigs:  make(map[string]*Signature),
		funcs: make(map[string]*CFG),
	}
}

func externSignature(name string) *Signature {
	// putchar/getchar are externally linked C runtime functions; they are
	// known to the compiler only well enough to check call sites.
	switch name {
	case "putchar":
		return &Signature{Name: name, RetType: sym.TypeInt, ParamTypes: []*sym.Type{sym.TypeInt}, External: true}
	case "getchar":
		return &Signature{Name: name, RetType: sym.TypeInt, External: true}
	}
	return nil
}

func (c *Context) Signature(name string) (*Signature, bool) {
	if sig, ok := c.sigs[name]; ok {
		return sig, true
	}
	if sig := externSignature(name); sig != nil {
		c.sigs[name] = sig
		return sig, true
	}
	return nil, false
}

// RegisterSignature is pass one: record every function's name, return type,
// and parameter types before lowering any body, so forward calls resolve.
func (c *Context) RegisterSignature(fn *ast.FuncDecl) {
	if _, exists := c.sigs[fn.Name]; exists {
		c.Sink.Errorf(fn.Line, "Function %s has already been declared", fn.Name)
		return
	}
	paramTypes := make([]*sym.Type, len(fn.Params))
	for i, p := range fn.Params {
		paramTypes[i] = p.Type
	}
	c.sigs[fn.Name] = &Signature{
		Name:       fn.Name,
		RetType:    fn.RetType,
		ParamTypes: paramTypes,
		Line:       fn.Line,
	}
}

// Funcs returns every lowered CFG in declaration order.
func (c *Context) Funcs() []*CFG {
	out := make([]*CFG, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.funcs[name])
	}
	return out
}

func (c *Context) addCFG(cfg *CFG) {
	c.funcs[cfg.Name] = cfg
	c.order = append(c.order, cfg.Name)
}

func (c *Context) newLabel() string {
	c.labelCounter++
	return fmt.Sprintf(".L%d", c.labelCounter)
}
