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

// Package flow is the compiler's back-end analysis stage: liveness, the
// interference graph built from it, and the Chaitin-style graph-coloring
// register allocator that consumes both (spec §4.3, §4.4).
package flow

import (
	"cminor/internal/ir"
	"cminor/internal/sym"
	"cminor/utils"
)

// Liveness holds, per block, the set of symbols live on entry (LiveIn) and
// on exit (LiveOut), computed by the standard backward dataflow fixpoint.
type Liveness struct {
	LiveIn  map[*ir.Block]*utils.Set[*sym.Symbol]
	LiveOut map[*ir.Block]*utils.Set[*sym.Symbol]
}

// blockUseDef returns a block's Use and Def sets: Use holds every symbol
// read before it is (re)defined within the block, Def holds every symbol
// the block assigns, per the standard liveness equations.
func blockUseDef(b *ir.Block) (use, def *utils.Set[*sym.Symbol]) {
	use = utils.NewSet[*sym.Symbol]()
	def = utils.NewSet[*sym.Symbol]()
	for _, ins := range b.Instrs {
		for _, v := range ins.Uses() {
			if !def.Contains(v) {
				use.Add(v)
			}
		}
		if d := ins.Def(); d != nil {
			def.Add(d)
		}
	}
	return use, def
}

// ComputeLiveness runs the fixpoint live-in/live-out analysis over cfg's
// blocks in a fixed iteration order (spec §4.3): out[B] is the union of
// in[S] over every successor S, in[B] is use[B] ∪ (out[B] - def[B]).
// Iteration order does not affect the result, only how many passes it takes
// to converge.
func ComputeLiveness(cfg *ir.CFG) *Liveness {
	use := make(map[*ir.Block]*utils.Set[*sym.Symbol], len(cfg.Blocks))
	def := make(map[*ir.Block]*utils.Set[*sym.Symbol], len(cfg.Blocks))
	in := make(map[*ir.Block]*utils.Set[*sym.Symbol], len(cfg.Blocks))
	out := make(map[*ir.Block]*utils.Set[*sym.Symbol], len(cfg.Blocks))
	for _, b := range cfg.Blocks {
		u, d := blockUseDef(b)
		use[b], def[b] = u, d
		in[b] = utils.NewSet[*sym.Symbol]()
		out[b] = utils.NewSet[*sym.Symbol]()
	}

	for {
		changed := false
		for _, b := range cfg.Blocks {
			newOut := utils.NewSet[*sym.Symbol]()
			for _, s := range b.Successors() {
				newOut.Union(in[s])
			}
			newIn := use[b].Clone()
			rest := newOut.Clone()
			for _, v := range def[b].Keys() {
				rest.Remove(v)
			}
			newIn.Union(rest)

			if !newIn.Equals(in[b]) || !newOut.Equals(out[b]) {
				changed = true
			}
			in[b] = newIn
			out[b] = newOut
		}
		if !changed {
			break
		}
	}

	return &Liveness{LiveIn: in, LiveOut: out}
}
