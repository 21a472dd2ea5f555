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

package flow

import (
	"golang.org/x/exp/slices"

	"cminor/internal/ir"
	"cminor/internal/sym"
)

// Run lowers cfg all the way through liveness, interference, and register
// allocation, recording the result onto cfg.RegisterAssignment and
// cfg.Spilled (spec §4.3-§4.4). numRegisters is the allocator's K: the
// compiler reserves one more physical register beyond K as the emitter's
// scratch register, never offered to the allocator.
func Run(cfg *ir.CFG, numRegisters int) {
	live := ComputeLiveness(cfg)
	g := BuildInterferenceGraph(cfg, live)
	assign, spilled := Color(g, numRegisters)
	cfg.RegisterAssignment = assign
	cfg.Spilled = spilled
}

// Color runs Chaitin's simplify/spill/select algorithm on g with k colors.
//
// Simplify repeatedly removes (onto a stack) any node whose degree in the
// remaining graph is below k — such a node can always be colored once
// everything built on top of it already has been, since fewer than k
// neighbors cannot occupy all k colors between them. When no such node exists,
// a potential spill is chosen by degree (the node with the most remaining
// neighbors is the one most likely to free up coloring room for everyone
// else) and pushed anyway; whether it actually spills is only decided during
// select. Select then pops the stack and assigns the lowest color not
// already taken by a colored neighbor, marking the node as a real spill only
// if every color is taken.
func Color(g *Graph, k int) (assign map[*sym.Symbol]int, spilled map[*sym.Symbol]bool) {
	nodes := g.Nodes()
	removed := make(map[*sym.Symbol]bool, len(nodes))
	stack := make([]*sym.Symbol, 0, len(nodes))

	remainingDegree := func(s *sym.Symbol) int {
		d := 0
		for _, n := range g.Neighbors(s) {
			if !removed[n] {
				d++
			}
		}
		return d
	}

	remaining := len(nodes)
	for remaining > 0 {
		picked := -1
		for i, n := range nodes {
			if removed[n] {
				continue
			}
			if remainingDegree(n) < k {
				picked = i
				break
			}
		}
		if picked == -1 {
			bestDeg := -1
			for i, n := range nodes {
				if removed[n] {
					continue
				}
				if d := remainingDegree(n); d > bestDeg {
					bestDeg = d
					picked = i
				}
			}
		}

		n := nodes[picked]
		removed[n] = true
		remaining--
		stack = append(stack, n)
	}

	assign = make(map[*sym.Symbol]int)
	spilled = make(map[*sym.Symbol]bool)
	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		used := make([]bool, k)
		for _, nb := range g.Neighbors(n) {
			if c, ok := assign[nb]; ok {
				used[c] = true
			}
		}
		color := -1
		for c := 0; c < k; c++ {
			if !used[c] {
				color = c
				break
			}
		}
		if color == -1 {
			spilled[n] = true
		} else {
			assign[n] = color
		}
	}
	return assign, spilled
}

// SpilledNames returns cfg's spilled symbol names in sorted order, for
// debug tracing. The allocator's own decisions are already deterministic
// (spec §5); sorting here just makes a debug run's (CMINOR_DEBUG) log line diffable
// across two compiles of the same input, rather than bouncing around with
// Go's randomized map order.
func SpilledNames(cfg *ir.CFG) []string {
	names := make([]string, 0, len(cfg.Spilled))
	for s := range cfg.Spilled {
		names = append(names, s.Name)
	}
	slices.Sort(names)
	return names
}
