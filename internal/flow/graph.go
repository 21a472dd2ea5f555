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
	"sort"

	"cminor/internal/ir"
	"cminor/internal/sym"
	"cminor/utils"
)

// Graph is an undirected interference graph: an edge between two symbols
// means they must not be assigned the same physical register (spec §4.4).
// order records first-seen insertion order so allocation is deterministic.
type Graph struct {
	adj   map[*sym.Symbol]*utils.Set[*sym.Symbol]
	order []*sym.Symbol
}

func NewGraph() *Graph {
	return &Graph{adj: make(map[*sym.Symbol]*utils.Set[*sym.Symbol])}
}

func (g *Graph) AddNode(s *sym.Symbol) {
	if _, ok := g.adj[s]; ok {
		return
	}
	g.adj[s] = utils.NewSet[*sym.Symbol]()
	g.order = append(g.order, s)
}

func (g *Graph) AddEdge(a, b *sym.Symbol) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.adj[a].Add(b)
	g.adj[b].Add(a)
}

func (g *Graph) Neighbors(s *sym.Symbol) []*sym.Symbol {
	n, ok := g.adj[s]
	if !ok {
		return nil
	}
	return n.Keys()
}

// Nodes returns every symbol in the graph in first-seen order.
func (g *Graph) Nodes() []*sym.Symbol {
	return append([]*sym.Symbol(nil), g.order...)
}

// BuildInterferenceGraph adds an edge between every instruction's defined
// symbol and every symbol simultaneously live immediately after it (spec
// §4.4): within each block it replays the instructions backward from
// LiveOut, applying the same use/def transfer that ComputeLiveness applies
// per block, one instruction at a time, and records the interferences. Live
// symbols are visited in stack-offset order, so the graph's node order (and
// with it the allocation) is the same on every run.
func BuildInterferenceGraph(cfg *ir.CFG, live *Liveness) *Graph {
	g := NewGraph()
	for _, b := range cfg.Blocks {
		current := live.LiveOut[b].Clone()
		for i := len(b.Instrs) - 1; i >= 0; i-- {
			ins := b.Instrs[i]
			if d := ins.Def(); d != nil {
				g.AddNode(d)
				liveAfter := current.Keys()
				sort.Slice(liveAfter, func(i, j int) bool { return liveAfter[i].Offset < liveAfter[j].Offset })
				for _, v := range liveAfter {
					if v != d {
						g.AddEdge(d, v)
					}
				}
				current.Remove(d)
			}
			for _, v := range ins.Uses() {
				current.Add(v)
				g.AddNode(v)
			}
		}
	}
	return g
}
