// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package dataflowtest supplies minimal, in-memory implementations of the
// out-of-scope collaborators the circuit facade depends on (dataflow.Graph,
// codegen.Generator, engine.Factory), so the facade's own orchestration
// logic -- validate/optimize/register/build/left-join, literal<->row
// conversion, step/append/consolidate/kill -- can be exercised without a
// real JIT or a real distributed runtime.
//
// Grounded in the teacher's testquery/testquery.go, which plays the same
// role for the query planner/VM: a hand-built Input standing in for the
// real (out-of-scope) storage layer.
package dataflowtest

import (
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/layout"
)

// Graph is a hand-assembled dataflow.Graph. Unlike a real graph, it also
// carries explicit sink->sources wiring (Edges), since this package's
// fake Generator has to know how to connect endpoints without a real
// lowering pass; production code never depends on this field.
type Graph struct {
	sources map[dataflow.NodeId]dataflow.StreamLayout
	sinks   map[dataflow.NodeId]dataflow.StreamLayout
	layouts map[layout.ID]*layout.RowLayout

	// Edges maps each sink to the sources whose tuples are unioned into
	// it. A sink with exactly one source and an identical key/value
	// layout behaves as a pass-through identity dataflow.
	Edges map[dataflow.NodeId][]dataflow.NodeId

	// Joins maps a sink declared via AddJoinSink to its equi-join
	// parameters, taking priority over Edges for that sink.
	Joins map[dataflow.NodeId]JoinSpec
}

// JoinSpec describes an equi-join between two Set-typed sources on a
// shared integer key column: every row pair whose KeyColumn values match
// contributes one output row (the left row, weighted by the product of
// the matching rows' weights), matching the bilinear-join semantics
// SPEC_FULL.md §8's S3 scenario exercises.
type JoinSpec struct {
	Left, Right dataflow.NodeId
	KeyColumn   int
}

func NewGraph() *Graph {
	return &Graph{
		sources: make(map[dataflow.NodeId]dataflow.StreamLayout),
		sinks:   make(map[dataflow.NodeId]dataflow.StreamLayout),
		layouts: make(map[layout.ID]*layout.RowLayout),
		Edges:   make(map[dataflow.NodeId][]dataflow.NodeId),
		Joins:   make(map[dataflow.NodeId]JoinSpec),
	}
}

// AddLayout registers a logical schema under its own ID.
func (g *Graph) AddLayout(l *layout.RowLayout) { g.layouts[l.ID] = l }

// AddSource declares node as a source with the given stream shape.
func (g *Graph) AddSource(node dataflow.NodeId, sl dataflow.StreamLayout) { g.sources[node] = sl }

// AddSink declares node as a sink with the given stream shape, fed by the
// union of from's current traces.
func (g *Graph) AddSink(node dataflow.NodeId, sl dataflow.StreamLayout, from ...dataflow.NodeId) {
	g.sinks[node] = sl
	g.Edges[node] = from
}

// AddJoinSink declares node as a sink fed by the equi-join of left and
// right on keyColumn, rather than by a plain union of Edges.
func (g *Graph) AddJoinSink(node dataflow.NodeId, sl dataflow.StreamLayout, left, right dataflow.NodeId, keyColumn int) {
	g.sinks[node] = sl
	g.Joins[node] = JoinSpec{Left: left, Right: right, KeyColumn: keyColumn}
}

// DropSource removes node from the declared-sources snapshot, simulating
// an optimizer that found the source dead.
func (g *Graph) DropSource(node dataflow.NodeId) { delete(g.sources, node) }

// DropSink removes node from the declared-sinks snapshot, simulating an
// optimizer that found the sink unreachable.
func (g *Graph) DropSink(node dataflow.NodeId) { delete(g.sinks, node) }

func (g *Graph) Sources() map[dataflow.NodeId]dataflow.StreamLayout {
	out := make(map[dataflow.NodeId]dataflow.StreamLayout, len(g.sources))
	for k, v := range g.sources {
		out[k] = v
	}
	return out
}

func (g *Graph) Sinks() map[dataflow.NodeId]dataflow.StreamLayout {
	out := make(map[dataflow.NodeId]dataflow.StreamLayout, len(g.sinks))
	for k, v := range g.sinks {
		out[k] = v
	}
	return out
}

func (g *Graph) Layouts() dataflow.LayoutCache { return layoutCache{g.layouts} }

type layoutCache struct {
	m map[layout.ID]*layout.RowLayout
}

func (c layoutCache) Layout(id layout.ID) (*layout.RowLayout, bool) {
	l, ok := c.m[id]
	return l, ok
}

// Clone returns a shallow copy whose Sources/Sinks maps are independent,
// for use by Optimizer fakes that need to hand back a distinct Graph
// value without mutating the original.
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	for k, v := range g.sources {
		out.sources[k] = v
	}
	for k, v := range g.sinks {
		out.sinks[k] = v
	}
	for k, v := range g.layouts {
		out.layouts[k] = v
	}
	for k, v := range g.Edges {
		out.Edges[k] = append([]dataflow.NodeId(nil), v...)
	}
	for k, v := range g.Joins {
		out.Joins[k] = v
	}
	return out
}
