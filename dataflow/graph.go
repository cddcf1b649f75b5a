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

// Package dataflow describes the frozen, externally-supplied dataflow
// graph the circuit facade compiles: source/sink enumeration, the
// per-layout cache, and the optional validator/optimizer passes.
//
// The graph itself, its optimizer, and its validator are deliberately out
// of scope for this repo (SPEC_FULL.md §1); this package only pins down
// the interfaces the Compilation Driver (package circuit) consumes. A
// real implementation lives upstream of this repo; package dataflowtest
// supplies a minimal in-memory implementation for tests.
package dataflow

import "github.com/mellowstream/dbsp/layout"

// NodeId identifies a source or sink node in the graph.
type NodeId uint64

// StreamKind says whether a node's edge carries a multiset of keys or a
// multiset of key->value pairs.
type StreamKind int

const (
	Set StreamKind = iota
	Map
)

func (k StreamKind) String() string {
	if k == Map {
		return "Map"
	}
	return "Set"
}

// StreamLayout pairs a StreamKind with the layout id(s) it carries. Value
// is only meaningful when Kind == Map.
type StreamLayout struct {
	Kind  StreamKind
	Key   layout.ID
	Value layout.ID
}

func SetOf(key layout.ID) StreamLayout { return StreamLayout{Kind: Set, Key: key} }

func MapOf(key, value layout.ID) StreamLayout {
	return StreamLayout{Kind: Map, Key: key, Value: value}
}

// LayoutCache resolves a LayoutId to its logical RowLayout. Implementations
// must return the same *layout.RowLayout value (or an equal one) for the
// lifetime of a Graph.
type LayoutCache interface {
	Layout(id layout.ID) (*layout.RowLayout, bool)
}

// Graph is the frozen, validated dataflow graph the Compilation Driver
// compiles. Source and sink enumeration must be stable snapshots taken
// before any optimization pass runs (SPEC_FULL.md §4.1 step 1) --
// Sources() and Sinks() are expected to be pure functions of the graph's
// declared public surface, independent of whatever Optimize does
// internally.
type Graph interface {
	Sources() map[NodeId]StreamLayout
	Sinks() map[NodeId]StreamLayout
	Layouts() LayoutCache
}

// Validator fails hard (returns a non-nil error) if g is not a
// well-formed dataflow graph. The Compilation Driver treats a non-nil
// error as fatal and never returns a Circuit Handle.
type Validator interface {
	Validate(g Graph) error
}

// Optimizer rewrites g, potentially removing the live reader of a
// declared source or the live producer of a declared sink. The returned
// Graph's Sources()/Sinks() enumeration reflects only nodes that survived
// optimization; the Compilation Driver left-joins this against the
// pre-optimization snapshot to preserve addressability of dropped nodes
// (SPEC_FULL.md §4.1 step 6, §9 "Endpoint absence").
type Optimizer interface {
	Optimize(g Graph) (Graph, error)
}
