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

package dataflowtest

import "github.com/mellowstream/dbsp/dataflow"

// PassValidator always succeeds.
type PassValidator struct{}

func (PassValidator) Validate(dataflow.Graph) error { return nil }

// FailValidator always fails with Err, for exercising the Compilation
// Driver's validate-stage error path.
type FailValidator struct{ Err error }

func (f FailValidator) Validate(dataflow.Graph) error { return f.Err }

// PassOptimizer returns g unchanged.
type PassOptimizer struct{}

func (PassOptimizer) Optimize(g dataflow.Graph) (dataflow.Graph, error) { return g, nil }

// DropOptimizer simulates an optimizer that determined certain declared
// sources/sinks have no live reader/producer: it returns a clone of g
// with Sources/Sinks removed, while the Compilation Driver's pre-snapshot
// still remembers them as declared (SPEC_FULL.md §9 "Endpoint absence").
type DropOptimizer struct {
	Sources []dataflow.NodeId
	Sinks   []dataflow.NodeId
}

func (d DropOptimizer) Optimize(g dataflow.Graph) (dataflow.Graph, error) {
	gg, ok := g.(*Graph)
	if !ok {
		return g, nil
	}
	out := gg.Clone()
	for _, n := range d.Sources {
		out.DropSource(n)
	}
	for _, n := range d.Sinks {
		out.DropSink(n)
	}
	return out, nil
}
