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

package circuit

import (
	"fmt"

	"github.com/mellowstream/dbsp/codegen"
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/engine"
	"github.com/mellowstream/dbsp/layout"
	"github.com/mellowstream/dbsp/literal"
)

// Step advances the incremental runtime by one logical clock tick,
// blocking until every worker has quiesced. On error the circuit is not
// automatically killed; further steps may also fail.
func (h *Handle) Step() error {
	if err := h.rt.Step(); err != nil {
		return &StepError{Err: err}
	}
	return nil
}

// Kill terminates the runtime, drops the endpoint maps, then frees the
// JIT handle. Drop order is load-bearing: endpoint maps (which may still
// reference rows whose vtables live in JIT memory) are released before
// the JIT handle is closed (SPEC_FULL.md §5 "Lifetime discipline").
//
// Kill must be called exactly once; calling it twice panics, since a
// second call cannot distinguish "already torn down" from a caller bug,
// and silently ignoring it would let a caller believe a second kill did
// something.
func (h *Handle) Kill() error {
	if h.killed {
		panic("circuit: Kill called more than once")
	}
	h.killed = true

	rtErr := h.rt.Kill()

	// Drop endpoint maps before freeing JIT memory.
	h.inputs = nil
	h.outputs = nil

	if err := h.jit.Close(); err != nil {
		h.log.Printf("[%s] kill: closing JIT handle: %v", h.runID, err)
		if rtErr == nil {
			rtErr = err
		}
	}

	if rtErr != nil {
		h.log.Printf("[%s] kill: worker join error: %v", h.runID, rtErr)
		return &KillError{Err: rtErr}
	}
	h.log.Printf("[%s] circuit killed", h.runID)
	return nil
}

func (h *Handle) mustInput(node dataflow.NodeId) inputSlot {
	slot, ok := h.inputs[node]
	if !ok {
		panic(fmt.Sprintf("circuit: %v is not a declared source", node))
	}
	return slot
}

func (h *Handle) mustOutput(node dataflow.NodeId) outputSlot {
	slot, ok := h.outputs[node]
	if !ok {
		panic(fmt.Sprintf("circuit: %v is not a declared sink", node))
	}
	return slot
}

// AppendInput converts coll to native rows and appends them to node's
// source batch. If the source was optimized away or is otherwise
// unreachable, this is a logged no-op. Panics if node is not a declared
// source, or if coll's shape (Set vs Map) disagrees with the source's
// declared StreamLayout.
func (h *Handle) AppendInput(node dataflow.NodeId, coll literal.StreamCollection) error {
	slot := h.mustInput(node)
	if (slot.layout.Kind == dataflow.Map) != (coll.Kind == literal.MapKind) {
		panic(fmt.Sprintf("circuit: stream kind mismatch appending to %v: source is %v, collection is %v", node, slot.layout.Kind, coll.Kind))
	}
	if slot.ep == nil {
		h.log.Printf("[%s] append_input: source %v is absent; no-op", h.runID, node)
		return nil
	}

	tuples, err := h.collectionToTuples(slot.layout, coll)
	if err != nil {
		return fmt.Errorf("circuit: append_input: %w", err)
	}
	slot.ep.PushBatch(tuples)
	return nil
}

func (h *Handle) collectionToTuples(sl dataflow.StreamLayout, coll literal.StreamCollection) ([]engine.Tuple, error) {
	keyVT, err := h.jit.VTable(sl.Key)
	if err != nil {
		return nil, fmt.Errorf("resolving key vtable: %w", err)
	}
	if sl.Kind == dataflow.Set {
		out := make([]engine.Tuple, len(coll.Set))
		for i, e := range coll.Set {
			row, err := literal.RowFromLiteral(e.Key, keyVT)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			out[i] = engine.Tuple{Key: row, Weight: e.Weight}
		}
		return out, nil
	}
	valVT, err := h.jit.VTable(sl.Value)
	if err != nil {
		return nil, fmt.Errorf("resolving value vtable: %w", err)
	}
	out := make([]engine.Tuple, len(coll.Map))
	for i, e := range coll.Map {
		kr, err := literal.RowFromLiteral(e.Key, keyVT)
		if err != nil {
			return nil, fmt.Errorf("row %d key: %w", i, err)
		}
		vr, err := literal.RowFromLiteral(e.Value, valVT)
		if err != nil {
			return nil, fmt.Errorf("row %d value: %w", i, err)
		}
		out[i] = engine.Tuple{Key: kr, Value: vr, Weight: e.Weight}
	}
	return out, nil
}

// ConsolidateOutput drains sink's consolidated trace into a portable
// StreamCollection. For absent sinks, returns the empty collection of the
// declared shape. Panics if sink is not a declared sink.
func (h *Handle) ConsolidateOutput(sink dataflow.NodeId) (literal.StreamCollection, error) {
	slot := h.mustOutput(sink)
	if slot.ep == nil {
		if slot.layout.Kind == dataflow.Map {
			return literal.EmptyMap(), nil
		}
		return literal.EmptySet(), nil
	}
	tuples := slot.ep.Consolidate()

	keyLogical, ok := h.layouts.Layout(slot.layout.Key)
	if !ok {
		return literal.StreamCollection{}, fmt.Errorf("circuit: consolidate_output: unknown key layout %d", slot.layout.Key)
	}

	if slot.layout.Kind == dataflow.Set {
		out := literal.EmptySet()
		out.Set = make([]literal.SetEntry, len(tuples))
		for i, t := range tuples {
			lit, err := literal.RowLiteralFromRow(t.Key, keyLogical)
			if err != nil {
				return literal.StreamCollection{}, fmt.Errorf("circuit: consolidate_output: row %d: %w", i, err)
			}
			out.Set[i] = literal.SetEntry{Key: lit, Weight: t.Weight}
		}
		return out, nil
	}

	valLogical, ok := h.layouts.Layout(slot.layout.Value)
	if !ok {
		return literal.StreamCollection{}, fmt.Errorf("circuit: consolidate_output: unknown value layout %d", slot.layout.Value)
	}
	out := literal.EmptyMap()
	out.Map = make([]literal.MapEntry, len(tuples))
	for i, t := range tuples {
		klit, err := literal.RowLiteralFromRow(t.Key, keyLogical)
		if err != nil {
			return literal.StreamCollection{}, fmt.Errorf("circuit: consolidate_output: row %d key: %w", i, err)
		}
		vlit, err := literal.RowLiteralFromRow(t.Value, valLogical)
		if err != nil {
			return literal.StreamCollection{}, fmt.Errorf("circuit: consolidate_output: row %d value: %w", i, err)
		}
		out.Map[i] = literal.MapEntry{Key: klit, Value: vlit, Weight: t.Weight}
	}
	return out, nil
}

// CSVFunction resolves the generated CSV marshaller and key vtable
// registered for a layout, for use by package ingest. Returns an error if
// no CSV demand was registered for key.
func (h *Handle) CSVFunction(key layout.ID) (codegen.Func, *layout.VTable, error) {
	fn, ok := h.csvDemands[uint64(key)]
	if !ok {
		return nil, nil, fmt.Errorf("circuit: no CSV demand registered for layout %d", key)
	}
	f, err := h.jit.Function(fn)
	if err != nil {
		return nil, nil, fmt.Errorf("circuit: resolving CSV function for layout %d: %w", key, err)
	}
	vt, err := h.jit.VTable(key)
	if err != nil {
		return nil, nil, fmt.Errorf("circuit: resolving vtable for layout %d: %w", key, err)
	}
	return f, vt, nil
}

// JSONFunction resolves the generated JSON deserializer and key vtable
// registered for a layout, for use by package ingest and JSONSetHandle.
func (h *Handle) JSONFunction(key layout.ID) (codegen.Func, *layout.VTable, error) {
	fn, ok := h.jsonDemands[uint64(key)]
	if !ok {
		return nil, nil, fmt.Errorf("circuit: no JSON demand registered for layout %d", key)
	}
	f, err := h.jit.Function(fn)
	if err != nil {
		return nil, nil, fmt.Errorf("circuit: resolving JSON function for layout %d: %w", key, err)
	}
	vt, err := h.jit.VTable(key)
	if err != nil {
		return nil, nil, fmt.Errorf("circuit: resolving vtable for layout %d: %w", key, err)
	}
	return f, vt, nil
}

// SourceEndpoint exposes a declared source's StreamLayout and
// InputEndpoint (nil if absent) for package ingest. Panics if node is not
// a declared source.
func (h *Handle) SourceEndpoint(node dataflow.NodeId) (dataflow.StreamLayout, engine.InputEndpoint) {
	slot := h.mustInput(node)
	return slot.layout, slot.ep
}

// Logf writes a single diagnostic line through the circuit's logger,
// prefixed with its run id, for use by package ingest.
func (h *Handle) Logf(format string, args ...any) {
	h.log.Printf("[%s] "+format, append([]any{h.runID}, args...)...)
}
