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

// Package codegen describes the just-in-time code generator the circuit
// facade drives: given a graph and a codegen config, it produces a
// compiled dataflow constructor, a handle owning the generated functions
// and per-layout vtables, and a way to request CSV/JSON deserializers for
// specific layouts before the generator finalizes (SPEC_FULL.md §1, §6
// "Code generator contract").
//
// The generator itself is deliberately out of scope; package dataflowtest
// supplies a fake that builds its vtables from layout.BuildVTable and its
// CSV/JSON deserializers from straightforward field-by-field writes,
// standing in for what a real JIT would produce (see SPEC_FULL.md §9's
// design note on Go function values replacing raw function pointers).
package codegen

import (
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/demand"
	"github.com/mellowstream/dbsp/engine"
	"github.com/mellowstream/dbsp/layout"
)

// FnId identifies a single generated function: either a CSV marshaller or
// a JSON deserializer for one layout.
type FnId uint64

// Source is the external record a generated function reads: a CSV
// record's already-split fields, or a parsed JSON value. This repo
// carries both in one struct so that a single FnId resolution API
// (JITHandle.Function) serves either ABI; see the CSV and JSON fields
// below.
type Source struct {
	CSV  []string // non-nil for CSV marshallers
	JSON any      // non-nil for JSON deserializers; decoded via encoding/json
}

// Func is the generated function's Go-realized ABI: given a row buffer
// and a Source, it writes every non-null column's payload and every null
// bit, matching the bit-exact postcondition of SPEC_FULL.md §6's
// "Generated function ABIs".
type Func func(row *layout.UninitRow, src Source) error

// Config is the codegen configuration passed to the generator (worker
// count, target layouts, etc. are out of this repo's scope to define in
// detail since the generator itself is an external collaborator); it is
// kept as an opaque value bag so callers can pass generator-specific
// tuning without this package needing to know its shape.
type Config struct {
	// Options carries generator-specific key/value tuning; the fake
	// generator in package dataflowtest ignores it.
	Options map[string]string
}

// Registrar is the callback surface the Compilation Driver uses, before
// the generator finalizes, to request one native function per CSV/JSON
// demand (SPEC_FULL.md §4.1 step 4). The callback must run before
// finalization so the returned FnIds resolve to live code once the
// JITHandle is built.
type Registrar interface {
	DeserializeJSON(key layout.ID, mapping demand.JSONMapping) (FnId, error)
	CodegenLayoutFromCSV(key layout.ID, mapping demand.CSVMapping) (FnId, error)
}

// JITHandle owns the generated functions and per-layout vtables. Its
// vtables must stay pointer-stable for the circuit's lifetime; Close
// invalidates every FnId and VTable it produced and must only be called
// after every row referencing its vtables has been released (SPEC_FULL.md
// §5 "Lifetime discipline").
type JITHandle interface {
	Function(id FnId) (Func, error)
	VTable(key layout.ID) (*layout.VTable, error)
	Close() error
}

// Builder is the compiled dataflow constructor the generator produces; it
// wires the compiled operators into the runtime-supplied CircuitBuilder
// (package engine).
type Builder interface {
	Construct(b engine.CircuitBuilder) error
}

// Generator is the code generator contract itself: given a graph and a
// config, it lowers the graph, invokes register exactly once (before
// finalizing), and returns the compiled Builder plus the JITHandle that
// owns the generated code and vtables.
type Generator func(g dataflow.Graph, cfg Config, register func(Registrar) error) (Builder, JITHandle, error)
