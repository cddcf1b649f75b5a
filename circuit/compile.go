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

// Package circuit implements the circuit facade: the Compilation Driver
// (Compile) and the Circuit Handle it produces. This is the core of the
// repository -- see SPEC_FULL.md §4.1 and §4.4.
package circuit

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/mellowstream/dbsp/codegen"
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/demand"
	"github.com/mellowstream/dbsp/engine"
)

// Params bundles the Compilation Driver's inputs, following the teacher's
// plan.ExecParams (SnellerInc/sneller plan/plan.go) rather than a long
// positional argument list.
type Params struct {
	Graph     dataflow.Graph
	Validator dataflow.Validator // optional
	Optimizer dataflow.Optimizer // optional; required if Optimize is true
	Optimize  bool
	Workers   int

	Generator codegen.Generator
	Factory   engine.Factory
	Config    codegen.Config
	Demands   *demand.Registry

	// Logger receives single-line diagnostics (logged no-ops, step
	// failures, kill). Defaults to log.New(os.Stderr, ..., log.LstdFlags)
	// if nil.
	Logger *log.Logger
}

type inputSlot struct {
	layout dataflow.StreamLayout
	ep     engine.InputEndpoint // nil if the source was optimized away
}

type outputSlot struct {
	layout dataflow.StreamLayout
	ep     engine.OutputEndpoint // nil if the sink is unreachable
}

// Handle is the user-facing façade: it owns the JIT handle, the worker
// runtime, the input/output endpoint maps, and the demand->function-id
// tables (SPEC_FULL.md §4.4).
type Handle struct {
	jit codegen.JITHandle
	rt  engine.Handle

	layouts dataflow.LayoutCache

	inputs  map[dataflow.NodeId]inputSlot
	outputs map[dataflow.NodeId]outputSlot

	csvDemands  map[uint64]codegen.FnId
	jsonDemands map[uint64]codegen.FnId

	log     *log.Logger
	runID   string
	killed  bool
}

// Compile is the Compilation Driver: it validates (and optionally
// optimizes + revalidates) p.Graph, drives the code generator to
// materialize native functions for every registered demand, stands up
// the worker runtime, and returns a fully initialized Handle.
//
// See SPEC_FULL.md §4.1 for the numbered algorithm this function follows
// step for step.
func Compile(p Params) (*Handle, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "circuit: ", log.LstdFlags)
	}
	runID := uuid.NewString()

	g := p.Graph
	// Step 1: snapshot the public endpoint surface before any
	// transformation -- even if optimization removes a source or sink,
	// these snapshots preserve addressability (SPEC_FULL.md §9 "Endpoint
	// absence").
	declaredSources := g.Sources()
	declaredSinks := g.Sinks()

	// Step 2: validate.
	if p.Validator != nil {
		if err := p.Validator.Validate(g); err != nil {
			return nil, &CompileError{Stage: "validate", Err: err}
		}
	}

	// Step 3: optimize, then revalidate.
	if p.Optimize {
		if p.Optimizer == nil {
			return nil, &CompileError{Stage: "optimize", Err: fmt.Errorf("optimize requested but no Optimizer supplied")}
		}
		optimized, err := p.Optimizer.Optimize(g)
		if err != nil {
			return nil, &CompileError{Stage: "optimize", Err: err}
		}
		g = optimized
		if p.Validator != nil {
			if err := p.Validator.Validate(g); err != nil {
				return nil, &CompileError{Stage: "validate", Err: fmt.Errorf("post-optimization: %w", err)}
			}
		}
	}

	// Step 4: invoke the code generator with a registration callback that
	// enumerates every CSV/JSON demand exactly once, before finalization.
	csvFns := make(map[uint64]codegen.FnId)
	jsonFns := make(map[uint64]codegen.FnId)
	register := func(r codegen.Registrar) error {
		for _, lid := range p.Demands.CSVLayouts() {
			m, _ := p.Demands.CSV(lid)
			fn, err := r.CodegenLayoutFromCSV(lid, m)
			if err != nil {
				return fmt.Errorf("registering CSV demand for layout %d: %w", lid, err)
			}
			csvFns[uint64(lid)] = fn
		}
		for _, lid := range p.Demands.JSONLayouts() {
			m, _ := p.Demands.JSON(lid)
			fn, err := r.DeserializeJSON(lid, m)
			if err != nil {
				return fmt.Errorf("registering JSON demand for layout %d: %w", lid, err)
			}
			jsonFns[uint64(lid)] = fn
		}
		return nil
	}

	builder, jit, err := p.Generator(g, p.Config, register)
	if err != nil {
		return nil, &CompileError{Stage: "codegen", Err: err}
	}

	// Step 5: hand the builder to the runtime factory.
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	rt, ins, outs, err := p.Factory.Init(workers, builder.Construct)
	if err != nil {
		jit.Close()
		return nil, &CompileError{Stage: "runtime", Err: err}
	}

	// Step 6: left-join the received maps with the declared source/sink
	// snapshot: present endpoints become Some(handle); missing ones
	// become None while retaining their declared StreamLayout.
	inputs := make(map[dataflow.NodeId]inputSlot, len(declaredSources))
	for node, sl := range declaredSources {
		inputs[node] = inputSlot{layout: sl, ep: ins[node]}
	}
	outputs := make(map[dataflow.NodeId]outputSlot, len(declaredSinks))
	for node, sl := range declaredSinks {
		outputs[node] = outputSlot{layout: sl, ep: outs[node]}
	}

	h := &Handle{
		jit:         jit,
		rt:          rt,
		layouts:     g.Layouts(),
		inputs:      inputs,
		outputs:     outputs,
		csvDemands:  csvFns,
		jsonDemands: jsonFns,
		log:         logger,
		runID:       runID,
	}
	h.log.Printf("[%s] circuit compiled: %d sources, %d sinks, %d workers", h.runID, len(inputs), len(outputs), workers)
	return h, nil
}
