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

// Command circuitctl drives a single circuit end to end from the command
// line: it loads a demand config, compiles a small built-in identity
// dataflow, ingests a CSV file into it, steps once, and prints the
// consolidated output. It exists to demonstrate the circuit facade
// against a concrete (if trivial) graph/codegen/runtime, since the real
// ones are out of this repository's scope; it reuses package
// dataflowtest's in-memory fakes for that purpose rather than inventing a
// second, CLI-only stand-in. Grounded in cmd/sneller/main.go's flag
// layout and error handling.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mellowstream/dbsp/circuit"
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/dataflowtest"
	"github.com/mellowstream/dbsp/demand"
	"github.com/mellowstream/dbsp/ingest"
	"github.com/mellowstream/dbsp/layout"
)

const rowsLayout layout.ID = 1

const (
	sourceNode dataflow.NodeId = 1
	sinkNode   dataflow.NodeId = 2
)

type nameResolver struct{}

func (nameResolver) Resolve(name string) (layout.ID, bool) {
	if name == "rows" {
		return rowsLayout, true
	}
	return 0, false
}

func main() {
	demandPath := flag.String("demand", "", "path to a YAML demand config (see SPEC_FULL.md §4.5)")
	csvPath := flag.String("csv", "", "path to a CSV file to ingest into the built-in \"rows\" source")
	workers := flag.Int("workers", 2, "worker pool size")
	flag.Parse()

	if err := run(*demandPath, *csvPath, *workers); err != nil {
		log.Fatal(err)
	}
}

func run(demandPath, csvPath string, workers int) error {
	if demandPath == "" {
		return fmt.Errorf("circuitctl: -demand is required")
	}

	f, err := os.Open(demandPath)
	if err != nil {
		return fmt.Errorf("circuitctl: opening demand config: %w", err)
	}
	defer f.Close()

	reg := demand.NewRegistry()
	if err := demand.LoadConfig(f, nameResolver{}, reg); err != nil {
		return fmt.Errorf("circuitctl: loading demand config: %w", err)
	}

	g := dataflowtest.NewGraph()
	g.AddLayout(&layout.RowLayout{ID: rowsLayout, Columns: []layout.Column{
		{Name: "id", Type: layout.I64},
		{Name: "value", Type: layout.String, Nullable: true},
	}})
	g.AddSource(sourceNode, dataflow.SetOf(rowsLayout))
	g.AddSink(sinkNode, dataflow.SetOf(rowsLayout), sourceNode)

	h, err := circuit.Compile(circuit.Params{
		Graph:     g,
		Validator: dataflowtest.PassValidator{},
		Generator: dataflowtest.Generator,
		Factory:   dataflowtest.Factory{},
		Demands:   reg,
		Workers:   workers,
		Logger:    log.New(os.Stderr, "circuitctl: ", log.LstdFlags),
	})
	if err != nil {
		return fmt.Errorf("circuitctl: %w", err)
	}
	defer h.Kill()

	if csvPath != "" {
		if err := ingest.CSVFile(h, sourceNode, csvPath); err != nil {
			return fmt.Errorf("circuitctl: ingesting csv: %w", err)
		}
	}

	if err := h.Step(); err != nil {
		return fmt.Errorf("circuitctl: %w", err)
	}
	out, err := h.ConsolidateOutput(sinkNode)
	if err != nil {
		return fmt.Errorf("circuitctl: %w", err)
	}
	for _, e := range out.Set {
		id := e.Key[0].Value.AsI64()
		value := "<null>"
		if !e.Key[1].IsNull {
			value = e.Key[1].Value.AsString()
		}
		fmt.Printf("id=%d value=%s weight=%d\n", id, value, e.Weight)
	}
	return nil
}
