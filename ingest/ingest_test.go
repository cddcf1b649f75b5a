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

package ingest_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/mellowstream/dbsp/circuit"
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/dataflowtest"
	"github.com/mellowstream/dbsp/demand"
	"github.com/mellowstream/dbsp/ingest"
	"github.com/mellowstream/dbsp/layout"
	"github.com/mellowstream/dbsp/literal"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

const (
	people dataflow.NodeId = 1
	out    dataflow.NodeId = 2
)

func peopleLayout() layout.ID { return 1 }

func setupHandle(t *testing.T) *circuit.Handle {
	t.Helper()
	g := dataflowtest.NewGraph()
	g.AddLayout(&layout.RowLayout{ID: peopleLayout(), Columns: []layout.Column{
		{Name: "id", Type: layout.I64},
		{Name: "name", Type: layout.String, Nullable: true},
	}})
	g.AddSource(people, dataflow.SetOf(peopleLayout()))
	g.AddSink(out, dataflow.SetOf(peopleLayout()), people)

	reg := demand.NewRegistry()
	reg.InsertCSV(peopleLayout(), demand.CSVMapping{Layout: peopleLayout(), Fields: []demand.CSVField{
		{SourceColumn: 0, TargetColumn: "id"},
		{SourceColumn: 1, TargetColumn: "name"},
	}})
	reg.InsertJSON(peopleLayout(), demand.JSONMapping{Layout: peopleLayout(), Fields: []demand.JSONField{
		{Path: "$.id", TargetColumn: "id"},
		{Path: "$.name", TargetColumn: "name", NullIfAbsent: true},
	}})

	h, err := circuit.Compile(circuit.Params{
		Graph:     g,
		Validator: dataflowtest.PassValidator{},
		Generator: dataflowtest.Generator,
		Factory:   dataflowtest.Factory{},
		Demands:   reg,
		Workers:   2,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return h
}

func names(t *testing.T, h *circuit.Handle) []string {
	t.Helper()
	if err := h.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	coll, err := h.ConsolidateOutput(out)
	if err != nil {
		t.Fatalf("ConsolidateOutput: %v", err)
	}
	got := make([]string, len(coll.Set))
	for i, e := range coll.Set {
		got[i] = e.Key[1].Value.AsString()
		if e.Key[1].IsNull {
			got[i] = "<null>"
		}
	}
	return got
}

func TestCSVFile(t *testing.T) {
	h := setupHandle(t)
	defer h.Kill()

	path := writeTempFile(t, "people.csv", "1,alice\n2,bob\n")
	if err := ingest.CSVFile(h, people, path); err != nil {
		t.Fatalf("CSVFile: %v", err)
	}
	got := names(t, h)
	if len(got) != 2 || !containsAll(got, "alice", "bob") {
		t.Fatalf("unexpected rows: %v", got)
	}
}

func TestCSVFileGzipped(t *testing.T) {
	h := setupHandle(t)
	defer h.Kill()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("3,carol\n"))
	gz.Close()
	path := filepath.Join(t.TempDir(), "people.csv.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing gzipped temp file: %v", err)
	}

	if err := ingest.CSVFile(h, people, path); err != nil {
		t.Fatalf("CSVFile gzipped: %v", err)
	}
	got := names(t, h)
	if len(got) != 1 || got[0] != "carol" {
		t.Fatalf("unexpected rows: %v", got)
	}
}

func TestJSONStreamAndRecord(t *testing.T) {
	h := setupHandle(t)
	defer h.Kill()

	if err := ingest.JSONStream(h, people, strings.NewReader(`{"id":4,"name":"dora"}
{"id":5}
`)); err != nil {
		t.Fatalf("JSONStream: %v", err)
	}
	if err := ingest.JSONRecord(h, people, []byte(`{"id":6,"name":"erin"}`)); err != nil {
		t.Fatalf("JSONRecord: %v", err)
	}

	got := names(t, h)
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %v", got)
	}
	foundNull := false
	for _, n := range got {
		if n == "<null>" {
			foundNull = true
		}
	}
	if !foundNull {
		t.Fatalf("expected a null name for the absent-field record, got %v", got)
	}
}

func TestLiteralAdapter(t *testing.T) {
	h := setupHandle(t)
	defer h.Kill()

	row := literal.RowLiteral{literal.NonNull(literal.I64(7)), literal.NullableValue(literal.String("frank"))}
	if err := ingest.Literal(h, people, literal.StreamCollection{Kind: literal.SetKind, Set: []literal.SetEntry{
		{Key: row, Weight: 1},
	}}); err != nil {
		t.Fatalf("Literal: %v", err)
	}
	got := names(t, h)
	if len(got) != 1 || got[0] != "frank" {
		t.Fatalf("unexpected rows: %v", got)
	}
}

func TestCSVFileMalformedRow(t *testing.T) {
	h := setupHandle(t)
	defer h.Kill()

	path := writeTempFile(t, "bad.csv", "not-a-number,alice\n")
	err := ingest.CSVFile(h, people, path)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	var pe *circuit.ParseError
	if !asParseError(err, &pe) {
		t.Fatalf("expected *circuit.ParseError, got %T: %v", err, err)
	}
	if pe.Index != 0 {
		t.Fatalf("expected error at row 0, got %d", pe.Index)
	}
}

// TestCSVJoin exercises SPEC_FULL.md §8's S3 scenario: two CSV sources
// ("transactions", "demographics") indexed by a common key column,
// joined into a set. consolidate_output must return a set whose
// cardinality equals the number of matched join rows, and whose every
// row's key column equals the join key in both inputs.
func TestCSVJoin(t *testing.T) {
	g := dataflowtest.NewGraph()
	g.AddLayout(&layout.RowLayout{ID: 10, Columns: []layout.Column{
		{Name: "id", Type: layout.I64},
		{Name: "amount", Type: layout.I64},
	}})
	g.AddLayout(&layout.RowLayout{ID: 11, Columns: []layout.Column{
		{Name: "id", Type: layout.I64},
		{Name: "region", Type: layout.I64},
	}})

	const (
		transactions dataflow.NodeId = 20
		demographics dataflow.NodeId = 21
		joined       dataflow.NodeId = 22
	)
	g.AddSource(transactions, dataflow.SetOf(10))
	g.AddSource(demographics, dataflow.SetOf(11))
	g.AddJoinSink(joined, dataflow.SetOf(10), transactions, demographics, 0)

	reg := demand.NewRegistry()
	reg.InsertCSV(10, demand.CSVMapping{Layout: 10, Fields: []demand.CSVField{
		{SourceColumn: 0, TargetColumn: "id"},
		{SourceColumn: 1, TargetColumn: "amount"},
	}})
	reg.InsertCSV(11, demand.CSVMapping{Layout: 11, Fields: []demand.CSVField{
		{SourceColumn: 0, TargetColumn: "id"},
		{SourceColumn: 1, TargetColumn: "region"},
	}})

	h, err := circuit.Compile(circuit.Params{
		Graph:     g,
		Validator: dataflowtest.PassValidator{},
		Generator: dataflowtest.Generator,
		Factory:   dataflowtest.Factory{},
		Demands:   reg,
		Workers:   2,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer h.Kill()

	txPath := writeTempFile(t, "transactions.csv", "1,100\n2,200\n3,300\n")
	if err := ingest.CSVFile(h, transactions, txPath); err != nil {
		t.Fatalf("CSVFile transactions: %v", err)
	}
	demoPath := writeTempFile(t, "demographics.csv", "1,9\n3,7\n")
	if err := ingest.CSVFile(h, demographics, demoPath); err != nil {
		t.Fatalf("CSVFile demographics: %v", err)
	}

	if err := h.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	out, err := h.ConsolidateOutput(joined)
	if err != nil {
		t.Fatalf("ConsolidateOutput: %v", err)
	}
	if len(out.Set) != 2 {
		t.Fatalf("expected 2 matched rows, got %+v", out)
	}
	for _, e := range out.Set {
		id := e.Key[0].Value.AsI64()
		if id != 1 && id != 3 {
			t.Fatalf("unexpected joined id %d, want 1 or 3", id)
		}
	}
}

func asParseError(err error, target **circuit.ParseError) bool {
	pe, ok := err.(*circuit.ParseError)
	if ok {
		*target = pe
	}
	return ok
}

func containsAll(got []string, want ...string) bool {
	for _, w := range want {
		found := false
		for _, g := range got {
			if g == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
