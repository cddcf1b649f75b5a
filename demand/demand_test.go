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

package demand

import (
	"strings"
	"testing"

	"github.com/mellowstream/dbsp/layout"
)

func TestInsertAndLookup(t *testing.T) {
	r := NewRegistry()
	r.InsertCSV(1, CSVMapping{Layout: 1, Fields: []CSVField{{SourceColumn: 0, TargetColumn: "id"}}})
	r.InsertJSON(2, JSONMapping{Layout: 2, Fields: []JSONField{{Path: "$.id", TargetColumn: "id"}}})

	if _, ok := r.CSV(1); !ok {
		t.Fatalf("expected CSV demand for layout 1")
	}
	if _, ok := r.JSON(2); !ok {
		t.Fatalf("expected JSON demand for layout 2")
	}
	if _, ok := r.CSV(2); ok {
		t.Fatalf("did not expect CSV demand for layout 2")
	}
}

func TestDuplicateInsertPanics(t *testing.T) {
	r := NewRegistry()
	r.InsertCSV(1, CSVMapping{Layout: 1})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate insert")
		}
	}()
	r.InsertCSV(1, CSVMapping{Layout: 1})
}

func TestLayoutMismatchPanics(t *testing.T) {
	r := NewRegistry()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on layout mismatch")
		}
	}()
	r.InsertCSV(1, CSVMapping{Layout: 2})
}

type fakeResolver map[string]layout.ID

func (f fakeResolver) Resolve(name string) (layout.ID, bool) {
	id, ok := f[name]
	return id, ok
}

func TestLoadConfigYAML(t *testing.T) {
	doc := `
layouts:
  - layout: transactions
    csv:
      - {source_column: 0, target_column: id}
      - {source_column: 1, target_column: amount, format: ""}
  - layout: events
    json:
      fields:
        - {path: "$.id", target_column: id, null_if_absent: true}
`
	reg := NewRegistry()
	resolver := fakeResolver{"transactions": 10, "events": 20}
	if err := LoadConfig(strings.NewReader(doc), resolver, reg); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	m, ok := reg.CSV(10)
	if !ok || len(m.Fields) != 2 {
		t.Fatalf("expected 2 CSV fields for transactions, got %+v", m)
	}
	jm, ok := reg.JSON(20)
	if !ok || len(jm.Fields) != 1 || jm.Fields[0].Path != "$.id" {
		t.Fatalf("expected 1 JSON field for events, got %+v", jm)
	}
}

func TestLoadConfigUnknownLayout(t *testing.T) {
	doc := `
layouts:
  - layout: ghost
    csv:
      - {source_column: 0, target_column: id}
`
	reg := NewRegistry()
	err := LoadConfig(strings.NewReader(doc), fakeResolver{}, reg)
	if err == nil {
		t.Fatalf("expected error for unknown layout")
	}
}

func TestLoadConfigDuplicateInFile(t *testing.T) {
	doc := `
layouts:
  - layout: transactions
    csv:
      - {source_column: 0, target_column: id}
  - layout: transactions
    csv:
      - {source_column: 0, target_column: id2}
`
	reg := NewRegistry()
	err := LoadConfig(strings.NewReader(doc), fakeResolver{"transactions": 1}, reg)
	if err == nil {
		t.Fatalf("expected error for duplicate layout entry")
	}
}
