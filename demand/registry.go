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

// Package demand implements the Demand Registry: a write-once mapping
// from a LayoutId to a deserialization request (a CSV column mapping or a
// JSON field mapping), plus a YAML-sourced config loader. See
// SPEC_FULL.md §4.5.
package demand

import (
	"fmt"
	"sync"

	"github.com/mellowstream/dbsp/layout"
)

// CSVField maps one CSV column position to a target row column. Format
// applies only to Date/Timestamp target columns.
type CSVField struct {
	SourceColumn int
	TargetColumn string
	Format       string
}

// CSVMapping is the ordered list of column mappings for one layout.
type CSVMapping struct {
	Layout layout.ID
	Fields []CSVField
}

// JSONField maps one JSON path to a target row column.
type JSONField struct {
	Path         string
	TargetColumn string
	NullIfAbsent bool
}

// JSONMapping is the structured field-path descriptor for one layout.
type JSONMapping struct {
	Layout layout.ID
	Fields []JSONField
}

// Registry is the write-once LayoutId -> mapping store. The zero value is
// not usable; construct with NewRegistry.
type Registry struct {
	mu   sync.Mutex
	csv  map[layout.ID]CSVMapping
	json map[layout.ID]JSONMapping
}

func NewRegistry() *Registry {
	return &Registry{
		csv:  make(map[layout.ID]CSVMapping),
		json: make(map[layout.ID]JSONMapping),
	}
}

// InsertCSV records the CSV mapping for a layout. Duplicate insertion for
// the same layout, or a mapping whose declared Layout disagrees with key,
// is a programming error and panics -- this registry is populated by the
// graph/demand author, not by untrusted input (contrast demand.LoadConfig,
// which returns an error for a layout listed twice in one config file,
// since it reads hand-edited config files).
func (r *Registry) InsertCSV(key layout.ID, m CSVMapping) {
	if m.Layout != key {
		panic(fmt.Sprintf("demand: CSV mapping declares layout %d but was inserted under key %d", m.Layout, key))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.csv[key]; dup {
		panic(fmt.Sprintf("demand: duplicate CSV demand for layout %d", key))
	}
	r.csv[key] = m
}

// InsertJSON records the JSON mapping for a layout, with the same
// duplicate/mismatch panics as InsertCSV.
func (r *Registry) InsertJSON(key layout.ID, m JSONMapping) {
	if m.Layout != key {
		panic(fmt.Sprintf("demand: JSON mapping declares layout %d but was inserted under key %d", m.Layout, key))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.json[key]; dup {
		panic(fmt.Sprintf("demand: duplicate JSON demand for layout %d", key))
	}
	r.json[key] = m
}

// CSV returns the CSV mapping for a layout, if any.
func (r *Registry) CSV(key layout.ID) (CSVMapping, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.csv[key]
	return m, ok
}

// JSON returns the JSON mapping for a layout, if any.
func (r *Registry) JSON(key layout.ID) (JSONMapping, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.json[key]
	return m, ok
}

// CSVLayouts returns every layout with a registered CSV demand.
func (r *Registry) CSVLayouts() []layout.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]layout.ID, 0, len(r.csv))
	for k := range r.csv {
		out = append(out, k)
	}
	return out
}

// JSONLayouts returns every layout with a registered JSON demand.
func (r *Registry) JSONLayouts() []layout.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]layout.ID, 0, len(r.json))
	for k := range r.json {
		out = append(out, k)
	}
	return out
}
