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

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mellowstream/dbsp/codegen"
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/demand"
	"github.com/mellowstream/dbsp/engine"
	"github.com/mellowstream/dbsp/layout"
)

// Generator is a codegen.Generator that, instead of producing machine
// code, builds vtables through layout.BuildVTable and generated functions
// through straightforward field-by-field writes -- standing in for a
// real JIT exactly as the teacher's testquery package stands in for a
// real storage engine when testing the query planner.
func Generator(g dataflow.Graph, cfg codegen.Config, register func(codegen.Registrar) error) (codegen.Builder, codegen.JITHandle, error) {
	gg, ok := g.(*Graph)
	if !ok {
		return nil, nil, fmt.Errorf("dataflowtest: Generator requires a *dataflowtest.Graph, got %T", g)
	}
	jit := &fakeJIT{
		g:       gg,
		vtables: make(map[layout.ID]*layout.VTable),
		fns:     make(map[codegen.FnId]codegen.Func),
	}
	if err := register(jit); err != nil {
		return nil, nil, err
	}
	return &fakeBuilder{g: gg}, jit, nil
}

// fakeJIT implements both codegen.Registrar (during register()) and
// codegen.JITHandle (after generation finalizes).
type fakeJIT struct {
	g *Graph

	mu      sync.Mutex
	vtables map[layout.ID]*layout.VTable
	fns     map[codegen.FnId]codegen.Func
	nextFn  codegen.FnId
}

func (j *fakeJIT) VTable(key layout.ID) (*layout.VTable, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if vt, ok := j.vtables[key]; ok {
		return vt, nil
	}
	logical, ok := j.g.Layouts().Layout(key)
	if !ok {
		return nil, fmt.Errorf("dataflowtest: unknown layout %d", key)
	}
	native := layout.Compile(*logical)
	vt := layout.BuildVTable(native)
	j.vtables[key] = vt
	return vt, nil
}

func (j *fakeJIT) Function(id codegen.FnId) (codegen.Func, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn, ok := j.fns[id]
	if !ok {
		return nil, fmt.Errorf("dataflowtest: unknown function id %d", id)
	}
	return fn, nil
}

func (j *fakeJIT) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.vtables = nil
	j.fns = nil
	return nil
}

func (j *fakeJIT) alloc(fn codegen.Func) codegen.FnId {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nextFn++
	id := j.nextFn
	j.fns[id] = fn
	return id
}

func (j *fakeJIT) CodegenLayoutFromCSV(key layout.ID, mapping demand.CSVMapping) (codegen.FnId, error) {
	return j.alloc(csvFunc(mapping)), nil
}

func (j *fakeJIT) DeserializeJSON(key layout.ID, mapping demand.JSONMapping) (codegen.FnId, error) {
	return j.alloc(jsonFunc(mapping)), nil
}

// fakeBuilder wires a Graph's declared sources, sinks, and edges into the
// Runtime supplied by Factory.Init at construction time.
type fakeBuilder struct{ g *Graph }

func (b *fakeBuilder) Construct(cb engine.CircuitBuilder) error {
	rt, ok := cb.(*Runtime)
	if !ok {
		return fmt.Errorf("dataflowtest: Construct requires a *dataflowtest.Runtime, got %T", cb)
	}
	for node, sl := range b.g.sources {
		rt.addSource(node, sl)
	}
	for node, sl := range b.g.sinks {
		if js, ok := b.g.Joins[node]; ok {
			rt.addJoinSink(node, sl, js)
			continue
		}
		rt.addSink(node, sl, b.g.Edges[node])
	}
	return nil
}

// csvFunc returns a codegen.Func that reads mapping.Fields from
// Source.CSV by position, in the teacher's xsv.Hint-driven style.
func csvFunc(mapping demand.CSVMapping) codegen.Func {
	fields := append([]demand.CSVField(nil), mapping.Fields...)
	return func(row *layout.UninitRow, src codegen.Source) error {
		logical := row.VTable().Native.Logical
		for _, f := range fields {
			if f.SourceColumn < 0 || f.SourceColumn >= len(src.CSV) {
				return fmt.Errorf("dataflowtest: csv source column %d out of range (record has %d fields)", f.SourceColumn, len(src.CSV))
			}
			idx := logical.IndexOf(f.TargetColumn)
			if idx < 0 {
				return fmt.Errorf("dataflowtest: target column %q not found in layout", f.TargetColumn)
			}
			raw := src.CSV[f.SourceColumn]
			col := &logical.Columns[idx]
			if err := writeScalar(row, idx, col, raw, raw == "" && col.Nullable, f.Format); err != nil {
				return fmt.Errorf("dataflowtest: csv field %q: %w", f.TargetColumn, err)
			}
		}
		return nil
	}
}

// jsonFunc returns a codegen.Func that reads mapping.Fields out of
// Source.JSON (expected to be a map[string]any, e.g. produced by
// encoding/json.Unmarshal into `any`), resolving only top-level "$.name"
// paths -- a deliberate simplification of the teacher's jsonrl path
// matcher, adequate for this package's role as a test fake.
func jsonFunc(mapping demand.JSONMapping) codegen.Func {
	fields := append([]demand.JSONField(nil), mapping.Fields...)
	return func(row *layout.UninitRow, src codegen.Source) error {
		obj, ok := src.JSON.(map[string]any)
		if !ok {
			return fmt.Errorf("dataflowtest: json source is %T, want map[string]any", src.JSON)
		}
		logical := row.VTable().Native.Logical
		for _, f := range fields {
			name := f.Path
			if len(name) > 2 && name[:2] == "$." {
				name = name[2:]
			}
			idx := logical.IndexOf(f.TargetColumn)
			if idx < 0 {
				return fmt.Errorf("dataflowtest: target column %q not found in layout", f.TargetColumn)
			}
			col := &logical.Columns[idx]
			v, present := obj[name]
			if !present {
				if col.Nullable && f.NullIfAbsent {
					row.SetNull(idx, true)
					continue
				}
				return fmt.Errorf("dataflowtest: json path %q absent and not null_if_absent", f.Path)
			}
			if err := writeJSONScalar(row, idx, col, v); err != nil {
				return fmt.Errorf("dataflowtest: json field %q: %w", f.TargetColumn, err)
			}
		}
		return nil
	}
}

func writeScalar(row *layout.UninitRow, idx int, col *layout.Column, raw string, null bool, format string) error {
	if col.Nullable {
		row.SetNull(idx, null)
		if null {
			return nil
		}
	}
	switch col.Type {
	case layout.Unit:
	case layout.U8, layout.U16, layout.U32, layout.U64, layout.Usize:
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		row.WriteU64(idx, v)
	case layout.I8, layout.I16, layout.I32, layout.I64, layout.Isize:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		row.WriteI64(idx, v)
	case layout.F32:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return err
		}
		row.WriteF32(idx, float32(v))
	case layout.F64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		row.WriteF64(idx, v)
	case layout.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		row.WriteBool(idx, v)
	case layout.Date:
		timeFormat := format
		if timeFormat == "" {
			timeFormat = "2006-01-02"
		}
		t, err := time.Parse(timeFormat, raw)
		if err != nil {
			return err
		}
		days := t.Unix() / 86400
		row.WriteDate(idx, int32(days))
	case layout.Timestamp:
		timeFormat := format
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		t, err := time.Parse(timeFormat, raw)
		if err != nil {
			return err
		}
		row.WriteTimestamp(idx, t.UnixMilli())
	case layout.String:
		row.WriteString(idx, raw)
	case layout.Decimal:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		row.WriteDecimal(idx, decimalFromFloat(v))
	default:
		return fmt.Errorf("unsupported column type %s for scalar ingestion", col.Type)
	}
	return nil
}

func writeJSONScalar(row *layout.UninitRow, idx int, col *layout.Column, v any) error {
	if v == nil {
		if !col.Nullable {
			return fmt.Errorf("json null for non-nullable column")
		}
		row.SetNull(idx, true)
		return nil
	}
	if col.Nullable {
		row.SetNull(idx, false)
	}
	switch col.Type {
	case layout.Unit:
	case layout.U8, layout.U16, layout.U32, layout.U64, layout.Usize:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("json value is %T, want number", v)
		}
		row.WriteU64(idx, uint64(f))
	case layout.I8, layout.I16, layout.I32, layout.I64, layout.Isize:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("json value is %T, want number", v)
		}
		row.WriteI64(idx, int64(f))
	case layout.F32:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("json value is %T, want number", v)
		}
		row.WriteF32(idx, float32(f))
	case layout.F64:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("json value is %T, want number", v)
		}
		row.WriteF64(idx, f)
	case layout.Bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("json value is %T, want bool", v)
		}
		row.WriteBool(idx, b)
	case layout.String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("json value is %T, want string", v)
		}
		row.WriteString(idx, s)
	case layout.Date:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("json value is %T, want RFC3339 date string", v)
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return err
		}
		row.WriteDate(idx, int32(t.Unix()/86400))
	case layout.Timestamp:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("json value is %T, want RFC3339 timestamp string", v)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		row.WriteTimestamp(idx, t.UnixMilli())
	case layout.Decimal:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("json value is %T, want number", v)
		}
		row.WriteDecimal(idx, decimalFromFloat(f))
	default:
		return fmt.Errorf("unsupported column type %s for json ingestion", col.Type)
	}
	return nil
}

// decimalFromFloat packs v as a fixed-point mantissa (scale 10^9) into
// the first 8 bytes and the scale into byte 8, a deliberately simple
// stand-in for a real 128-bit decimal codec, used by this fake's CSV and
// JSON Decimal column writers.
func decimalFromFloat(v float64) [16]byte {
	const scale = 1_000_000_000
	mantissa := int64(v * scale)
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], uint64(mantissa))
	out[8] = 9
	return out
}
