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

// Package ingest implements the four typed ingestion paths of
// SPEC_FULL.md §4.6: CSVFile, JSONStream, JSONRecord, and Literal. Each is
// a thin adapter over a circuit.Handle: JSONStream, JSONRecord and Literal
// delegate to AppendJSONInput/AppendJSONRecord/AppendInput, while CSVFile
// uses CSVFunction and SourceEndpoint to build codegen.Source and
// engine.Tuple values itself and push them to the source endpoint.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/exp/slices"

	"github.com/mellowstream/dbsp/circuit"
	"github.com/mellowstream/dbsp/codegen"
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/engine"
	"github.com/mellowstream/dbsp/layout"
)

// CSVFile opens path as a header-less CSV file and streams it into node's
// source, one row per record with weight 1, using the generated CSV
// marshaller registered for node's key layout (package demand's
// CSVMapping). A ".gz"-suffixed path is transparently decompressed first
// -- grounded in the teacher's xsv.Convert, which accepts an io.Reader
// without caring whether the caller already unwrapped compression.
//
// A malformed record stops ingestion and returns a *circuit.ParseError
// naming its 0-based row index; the rows read before it are still pushed
// to the source and are not rolled back.
func CSVFile(h *circuit.Handle, node dataflow.NodeId, path string) error {
	sl, ep := h.SourceEndpoint(node)
	if sl.Kind != dataflow.Set {
		return fmt.Errorf("ingest: %v is Map-typed; CSVFile requires a Set-typed source", node)
	}
	if ep == nil {
		h.Logf("csv_file: source %v is absent; no-op", node)
		return nil
	}
	fn, vt, err := h.CSVFunction(sl.Key)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ingest: opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("ingest: opening gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	var batch []engine.Tuple
	i := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			ep.PushBatch(batch)
			return &circuit.ParseError{Index: i, Err: err}
		}
		// cr.ReuseRecord means rec's backing array is overwritten on the
		// next Read; own a copy before handing it across the FnId ABI
		// boundary, where it may be retained past this loop iteration.
		fields := slices.Clone(rec)
		u := layout.NewUninitRow(vt)
		if err := fn(u, codegen.Source{CSV: fields}); err != nil {
			ep.PushBatch(batch)
			return &circuit.ParseError{Index: i, Err: err}
		}
		batch = append(batch, engine.Tuple{Key: u.Assume(), Weight: 1})
		i++
	}
	ep.PushBatch(batch)
	return nil
}
