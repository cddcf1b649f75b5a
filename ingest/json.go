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

package ingest

import (
	"encoding/json"
	"io"

	"github.com/mellowstream/dbsp/circuit"
	"github.com/mellowstream/dbsp/dataflow"
)

// JSONStream decodes a newline- or whitespace-delimited sequence of JSON
// values from r and appends one row per value to node's source, stopping
// at the first parse error or at io.EOF. Grounded in the teacher's
// jsonrl/ndjson.go multi-value reader, adapted to decode through
// encoding/json rather than parsing straight to Ion.
func JSONStream(h *circuit.Handle, node dataflow.NodeId, r io.Reader) error {
	return h.AppendJSONInput(node, json.NewDecoder(r))
}

// JSONRecord parses exactly one JSON value from data and appends it to
// node's source with weight 1. Grounded in the teacher's jsonrl
// single-value parse path (jsonrl/singlestream.go).
func JSONRecord(h *circuit.Handle, node dataflow.NodeId, data []byte) error {
	return h.AppendJSONRecord(node, data)
}
