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
	"github.com/mellowstream/dbsp/circuit"
	"github.com/mellowstream/dbsp/dataflow"
	"github.com/mellowstream/dbsp/literal"
)

// Literal appends an in-process StreamCollection directly to node's
// source, bypassing any demand-registered marshaller -- the fourth
// ingestion path of SPEC_FULL.md §4.6, for callers (tests, or another
// in-process producer) that already hold RowLiterals rather than raw
// CSV/JSON bytes. A thin name-matching wrapper over circuit.Handle's
// AppendInput, kept in this package so all four adapters share one entry
// point for callers that select the ingestion path dynamically.
func Literal(h *circuit.Handle, node dataflow.NodeId, coll literal.StreamCollection) error {
	return h.AppendInput(node, coll)
}
