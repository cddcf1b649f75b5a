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

package literal

// Kind says whether a StreamCollection carries a multiset of keys or a
// multiset of key->value pairs; it mirrors dataflow.StreamLayout's Set/Map
// distinction without importing package dataflow, so package literal
// depends only on package layout.
type Kind int

const (
	SetKind Kind = iota
	MapKind
)

// SetEntry is one (key, weight) tuple in a set-typed collection.
type SetEntry struct {
	Key    RowLiteral
	Weight int64
}

// MapEntry is one (key, value, weight) tuple in a map-typed collection.
type MapEntry struct {
	Key    RowLiteral
	Value  RowLiteral
	Weight int64
}

// StreamCollection is the portable description of a batch: either a
// vector of (RowLiteral, weight) for sets, or (RowLiteral, RowLiteral,
// weight) for maps.
type StreamCollection struct {
	Kind Kind
	Set  []SetEntry
	Map  []MapEntry
}

// EmptySet returns the empty collection of set shape.
func EmptySet() StreamCollection { return StreamCollection{Kind: SetKind} }

// EmptyMap returns the empty collection of map shape.
func EmptyMap() StreamCollection { return StreamCollection{Kind: MapKind} }

// Len returns the number of entries, regardless of shape.
func (s StreamCollection) Len() int {
	if s.Kind == MapKind {
		return len(s.Map)
	}
	return len(s.Set)
}
