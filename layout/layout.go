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

// Package layout defines the native byte layout of a row given a logical
// row schema: null-bit placement, column offsets, and the per-layout
// vtable of clone/drop/hash/equality operations.
//
// Generated code and the hand-written marshallers in package literal must
// produce byte-identical rows; this package is the single source of truth
// both sides compile against.
package layout

import (
	"fmt"
)

// ID identifies a row schema. Two distinct schemas never share an ID,
// and an ID is stable across graph optimization.
type ID uint32

// ColumnType is the logical type of a single row column.
type ColumnType uint8

const (
	Unit ColumnType = iota
	U8
	I8
	U16
	I16
	U32
	I32
	U64
	I64
	Usize
	Isize
	F32
	F64
	Bool
	Date
	Timestamp
	String
	Decimal
	Ptr
)

func (c ColumnType) String() string {
	switch c {
	case Unit:
		return "Unit"
	case U8:
		return "U8"
	case I8:
		return "I8"
	case U16:
		return "U16"
	case I16:
		return "I16"
	case U32:
		return "U32"
	case I32:
		return "I32"
	case U64:
		return "U64"
	case I64:
		return "I64"
	case Usize:
		return "Usize"
	case Isize:
		return "Isize"
	case F32:
		return "F32"
	case F64:
		return "F64"
	case Bool:
		return "Bool"
	case Date:
		return "Date"
	case Timestamp:
		return "Timestamp"
	case String:
		return "String"
	case Decimal:
		return "Decimal"
	case Ptr:
		return "Ptr"
	default:
		return fmt.Sprintf("ColumnType(%d)", uint8(c))
	}
}

// size returns the in-row payload size of the column type, in bytes.
// String columns store an 8-byte index into the row's string side table
// (see UninitRow.WriteString); Decimal columns store the 128-bit
// little-endian serialized form.
func (c ColumnType) size() int {
	switch c {
	case Unit:
		return 0
	case U8, I8, Bool:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32, Date:
		return 4
	case U64, I64, Usize, Isize, F64, Timestamp, String:
		return 8
	case Decimal:
		return 16
	case Ptr:
		return 8
	default:
		panic(fmt.Sprintf("layout: unknown column type %d", uint8(c)))
	}
}

func (c ColumnType) align() int {
	a := c.size()
	if a == 0 {
		return 1
	}
	if a > 8 {
		return 8
	}
	return a
}

// Column is one field of a logical RowLayout.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// RowLayout is the ordered logical schema of a row.
type RowLayout struct {
	ID      ID
	Columns []Column
}

// IndexOf returns the column index for name, or -1 if not present.
func (r *RowLayout) IndexOf(name string) int {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return i
		}
	}
	return -1
}
