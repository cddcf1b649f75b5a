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

// Package literal implements the bidirectional bridge between logical
// RowLiteral/Constant trees and native row buffers, using package layout
// for the byte-level contract. See SPEC_FULL.md §4.3.
package literal

import "github.com/mellowstream/dbsp/layout"

// Constant is a single column value in its logical, portable form -- the
// language-neutral analogue of the teacher's ion.Datum, but closed over
// exactly the column types this repo's RowLayout supports rather than a
// general Ion value.
type Constant struct {
	Type layout.ColumnType

	u64 uint64
	f64 float64
	b   bool
	str string
	dec [16]byte
}

func Unit() Constant { return Constant{Type: layout.Unit} }

func U64(v uint64) Constant  { return Constant{Type: layout.U64, u64: v} }
func I64(v int64) Constant   { return Constant{Type: layout.I64, u64: uint64(v)} }
func U32(v uint32) Constant  { return Constant{Type: layout.U32, u64: uint64(v)} }
func I32(v int32) Constant   { return Constant{Type: layout.I32, u64: uint64(uint32(v))} }
func U16(v uint16) Constant  { return Constant{Type: layout.U16, u64: uint64(v)} }
func I16(v int16) Constant   { return Constant{Type: layout.I16, u64: uint64(uint16(v))} }
func U8(v uint8) Constant    { return Constant{Type: layout.U8, u64: uint64(v)} }
func I8(v int8) Constant     { return Constant{Type: layout.I8, u64: uint64(uint8(v))} }
func Usize(v uint64) Constant { return Constant{Type: layout.Usize, u64: v} }
func Isize(v int64) Constant  { return Constant{Type: layout.Isize, u64: uint64(v)} }
func F64(v float64) Constant { return Constant{Type: layout.F64, f64: v} }
func F32(v float32) Constant { return Constant{Type: layout.F32, f64: float64(v)} }
func Bool(v bool) Constant   { return Constant{Type: layout.Bool, b: v} }
func String(v string) Constant { return Constant{Type: layout.String, str: v} }

// Date stores days-since-epoch.
func Date(daysSinceEpoch int32) Constant {
	return Constant{Type: layout.Date, u64: uint64(uint32(daysSinceEpoch))}
}

// Timestamp stores milliseconds-since-epoch, UTC-normalized.
func Timestamp(millisSinceEpochUTC int64) Constant {
	return Constant{Type: layout.Timestamp, u64: uint64(millisSinceEpochUTC)}
}

// Decimal stores the 128-bit little-endian serialized form.
func Decimal(v [16]byte) Constant {
	return Constant{Type: layout.Decimal, dec: v}
}

func (c Constant) AsU64() uint64     { return c.u64 }
func (c Constant) AsI64() int64      { return int64(c.u64) }
func (c Constant) AsF64() float64    { return c.f64 }
func (c Constant) AsBool() bool      { return c.b }
func (c Constant) AsString() string  { return c.str }
func (c Constant) AsDate() int32     { return int32(uint32(c.u64)) }
func (c Constant) AsTimestamp() int64 { return int64(c.u64) }
func (c Constant) AsDecimal() [16]byte { return c.dec }

// Equal reports bit-for-bit equality, including string content and
// decimal scale (the scale is part of the 128-bit serialized form, so
// byte equality is sufficient).
func (c Constant) Equal(o Constant) bool {
	if c.Type != o.Type {
		return false
	}
	switch c.Type {
	case layout.F32, layout.F64:
		return c.f64 == o.f64
	case layout.Bool:
		return c.b == o.b
	case layout.String:
		return c.str == o.str
	case layout.Decimal:
		return c.dec == o.dec
	case layout.Unit:
		return true
	default:
		return c.u64 == o.u64
	}
}

// NullableConstant distinguishes "the column is non-nullable and set" from
// "the column is nullable and null" from "the column is nullable and set",
// matching the spec's NonNull(Constant) | Nullable(Option<Constant>).
type NullableConstant struct {
	Nullable bool
	IsNull   bool // only meaningful when Nullable is true
	Value    Constant
}

// NonNull builds the literal for a non-nullable column.
func NonNull(c Constant) NullableConstant {
	return NullableConstant{Nullable: false, Value: c}
}

// NullableValue builds the literal for a nullable column with a present value.
func NullableValue(c Constant) NullableConstant {
	return NullableConstant{Nullable: true, Value: c}
}

// Null builds the literal for a nullable column set to null.
func Null() NullableConstant {
	return NullableConstant{Nullable: true, IsNull: true}
}

func (n NullableConstant) Equal(o NullableConstant) bool {
	if n.Nullable != o.Nullable {
		return false
	}
	if n.Nullable {
		if n.IsNull != o.IsNull {
			return false
		}
		if n.IsNull {
			return true
		}
	}
	return n.Value.Equal(o.Value)
}

// RowLiteral is the ordered, portable description of one row's values.
type RowLiteral []NullableConstant

// Equal reports element-wise equality.
func (r RowLiteral) Equal(o RowLiteral) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy (RowLiteral values are themselves
// immutable scalars, so this is a shallow slice copy).
func (r RowLiteral) Clone() RowLiteral {
	out := make(RowLiteral, len(r))
	copy(out, r)
	return out
}

// WellFormed reports whether r matches logical's shape: same column
// count, and NonNull/Nullable alignment matching the layout's
// nullability vector.
func WellFormed(r RowLiteral, l *layout.RowLayout) bool {
	if len(r) != len(l.Columns) {
		return false
	}
	for i := range l.Columns {
		if r[i].Nullable != l.Columns[i].Nullable {
			return false
		}
		if !r[i].Nullable || !r[i].IsNull {
			if r[i].Value.Type != l.Columns[i].Type {
				return false
			}
		}
	}
	return true
}
