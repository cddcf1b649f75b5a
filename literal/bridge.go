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

import (
	"fmt"

	"github.com/mellowstream/dbsp/layout"
)

// RowFromLiteral allocates an UninitRow through vt and writes lit's
// columns into it in order, returning the resulting Row. For nullable
// columns the null bit is written first, then the payload iff non-null --
// matching SPEC_FULL.md §4.3.
//
// Preconditions: lit's length matches vt.Native.Logical's column count,
// each constant's type matches its column's type, and lit's nullability
// alignment matches the layout's nullability vector. Ptr columns are
// rejected (layout.Compile already refuses to build a NativeLayout that
// contains one, so this is unreachable in practice).
func RowFromLiteral(lit RowLiteral, vt *layout.VTable) (*layout.Row, error) {
	n := vt.Native
	if len(lit) != len(n.Logical.Columns) {
		return nil, fmt.Errorf("literal: row has %d columns, layout has %d", len(lit), len(n.Logical.Columns))
	}
	u := layout.NewUninitRow(vt)
	for i := range n.Logical.Columns {
		col := &n.Logical.Columns[i]
		nc := lit[i]
		if nc.Nullable != col.Nullable {
			return nil, fmt.Errorf("literal: column %d (%s) nullability mismatch", i, col.Name)
		}
		if col.Nullable {
			u.SetNull(i, nc.IsNull)
			if nc.IsNull {
				continue
			}
		}
		if nc.Value.Type != col.Type {
			return nil, fmt.Errorf("literal: column %d (%s) expected %s, got %s", i, col.Name, col.Type, nc.Value.Type)
		}
		if err := writeColumn(u, i, col.Type, nc.Value); err != nil {
			return nil, err
		}
	}
	return u.Assume(), nil
}

func writeColumn(u *layout.UninitRow, i int, ct layout.ColumnType, c Constant) error {
	switch ct {
	case layout.Unit:
		// nothing to write
	case layout.U8, layout.U16, layout.U32, layout.U64, layout.Usize:
		u.WriteU64(i, c.AsU64())
	case layout.I8, layout.I16, layout.I32, layout.I64, layout.Isize:
		u.WriteI64(i, c.AsI64())
	case layout.F32:
		u.WriteF32(i, float32(c.AsF64()))
	case layout.F64:
		u.WriteF64(i, c.AsF64())
	case layout.Bool:
		u.WriteBool(i, c.AsBool())
	case layout.Date:
		u.WriteDate(i, c.AsDate())
	case layout.Timestamp:
		u.WriteTimestamp(i, c.AsTimestamp())
	case layout.String:
		u.WriteString(i, c.AsString())
	case layout.Decimal:
		u.WriteDecimal(i, c.AsDecimal())
	case layout.Ptr:
		return fmt.Errorf("literal: Ptr columns are not supported")
	default:
		return fmt.Errorf("literal: unknown column type %s", ct)
	}
	return nil
}

// RowLiteralFromRow reads r's columns in order through logical's schema
// and produces a RowLiteral, the inverse of RowFromLiteral. Nullable
// columns become Null() if the null bit is set, else NullableValue(c);
// non-nullable columns always become NonNull(c). Ptr columns are not
// representable as literals and produce an error.
func RowLiteralFromRow(r *layout.Row, logical *layout.RowLayout) (RowLiteral, error) {
	out := make(RowLiteral, len(logical.Columns))
	for i := range logical.Columns {
		col := &logical.Columns[i]
		if col.Type == layout.Ptr {
			return nil, fmt.Errorf("literal: column %d (%s) is a Ptr column, not representable as a literal", i, col.Name)
		}
		if col.Nullable && r.IsNull(i) {
			out[i] = Null()
			continue
		}
		c, err := readColumn(r, i, col.Type)
		if err != nil {
			return nil, err
		}
		if col.Nullable {
			out[i] = NullableValue(c)
		} else {
			out[i] = NonNull(c)
		}
	}
	return out, nil
}

func readColumn(r *layout.Row, i int, ct layout.ColumnType) (Constant, error) {
	switch ct {
	case layout.Unit:
		return Unit(), nil
	case layout.U8:
		return U8(uint8(r.ReadU64(i))), nil
	case layout.U16:
		return U16(uint16(r.ReadU64(i))), nil
	case layout.U32:
		return U32(uint32(r.ReadU64(i))), nil
	case layout.U64:
		return U64(r.ReadU64(i)), nil
	case layout.Usize:
		return Usize(r.ReadU64(i)), nil
	case layout.I8:
		return I8(int8(r.ReadI64(i))), nil
	case layout.I16:
		return I16(int16(r.ReadI64(i))), nil
	case layout.I32:
		return I32(int32(r.ReadI64(i))), nil
	case layout.I64:
		return I64(r.ReadI64(i)), nil
	case layout.Isize:
		return Isize(r.ReadI64(i)), nil
	case layout.F32:
		return F32(r.ReadF32(i)), nil
	case layout.F64:
		return F64(r.ReadF64(i)), nil
	case layout.Bool:
		return Bool(r.ReadBool(i)), nil
	case layout.Date:
		return Date(r.ReadDate(i)), nil
	case layout.Timestamp:
		return Timestamp(r.ReadTimestamp(i)), nil
	case layout.String:
		return String(r.ReadString(i)), nil
	case layout.Decimal:
		return Decimal(r.ReadDecimal(i)), nil
	default:
		return Constant{}, fmt.Errorf("literal: unknown column type %s", ct)
	}
}
