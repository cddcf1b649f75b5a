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

package layout

import "testing"

func mixedLayout() RowLayout {
	return RowLayout{
		ID: 1,
		Columns: []Column{
			{Name: "id", Type: I32},
			{Name: "amount", Type: F64},
			{Name: "active", Type: Bool},
			{Name: "name", Type: String},
			{Name: "score", Type: I32, Nullable: true},
			{Name: "ratio", Type: F64, Nullable: true},
		},
	}
}

func TestCompileOffsetsNonOverlapping(t *testing.T) {
	n := Compile(mixedLayout())
	seen := map[int]bool{}
	for i := range n.Logical.Columns {
		if n.Nullable(i) {
			continue
		}
		off := n.OffsetOf(i)
		sz := n.Logical.Columns[i].Type.size()
		for b := off; b < off+sz; b++ {
			if seen[b] {
				t.Fatalf("column %d overlaps byte %d", i, b)
			}
			seen[b] = true
		}
		if off%n.Logical.Columns[i].Type.align() != 0 {
			t.Fatalf("column %d offset %d misaligned", i, off)
		}
	}
	if n.Size%n.Align != 0 {
		t.Fatalf("row size %d not a multiple of align %d", n.Size, n.Align)
	}
}

func TestRowWriteReadRoundTrip(t *testing.T) {
	n := Compile(mixedLayout())
	vt := BuildVTable(n)
	u := NewUninitRow(vt)

	u.WriteI64(0, 42)
	u.WriteF64(1, 3.5)
	u.WriteBool(2, true)
	u.WriteString(3, "hello")
	u.SetNull(4, true)
	u.SetNull(5, false)
	u.WriteF64(5, 1.25)

	r := u.Assume()
	defer r.Release()

	if got := r.ReadI64(0); got != 42 {
		t.Fatalf("id = %d, want 42", got)
	}
	if got := r.ReadF64(1); got != 3.5 {
		t.Fatalf("amount = %v, want 3.5", got)
	}
	if !r.ReadBool(2) {
		t.Fatalf("active = false, want true")
	}
	if got := r.ReadString(3); got != "hello" {
		t.Fatalf("name = %q, want hello", got)
	}
	if !r.IsNull(4) {
		t.Fatalf("score should be null")
	}
	if r.IsNull(5) {
		t.Fatalf("ratio should not be null")
	}
	if got := r.ReadF64(5); got != 1.25 {
		t.Fatalf("ratio = %v, want 1.25", got)
	}
}

func TestVTableEqualAndHash(t *testing.T) {
	n := Compile(mixedLayout())
	vt := BuildVTable(n)

	build := func(name string) *Row {
		u := NewUninitRow(vt)
		u.WriteI64(0, 1)
		u.WriteF64(1, 2.0)
		u.WriteBool(2, false)
		u.WriteString(3, name)
		u.SetNull(4, true)
		u.SetNull(5, true)
		return u.Assume()
	}

	a := build("x")
	b := build("x")
	c := build("y")
	defer a.Release()
	defer b.Release()
	defer c.Release()

	if !vt.Equal(a, b) {
		t.Fatalf("expected a == b")
	}
	if vt.Equal(a, c) {
		t.Fatalf("expected a != c")
	}
	if vt.Hash(a) != vt.Hash(b) {
		t.Fatalf("expected hash(a) == hash(b)")
	}
}

func TestClonePreservesStrings(t *testing.T) {
	n := Compile(RowLayout{ID: 2, Columns: []Column{{Name: "s", Type: String}}})
	vt := BuildVTable(n)
	u := NewUninitRow(vt)
	u.WriteString(0, "owned")
	r := u.Assume()
	defer r.Release()

	clone := r.Clone()
	defer clone.Release()
	if clone.ReadString(0) != "owned" {
		t.Fatalf("clone lost string payload")
	}
}

func TestPtrColumnRejected(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for Ptr column")
		}
	}()
	Compile(RowLayout{ID: 3, Columns: []Column{{Name: "p", Type: Ptr}}})
}
