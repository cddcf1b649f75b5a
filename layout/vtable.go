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

import (
	"bytes"
	"encoding/binary"

	"github.com/dchest/siphash"
)

// VTable is the per-layout function set a row carries: size, align, and
// the clone/drop/equality/hash operations that operate on a row's raw
// bytes without knowledge of its logical schema beyond what NativeLayout
// already encodes.
//
// A VTable pointer must stay stable for the lifetime of the owning
// circuit; every Row referencing it assumes the functions below remain
// valid until the circuit is killed.
type VTable struct {
	Native *NativeLayout

	CloneInto func(dst *UninitRow, src *Row)
	Drop      func(r *Row)
	Equal     func(a, b *Row) bool
	Hash      func(r *Row) uint64
}

// BuildVTable derives a generic VTable directly from a NativeLayout. Real
// per-layout vtables are ordinarily produced by the code generator
// alongside the rest of the compiled dataflow (see package codegen); this
// constructor is what the layout contract offers as the authoritative,
// law-abiding reference implementation, and it is what this repo's fake
// code generator (package dataflowtest) uses in place of real JIT output.
func BuildVTable(n *NativeLayout) *VTable {
	vt := &VTable{Native: n}
	vt.CloneInto = func(dst *UninitRow, src *Row) {
		copy(dst.buf, src.buf)
		dst.strings = append(dst.strings[:0], src.strings...)
	}
	vt.Drop = func(r *Row) {
		releaseBuf(r.buf)
		r.buf = nil
		r.strings = nil
	}
	vt.Equal = func(a, b *Row) bool {
		return rowsEqual(n, a, b)
	}
	vt.Hash = func(r *Row) uint64 {
		return rowHash(n, r)
	}
	return vt
}

func rowsEqual(n *NativeLayout, a, b *Row) bool {
	for i := range n.Logical.Columns {
		col := &n.Logical.Columns[i]
		if n.Nullable(i) {
			if a.IsNull(i) != b.IsNull(i) {
				return false
			}
			if a.IsNull(i) {
				continue
			}
		}
		if col.Type == String {
			if a.ReadString(i) != b.ReadString(i) {
				return false
			}
			continue
		}
		sz := col.Type.size()
		off := n.OffsetOf(i)
		if !bytes.Equal(a.buf[off:off+sz], b.buf[off:off+sz]) {
			return false
		}
	}
	return true
}

// rowHash mixes every non-null column's bytes through siphash, matching
// the teacher's vm.bchashvaluego use of siphash.Hash128 over a row's raw
// memory region; this repo folds the 128-bit digest down to 64 bits, a
// single comparable hash key per row.
func rowHash(n *NativeLayout, r *Row) uint64 {
	var buf [8]byte
	var acc uint64
	for i := range n.Logical.Columns {
		col := &n.Logical.Columns[i]
		if n.Nullable(i) && r.IsNull(i) {
			lo, hi := siphash.Hash128(uint64(i), 0xdead, []byte{1})
			acc ^= lo ^ hi
			continue
		}
		var mem []byte
		if col.Type == String {
			s := r.ReadString(i)
			mem = []byte(s)
		} else {
			sz := col.Type.size()
			off := n.OffsetOf(i)
			mem = r.buf[off : off+sz]
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		lo, hi := siphash.Hash128(0, 0, append(buf[:], mem...))
		acc = acc*1099511628211 ^ lo ^ hi
	}
	return acc
}
