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
	"encoding/binary"
	"sync"
)

// bufPools hands out zeroed row buffers from one pool per exact row size,
// mirroring the teacher's vm.calloc/vm.free pooling of fixed-size aligned
// buffers (vm/aligned-writer.go) rather than allocating a fresh slice per
// row.
var bufPools sync.Map // map[int]*sync.Pool

func poolFor(size int) *sync.Pool {
	if v, ok := bufPools.Load(size); ok {
		return v.(*sync.Pool)
	}
	p := &sync.Pool{New: func() any { return make([]byte, size) }}
	actual, _ := bufPools.LoadOrStore(size, p)
	return actual.(*sync.Pool)
}

func acquireBuf(size int) []byte {
	buf := poolFor(size).Get().([]byte)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

func releaseBuf(buf []byte) {
	if buf == nil {
		return
	}
	poolFor(len(buf)).Put(buf) //nolint:staticcheck
}

// UninitRow is a row buffer whose bytes have not yet all been asserted
// valid. It must be fully written -- every non-null column's payload, and
// every nullable column's null bit -- before it is promoted to a Row via
// Assume.
type UninitRow struct {
	vt      *VTable
	buf     []byte
	strings []string
}

// Row is an owned row buffer every one of whose non-null columns has been
// written. Its lifetime is single-writer until it is pushed into a source
// endpoint, at which point ownership transfers to the runtime.
type Row struct {
	vt      *VTable
	buf     []byte
	strings []string
}

// NewUninitRow allocates a buffer of exactly vt.Native.Size bytes, aligned
// to vt.Native.Align, ready for column writes.
func NewUninitRow(vt *VTable) *UninitRow {
	return &UninitRow{
		vt:  vt,
		buf: acquireBuf(vt.Native.Size),
	}
}

// VTable returns the row's vtable.
func (u *UninitRow) VTable() *VTable { return u.vt }

// Bytes exposes the raw row buffer for generated marshallers to write
// into directly; see the CSV/JSON deserializer ABIs in package codegen.
func (u *UninitRow) Bytes() []byte { return u.buf }

// SetNull sets or clears column c's null bit. Must be called before
// WriteXxx for that column when the column is nullable.
func (u *UninitRow) SetNull(c int, null bool) {
	off, mask := u.vt.Native.IsNullBit(c)
	if null {
		u.buf[off] |= mask
	} else {
		u.buf[off] &^= mask
	}
}

// IsNull reports whether column c's null bit is set.
func (u *UninitRow) IsNull(c int) bool {
	off, mask := u.vt.Native.IsNullBit(c)
	return u.buf[off]&mask != 0
}

func (u *UninitRow) WriteU64(c int, v uint64) {
	off := u.vt.Native.OffsetOf(c)
	sz := u.vt.Native.Logical.Columns[c].Type.size()
	putUint(u.buf[off:off+sz], v)
}

func (u *UninitRow) WriteI64(c int, v int64) {
	u.WriteU64(c, uint64(v))
}

func (u *UninitRow) WriteF64(c int, v float64) {
	off := u.vt.Native.OffsetOf(c)
	binary.LittleEndian.PutUint64(u.buf[off:off+8], floatBits64(v))
}

func (u *UninitRow) WriteF32(c int, v float32) {
	off := u.vt.Native.OffsetOf(c)
	binary.LittleEndian.PutUint32(u.buf[off:off+4], floatBits32(v))
}

func (u *UninitRow) WriteBool(c int, v bool) {
	off := u.vt.Native.OffsetOf(c)
	if v {
		u.buf[off] = 1
	} else {
		u.buf[off] = 0
	}
}

// WriteDate stores days-since-epoch as an i32.
func (u *UninitRow) WriteDate(c int, daysSinceEpoch int32) {
	off := u.vt.Native.OffsetOf(c)
	binary.LittleEndian.PutUint32(u.buf[off:off+4], uint32(daysSinceEpoch))
}

// WriteTimestamp stores milliseconds-since-epoch (UTC) as an i64.
func (u *UninitRow) WriteTimestamp(c int, millisSinceEpochUTC int64) {
	off := u.vt.Native.OffsetOf(c)
	binary.LittleEndian.PutUint64(u.buf[off:off+8], uint64(millisSinceEpochUTC))
}

// WriteDecimal stores the 128-bit little-endian serialized decimal.
func (u *UninitRow) WriteDecimal(c int, v [16]byte) {
	off := u.vt.Native.OffsetOf(c)
	copy(u.buf[off:off+16], v[:])
}

// WriteString interns s in the row's side table and writes its index into
// the column's 8-byte slot. This stands in for the teacher's thin-string
// reference (pointer + inline length tag): Go's string header is already
// refcount-free and GC-owned, so the side table plus index is the
// GC-idiomatic equivalent of the same "value lives in row-owned storage"
// contract.
func (u *UninitRow) WriteString(c int, s string) {
	idx := len(u.strings)
	u.strings = append(u.strings, s)
	off := u.vt.Native.OffsetOf(c)
	binary.LittleEndian.PutUint64(u.buf[off:off+8], uint64(idx))
}

// Assume transitions the buffer from "written but not yet validated" to a
// Row. This is a one-way operation; it must only be called after every
// non-null column has been written.
func (u *UninitRow) Assume() *Row {
	r := &Row{vt: u.vt, buf: u.buf, strings: u.strings}
	u.buf = nil
	u.strings = nil
	return r
}

// VTable returns the row's vtable.
func (r *Row) VTable() *VTable { return r.vt }

// Bytes exposes the raw row buffer, e.g. for a generated equality/hash
// routine or for diagnostic inspection.
func (r *Row) Bytes() []byte { return r.buf }

func (r *Row) IsNull(c int) bool {
	off, mask := r.vt.Native.IsNullBit(c)
	return r.buf[off]&mask != 0
}

func (r *Row) ReadU64(c int) uint64 {
	off := r.vt.Native.OffsetOf(c)
	sz := r.vt.Native.Logical.Columns[c].Type.size()
	return getUint(r.buf[off : off+sz])
}

func (r *Row) ReadI64(c int) int64 { return int64(r.ReadU64(c)) }

func (r *Row) ReadF64(c int) float64 {
	off := r.vt.Native.OffsetOf(c)
	return floatFromBits64(binary.LittleEndian.Uint64(r.buf[off : off+8]))
}

func (r *Row) ReadF32(c int) float32 {
	off := r.vt.Native.OffsetOf(c)
	return floatFromBits32(binary.LittleEndian.Uint32(r.buf[off : off+4]))
}

func (r *Row) ReadBool(c int) bool {
	off := r.vt.Native.OffsetOf(c)
	return r.buf[off] != 0
}

func (r *Row) ReadDate(c int) int32 {
	off := r.vt.Native.OffsetOf(c)
	return int32(binary.LittleEndian.Uint32(r.buf[off : off+4]))
}

func (r *Row) ReadTimestamp(c int) int64 {
	off := r.vt.Native.OffsetOf(c)
	return int64(binary.LittleEndian.Uint64(r.buf[off : off+8]))
}

func (r *Row) ReadDecimal(c int) [16]byte {
	off := r.vt.Native.OffsetOf(c)
	var v [16]byte
	copy(v[:], r.buf[off:off+16])
	return v
}

func (r *Row) ReadString(c int) string {
	off := r.vt.Native.OffsetOf(c)
	idx := binary.LittleEndian.Uint64(r.buf[off : off+8])
	return r.strings[idx]
}

// Clone returns an independent copy of r, produced through r's own
// vtable so that any specialized (JIT-generated) clone logic is honored.
func (r *Row) Clone() *Row {
	u := NewUninitRow(r.vt)
	r.vt.CloneInto(u, r)
	return u.Assume()
}

// Release drops r through its vtable. See SPEC_FULL.md's note on drop
// semantics under a garbage collector: this does not free Go memory (the
// GC owns that) but does release pooled buffers and any non-GC resources
// a specialized vtable's Drop might hold.
func (r *Row) Release() {
	r.vt.Drop(r)
}

func putUint(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		panic("layout: unsupported integer width")
	}
}

func getUint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		panic("layout: unsupported integer width")
	}
}
