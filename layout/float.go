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

import "math"

func floatBits64(v float64) uint64   { return math.Float64bits(v) }
func floatFromBits64(b uint64) float64 { return math.Float64frombits(b) }
func floatBits32(v float32) uint32   { return math.Float32bits(v) }
func floatFromBits32(b uint32) float32 { return math.Float32frombits(b) }
