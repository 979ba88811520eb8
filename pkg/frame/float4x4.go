// Copyright 2026 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

import (
	"gonum.org/v1/gonum/mat"
)

// Float4x4 is a row-major 4x4 transform: M11, M12, M13, M14, M21, ... M44.
type Float4x4 [16]float32

func Identity() Float4x4 {
	return Float4x4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func Fill(v float32) Float4x4 {
	var m Float4x4
	for i := range m {
		m[i] = v
	}
	return m
}

// At returns the component at 1-based row and column, matching the m11..m44 naming.
func (m Float4x4) At(row, col int) float32 {
	return m[(row-1)*4+(col-1)]
}

func (m Float4x4) Dense() *mat.Dense {
	data := make([]float64, 16)
	for i, v := range m {
		data[i] = float64(v)
	}
	return mat.NewDense(4, 4, data)
}

func FromDense(d mat.Matrix) Float4x4 {
	var m Float4x4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[r*4+c] = float32(d.At(r, c))
		}
	}
	return m
}

// Mul returns m * n.
func (m Float4x4) Mul(n Float4x4) Float4x4 {
	var res mat.Dense
	res.Mul(m.Dense(), n.Dense())
	return FromDense(&res)
}
