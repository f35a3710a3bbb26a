// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestMatrix_AppendRow(t *testing.T) {
	m := NewMatrix(3)
	assert.NoError(t, m.AppendRow([]int32{0, 2}, []float32{1, 2}))
	assert.NoError(t, m.AppendRow(nil, nil))
	assert.True(t, errors.Is(m.AppendRow([]int32{3}, []float32{1}), errors.NotValid))
	assert.True(t, errors.Is(m.AppendRow([]int32{0}, nil), errors.NotValid))
	assert.True(t, errors.Is(m.AppendRow([]int32{0, 0, 2}, []float32{1, 1, 1}), errors.NotValid))
	assert.True(t, errors.Is(m.AppendRow([]int32{2, 0, 2}, []float32{1, 1, 1}), errors.NotValid))
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 3, m.NumColumns())
	assert.Equal(t, 2, m.NNZ())
	indices, values := m.Row(0)
	assert.Equal(t, []int32{0, 2}, indices)
	assert.Equal(t, []float32{1, 2}, values)
	indices, values = m.Row(1)
	assert.Empty(t, indices)
	assert.Empty(t, values)
}

func TestNewDenseMatrix(t *testing.T) {
	m := NewDenseMatrix([][]float32{
		{1, 0, 3},
		{0, 0, 0},
		{0, 5, 6},
	})
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, 4, m.NNZ())
	assert.Equal(t, []float32{1, 0, 3}, m.Dense(0))
	assert.Equal(t, []float32{0, 0, 0}, m.Dense(1))
	assert.Equal(t, []float32{0, 5, 6}, m.Dense(2))
}

func TestMatrix_Transpose(t *testing.T) {
	m := NewDenseMatrix([][]float32{
		{1, 0, 3},
		{0, 0, 4},
		{2, 5, 6},
		{0, 0, 0},
	})
	tr := m.Transpose()
	assert.Equal(t, 3, tr.Count())
	assert.Equal(t, 4, tr.NumColumns())
	assert.Equal(t, []float32{1, 0, 2, 0}, tr.Dense(0))
	assert.Equal(t, []float32{0, 0, 5, 0}, tr.Dense(1))
	assert.Equal(t, []float32{3, 4, 6, 0}, tr.Dense(2))
	indices, _ := tr.Row(2)
	assert.Equal(t, []int32{0, 1, 2}, indices)
	// transpose twice
	back := tr.Transpose()
	for i := 0; i < m.Count(); i++ {
		assert.Equal(t, m.Dense(i), back.Dense(i))
	}
}

func TestMatrix_Subset(t *testing.T) {
	m := NewDenseMatrix([][]float32{{1, 0}, {0, 2}, {3, 4}})
	s := m.Subset([]int{2, 0})
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, []float32{3, 4}, s.Dense(0))
	assert.Equal(t, []float32{1, 0}, s.Dense(1))
	assert.Zero(t, m.Subset(nil).Count())
}

func TestMatrix_SortRows(t *testing.T) {
	m := NewMatrix(4)
	assert.NoError(t, m.AppendRow([]int32{3, 0, 2}, []float32{3, 0.5, 2}))
	m.SortRows()
	indices, values := m.Row(0)
	assert.Equal(t, []int32{0, 2, 3}, indices)
	assert.Equal(t, []float32{0.5, 2, 3}, values)
}
