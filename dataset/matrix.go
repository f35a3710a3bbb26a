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
	"slices"
	"sort"

	"github.com/juju/errors"
)

// Matrix is a sparse feature matrix in compressed sparse row format. Each row is a feature
// vector: a list of (column, value) pairs. The number of columns is fixed at creation.
type Matrix struct {
	numColumns int
	offsets    []int
	indices    []int32
	values     []float32
}

// NewMatrix creates an empty matrix with numColumns columns.
func NewMatrix(numColumns int) *Matrix {
	return &Matrix{
		numColumns: numColumns,
		offsets:    []int{0},
	}
}

// NewDenseMatrix converts a dense matrix. Zeros are dropped.
func NewDenseMatrix(data [][]float32) *Matrix {
	numColumns := 0
	if len(data) > 0 {
		numColumns = len(data[0])
	}
	m := NewMatrix(numColumns)
	for _, row := range data {
		indices := make([]int32, 0, len(row))
		values := make([]float32, 0, len(row))
		for j, v := range row {
			if v != 0 {
				indices = append(indices, int32(j))
				values = append(values, v)
			}
		}
		if err := m.AppendRow(indices, values); err != nil {
			panic(err)
		}
	}
	return m
}

// AppendRow appends a feature vector. Indices must lie in [0, NumColumns) and must not
// repeat within a row.
func (m *Matrix) AppendRow(indices []int32, values []float32) error {
	if len(indices) != len(values) {
		return errors.NotValidf("row with %d indices and %d values", len(indices), len(values))
	}
	for _, index := range indices {
		if index < 0 || int(index) >= m.numColumns {
			return errors.NotValidf("column %d out of range [0, %d)", index, m.numColumns)
		}
	}
	if index, ok := duplicateIndex(indices); ok {
		return errors.NotValidf("duplicate column %d in row", index)
	}
	m.indices = append(m.indices, indices...)
	m.values = append(m.values, values...)
	m.offsets = append(m.offsets, len(m.indices))
	return nil
}

func duplicateIndex(indices []int32) (int32, bool) {
	if !slices.IsSorted(indices) {
		indices = slices.Clone(indices)
		slices.Sort(indices)
	}
	for k := 1; k < len(indices); k++ {
		if indices[k] == indices[k-1] {
			return indices[k], true
		}
	}
	return 0, false
}

// Count returns the number of rows.
func (m *Matrix) Count() int {
	return len(m.offsets) - 1
}

// NumColumns returns the number of columns.
func (m *Matrix) NumColumns() int {
	return m.numColumns
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	return len(m.indices)
}

// Row returns the i-th feature vector. The returned slices must not be modified.
func (m *Matrix) Row(i int) ([]int32, []float32) {
	begin, end := m.offsets[i], m.offsets[i+1]
	return m.indices[begin:end], m.values[begin:end]
}

// Dense returns the i-th feature vector as a dense slice.
func (m *Matrix) Dense(i int) []float32 {
	row := make([]float32, m.numColumns)
	indices, values := m.Row(i)
	for k, index := range indices {
		row[index] += values[k]
	}
	return row
}

// Transpose returns the matrix in which rows are the columns of m. Rows of the result list
// (row of m, value) pairs in increasing row order.
func (m *Matrix) Transpose() *Matrix {
	counts := make([]int, m.numColumns+1)
	for _, index := range m.indices {
		counts[index+1]++
	}
	for j := 1; j < len(counts); j++ {
		counts[j] += counts[j-1]
	}
	t := &Matrix{
		numColumns: m.Count(),
		offsets:    counts,
		indices:    make([]int32, len(m.indices)),
		values:     make([]float32, len(m.values)),
	}
	cursor := make([]int, m.numColumns)
	copy(cursor, counts[:m.numColumns])
	for i := 0; i < m.Count(); i++ {
		indices, values := m.Row(i)
		for k, j := range indices {
			t.indices[cursor[j]] = int32(i)
			t.values[cursor[j]] = values[k]
			cursor[j]++
		}
	}
	return t
}

// Subset returns the rows listed in rows, in that order.
func (m *Matrix) Subset(rows []int) *Matrix {
	s := NewMatrix(m.numColumns)
	for _, i := range rows {
		indices, values := m.Row(i)
		s.indices = append(s.indices, indices...)
		s.values = append(s.values, values...)
		s.offsets = append(s.offsets, len(s.indices))
	}
	return s
}

// SortRows sorts entries of each row by column.
func (m *Matrix) SortRows() {
	for i := 0; i < m.Count(); i++ {
		begin, end := m.offsets[i], m.offsets[i+1]
		sort.Sort(rowSorter{indices: m.indices[begin:end], values: m.values[begin:end]})
	}
}

type rowSorter struct {
	indices []int32
	values  []float32
}

func (s rowSorter) Len() int { return len(s.indices) }

func (s rowSorter) Less(i, j int) bool { return s.indices[i] < s.indices[j] }

func (s rowSorter) Swap(i, j int) {
	s.indices[i], s.indices[j] = s.indices[j], s.indices[i]
	s.values[i], s.values[j] = s.values[j], s.values[i]
}
