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
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDataset(n int) *Dataset {
	rows := make([][]float32, n)
	target := make([]float32, n)
	for i := range rows {
		rows[i] = []float32{float32(i + 1), 0}
		if i%2 == 0 {
			target[i] = 1
		} else {
			target[i] = -1
		}
	}
	dataset, err := NewDataset(NewDenseMatrix(rows), target)
	if err != nil {
		panic(err)
	}
	dataset.IDs = lo.Map(lo.Range(n), func(i, _ int) string { return string(rune('a' + i)) })
	return dataset
}

func TestNewDataset(t *testing.T) {
	_, err := NewDataset(NewDenseMatrix([][]float32{{1}}), []float32{1, 1})
	assert.True(t, errors.Is(err, errors.NotValid))
	dataset, err := NewDataset(NewDenseMatrix([][]float32{{1}}), nil)
	assert.NoError(t, err)
	_, _, target := dataset.Get(0)
	assert.Zero(t, target)
}

func TestDataset_Binary(t *testing.T) {
	dataset := newTestDataset(5)
	assert.Equal(t, 5, dataset.Count())
	assert.Equal(t, 2, dataset.NumFeatures())
	assert.Equal(t, 3, dataset.CountPositive())
	assert.Equal(t, 2, dataset.CountNegative())
	assert.NoError(t, dataset.ValidateBinary())
	dataset.Target[0] = 0.5
	assert.True(t, errors.Is(dataset.ValidateBinary(), errors.NotValid))
	dataset.Target[1] = 0
	dataset.Binarize()
	assert.Equal(t, []float32{1, -1, 1, -1, 1}, dataset.Target)
	assert.True(t, errors.Is((&Dataset{X: NewMatrix(0)}).ValidateBinary(), errors.NotValid))
}

func TestDataset_Split(t *testing.T) {
	dataset := newTestDataset(20)
	train, test := dataset.Split(0.25, 0)
	require.Equal(t, 15, train.Count())
	require.Equal(t, 5, test.Count())
	// order is kept and samples are disjoint
	seen := make(map[float32]struct{})
	var last float32
	for i := 0; i < train.Count(); i++ {
		_, values, _ := train.Get(i)
		assert.Greater(t, values[0], last)
		last = values[0]
		seen[values[0]] = struct{}{}
	}
	for i := 0; i < test.Count(); i++ {
		_, values, target := test.Get(i)
		assert.NotContains(t, seen, values[0])
		seen[values[0]] = struct{}{}
		// target and id follow the sample
		row := int(values[0]) - 1
		assert.Equal(t, dataset.Target[row], target)
		assert.Equal(t, dataset.IDs[row], test.IDs[i])
	}
	assert.Len(t, seen, 20)
	// deterministic
	_, test2 := dataset.Split(0.25, 0)
	assert.Equal(t, test.IDs, test2.IDs)
}
