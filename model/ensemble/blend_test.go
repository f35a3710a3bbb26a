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

package ensemble

import (
	"testing"

	"github.com/gorse-io/fmlab/model/fm"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestWeightedMean(t *testing.T) {
	blended, err := WeightedMean([][]float32{{1, 2}, {3, 6}}, []float32{1, 3})
	assert.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2.5, 5}, blended, 1e-6)
	blended, err = WeightedMean([][]float32{{1, 2}, {3, 6}}, nil)
	assert.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 4}, blended, 1e-6)

	_, err = WeightedMean([][]float32{{1, 2}, {3}}, nil)
	assert.True(t, errors.Is(err, fm.ErrDimensionMismatch))
	_, err = WeightedMean([][]float32{{1, 2}}, []float32{1, 1})
	assert.True(t, errors.Is(err, fm.ErrDimensionMismatch))
	_, err = WeightedMean([][]float32{{1, 2}}, []float32{0})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = WeightedMean(nil, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRankAverage(t *testing.T) {
	blended, err := RankAverage([][]float32{
		{0.1, 0.9, 0.5},
		{10, 30, 20},
	})
	assert.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 1, 0.5}, blended, 1e-6)
	// ties
	assert.Equal(t, []float32{0.5, 0.5, 1, 0}, normalizedRanks([]float32{2, 2, 3, 1}))
	assert.Equal(t, []float32{0}, normalizedRanks([]float32{5}))
	_, err = RankAverage([][]float32{{1}, {1, 2}})
	assert.True(t, errors.Is(err, fm.ErrDimensionMismatch))
}
