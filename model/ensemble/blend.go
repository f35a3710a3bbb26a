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

// Package ensemble blends prediction vectors of several models.
package ensemble

import (
	"sort"

	"github.com/gorse-io/fmlab/common/floats"
	"github.com/gorse-io/fmlab/model/fm"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// WeightedMean returns Σ_m weights[m]·predictions[m] / Σ_m weights[m].
func WeightedMean(predictions [][]float32, weights []float32) ([]float32, error) {
	if err := check(predictions); err != nil {
		return nil, errors.Trace(err)
	}
	if weights == nil {
		weights = lo.Times(len(predictions), func(int) float32 { return 1 })
	}
	if len(weights) != len(predictions) {
		return nil, errors.Annotatef(fm.ErrDimensionMismatch, "%d weights for %d models", len(weights), len(predictions))
	}
	total := lo.Sum(weights)
	if total <= 0 {
		return nil, errors.NotValidf("sum of weights %v", total)
	}
	blended := make([]float32, len(predictions[0]))
	for m, prediction := range predictions {
		floats.MulConstAdd(prediction, weights[m]/total, blended)
	}
	return blended, nil
}

// RankAverage averages normalized ranks, so that models with different scales contribute
// equally. Ranks are scaled into [0, 1] and ties share the mean rank.
func RankAverage(predictions [][]float32) ([]float32, error) {
	if err := check(predictions); err != nil {
		return nil, errors.Trace(err)
	}
	ranks := lo.Map(predictions, func(prediction []float32, _ int) []float32 {
		return normalizedRanks(prediction)
	})
	return WeightedMean(ranks, nil)
}

func normalizedRanks(prediction []float32) []float32 {
	n := len(prediction)
	order := lo.Range(n)
	sort.SliceStable(order, func(i, j int) bool {
		return prediction[order[i]] < prediction[order[j]]
	})
	ranks := make([]float32, n)
	for begin := 0; begin < n; {
		end := begin + 1
		for end < n && prediction[order[end]] == prediction[order[begin]] {
			end++
		}
		// mean rank of ties
		rank := float32(begin+end-1) / 2
		if n > 1 {
			rank /= float32(n - 1)
		}
		for k := begin; k < end; k++ {
			ranks[order[k]] = rank
		}
		begin = end
	}
	return ranks
}

func check(predictions [][]float32) error {
	if len(predictions) == 0 {
		return errors.NotValidf("no predictions")
	}
	for m, prediction := range predictions {
		if len(prediction) != len(predictions[0]) {
			return errors.Annotatef(fm.ErrDimensionMismatch, "model %d has %d predictions (model 0 has %d)",
				m, len(prediction), len(predictions[0]))
		}
	}
	return nil
}
