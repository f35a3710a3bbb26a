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

package fm

import (
	"github.com/juju/errors"
)

// PredictionAccumulator keeps the running mean of prediction vectors in O(n) memory.
type PredictionAccumulator struct {
	mean  []float64
	count int
}

// NewPredictionAccumulator creates an accumulator for n predictions.
func NewPredictionAccumulator(n int) *PredictionAccumulator {
	return &PredictionAccumulator{mean: make([]float64, n)}
}

// Add a prediction vector.
func (acc *PredictionAccumulator) Add(predictions []float32) error {
	if len(predictions) != len(acc.mean) {
		return errors.Annotatef(ErrDimensionMismatch, "%d predictions (expect %d)", len(predictions), len(acc.mean))
	}
	acc.count++
	for i, p := range predictions {
		acc.mean[i] += (float64(p) - acc.mean[i]) / float64(acc.count)
	}
	return nil
}

// Count returns the number of added vectors.
func (acc *PredictionAccumulator) Count() int {
	return acc.count
}

// Mean returns the mean of added vectors.
func (acc *PredictionAccumulator) Mean() []float32 {
	mean := make([]float32, len(acc.mean))
	for i, m := range acc.mean {
		mean[i] = float32(m)
	}
	return mean
}
