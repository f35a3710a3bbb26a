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
	"context"

	"github.com/gorse-io/fmlab/base"
	"github.com/gorse-io/fmlab/dataset"
)

// sgd updates parameters by stochastic gradient descent, one example at a time in the
// order of the train set.
type sgd struct {
	hyper    HyperParams
	params   *Parameters
	trainSet *dataset.Dataset
	sum      []float32
}

func newSGD(hyper HyperParams, rng base.RandomGenerator, trainSet *dataset.Dataset) *sgd {
	params := NewParameters(trainSet.NumFeatures(), hyper.NFactors)
	params.Init(rng, hyper.InitMean, hyper.InitStdDev)
	return &sgd{
		hyper:    hyper,
		params:   params,
		trainSet: trainSet,
		sum:      make([]float32, hyper.NFactors),
	}
}

func (s *sgd) parameters() *Parameters {
	return s.params
}

func (s *sgd) step(_ context.Context) (float32, error) {
	var loss float32
	for i := 0; i < s.trainSet.Count(); i++ {
		indices, values, target := s.trainSet.Get(i)
		loss += sgdUpdate(s.params, s.hyper, indices, values, target, s.sum)
	}
	if s.trainSet.Count() > 0 {
		loss /= float32(s.trainSet.Count())
	}
	return loss, nil
}

// sgdUpdate applies one simultaneous update for a single example and returns its loss
// before the update. sum is scratch space of length k.
func sgdUpdate(params *Parameters, hyper HyperParams, indices []int32, values []float32, target float32, sum []float32) float32 {
	yHat := params.predict(indices, values, sum)
	var grad, loss float32
	if hyper.isClassification() {
		grad = -target * (1 - Sigmoid(target*yHat))
		loss = logLoss(target, yHat)
	} else {
		grad = yHat - target
		loss = grad * grad
	}
	lr := hyper.Lr
	params.W0 -= lr * (grad + hyper.RegW0*params.W0)
	for k, j := range indices {
		x := values[k]
		params.W[j] -= lr * (grad*x + hyper.RegW*params.W[j])
		v := params.V[j]
		for f := range v {
			// s_f is the sum before this update
			v[f] -= lr * (grad*x*(sum[f]-v[f]*x) + hyper.RegV*v[f])
		}
	}
	return loss
}
