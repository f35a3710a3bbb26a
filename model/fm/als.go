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
	"github.com/gorse-io/fmlab/common/floats"
	"github.com/gorse-io/fmlab/common/parallel"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/juju/errors"
)

// als minimizes the regularized loss by coordinate descent over w0, w_1..w_p and then the
// columns V_{*,f}. Each parameter θ enters ŷ_i linearly with coefficient h_i, so
//
//	θ ← θ - (Σ ℓ'_i h_i + λθ) / (Σ ℓ''_i h_i² + λ)
//
// is the exact minimizer for squared loss and a Newton step for logistic loss.
type als struct {
	hyper    HyperParams
	params   *Parameters
	trainSet *dataset.Dataset
	columns  *dataset.Matrix
	jobs     int
	yHat     []float32 // ŷ_i
	q        []float32 // q_if of the current factor
	h        []float32 // scratch for coefficients of a column
}

func newALS(hyper HyperParams, rng base.RandomGenerator, trainSet *dataset.Dataset, jobs int) *als {
	params := NewParameters(trainSet.NumFeatures(), hyper.NFactors)
	params.Init(rng, hyper.InitMean, hyper.InitStdDev)
	return &als{
		hyper:    hyper,
		params:   params,
		trainSet: trainSet,
		columns:  trainSet.X.Transpose(),
		jobs:     jobs,
		yHat:     make([]float32, trainSet.Count()),
		q:        make([]float32, trainSet.Count()),
		h:        make([]float32, trainSet.Count()),
	}
}

func (a *als) parameters() *Parameters {
	return a.params
}

func (a *als) step(ctx context.Context) (float32, error) {
	if err := a.init(ctx); err != nil {
		return 0, errors.Trace(err)
	}
	n := a.trainSet.Count()
	// global bias
	var g, hess float32
	for i := 0; i < n; i++ {
		d1, d2 := a.derivatives(i)
		g += d1
		hess += d2
	}
	if delta, ok := a.solve(a.params.W0, a.hyper.RegW0, g, hess); ok {
		a.params.W0 += delta
		for i := range a.yHat {
			a.yHat[i] += delta
		}
	}
	// linear weights
	for j := 0; j < a.columns.Count(); j++ {
		rows, values := a.columns.Row(j)
		g, hess = 0, 0
		for k, i := range rows {
			d1, d2 := a.derivatives(int(i))
			g += d1 * values[k]
			hess += d2 * values[k] * values[k]
		}
		if delta, ok := a.solve(a.params.W[j], a.hyper.RegW, g, hess); ok {
			a.params.W[j] += delta
			for k, i := range rows {
				a.yHat[i] += delta * values[k]
			}
		}
	}
	// factors
	for f := 0; f < a.hyper.NFactors; f++ {
		if err := a.initFactor(ctx, f); err != nil {
			return 0, errors.Trace(err)
		}
		for j := 0; j < a.columns.Count(); j++ {
			rows, values := a.columns.Row(j)
			v := a.params.V[j][f]
			h := a.h[:len(rows)]
			g, hess = 0, 0
			for k, i := range rows {
				x := values[k]
				h[k] = x * (a.q[i] - x*v)
				d1, d2 := a.derivatives(int(i))
				g += d1 * h[k]
				hess += d2 * h[k] * h[k]
			}
			if delta, ok := a.solve(v, a.hyper.RegV, g, hess); ok {
				a.params.V[j][f] += delta
				for k, i := range rows {
					a.yHat[i] += delta * h[k]
					a.q[i] += delta * values[k]
				}
			}
		}
	}
	if !floats.IsFinite(a.yHat) {
		return 0, errors.Annotatef(ErrNumericalDivergence, "non-finite prediction cache")
	}
	var loss float32
	for i := 0; i < n; i++ {
		loss += a.loss(i)
	}
	if n > 0 {
		loss /= float32(n)
	}
	return loss, nil
}

// objective returns Σ ℓ_i + ½ Σ λ_θ θ² with ℓ = ½(y - ŷ)² for regression.
func (a *als) objective() float32 {
	var sum float32
	for i := range a.yHat {
		if a.hyper.isClassification() {
			sum += a.loss(i)
		} else {
			sum += 0.5 * a.loss(i)
		}
	}
	reg := a.hyper.RegW0*a.params.W0*a.params.W0 + a.hyper.RegW*floats.SquaredSum(a.params.W)
	for _, v := range a.params.V {
		reg += a.hyper.RegV * floats.SquaredSum(v)
	}
	return sum + 0.5*reg
}

func (a *als) loss(i int) float32 {
	y := a.trainSet.Target[i]
	if a.hyper.isClassification() {
		return logLoss(y, a.yHat[i])
	}
	return (y - a.yHat[i]) * (y - a.yHat[i])
}

// derivatives returns ℓ'_i and ℓ''_i with respect to ŷ_i.
func (a *als) derivatives(i int) (float32, float32) {
	y := a.trainSet.Target[i]
	if a.hyper.isClassification() {
		p := Sigmoid(y * a.yHat[i])
		return -y * (1 - p), p * (1 - p)
	}
	return a.yHat[i] - y, 1
}

// solve returns the change of θ. Coordinates without curvature are skipped.
func (a *als) solve(theta, reg, g, hess float32) (float32, bool) {
	denominator := hess + reg
	if denominator <= 0 {
		return 0, false
	}
	return -(g + reg*theta) / denominator, true
}

// init computes ŷ_i from scratch.
func (a *als) init(ctx context.Context) error {
	n := a.trainSet.Count()
	return parallel.Parallel(ctx, numBatches(n), a.jobs, func(_, b int) error {
		for i := b * batchSize; i < min((b+1)*batchSize, n); i++ {
			indices, values := a.trainSet.X.Row(i)
			a.yHat[i] = a.params.Predict(indices, values)
		}
		return nil
	})
}

// initFactor computes q_if = Σ_j x_ij v_jf.
func (a *als) initFactor(ctx context.Context, f int) error {
	n := a.trainSet.Count()
	return parallel.Parallel(ctx, numBatches(n), a.jobs, func(_, b int) error {
		for i := b * batchSize; i < min((b+1)*batchSize, n); i++ {
			indices, values := a.trainSet.X.Row(i)
			var q float32
			for k, j := range indices {
				q += a.params.V[j][f] * values[k]
			}
			a.q[i] = q
		}
		return nil
	})
}

func numBatches(n int) int {
	return (n + batchSize - 1) / batchSize
}
