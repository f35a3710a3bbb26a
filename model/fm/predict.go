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
	"github.com/chewxy/math32"
	"github.com/gorse-io/fmlab/base"
	"github.com/gorse-io/fmlab/common/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Parameters of a factorization machine with p features and k factors:
//
//	ŷ(x) = w0 + Σ_j w_j x_j + ½ Σ_f [(Σ_j x_j v_jf)² - Σ_j x_j² v_jf²]
type Parameters struct {
	W0 float32
	W  []float32   // p
	V  [][]float32 // p × k
}

// NewParameters creates zero parameters.
func NewParameters(numFeatures, numFactors int) *Parameters {
	v := make([][]float32, numFeatures)
	for i := range v {
		v[i] = make([]float32, numFactors)
	}
	return &Parameters{
		W: make([]float32, numFeatures),
		V: v,
	}
}

// Init sets w0 and w to zero and draws factors from N(mean, stdDev²).
func (p *Parameters) Init(rng base.RandomGenerator, mean, stdDev float32) {
	p.W0 = 0
	floats.Zero(p.W)
	for j := range p.V {
		for f := range p.V[j] {
			p.V[j][f] = float32(rng.NormFloat64())*stdDev + mean
		}
	}
}

// NumFeatures returns p.
func (p *Parameters) NumFeatures() int {
	return len(p.W)
}

// NumFactors returns k.
func (p *Parameters) NumFactors() int {
	if len(p.V) == 0 {
		return 0
	}
	return len(p.V[0])
}

// Clone returns a deep copy.
func (p *Parameters) Clone() *Parameters {
	clone := NewParameters(p.NumFeatures(), p.NumFactors())
	clone.W0 = p.W0
	copy(clone.W, p.W)
	for j := range p.V {
		copy(clone.V[j], p.V[j])
	}
	return clone
}

// IsFinite checks whether every parameter is finite.
func (p *Parameters) IsFinite() bool {
	return !math32.IsNaN(p.W0) && !math32.IsInf(p.W0, 0) && floats.IsFinite(p.W) && floats.MatIsFinite(p.V)
}

// Predict computes ŷ(x) in O(nnz·k). Features are (index, value) pairs in any order.
// Indices must lie in [0, NumFeatures) and are not checked.
func (p *Parameters) Predict(indices []int32, values []float32) float32 {
	return p.predict(indices, values, nil)
}

// predict computes ŷ(x) and stores s_f = Σ_j x_j v_jf into sum if it is not nil.
func (p *Parameters) predict(indices []int32, values []float32, sum []float32) float32 {
	y := p.W0
	for k, j := range indices {
		y += p.W[j] * values[k]
	}
	for f := 0; f < p.NumFactors(); f++ {
		var s, s2 float32
		for k, j := range indices {
			vx := p.V[j][f] * values[k]
			s += vx
			s2 += vx * vx
		}
		y += 0.5 * (s*s - s2)
		if sum != nil {
			sum[f] = s
		}
	}
	return y
}

// Sigmoid is the logistic link.
func Sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// Probit is the standard normal CDF link.
func Probit(x float32) float32 {
	return float32(distuv.UnitNormal.CDF(float64(x)))
}

// logLoss returns log(1 + exp(-yŷ)) without overflow.
func logLoss(y, yHat float32) float32 {
	z := -y * yHat
	if z > 0 {
		return z + math32.Log1p(math32.Exp(-z))
	}
	return math32.Log1p(math32.Exp(z))
}
