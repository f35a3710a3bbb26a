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
	"math"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/gorse-io/fmlab/base"
	"github.com/gorse-io/fmlab/common/floats"
	"github.com/gorse-io/fmlab/common/parallel"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Hyper-priors of MCMC.
const (
	priorAlpha = 1.0 // α_0
	priorGamma = 1.0 // γ_0
	priorBeta  = 1.0 // β_0
	priorMu    = 0.0 // μ_0
)

// mcmc is a Gibbs sampler. Priors are w0 ~ N(0, 1/λ_0), w_j ~ N(μ_w, 1/λ_w) and
// v_jf ~ N(μ_f, 1/λ_f) with λ ~ Gamma and μ ~ Normal. Classification uses probit
// augmentation: latent targets z_i ~ N(ŷ_i, 1) truncated to the sign of y_i. Each
// parameter is drawn from
//
//	N(σ²(α Σ h_i (z_i - ŷ_i + θ h_i) + λμ), σ² = 1 / (α Σ h_i² + λ))
type mcmc struct {
	hyper       HyperParams
	params      *Parameters
	trainSet    *dataset.Dataset
	columns     *dataset.Matrix
	test        *dataset.Matrix
	jobs        int
	src         rand.Source
	iteration   int
	accumulator *PredictionAccumulator

	yHat []float32 // ŷ_i
	z    []float32 // targets, latent for classification
	q    []float32 // q_if of the current factor
	h    []float32 // scratch for coefficients of a column

	alpha   float64   // noise precision
	muW     float64   // μ_w
	lambdaW float64   // λ_w
	muV     []float64 // μ_f
	lambdaV []float64 // λ_f

	predictions []float32
}

func newMCMC(hyper HyperParams, rng base.RandomGenerator, trainSet *dataset.Dataset, test *dataset.Matrix, jobs int) *mcmc {
	params := NewParameters(trainSet.NumFeatures(), hyper.NFactors)
	params.Init(rng, hyper.InitMean, hyper.InitStdDev)
	s := &mcmc{
		hyper:       hyper,
		params:      params,
		trainSet:    trainSet,
		columns:     trainSet.X.Transpose(),
		test:        test,
		jobs:        jobs,
		src:         rand.NewPCG(rng.Uint64(), rng.Uint64()),
		accumulator: NewPredictionAccumulator(test.Count()),
		yHat:        make([]float32, trainSet.Count()),
		z:           make([]float32, trainSet.Count()),
		q:           make([]float32, trainSet.Count()),
		h:           make([]float32, trainSet.Count()),
		alpha:       1,
		lambdaW:     float64(hyper.RegW),
		muV:         make([]float64, hyper.NFactors),
		lambdaV:     make([]float64, hyper.NFactors),
		predictions: make([]float32, test.Count()),
	}
	for f := range s.lambdaV {
		s.lambdaV[f] = float64(hyper.RegV)
	}
	copy(s.z, trainSet.Target)
	return s
}

func (s *mcmc) parameters() *Parameters {
	return s.params
}

func (s *mcmc) step(ctx context.Context) (float32, error) {
	s.iteration++
	if err := s.init(ctx); err != nil {
		return 0, errors.Trace(err)
	}
	if s.hyper.isClassification() {
		s.sampleLatent()
	} else {
		s.sampleAlpha()
	}
	s.sampleHyper()
	// global bias
	var sum, sum2 float64
	for i := range s.yHat {
		sum += float64(s.z[i] - s.yHat[i] + s.params.W0)
		sum2++
	}
	if delta, ok := s.draw(s.params.W0, sum, sum2, float64(s.hyper.RegW0), 0); ok {
		s.params.W0 += delta
		for i := range s.yHat {
			s.yHat[i] += delta
		}
	}
	// linear weights
	for j := 0; j < s.columns.Count(); j++ {
		rows, values := s.columns.Row(j)
		w := s.params.W[j]
		sum, sum2 = 0, 0
		for k, i := range rows {
			x := values[k]
			sum += float64(x * (s.z[i] - s.yHat[i] + w*x))
			sum2 += float64(x * x)
		}
		if delta, ok := s.draw(w, sum, sum2, s.lambdaW, s.muW); ok {
			s.params.W[j] += delta
			for k, i := range rows {
				s.yHat[i] += delta * values[k]
			}
		}
	}
	// factors
	for f := 0; f < s.hyper.NFactors; f++ {
		if err := s.initFactor(ctx, f); err != nil {
			return 0, errors.Trace(err)
		}
		for j := 0; j < s.columns.Count(); j++ {
			rows, values := s.columns.Row(j)
			v := s.params.V[j][f]
			h := s.h[:len(rows)]
			sum, sum2 = 0, 0
			for k, i := range rows {
				x := values[k]
				h[k] = x * (s.q[i] - x*v)
				sum += float64(h[k] * (s.z[i] - s.yHat[i] + v*h[k]))
				sum2 += float64(h[k] * h[k])
			}
			if delta, ok := s.draw(v, sum, sum2, s.lambdaV[f], s.muV[f]); ok {
				s.params.V[j][f] += delta
				for k, i := range rows {
					s.yHat[i] += delta * h[k]
					s.q[i] += delta * values[k]
				}
			}
		}
	}
	if !floats.IsFinite(s.yHat) {
		return 0, errors.Annotatef(ErrNumericalDivergence, "non-finite prediction cache")
	}
	// predict test set
	if err := s.predict(ctx); err != nil {
		return 0, errors.Trace(err)
	}
	if s.iteration > s.hyper.BurnIn {
		if err := s.accumulator.Add(s.predictions); err != nil {
			return 0, errors.Trace(err)
		}
	}
	return s.loss(), nil
}

// draw samples θ from its conditional and returns the change of θ. sum is Σ h_i(z_i - ŷ_i + θh_i)
// and sum2 is Σ h_i².
func (s *mcmc) draw(theta float32, sum, sum2, lambda, mu float64) (float32, bool) {
	precision := s.alpha*sum2 + lambda
	if precision <= 0 {
		return 0, false
	}
	variance := 1 / precision
	normal := distuv.Normal{
		Mu:    variance * (s.alpha*sum + lambda*mu),
		Sigma: math.Sqrt(variance),
		Src:   s.src,
	}
	return float32(normal.Rand()) - theta, true
}

// sampleAlpha draws the noise precision α ~ Gamma((α_0 + n)/2, (γ_0 + Σ(z - ŷ)²)/2).
func (s *mcmc) sampleAlpha() {
	var sse float64
	for i := range s.yHat {
		e := float64(s.z[i] - s.yHat[i])
		sse += e * e
	}
	gamma := distuv.Gamma{
		Alpha: (priorAlpha + float64(len(s.yHat))) / 2,
		Beta:  (priorGamma + sse) / 2,
		Src:   s.src,
	}
	s.alpha = gamma.Rand()
}

// sampleLatent draws z_i ~ N(ŷ_i, 1) truncated to z_i y_i > 0.
func (s *mcmc) sampleLatent() {
	s.alpha = 1
	for i, y := range s.trainSet.Target {
		yHat := float64(s.yHat[i])
		t := s.leftTruncatedNormal(-float64(y) * yHat)
		s.z[i] = float32(yHat + float64(y)*t)
	}
}

// leftTruncatedNormal draws t ~ N(0, 1) truncated to t > a.
func (s *mcmc) leftTruncatedNormal(a float64) float64 {
	if a <= 0 {
		normal := distuv.Normal{Mu: 0, Sigma: 1, Src: s.src}
		for {
			if t := normal.Rand(); t > a {
				return t
			}
		}
	}
	// exponential rejection sampling
	lambda := (a + math.Sqrt(a*a+4)) / 2
	exponential := distuv.Exponential{Rate: lambda, Src: s.src}
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: s.src}
	for {
		t := a + exponential.Rand()
		if uniform.Rand() <= math.Exp(-(t-lambda)*(t-lambda)/2) {
			return t
		}
	}
}

// sampleHyper draws (μ_w, λ_w) and (μ_f, λ_f) given current parameters.
func (s *mcmc) sampleHyper() {
	p := len(s.params.W)
	w := make([]float64, p)
	for j := range w {
		w[j] = float64(s.params.W[j])
	}
	s.muW, s.lambdaW = s.sampleNormalGamma(w, s.lambdaW)
	v := make([]float64, p)
	for f := 0; f < s.hyper.NFactors; f++ {
		for j := range v {
			v[j] = float64(s.params.V[j][f])
		}
		s.muV[f], s.lambdaV[f] = s.sampleNormalGamma(v, s.lambdaV[f])
	}
}

// sampleNormalGamma draws μ ~ N((Σθ + β_0μ_0)/(p + β_0), 1/((p + β_0)λ)) and then
// λ ~ Gamma((α_0 + p + 1)/2, (γ_0 + β_0(μ - μ_0)² + Σ(θ - μ)²)/2).
func (s *mcmc) sampleNormalGamma(theta []float64, lambda float64) (float64, float64) {
	n := float64(len(theta))
	var sum float64
	for _, t := range theta {
		sum += t
	}
	if lambda <= 0 {
		lambda = 1
	}
	normal := distuv.Normal{
		Mu:    (sum + priorBeta*priorMu) / (n + priorBeta),
		Sigma: math.Sqrt(1 / ((n + priorBeta) * lambda)),
		Src:   s.src,
	}
	mu := normal.Rand()
	sse := priorBeta * (mu - priorMu) * (mu - priorMu)
	for _, t := range theta {
		sse += (t - mu) * (t - mu)
	}
	gamma := distuv.Gamma{
		Alpha: (priorAlpha + n + 1) / 2,
		Beta:  (priorGamma + sse) / 2,
		Src:   s.src,
	}
	return mu, gamma.Rand()
}

// loss returns the mean squared error for regression and the mean probit negative
// log-likelihood for classification.
func (s *mcmc) loss() float32 {
	if len(s.yHat) == 0 {
		return 0
	}
	var loss float32
	for i, y := range s.trainSet.Target {
		if s.hyper.isClassification() {
			loss -= math32.Log(math32.Max(Probit(y*s.yHat[i]), 1e-7))
		} else {
			loss += (y - s.yHat[i]) * (y - s.yHat[i])
		}
	}
	return loss / float32(len(s.yHat))
}

// init computes ŷ_i from scratch.
func (s *mcmc) init(ctx context.Context) error {
	n := s.trainSet.Count()
	return parallel.Parallel(ctx, numBatches(n), s.jobs, func(_, b int) error {
		for i := b * batchSize; i < min((b+1)*batchSize, n); i++ {
			indices, values := s.trainSet.X.Row(i)
			s.yHat[i] = s.params.Predict(indices, values)
		}
		return nil
	})
}

// initFactor computes q_if = Σ_j x_ij v_jf.
func (s *mcmc) initFactor(ctx context.Context, f int) error {
	n := s.trainSet.Count()
	return parallel.Parallel(ctx, numBatches(n), s.jobs, func(_, b int) error {
		for i := b * batchSize; i < min((b+1)*batchSize, n); i++ {
			indices, values := s.trainSet.X.Row(i)
			var q float32
			for k, j := range indices {
				q += s.params.V[j][f] * values[k]
			}
			s.q[i] = q
		}
		return nil
	})
}

// predict the test set with current sample.
func (s *mcmc) predict(ctx context.Context) error {
	n := s.test.Count()
	return parallel.Parallel(ctx, numBatches(n), s.jobs, func(_, b int) error {
		for i := b * batchSize; i < min((b+1)*batchSize, n); i++ {
			indices, values := s.test.Row(i)
			yHat := s.params.Predict(indices, values)
			if s.hyper.isClassification() {
				s.predictions[i] = Probit(yHat)
			} else {
				s.predictions[i] = yHat
			}
		}
		return nil
	})
}
