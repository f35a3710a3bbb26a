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
	"testing"

	"github.com/gorse-io/fmlab/common/floats"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFitConfigForTest() *FitConfig {
	return NewFitConfig().SetVerbose(1).SetJobs(2)
}

func TestNewFM_Validate(t *testing.T) {
	invalid := []model.Params{
		{model.NFactors: 0},
		{model.NEpochs: 0},
		{model.Reg: -0.1},
		{model.RegV: float32(-1)},
		{model.InitStdDev: -1.0},
		{model.Algorithm: model.SGD, model.Lr: 0.0},
		{model.Algorithm: "adam"},
		{model.Task: "ranking"},
		{model.NEpochs: 10, model.BurnIn: 10},
		{model.BurnIn: -1},
	}
	for _, params := range invalid {
		_, err := NewFM(params)
		assert.True(t, errors.Is(err, errors.NotValid), params)
	}
	m, err := NewFM(model.Params{model.Algorithm: model.ALS, model.Lr: 0.0, model.Reg: 0.5, model.RegW0: 0.0})
	assert.NoError(t, err)
	assert.Equal(t, HyperParams{
		Algorithm:  model.ALS,
		Task:       model.Classification,
		NFactors:   8,
		NEpochs:    100,
		Lr:         0,
		RegW0:      0,
		RegW:       0.5,
		RegV:       0.5,
		InitStdDev: 0.1,
	}, m.Hyper())
	// invalid parameters are not applied
	assert.Error(t, m.SetParams(model.Params{model.NFactors: -1}))
	assert.Equal(t, 8, m.Hyper().NFactors)
}

func TestSGDUpdate(t *testing.T) {
	// g = ∂ℓ/∂ŷ at the pre-update parameters
	gRegularized := -(1 - Sigmoid(0.4))
	testCases := []struct {
		name   string
		hyper  HyperParams
		init   Parameters
		values []float32
		loss   float32
		w0     float32
		w      []float32
		v      []float32
	}{
		{
			// ŷ = 0.1 + 0.2 - 0.2 + ½((0.5 + 0.6)² - (0.25 + 0.36)) = 0.4, g = ŷ - y = -0.6
			name:   "regression",
			hyper:  HyperParams{Task: model.Regression, Lr: 0.1},
			init:   Parameters{W0: 0.1, W: []float32{0.2, -0.1}, V: [][]float32{{0.5}, {0.3}}},
			values: []float32{1, 2},
			loss:   0.36,
			w0:     0.16,
			w:      []float32{0.26, 0.02},
			v:      []float32{0.536, 0.36},
		},
		{
			name:   "classification with regularization",
			hyper:  HyperParams{Task: model.Classification, Lr: 0.1, RegW0: 0.5, RegW: 0.5, RegV: 0.5},
			init:   Parameters{W0: 0.1, W: []float32{0.2, -0.1}, V: [][]float32{{0.5}, {0.3}}},
			values: []float32{1, 2},
			loss:   logLoss(1, 0.4),
			w0:     0.1 - 0.1*(gRegularized+0.5*0.1),
			w:      []float32{0.2 - 0.1*(gRegularized*1+0.5*0.2), -0.1 - 0.1*(gRegularized*2+0.5*-0.1)},
			v: []float32{
				0.5 - 0.1*(gRegularized*1*(1.1-0.5)+0.5*0.5),
				0.3 - 0.1*(gRegularized*2*(1.1-0.6)+0.5*0.3),
			},
		},
		{
			// x = (1, 1), y = +1, w0 = 0, no regularization
			// ŷ = ½((0.5 + 0.3)² - (0.25 + 0.09)) = 0.15
			name:   "classification from zero bias",
			hyper:  HyperParams{Task: model.Classification, Lr: 0.1},
			init:   Parameters{W0: 0, W: []float32{0, 0}, V: [][]float32{{0.5}, {0.3}}},
			values: []float32{1, 1},
			loss:   logLoss(1, 0.15),
			w0:     0.0462570,
			w:      []float32{0.0462570, 0.0462570},
			v:      []float32{0.5138771, 0.3231285},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			params := &Parameters{
				W0: tc.init.W0,
				W:  append([]float32(nil), tc.init.W...),
				V:  [][]float32{{tc.init.V[0][0]}, {tc.init.V[1][0]}},
			}
			loss := sgdUpdate(params, tc.hyper, []int32{0, 1}, tc.values, 1, make([]float32, 1))
			assert.InDelta(t, tc.loss, loss, 1e-6)
			assert.InDelta(t, tc.w0, params.W0, 1e-6)
			assert.InDelta(t, tc.w[0], params.W[0], 1e-6)
			assert.InDelta(t, tc.w[1], params.W[1], 1e-6)
			assert.InDelta(t, tc.v[0], params.V[0][0], 1e-6)
			assert.InDelta(t, tc.v[1], params.V[1][0], 1e-6)
		})
	}
}

func TestFM_SGD(t *testing.T) {
	train, test := newSyntheticDataset(2000, model.Classification, 0).Split(0.2, 0)
	m, err := NewFM(model.Params{
		model.Algorithm:  model.SGD,
		model.NFactors:   4,
		model.NEpochs:    30,
		model.Lr:         0.05,
		model.Reg:        0.001,
		model.InitStdDev: 0.1,
	})
	require.NoError(t, err)
	before := testutil.ToFloat64(FitIterationsTotal.WithLabelValues(model.SGD))
	fitted, err := m.Fit(context.Background(), train, test, newFitConfigForTest())
	require.NoError(t, err)
	assert.Equal(t, float64(30), testutil.ToFloat64(FitIterationsTotal.WithLabelValues(model.SGD))-before)
	predictions, err := fitted.PredictProba(test.X, 2)
	require.NoError(t, err)
	score := Evaluate(model.Classification, test.Target, predictions)
	assert.Greater(t, score.AUC, float32(0.8))
	// learning curve
	history := m.History()
	require.Len(t, history, 30)
	assert.True(t, history[29].Evaluated)
	assert.Equal(t, score, history[29].Score)
	assert.Less(t, history[29].Loss, history[0].Loss)
}

func TestFM_ALS(t *testing.T) {
	train, test := newSyntheticDataset(2000, model.Regression, 0).Split(0.2, 0)
	m, err := NewFM(model.Params{
		model.Algorithm: model.ALS,
		model.Task:      model.Regression,
		model.NFactors:  4,
		model.NEpochs:   20,
		model.Reg:       0.1,
	})
	require.NoError(t, err)
	predictions, err := m.FitPredict(context.Background(), train, test, newFitConfigForTest())
	require.NoError(t, err)
	rmse := RMSE(test.Target, predictions)
	assert.Less(t, rmse, 0.5*floats.StdDev(test.Target))
}

func TestALS_Monotone(t *testing.T) {
	train := newSyntheticDataset(500, model.Regression, 1)
	hyper := NewHyperParams(model.Params{
		model.Algorithm: model.ALS,
		model.Task:      model.Regression,
		model.NFactors:  3,
		model.Reg:       0.05,
	})
	m := lo.Must(NewFM(model.Params{}))
	trainer := newALS(hyper, m.GetRandomGenerator(), train, 2)
	ctx := context.Background()
	require.NoError(t, trainer.init(ctx))
	last := trainer.objective()
	for i := 0; i < 10; i++ {
		_, err := trainer.step(ctx)
		require.NoError(t, err)
		current := trainer.objective()
		assert.LessOrEqual(t, current, last*(1+1e-4)+1e-4)
		last = current
	}
}

func TestFM_HugeRegularization(t *testing.T) {
	train := newSyntheticDataset(500, model.Classification, 0)
	m, err := NewFM(model.Params{
		model.Algorithm: model.ALS,
		model.NEpochs:   10,
		model.RegW0:     0.0,
		model.RegW:      1e6,
		model.RegV:      1e6,
	})
	require.NoError(t, err)
	fitted, err := m.Fit(context.Background(), train, nil, nil)
	require.NoError(t, err)
	for j := range fitted.Params.W {
		assert.InDelta(t, 0, fitted.Params.W[j], 1e-3)
		for _, v := range fitted.Params.V[j] {
			assert.InDelta(t, 0, v, 1e-3)
		}
	}
	predictions, err := fitted.PredictProba(train.X, 1)
	require.NoError(t, err)
	for _, p := range predictions {
		assert.InDelta(t, Sigmoid(fitted.Params.W0), p, 1e-3)
	}
	rate := float32(train.CountPositive()) / float32(train.Count())
	assert.InDelta(t, rate, Sigmoid(fitted.Params.W0), 0.01)
}

func TestFM_MCMC(t *testing.T) {
	train, test := newSyntheticDataset(2000, model.Classification, 0).Split(0.2, 0)
	m, err := NewFM(model.Params{
		model.Algorithm: model.MCMC,
		model.NFactors:  4,
		model.NEpochs:   50,
		model.BurnIn:    10,
	})
	require.NoError(t, err)
	_, err = m.Fit(context.Background(), train, test, nil)
	assert.True(t, errors.Is(err, errors.NotSupported))
	predictions, err := m.FitPredict(context.Background(), train, test, newFitConfigForTest())
	require.NoError(t, err)
	require.Len(t, predictions, test.Count())
	for _, p := range predictions {
		assert.GreaterOrEqual(t, p, float32(0))
		assert.LessOrEqual(t, p, float32(1))
	}
	score := Evaluate(model.Classification, test.Target, predictions)
	assert.Greater(t, score.AUC, float32(0.8))
	// checkpoints before burn-in are not evaluated
	assert.False(t, m.History()[0].Evaluated)
	assert.True(t, m.History()[49].Evaluated)
}

func TestFM_MCMCRegression(t *testing.T) {
	train, test := newSyntheticDataset(2000, model.Regression, 0).Split(0.2, 0)
	m, err := NewFM(model.Params{
		model.Algorithm: model.MCMC,
		model.Task:      model.Regression,
		model.NFactors:  4,
		model.NEpochs:   50,
		model.BurnIn:    10,
	})
	require.NoError(t, err)
	predictions, err := m.FitPredict(context.Background(), train, test, nil)
	require.NoError(t, err)
	assert.Less(t, RMSE(test.Target, predictions), 0.5*floats.StdDev(test.Target))
}

func TestMCMC_Convergence(t *testing.T) {
	train, test := newSyntheticDataset(1000, model.Classification, 2).Split(0.2, 0)
	hyper := NewHyperParams(model.Params{
		model.Algorithm: model.MCMC,
		model.NFactors:  2,
	})
	m := lo.Must(NewFM(model.Params{}))
	sampler := newMCMC(hyper, m.GetRandomGenerator(), train, test.X, 1)
	ctx := context.Background()
	// running means after doubling windows
	windows := []int{25, 50, 100, 200, 400}
	var means [][]float32
	for i := 1; i <= windows[len(windows)-1]; i++ {
		_, err := sampler.step(ctx)
		require.NoError(t, err)
		if lo.Contains(windows, i) {
			means = append(means, sampler.accumulator.Mean())
		}
	}
	assert.Equal(t, 400, sampler.accumulator.Count())
	var diffs []float32
	for i := 1; i < len(means); i++ {
		diffs = append(diffs, RMSE(means[i-1], means[i]))
	}
	for i := 1; i < len(diffs); i++ {
		assert.Less(t, diffs[i], 1.25*diffs[i-1], "window %d", windows[i+1])
	}
	assert.Less(t, diffs[len(diffs)-1], diffs[0]/2)
	assert.Less(t, diffs[len(diffs)-1], float32(0.1))
}

func TestFM_Deterministic(t *testing.T) {
	train, test := newSyntheticDataset(500, model.Classification, 0).Split(0.2, 0)
	for _, algorithm := range []string{model.SGD, model.ALS, model.MCMC} {
		params := model.Params{
			model.Algorithm:   algorithm,
			model.NEpochs:     5,
			model.RandomState: int64(7),
		}
		a, b := lo.Must(NewFM(params)), lo.Must(NewFM(params))
		predictionsA, err := a.FitPredict(context.Background(), train, test, nil)
		require.NoError(t, err)
		predictionsB, err := b.FitPredict(context.Background(), train, test, nil)
		require.NoError(t, err)
		assert.Equal(t, predictionsA, predictionsB, algorithm)
		// refit the same estimator
		predictionsC, err := a.FitPredict(context.Background(), train, test, nil)
		require.NoError(t, err)
		assert.Equal(t, predictionsA, predictionsC, algorithm)
	}
}

func TestFM_Divergence(t *testing.T) {
	train := newSyntheticDataset(100, model.Regression, 0)
	for i := range train.Target {
		train.Target[i] *= 1e3
	}
	m, err := NewFM(model.Params{
		model.Algorithm: model.SGD,
		model.Task:      model.Regression,
		model.NEpochs:   100,
		model.Lr:        1e3,
	})
	require.NoError(t, err)
	_, err = m.Fit(context.Background(), train, nil, nil)
	assert.True(t, errors.Is(err, ErrNumericalDivergence))
}

func TestFM_InvalidInput(t *testing.T) {
	train := newSyntheticDataset(100, model.Classification, 0)
	m := lo.Must(NewFM(model.Params{model.Algorithm: model.SGD, model.NEpochs: 1}))
	// dimension mismatch
	other := lo.Must(dataset.NewDataset(dataset.NewMatrix(train.NumFeatures()+1), nil))
	_, err := m.FitPredict(context.Background(), train, other, nil)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	fitted, err := m.Fit(context.Background(), train, nil, nil)
	require.NoError(t, err)
	_, err = fitted.PredictProba(other.X, 1)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	// invalid labels
	train.Target[0] = 0
	_, err = m.Fit(context.Background(), train, nil, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = m.Fit(context.Background(), &dataset.Dataset{X: train.X}, nil, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = m.FitPredict(context.Background(), train, nil, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	// empty train set
	empty := &dataset.Dataset{X: dataset.NewMatrix(train.NumFeatures()), Target: []float32{}}
	for _, algorithm := range []string{model.SGD, model.ALS, model.MCMC} {
		m = lo.Must(NewFM(model.Params{model.Algorithm: algorithm, model.Task: model.Regression, model.NEpochs: 1}))
		_, err = m.FitPredict(context.Background(), empty, train, nil)
		assert.True(t, errors.Is(err, errors.NotValid), algorithm)
	}
}

func TestFM_Cancel(t *testing.T) {
	train := newSyntheticDataset(100, model.Classification, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, algorithm := range []string{model.SGD, model.ALS, model.MCMC} {
		m := lo.Must(NewFM(model.Params{model.Algorithm: algorithm, model.NEpochs: 5}))
		_, err := m.FitPredict(ctx, train, train, nil)
		assert.True(t, errors.Is(err, context.Canceled), algorithm)
	}
}

func TestFM_Regression(t *testing.T) {
	train := newSyntheticDataset(100, model.Regression, 0)
	m := lo.Must(NewFM(model.Params{model.Algorithm: model.SGD, model.Task: model.Regression, model.NEpochs: 5}))
	fitted, err := m.Fit(context.Background(), train, nil, nil)
	require.NoError(t, err)
	predictions, err := fitted.PredictProba(train.X, 1)
	require.NoError(t, err)
	indices, values := train.X.Row(0)
	assert.Equal(t, fitted.InternalPredict(indices, values), predictions[0])
}
