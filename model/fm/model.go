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
	"fmt"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/chewxy/math32"
	"github.com/gorse-io/fmlab/common/log"
	"github.com/gorse-io/fmlab/common/parallel"
	"github.com/gorse-io/fmlab/common/progress"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const batchSize = 1024

type FitConfig struct {
	Jobs    int
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// Checkpoint is the state of a fit after an iteration. Score is evaluated on the test set
// if it is labeled.
type Checkpoint struct {
	Iteration int
	Loss      float32
	Score     Score
	Evaluated bool
}

// Estimator fits factorization machines.
type Estimator interface {
	model.Model
	Fit(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) (*FittedModel, error)
	FitPredict(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) ([]float32, error)
	SuggestParams(trial goptuna.Trial) model.Params
	History() []Checkpoint
}

// FM is a factorization machine trained by SGD, ALS or MCMC.
type FM struct {
	model.BaseModel
	hyper   HyperParams
	history []Checkpoint
}

// NewFM creates a factorization machine. Hyper-parameters are validated before any data pass.
func NewFM(params model.Params) (*FM, error) {
	fm := new(FM)
	if err := fm.SetParams(params); err != nil {
		return nil, errors.Trace(err)
	}
	return fm, nil
}

func (fm *FM) SetParams(params model.Params) error {
	hyper := NewHyperParams(params)
	if err := hyper.Validate(); err != nil {
		return errors.Trace(err)
	}
	fm.BaseModel.SetParams(params)
	fm.hyper = hyper
	return nil
}

// Hyper returns hyper-parameters with defaults filled in.
func (fm *FM) Hyper() HyperParams {
	return fm.hyper
}

func (fm *FM) Clear() {
	fm.history = nil
}

// History returns checkpoints of the last fit.
func (fm *FM) History() []Checkpoint {
	return fm.history
}

func (fm *FM) GetParamsGrid() model.ParamsGrid {
	grid := model.ParamsGrid{
		model.NFactors:   []interface{}{4, 8, 16},
		model.Reg:        []interface{}{0.001, 0.01, 0.1, 1.0},
		model.InitStdDev: []interface{}{0.01, 0.1, 0.5},
	}
	if fm.hyper.Algorithm == model.SGD {
		grid[model.Lr] = []interface{}{0.001, 0.01, 0.1}
	}
	return grid
}

func (fm *FM) SuggestParams(trial goptuna.Trial) model.Params {
	params := model.Params{
		model.Algorithm:  fm.hyper.Algorithm,
		model.Task:       fm.hyper.Task,
		model.NEpochs:    fm.hyper.NEpochs,
		model.BurnIn:     fm.hyper.BurnIn,
		model.NFactors:   lo.Must(trial.SuggestInt(string(model.NFactors), 4, 32)),
		model.Reg:        lo.Must(trial.SuggestLogFloat(string(model.Reg), 0.0001, 1)),
		model.InitStdDev: lo.Must(trial.SuggestLogFloat(string(model.InitStdDev), 0.001, 0.5)),
	}
	if fm.hyper.Algorithm == model.SGD {
		params[model.Lr] = lo.Must(trial.SuggestLogFloat(string(model.Lr), 0.001, 0.1))
	}
	return params
}

// Fit trains parameters by SGD or ALS. The test set is optional and only used for logging.
// MCMC has no point estimate, use FitPredict instead.
func (fm *FM) Fit(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) (*FittedModel, error) {
	if fm.hyper.Algorithm == model.MCMC {
		return nil, errors.NotSupportedf("point estimate of %s", model.MCMC)
	}
	config = config.LoadDefaultIfNil()
	if err := fm.check(trainSet, testSet); err != nil {
		return nil, errors.Trace(err)
	}
	fm.ResetRandomGenerator()
	var t trainer
	switch fm.hyper.Algorithm {
	case model.SGD:
		t = newSGD(fm.hyper, fm.GetRandomGenerator(), trainSet)
	case model.ALS:
		t = newALS(fm.hyper, fm.GetRandomGenerator(), trainSet, config.Jobs)
	}
	evaluate := func() (Score, bool) {
		if testSet == nil || testSet.Target == nil {
			return Score{}, false
		}
		fitted := &FittedModel{Params: t.parameters(), Task: fm.hyper.Task, Algorithm: fm.hyper.Algorithm}
		predictions := fitted.predict(testSet.X, config.Jobs)
		return Evaluate(fm.hyper.Task, testSet.Target, predictions), true
	}
	if err := fm.run(ctx, t, trainSet, testSet, config, evaluate); err != nil {
		return nil, errors.Trace(err)
	}
	return &FittedModel{Params: t.parameters(), Task: fm.hyper.Task, Algorithm: fm.hyper.Algorithm}, nil
}

// FitPredict trains on the train set and returns predictions aligned with rows of the test
// set: probabilities for classification and values for regression. MCMC streams the mean
// over post burn-in samples.
func (fm *FM) FitPredict(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) ([]float32, error) {
	if testSet == nil {
		return nil, errors.NotValidf("nil test set")
	}
	config = config.LoadDefaultIfNil()
	if fm.hyper.Algorithm != model.MCMC {
		fitted, err := fm.Fit(ctx, trainSet, testSet, config)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return fitted.PredictProba(testSet.X, config.Jobs)
	}
	if err := fm.check(trainSet, testSet); err != nil {
		return nil, errors.Trace(err)
	}
	fm.ResetRandomGenerator()
	sampler := newMCMC(fm.hyper, fm.GetRandomGenerator(), trainSet, testSet.X, config.Jobs)
	evaluate := func() (Score, bool) {
		if testSet.Target == nil || sampler.accumulator.Count() == 0 {
			return Score{}, false
		}
		return Evaluate(fm.hyper.Task, testSet.Target, sampler.accumulator.Mean()), true
	}
	if err := fm.run(ctx, sampler, trainSet, testSet, config, evaluate); err != nil {
		return nil, errors.Trace(err)
	}
	return sampler.accumulator.Mean(), nil
}

func (fm *FM) check(trainSet, testSet *dataset.Dataset) error {
	if trainSet == nil || trainSet.Target == nil {
		return errors.NotValidf("unlabeled train set")
	}
	if trainSet.Count() == 0 {
		return errors.NotValidf("empty train set")
	}
	if fm.hyper.isClassification() {
		if err := trainSet.ValidateBinary(); err != nil {
			return errors.Trace(err)
		}
	}
	if testSet != nil && testSet.NumFeatures() != trainSet.NumFeatures() {
		return errors.Annotatef(ErrDimensionMismatch, "test set has %d features (train set has %d)",
			testSet.NumFeatures(), trainSet.NumFeatures())
	}
	return nil
}

// trainer runs iterations of an algorithm over a fixed train set.
type trainer interface {
	// step runs one epoch or sweep and returns the mean training loss.
	step(ctx context.Context) (float32, error)
	parameters() *Parameters
}

func (fm *FM) run(ctx context.Context, t trainer, trainSet, testSet *dataset.Dataset, config *FitConfig, evaluate func() (Score, bool)) error {
	testSize := 0
	if testSet != nil {
		testSize = testSet.Count()
	}
	log.Logger().Info("fit FM",
		zap.String("algorithm", fm.hyper.Algorithm),
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("test_set_size", testSize),
		zap.Int("n_features", trainSet.NumFeatures()),
		zap.Any("params", fm.GetParams()),
		zap.Any("config", config))
	fm.history = nil
	startTime := time.Now()
	newCtx, span := progress.Start(ctx, "FM.Fit", fm.hyper.NEpochs)
	defer span.End()
	for epoch := 1; epoch <= fm.hyper.NEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			span.Fail(err)
			return errors.Trace(err)
		}
		fitStart := time.Now()
		loss, err := t.step(newCtx)
		if err != nil {
			span.Fail(err)
			return errors.Trace(err)
		}
		if math32.IsNaN(loss) || math32.IsInf(loss, 0) || !t.parameters().IsFinite() {
			err = errors.Annotatef(ErrNumericalDivergence, "%s at iteration %d", fm.hyper.Algorithm, epoch)
			span.Fail(err)
			return err
		}
		fitTime := time.Since(fitStart)
		span.Add(1)
		FitIterationsTotal.WithLabelValues(fm.hyper.Algorithm).Inc()
		FitLoss.WithLabelValues(fm.hyper.Algorithm).Set(float64(loss))

		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == fm.hyper.NEpochs) {
			checkpoint := Checkpoint{Iteration: epoch, Loss: loss}
			fields := []zap.Field{
				zap.String("fit_time", fitTime.String()),
				zap.Float32("loss", loss),
			}
			evalStart := time.Now()
			if score, ok := evaluate(); ok {
				checkpoint.Score, checkpoint.Evaluated = score, true
				fields = append(fields, zap.String("eval_time", time.Since(evalStart).String()))
				fields = append(fields, score.ZapFields()...)
			}
			fm.history = append(fm.history, checkpoint)
			log.Logger().Debug(fmt.Sprintf("fit FM %v/%v", epoch, fm.hyper.NEpochs), fields...)
		}
	}
	FitSeconds.WithLabelValues(fm.hyper.Algorithm).Set(time.Since(startTime).Seconds())
	log.Logger().Info("fit FM complete",
		zap.String("algorithm", fm.hyper.Algorithm),
		zap.String("fit_time", time.Since(startTime).String()))
	return nil
}

// FittedModel is a frozen factorization machine.
type FittedModel struct {
	Params    *Parameters
	Task      string
	Algorithm string
}

// NumFeatures returns the number of features the model was fitted on.
func (m *FittedModel) NumFeatures() int {
	return m.Params.NumFeatures()
}

// InternalPredict returns ŷ(x) without link function. Indices are not checked against
// NumFeatures; PredictProba is the checked entry point.
func (m *FittedModel) InternalPredict(indices []int32, values []float32) float32 {
	return m.Params.Predict(indices, values)
}

// PredictProba predicts every row of x: probabilities for classification and values for
// regression. Rows are partitioned across jobs goroutines.
func (m *FittedModel) PredictProba(x *dataset.Matrix, jobs int) ([]float32, error) {
	if x.NumColumns() != m.NumFeatures() {
		return nil, errors.Annotatef(ErrDimensionMismatch, "input has %d features (model has %d)",
			x.NumColumns(), m.NumFeatures())
	}
	predictions := m.predict(x, jobs)
	PredictionsTotal.Add(float64(len(predictions)))
	return predictions, nil
}

func (m *FittedModel) predict(x *dataset.Matrix, jobs int) []float32 {
	link := m.link()
	predictions := make([]float32, x.Count())
	// the worker never returns an error
	_ = parallel.BatchParallel(x.Count(), jobs, batchSize, func(_, begin, end int) error {
		for i := begin; i < end; i++ {
			indices, values := x.Row(i)
			predictions[i] = link(m.Params.Predict(indices, values))
		}
		return nil
	})
	return predictions
}

func (m *FittedModel) link() func(float32) float32 {
	if m.Task != model.Classification {
		return func(x float32) float32 { return x }
	}
	if m.Algorithm == model.MCMC {
		return Probit
	}
	return Sigmoid
}
