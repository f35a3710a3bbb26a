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


package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/gorse-io/fmlab/common/log"
	"github.com/gorse-io/fmlab/common/plot"
	"github.com/gorse-io/fmlab/common/progress"
	"github.com/gorse-io/fmlab/config"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model"
	"github.com/gorse-io/fmlab/model/fm"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fitCommand = &cobra.Command{
	Use:   "fit",
	Short: "Fit a factorization machine and score the test set",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := loadConfig(cmd)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		debug, _ := cmd.Flags().GetBool("debug")
		if err = fit(ctx, conf, debug); err != nil {
			log.Logger().Fatal("failed to fit", zap.Error(err))
		}
	},
}

func init() {
	addDataFlags(fitCommand.Flags())
}

func fit(ctx context.Context, conf *config.Config, debug bool) error {
	trainSet, testSet, encoder, err := loadData(conf)
	if err != nil {
		return errors.Trace(err)
	}
	estimator, err := fm.NewFM(conf.ModelParams())
	if err != nil {
		return errors.Trace(err)
	}
	fitConfig := conf.FitConfig()
	if conf.Output.LibFMFile != "" {
		if err = writeLibFM(conf.Output.LibFMFile, trainSet); err != nil {
			return errors.Trace(err)
		}
	}

	tracer := progress.NewTracer("fmlab")
	ctx, span := tracer.Start(ctx, "fit", 1)
	stopProgress := func() {}
	if !debug {
		stopProgress = watchProgress(ctx, tracer, "fit "+conf.Model.Algorithm)
	}
	var (
		fitted      *fm.FittedModel
		predictions []float32
	)
	if conf.Model.Algorithm == model.MCMC {
		predictions, err = estimator.FitPredict(ctx, trainSet, testSet, fitConfig)
	} else if fitted, err = estimator.Fit(ctx, trainSet, testSet, fitConfig); err == nil {
		predictions, err = fitted.PredictProba(testSet.X, fitConfig.Jobs)
	}
	if err != nil {
		span.Fail(err)
		stopProgress()
		return errors.Trace(err)
	}
	span.End()
	stopProgress()

	if testSet.Target != nil {
		score := fm.Evaluate(conf.Model.Task, testSet.Target, predictions)
		log.Logger().Info("evaluate FM", score.ZapFields()...)
		renderScore(score)
	}
	if conf.Output.PredictionFile != "" {
		if err = writePredictions(conf.Output.PredictionFile, conf, testSet.IDs, predictions); err != nil {
			return errors.Trace(err)
		}
	}
	if conf.Output.ModelFile != "" {
		if fitted == nil {
			log.Logger().Warn("MCMC has no point estimate to save", zap.String("path", conf.Output.ModelFile))
		} else if err = saveModel(conf.Output.ModelFile, fitted); err != nil {
			return errors.Trace(err)
		}
	}
	if conf.Output.EncoderFile != "" && encoder != nil {
		if err = saveEncoder(conf.Output.EncoderFile, encoder); err != nil {
			return errors.Trace(err)
		}
	}
	if conf.Output.CurveFile != "" {
		curves := learningCurves(estimator.History(), conf.Model.Task)
		if err = plot.SaveCurves(conf.Output.CurveFile, "FM ("+conf.Model.Algorithm+")", "iteration", "", curves...); err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("save learning curve", zap.String("path", conf.Output.CurveFile))
	}
	return writeMetrics(conf.Output.MetricsFile)
}

// learningCurves converts checkpoints to the training loss curve and, if the test set was
// evaluated, the test score curve.
func learningCurves(history []fm.Checkpoint, task string) []plot.Series {
	loss := plot.Series{Name: "train loss"}
	score := plot.Series{Name: "test AUC"}
	if task == model.Regression {
		score.Name = "test RMSE"
	}
	for _, checkpoint := range history {
		loss.X = append(loss.X, float64(checkpoint.Iteration))
		loss.Y = append(loss.Y, float64(checkpoint.Loss))
		if checkpoint.Evaluated {
			score.X = append(score.X, float64(checkpoint.Iteration))
			if task == model.Regression {
				score.Y = append(score.Y, float64(checkpoint.Score.RMSE))
			} else {
				score.Y = append(score.Y, float64(checkpoint.Score.AUC))
			}
		}
	}
	if len(score.X) == 0 {
		return []plot.Series{loss}
	}
	return []plot.Series{loss, score}
}

func saveModel(path string, fitted *fm.FittedModel) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err = fm.MarshalModel(file, fitted); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	if err = file.Close(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("save model", zap.String("path", path))
	return nil
}

func loadModel(path string) (*fm.FittedModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	return fm.UnmarshalModel(file)
}

func saveEncoder(path string, encoder *dataset.Encoder) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err = encoder.Marshal(file); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	if err = file.Close(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("save encoder", zap.String("path", path), zap.Int("n_features", encoder.NumFeatures()))
	return nil
}

func loadEncoder(path string) (*dataset.Encoder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	encoder := &dataset.Encoder{}
	if err = encoder.Unmarshal(file); err != nil {
		return nil, errors.Trace(err)
	}
	return encoder, nil
}
