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
	"time"

	"github.com/gorse-io/fmlab/common/log"
	"github.com/gorse-io/fmlab/config"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model"
	"github.com/gorse-io/fmlab/model/fm"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var predictCommand = &cobra.Command{
	Use:   "predict",
	Short: "Score a file with a saved model",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := loadConfig(cmd)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		flags := cmd.Flags()
		if flags.Changed("model") {
			conf.Output.ModelFile, _ = flags.GetString("model")
		}
		if flags.Changed("encoder") {
			conf.Output.EncoderFile, _ = flags.GetString("encoder")
		}
		if flags.Changed("output") {
			conf.Output.PredictionFile, _ = flags.GetString("output")
		}
		if err = predict(conf); err != nil {
			log.Logger().Fatal("failed to predict", zap.Error(err))
		}
	},
}

func init() {
	addDataFlags(predictCommand.Flags())
	predictCommand.Flags().String("model", "", "model file")
	predictCommand.Flags().String("encoder", "", "encoder file (CSV only)")
	predictCommand.Flags().StringP("output", "o", "", "prediction file")
}

// predict scores the test file with the saved model and encoder.
func predict(conf *config.Config) error {
	if conf.Output.ModelFile == "" {
		return errors.NotValidf("empty model file")
	}
	if conf.Data.TestFile == "" {
		return errors.NotValidf("empty test file")
	}
	if conf.Output.PredictionFile == "" {
		return errors.NotValidf("empty prediction file")
	}
	fitted, err := loadModel(conf.Output.ModelFile)
	if err != nil {
		return errors.Trace(err)
	}
	var testSet *dataset.Dataset
	switch conf.Data.Format {
	case formatLibFM:
		testSet, err = dataset.LoadLibFMFile(conf.Data.TestFile, fitted.NumFeatures())
	default:
		if conf.Output.EncoderFile == "" {
			return errors.NotValidf("empty encoder file")
		}
		var encoder *dataset.Encoder
		if encoder, err = loadEncoder(conf.Output.EncoderFile); err != nil {
			return errors.Trace(err)
		}
		testSet, _, err = dataset.LoadCSV(conf.Data.TestFile, conf.CSVOptions(), encoder)
	}
	if err != nil {
		return errors.Trace(err)
	}
	start := time.Now()
	predictions, err := fitted.PredictProba(testSet.X, conf.Fit.Jobs)
	if err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("predict FM",
		zap.String("algorithm", fitted.Algorithm),
		zap.Int("n_samples", testSet.Count()),
		zap.Duration("predict_time", time.Since(start)))
	if testSet.Target != nil && (fitted.Task != model.Classification || testSet.ValidateBinary() == nil) {
		renderScore(fm.Evaluate(fitted.Task, testSet.Target, predictions))
	}
	return writePredictions(conf.Output.PredictionFile, conf, testSet.IDs, predictions)
}
