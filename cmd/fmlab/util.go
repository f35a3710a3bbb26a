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
	"fmt"
	"os"
	"time"

	"github.com/gorse-io/fmlab/common/encoding"
	"github.com/gorse-io/fmlab/common/log"
	"github.com/gorse-io/fmlab/common/progress"
	"github.com/gorse-io/fmlab/config"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model"
	"github.com/gorse-io/fmlab/model/fm"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	formatCSV   = "csv"
	formatLibFM = "libfm"
)

// addDataFlags registers flags overriding the [data] and [model] sections.
func addDataFlags(flagSet *pflag.FlagSet) {
	flagSet.String("train", "", "training file")
	flagSet.String("test", "", "test file")
	flagSet.String("algorithm", "", "training algorithm (sgd, als, mcmc)")
	flagSet.String("task", "", "learning task (classification, regression)")
	flagSet.Int("jobs", 0, "number of working jobs")
}

// loadConfig loads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	flags := cmd.Flags()
	if flags.Lookup("train") != nil && flags.Changed("train") {
		conf.Data.TrainFile, _ = flags.GetString("train")
	}
	if flags.Lookup("test") != nil && flags.Changed("test") {
		conf.Data.TestFile, _ = flags.GetString("test")
	}
	if flags.Lookup("algorithm") != nil && flags.Changed("algorithm") {
		conf.Model.Algorithm, _ = flags.GetString("algorithm")
	}
	if flags.Lookup("task") != nil && flags.Changed("task") {
		conf.Model.Task, _ = flags.GetString("task")
	}
	if flags.Lookup("jobs") != nil && flags.Changed("jobs") {
		conf.Fit.Jobs, _ = flags.GetInt("jobs")
	}
	if err = conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load config", zap.String("config", configPath), zap.Any("model", conf.Model))
	return conf, nil
}

// loadData loads the training set and the test set. The test set is held out from the
// training file if no test file is configured. The encoder is nil for libFM files.
func loadData(conf *config.Config) (trainSet, testSet *dataset.Dataset, encoder *dataset.Encoder, err error) {
	if conf.Data.TrainFile == "" {
		return nil, nil, nil, errors.NotValidf("empty training file")
	}
	if conf.Data.TestFile == "" && conf.Data.TestRatio == 0 {
		return nil, nil, nil, errors.NotValidf("neither test file nor test ratio")
	}
	start := time.Now()
	switch conf.Data.Format {
	case formatLibFM:
		if trainSet, err = dataset.LoadLibFMFile(conf.Data.TrainFile, conf.Data.NumColumns); err != nil {
			return nil, nil, nil, errors.Trace(err)
		}
		if conf.Data.TestFile != "" {
			if testSet, err = dataset.LoadLibFMFile(conf.Data.TestFile, trainSet.NumFeatures()); err != nil {
				return nil, nil, nil, errors.Trace(err)
			}
		}
		// libFM files are usually labeled 0/1 for classification
		if conf.Model.Task == model.Classification {
			trainSet.Binarize()
			if testSet != nil {
				testSet.Binarize()
			}
		}
	default:
		opts := conf.CSVOptions()
		if trainSet, encoder, err = dataset.LoadCSV(conf.Data.TrainFile, opts, nil); err != nil {
			return nil, nil, nil, errors.Trace(err)
		}
		if conf.Data.TestFile != "" {
			if testSet, _, err = dataset.LoadCSV(conf.Data.TestFile, opts, encoder); err != nil {
				return nil, nil, nil, errors.Trace(err)
			}
		}
	}
	if testSet == nil {
		trainSet, testSet = trainSet.Split(conf.Data.TestRatio, conf.Data.Seed)
	}
	log.Logger().Info("load data",
		zap.String("format", conf.Data.Format),
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("test_set_size", testSet.Count()),
		zap.Int("n_features", trainSet.NumFeatures()),
		zap.Int("n_positive", trainSet.CountPositive()),
		zap.Duration("load_time", time.Since(start)))
	return trainSet, testSet, encoder, nil
}

func writePredictions(path string, conf *config.Config, ids []string, predictions []float32) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	idName := conf.Data.IDColumn
	if idName == "" {
		idName = "id"
	}
	if err = dataset.WritePredictions(file, [2]string{idName, conf.Output.PredictionName}, ids, predictions); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	if err = file.Close(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("write predictions", zap.String("path", path), zap.Int("n_predictions", len(predictions)))
	return nil
}

func writeLibFM(path string, trainSet *dataset.Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err = dataset.WriteLibFM(file, trainSet); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	if err = file.Close(); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("write libFM file", zap.String("path", path), zap.Int("n_samples", trainSet.Count()))
	return nil
}

func writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("write metrics", zap.String("path", path))
	return nil
}

func renderScore(score fm.Score) {
	rows := [][]string{{"RMSE", encoding.FormatFloat32(score.RMSE)}}
	if score.Task == model.Classification {
		rows = [][]string{
			{"AUC", encoding.FormatFloat32(score.AUC)},
			{"LogLoss", encoding.FormatFloat32(score.LogLoss)},
			{"Accuracy", encoding.FormatFloat32(score.Accuracy)},
			{"Precision", encoding.FormatFloat32(score.Precision)},
			{"Recall", encoding.FormatFloat32(score.Recall)},
		}
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()
}

// watchProgress draws a progress bar of root spans until the returned function is called.
func watchProgress(ctx context.Context, tracer *progress.Tracer, description string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish())
	go func() {
		defer close(done)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = bar.Finish()
				return
			case <-ticker.C:
				for _, p := range tracer.List() {
					if p.Status == progress.StatusRunning && p.Total > 0 {
						bar.ChangeMax(p.Total)
						_ = bar.Set(p.Count)
					}
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
		fmt.Fprintln(os.Stderr)
	}
}
