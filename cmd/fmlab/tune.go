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
	"os/signal"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/gorse-io/fmlab/common/encoding"
	"github.com/gorse-io/fmlab/common/log"
	"github.com/gorse-io/fmlab/config"
	"github.com/gorse-io/fmlab/model"
	"github.com/gorse-io/fmlab/model/fm"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	searchRandom = "random"
	searchTPE    = "tpe"
)

var tuneCommand = &cobra.Command{
	Use:   "tune",
	Short: "Search hyper-parameters of factorization machines",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := loadConfig(cmd)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		flags := cmd.Flags()
		if flags.Changed("method") {
			conf.Search.Method, _ = flags.GetString("method")
		}
		if flags.Changed("trials") {
			conf.Search.Trials, _ = flags.GetInt("trials")
		}
		if err = conf.Validate(); err != nil {
			log.Logger().Fatal("invalid config", zap.Error(err))
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		rows, err := tune(ctx, conf)
		if err != nil {
			log.Logger().Fatal("failed to tune", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Model", "Score", "Params")
		for i, row := range rows {
			_ = table.Append([]string{
				fmt.Sprint(i),
				row.Model,
				encoding.FormatFloat32(row.Score),
				row.Params,
			})
		}
		_ = table.Render()
	},
}

func init() {
	addDataFlags(tuneCommand.Flags())
	tuneCommand.Flags().String("method", "", "search method (random, tpe)")
	tuneCommand.Flags().Int("trials", 0, "number of trials")
}

type trialRow struct {
	Model  string
	Score  float32
	Params string
}

// tune searches every configured algorithm. Scores are AUC for classification and negative
// RMSE for regression.
func tune(ctx context.Context, conf *config.Config) ([]trialRow, error) {
	trainSet, testSet, _, err := loadData(conf)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if testSet.Target == nil {
		return nil, errors.NotValidf("unlabeled test set")
	}
	newEstimator := func(algorithm string) (*fm.FM, error) {
		params := conf.ModelParams()
		params[model.Algorithm] = algorithm
		return fm.NewFM(params)
	}
	start := time.Now()
	var rows []trialRow
	switch conf.Search.Method {
	case searchRandom:
		for _, algorithm := range conf.Search.Algorithms {
			estimator, err := newEstimator(algorithm)
			if err != nil {
				return nil, errors.Trace(err)
			}
			result, err := fm.RandomSearchCV(ctx, estimator, trainSet, testSet, estimator.GetParamsGrid(),
				conf.Search.Trials, conf.Data.Seed, conf.FitConfig())
			if err != nil {
				return nil, errors.Trace(err)
			}
			for i := range result.Params {
				rows = append(rows, trialRow{
					Model:  algorithm,
					Score:  result.Scores[i].GetValue(),
					Params: result.Params[i].ToString(),
				})
			}
		}
	case searchTPE:
		creators := make(map[string]fm.ModelCreator)
		for _, algorithm := range conf.Search.Algorithms {
			if _, err = newEstimator(algorithm); err != nil {
				return nil, errors.Trace(err)
			}
			creators[algorithm] = func() fm.Estimator {
				return lo.Must(newEstimator(algorithm))
			}
		}
		search := fm.NewModelSearch(ctx, creators, trainSet, testSet, conf.FitConfig())
		study, err := goptuna.CreateStudy("fmlab",
			goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize),
			goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(conf.Data.Seed))))
		if err != nil {
			return nil, errors.Trace(err)
		}
		study.WithContext(ctx)
		if err = study.Optimize(search.Objective, conf.Search.Trials); err != nil {
			return nil, errors.Trace(err)
		}
		trials, err := study.GetTrials()
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, trial := range trials {
			if trial.State != goptuna.TrialStateComplete {
				continue
			}
			rows = append(rows, trialRow{
				Model:  fmt.Sprint(trial.Params["Model"]),
				Score:  float32(trial.Value),
				Params: fmt.Sprint(lo.OmitByKeys(trial.Params, []string{"Model"})),
			})
		}
		best := search.Result()
		log.Logger().Info("best model", zap.String("model", best.Type),
			zap.Any("params", best.Params), zap.Float32("score", best.Score.GetValue()))
	default:
		return nil, errors.NotValidf("search method %s", conf.Search.Method)
	}
	log.Logger().Info("complete hyper-parameter search",
		zap.String("method", conf.Search.Method),
		zap.Int("n_trials", len(rows)),
		zap.Duration("search_time", time.Since(start)))
	return rows, nil
}
