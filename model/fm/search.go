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

	"github.com/gorse-io/fmlab/base"
	"github.com/gorse-io/fmlab/common/log"
	"github.com/gorse-io/fmlab/common/progress"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ParamsSearchResult contains the return of grid search.
type ParamsSearchResult struct {
	BestScore  Score
	BestParams model.Params
	BestIndex  int
	Scores     []Score
	Params     []model.Params
}

func (r *ParamsSearchResult) add(params model.Params, score Score) {
	if len(r.Scores) == 0 || score.BetterThan(r.BestScore) {
		r.BestScore = score
		r.BestParams = params.Copy()
		r.BestIndex = len(r.Params)
		SearchBestScore.Set(float64(score.GetValue()))
	}
	r.Scores = append(r.Scores, score)
	r.Params = append(r.Params, params.Copy())
}

// crossValidate refits the estimator with params and scores predictions on the test set.
func crossValidate(ctx context.Context, estimator Estimator, trainSet, testSet *dataset.Dataset, params model.Params, config *FitConfig) (Score, error) {
	estimator.Clear()
	if err := estimator.SetParams(estimator.GetParams().Overwrite(params)); err != nil {
		return Score{}, errors.Trace(err)
	}
	predictions, err := estimator.FitPredict(ctx, trainSet, testSet, config)
	if err != nil {
		return Score{}, errors.Trace(err)
	}
	task := estimator.GetParams().GetString(model.Task, model.Classification)
	return Evaluate(task, testSet.Target, predictions), nil
}

// GridSearchCV finds the best parameters for a model.
func GridSearchCV(ctx context.Context, estimator Estimator, trainSet, testSet *dataset.Dataset, paramGrid model.ParamsGrid,
	fitConfig *FitConfig) (ParamsSearchResult, error) {
	// Retrieve parameter names and length
	paramNames := paramGrid.Names()
	total := paramGrid.NumCombinations()
	// Construct DFS procedure
	results := ParamsSearchResult{
		Scores: make([]Score, 0, total),
		Params: make([]model.Params, 0, total),
	}
	newCtx, span := progress.Start(ctx, "GridSearchCV", total)
	defer span.End()
	var dfs func(deep int, params model.Params) error
	dfs = func(deep int, params model.Params) error {
		if deep == len(paramNames) {
			log.Logger().Info(fmt.Sprintf("grid search %v/%v", span.Count()+1, total),
				zap.Any("params", params))
			score, err := crossValidate(newCtx, estimator, trainSet, testSet, params, fitConfig)
			if err != nil {
				return errors.Trace(err)
			}
			results.add(params, score)
			span.Add(1)
			return nil
		}
		paramName := paramNames[deep]
		for _, val := range paramGrid[paramName] {
			params[paramName] = val
			if err := dfs(deep+1, params); err != nil {
				return err
			}
		}
		return nil
	}
	if err := dfs(0, model.Params{}); err != nil {
		span.Fail(err)
		return results, errors.Trace(err)
	}
	return results, nil
}

// RandomSearchCV searches hyper-parameters by random.
func RandomSearchCV(ctx context.Context, estimator Estimator, trainSet, testSet *dataset.Dataset, paramGrid model.ParamsGrid,
	numTrials int, seed int64, fitConfig *FitConfig) (ParamsSearchResult, error) {
	// if the number of combination is less than number of trials, use grid search
	if paramGrid.NumCombinations() <= numTrials {
		return GridSearchCV(ctx, estimator, trainSet, testSet, paramGrid, fitConfig)
	}
	rng := base.NewRandomGenerator(seed)
	results := ParamsSearchResult{
		Scores: make([]Score, 0, numTrials),
		Params: make([]model.Params, 0, numTrials),
	}
	names := paramGrid.Names()
	newCtx, span := progress.Start(ctx, "RandomSearchCV", numTrials)
	defer span.End()
	for i := 1; i <= numTrials; i++ {
		// Make parameters
		params := model.Params{}
		for _, paramName := range names {
			values := paramGrid[paramName]
			params[paramName] = values[rng.Intn(len(values))]
		}
		// Cross validate
		log.Logger().Info(fmt.Sprintf("random search %v/%v", i, numTrials),
			zap.Any("params", params))
		score, err := crossValidate(newCtx, estimator, trainSet, testSet, params, fitConfig)
		if err != nil {
			span.Fail(err)
			return results, errors.Trace(err)
		}
		results.add(params, score)
		span.Add(1)
	}
	return results, nil
}
