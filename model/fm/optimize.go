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
	"sort"
	"sync"

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/fmlab/common/log"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

type ModelCreator func() Estimator

// SearchResult is the best model found by ModelSearch.
type SearchResult struct {
	Type   string
	Params model.Params
	Score  Score
}

// ModelSearch is a goptuna objective over several model types. The score of a trial is AUC
// for classification and negative RMSE for regression. Trials stop once ctx is done.
type ModelSearch struct {
	ctx           context.Context
	modelCreators map[string]ModelCreator
	modelTypes    []string
	trainSet      *dataset.Dataset
	testSet       *dataset.Dataset
	config        *FitConfig

	mu     sync.Mutex
	found  bool
	result SearchResult
}

func NewModelSearch(ctx context.Context, models map[string]ModelCreator, trainSet, testSet *dataset.Dataset, config *FitConfig) *ModelSearch {
	modelTypes := make([]string, 0, len(models))
	for name := range models {
		modelTypes = append(modelTypes, name)
	}
	sort.Strings(modelTypes)
	return &ModelSearch{
		ctx:           ctx,
		modelCreators: models,
		modelTypes:    modelTypes,
		trainSet:      trainSet,
		testSet:       testSet,
		config:        config,
	}
}

func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	if len(ms.modelCreators) == 0 {
		return 0, errors.New("no model to search")
	}
	if err := ms.ctx.Err(); err != nil {
		return 0, errors.Trace(err)
	}
	modelType, err := trial.SuggestCategorical("Model", ms.modelTypes)
	if err != nil {
		return 0, errors.Trace(err)
	}
	m := ms.modelCreators[modelType]()
	params := m.SuggestParams(trial)
	score, err := crossValidate(ms.ctx, m, ms.trainSet, ms.testSet, params, ms.config)
	if err != nil {
		return 0, errors.Trace(err)
	}
	log.Logger().Info("model search trial",
		zap.String("model", modelType),
		zap.Any("params", params),
		zap.Float32("score", score.GetValue()))
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if !ms.found || score.BetterThan(ms.result.Score) {
		ms.found = true
		ms.result = SearchResult{
			Type:   modelType,
			Params: m.GetParams().Copy(),
			Score:  score,
		}
		SearchBestScore.Set(float64(score.GetValue()))
	}
	return float64(score.GetValue()), nil
}

func (ms *ModelSearch) Result() SearchResult {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.result
}
