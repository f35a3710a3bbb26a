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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LabelAlgorithm = "algorithm"

var (
	FitIterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fmlab",
		Subsystem: "fm",
		Name:      "fit_iterations_total",
	}, []string{LabelAlgorithm})
	FitLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fmlab",
		Subsystem: "fm",
		Name:      "fit_loss",
	}, []string{LabelAlgorithm})
	FitSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fmlab",
		Subsystem: "fm",
		Name:      "fit_seconds",
	}, []string{LabelAlgorithm})
	PredictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fmlab",
		Subsystem: "fm",
		Name:      "predictions_total",
	})
	SearchBestScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fmlab",
		Subsystem: "fm",
		Name:      "search_best_score",
	})
)
