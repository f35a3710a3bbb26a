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
	"sort"

	"github.com/chewxy/math32"
	"github.com/gorse-io/fmlab/model"
	"go.uber.org/zap"
	"modernc.org/sortutil"
)

// threshold between negative and positive predictions.
const threshold = 0.5

type Score struct {
	Task      string
	RMSE      float32
	Precision float32
	Recall    float32
	Accuracy  float32
	AUC       float32
	LogLoss   float32
}

func (score Score) ZapFields() []zap.Field {
	if score.Task == model.Regression {
		return []zap.Field{zap.Float32("RMSE", score.RMSE)}
	}
	return []zap.Field{
		zap.Float32("Accuracy", score.Accuracy),
		zap.Float32("Precision", score.Precision),
		zap.Float32("Recall", score.Recall),
		zap.Float32("AUC", score.AUC),
		zap.Float32("LogLoss", score.LogLoss),
	}
}

// GetValue returns AUC for classification and negative RMSE for regression.
func (score Score) GetValue() float32 {
	if score.Task == model.Regression {
		return -score.RMSE
	}
	return score.AUC
}

func (score Score) BetterThan(s Score) bool {
	return score.GetValue() > s.GetValue()
}

// Evaluate predictions against targets. Classification predictions are probabilities of
// the positive class.
func Evaluate(task string, target, predictions []float32) Score {
	if task == model.Regression {
		return Score{Task: task, RMSE: RMSE(target, predictions)}
	}
	var posPrediction, negPrediction []float32
	for i, t := range target {
		if t > 0 {
			posPrediction = append(posPrediction, predictions[i])
		} else {
			negPrediction = append(negPrediction, predictions[i])
		}
	}
	return Score{
		Task:      task,
		Precision: Precision(posPrediction, negPrediction),
		Recall:    Recall(posPrediction, negPrediction),
		Accuracy:  Accuracy(posPrediction, negPrediction),
		AUC:       AUC(posPrediction, negPrediction),
		LogLoss:   LogLoss(posPrediction, negPrediction),
	}
}

func RMSE(target, predictions []float32) float32 {
	if len(target) == 0 {
		return 0
	}
	var sum float32
	for i := range target {
		sum += (target[i] - predictions[i]) * (target[i] - predictions[i])
	}
	return math32.Sqrt(sum / float32(len(target)))
}

func Precision(posPrediction, negPrediction []float32) float32 {
	var tp, fp float32
	for _, p := range posPrediction {
		if p > threshold { // true positive
			tp++
		}
	}
	for _, p := range negPrediction {
		if p > threshold { // false positive
			fp++
		}
	}
	if tp+fp == 0 {
		return 0
	}
	return tp / (tp + fp)
}

func Recall(posPrediction, _ []float32) float32 {
	var tp, fn float32
	for _, p := range posPrediction {
		if p > threshold { // true positive
			tp++
		} else { // false negative
			fn++
		}
	}
	if tp+fn == 0 {
		return 0
	}
	return tp / (tp + fn)
}

func Accuracy(posPrediction, negPrediction []float32) float32 {
	var correct float32
	for _, p := range posPrediction {
		if p > threshold {
			correct++
		}
	}
	for _, p := range negPrediction {
		if p <= threshold {
			correct++
		}
	}
	if len(posPrediction)+len(negPrediction) == 0 {
		return 0
	}
	return correct / float32(len(posPrediction)+len(negPrediction))
}

// AUC is the probability that a positive sample is ranked above a negative sample. Ties
// count half.
func AUC(posPrediction, negPrediction []float32) float32 {
	if len(posPrediction)*len(negPrediction) == 0 {
		return 0
	}
	pos := append([]float32(nil), posPrediction...)
	neg := append([]float32(nil), negPrediction...)
	sort.Sort(sortutil.Float32Slice(pos))
	sort.Sort(sortutil.Float32Slice(neg))
	var sum float64
	var less, lessOrEqual int
	for _, p := range pos {
		// count negative samples with less predictions
		for less < len(neg) && neg[less] < p {
			less++
		}
		// count negative samples with equal predictions
		if lessOrEqual < less {
			lessOrEqual = less
		}
		for lessOrEqual < len(neg) && neg[lessOrEqual] <= p {
			lessOrEqual++
		}
		sum += float64(less) + float64(lessOrEqual-less)/2
	}
	return float32(sum / (float64(len(pos)) * float64(len(neg))))
}

// LogLoss is the mean negative log-likelihood of probabilities.
func LogLoss(posPrediction, negPrediction []float32) float32 {
	n := len(posPrediction) + len(negPrediction)
	if n == 0 {
		return 0
	}
	const eps = 1e-7
	var sum float32
	for _, p := range posPrediction {
		sum -= math32.Log(math32.Max(p, eps))
	}
	for _, p := range negPrediction {
		sum -= math32.Log(math32.Max(1-p, eps))
	}
	return sum / float32(n)
}
