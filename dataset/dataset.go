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

package dataset

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/fmlab/base"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Dataset is a feature matrix with one target per row. Target is nil for unlabeled data.
// Classification targets are -1 or +1.
type Dataset struct {
	X      *Matrix
	Target []float32
	IDs    []string
}

// NewDataset creates a labeled dataset.
func NewDataset(x *Matrix, target []float32) (*Dataset, error) {
	if target != nil && x.Count() != len(target) {
		return nil, errors.NotValidf("%d rows with %d targets", x.Count(), len(target))
	}
	return &Dataset{X: x, Target: target}, nil
}

// Count returns the number of samples.
func (dataset *Dataset) Count() int {
	return dataset.X.Count()
}

// NumFeatures returns the number of feature columns.
func (dataset *Dataset) NumFeatures() int {
	return dataset.X.NumColumns()
}

// Get returns the i-th sample.
func (dataset *Dataset) Get(i int) ([]int32, []float32, float32) {
	indices, values := dataset.X.Row(i)
	var target float32
	if dataset.Target != nil {
		target = dataset.Target[i]
	}
	return indices, values, target
}

// CountPositive returns the number of samples with positive target.
func (dataset *Dataset) CountPositive() int {
	return lo.CountBy(dataset.Target, func(t float32) bool { return t > 0 })
}

// CountNegative returns the number of samples with non-positive target.
func (dataset *Dataset) CountNegative() int {
	return len(dataset.Target) - dataset.CountPositive()
}

// ValidateBinary checks that every target is -1 or +1.
func (dataset *Dataset) ValidateBinary() error {
	if dataset.Target == nil {
		return errors.NotValidf("dataset without targets")
	}
	for i, t := range dataset.Target {
		if t != 1 && t != -1 {
			return errors.NotValidf("target %v of sample %d (expect -1 or +1)", t, i)
		}
	}
	return nil
}

// Binarize maps positive targets to +1 and others to -1.
func (dataset *Dataset) Binarize() {
	for i, t := range dataset.Target {
		if t > 0 {
			dataset.Target[i] = 1
		} else {
			dataset.Target[i] = -1
		}
	}
}

// Subset returns the samples listed in rows.
func (dataset *Dataset) Subset(rows []int) *Dataset {
	subset := &Dataset{X: dataset.X.Subset(rows)}
	if dataset.Target != nil {
		subset.Target = make([]float32, len(rows))
		for k, i := range rows {
			subset.Target[k] = dataset.Target[i]
		}
	}
	if dataset.IDs != nil {
		subset.IDs = make([]string, len(rows))
		for k, i := range rows {
			subset.IDs[k] = dataset.IDs[i]
		}
	}
	return subset
}

// Split a dataset to training set and test set. The order of samples is kept.
func (dataset *Dataset) Split(ratio float32, seed int64) (*Dataset, *Dataset) {
	numTestSize := int(float32(dataset.Count()) * ratio)
	rng := base.NewRandomGenerator(seed)
	sampledIndex := mapset.NewSet(rng.Sample(0, dataset.Count(), numTestSize)...)
	var trainRows, testRows []int
	for i := 0; i < dataset.Count(); i++ {
		if sampledIndex.Contains(i) {
			testRows = append(testRows, i)
		} else {
			trainRows = append(trainRows, i)
		}
	}
	return dataset.Subset(trainRows), dataset.Subset(testRows)
}
