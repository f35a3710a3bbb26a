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
	"io"
	"strconv"
	"strings"

	"github.com/gorse-io/fmlab/common/encoding"
	"github.com/gorse-io/fmlab/common/floats"
	"github.com/juju/errors"
)

// Encoder maps the columns of a table to feature columns. Numerical columns occupy the first
// columns (standardized by the mean and standard deviation of the fitted table), followed by
// one column per level of every categorical column. Levels unseen at fit time are ignored.
type Encoder struct {
	Categorical []string
	Numerical   []string
	Levels      [][]string
	Mean        []float32
	StdDev      []float32

	levelIndex []map[string]int32
}

// NewEncoder creates an encoder for the given columns.
func NewEncoder(categorical, numerical []string) *Encoder {
	return &Encoder{
		Categorical: categorical,
		Numerical:   numerical,
	}
}

// NumFeatures returns the number of feature columns.
func (e *Encoder) NumFeatures() int {
	n := len(e.Numerical)
	for _, levels := range e.Levels {
		n += len(levels)
	}
	return n
}

// FeatureName returns a readable name of a feature column, such as "Origin=ATL".
func (e *Encoder) FeatureName(index int) string {
	if index < len(e.Numerical) {
		return e.Numerical[index]
	}
	index -= len(e.Numerical)
	for i, levels := range e.Levels {
		if index < len(levels) {
			return e.Categorical[i] + "=" + levels[index]
		}
		index -= len(levels)
	}
	return ""
}

// Fit collects levels and moments from records.
func (e *Encoder) Fit(header []string, records [][]string) error {
	categoricalCols, numericalCols, err := e.locate(header)
	if err != nil {
		return errors.Trace(err)
	}
	// collect levels in order of appearance
	e.Levels = make([][]string, len(categoricalCols))
	for i, col := range categoricalCols {
		seen := make(map[string]struct{})
		for _, record := range records {
			level := strings.TrimSpace(record[col])
			if _, exist := seen[level]; !exist {
				seen[level] = struct{}{}
				e.Levels[i] = append(e.Levels[i], level)
			}
		}
	}
	// compute moments
	e.Mean = make([]float32, len(numericalCols))
	e.StdDev = make([]float32, len(numericalCols))
	for i, col := range numericalCols {
		values, err := parseColumn(records, col)
		if err != nil {
			return errors.Annotatef(err, "column %s", e.Numerical[i])
		}
		e.Mean[i] = floats.Mean(values)
		e.StdDev[i] = floats.StdDev(values)
		if e.StdDev[i] == 0 {
			e.StdDev[i] = 1
		}
	}
	e.buildIndex()
	return nil
}

// Transform encodes records to a feature matrix.
func (e *Encoder) Transform(header []string, records [][]string) (*Matrix, error) {
	if len(e.Levels) != len(e.Categorical) || len(e.Mean) != len(e.Numerical) {
		return nil, errors.NotValidf("unfitted encoder")
	}
	if e.levelIndex == nil {
		e.buildIndex()
	}
	categoricalCols, numericalCols, err := e.locate(header)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := NewMatrix(e.NumFeatures())
	indices := make([]int32, 0, len(numericalCols)+len(categoricalCols))
	values := make([]float32, 0, len(numericalCols)+len(categoricalCols))
	for r, record := range records {
		indices, values = indices[:0], values[:0]
		for i, col := range numericalCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 32)
			if err != nil {
				return nil, errors.Annotatef(err, "column %s of record %d", e.Numerical[i], r+1)
			}
			if z := (float32(v) - e.Mean[i]) / e.StdDev[i]; z != 0 {
				indices = append(indices, int32(i))
				values = append(values, z)
			}
		}
		offset := int32(len(e.Numerical))
		for i, col := range categoricalCols {
			if level, exist := e.levelIndex[i][strings.TrimSpace(record[col])]; exist {
				indices = append(indices, offset+level)
				values = append(values, 1)
			}
			offset += int32(len(e.Levels[i]))
		}
		if err = m.AppendRow(indices, values); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return m, nil
}

// Marshal encoder into byte stream.
func (e *Encoder) Marshal(w io.Writer) error {
	return encoding.WriteGob(w, e)
}

// Unmarshal encoder from byte stream.
func (e *Encoder) Unmarshal(r io.Reader) error {
	if err := encoding.ReadGob(r, e); err != nil {
		return errors.Trace(err)
	}
	e.buildIndex()
	return nil
}

func (e *Encoder) buildIndex() {
	e.levelIndex = make([]map[string]int32, len(e.Levels))
	for i, levels := range e.Levels {
		e.levelIndex[i] = make(map[string]int32, len(levels))
		for j, level := range levels {
			e.levelIndex[i][level] = int32(j)
		}
	}
}

func (e *Encoder) locate(header []string) (categorical, numerical []int, err error) {
	columns := columnIndex(header)
	for _, name := range e.Categorical {
		col, ok := columns[name]
		if !ok {
			return nil, nil, errors.NotFoundf("categorical column %s", name)
		}
		categorical = append(categorical, col)
	}
	for _, name := range e.Numerical {
		col, ok := columns[name]
		if !ok {
			return nil, nil, errors.NotFoundf("numerical column %s", name)
		}
		numerical = append(numerical, col)
	}
	return categorical, numerical, nil
}

func parseColumn(records [][]string, col int) ([]float32, error) {
	values := make([]float32, len(records))
	for i, record := range records {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 32)
		if err != nil {
			return nil, errors.Annotatef(err, "record %d", i+1)
		}
		values[i] = float32(v)
	}
	return values, nil
}
