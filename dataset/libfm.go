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
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"modernc.org/mathutil"
)

// LoadLibFMFile loads a dataset in libFM text format.
func LoadLibFMFile(path string, numColumns int) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	return LoadLibFM(file, numColumns)
}

// LoadLibFM parses lines of "label index:value ...". The number of columns is inferred from
// the largest index if numColumns is not positive. Entries of each row are sorted by column.
func LoadLibFM(r io.Reader, numColumns int) (*Dataset, error) {
	var (
		target  []float32
		rows    [][]int32
		vals    [][]float32
		maxCol  int
		scanner = bufio.NewScanner(r)
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		label, err := strconv.ParseFloat(fields[0], 32)
		if err != nil {
			return nil, errors.Annotatef(err, "parse label at line %d", lineNumber)
		}
		indices := make([]int32, 0, len(fields)-1)
		values := make([]float32, 0, len(fields)-1)
		for _, field := range fields[1:] {
			before, after, found := strings.Cut(field, ":")
			if !found {
				return nil, errors.NotValidf("feature %q at line %d", field, lineNumber)
			}
			index, err := strconv.ParseInt(before, 10, 32)
			if err != nil {
				return nil, errors.Annotatef(err, "parse index at line %d", lineNumber)
			}
			value, err := strconv.ParseFloat(after, 32)
			if err != nil {
				return nil, errors.Annotatef(err, "parse value at line %d", lineNumber)
			}
			indices = append(indices, int32(index))
			values = append(values, float32(value))
			maxCol = mathutil.Max(maxCol, int(index)+1)
		}
		target = append(target, float32(label))
		rows = append(rows, indices)
		vals = append(vals, values)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if numColumns <= 0 {
		numColumns = maxCol
	}
	m := NewMatrix(numColumns)
	for i := range rows {
		if err := m.AppendRow(rows[i], vals[i]); err != nil {
			return nil, errors.Annotatef(err, "sample %d", i)
		}
	}
	m.SortRows()
	return NewDataset(m, target)
}

// WriteLibFM writes a dataset in libFM text format.
func WriteLibFM(w io.Writer, dataset *Dataset) error {
	bw := bufio.NewWriter(w)
	for i := 0; i < dataset.Count(); i++ {
		indices, values, target := dataset.Get(i)
		builder := strings.Builder{}
		builder.WriteString(strconv.FormatFloat(float64(target), 'g', -1, 32))
		for j := range indices {
			builder.WriteByte(' ')
			builder.WriteString(strconv.Itoa(int(indices[j])))
			builder.WriteByte(':')
			builder.WriteString(strconv.FormatFloat(float64(values[j]), 'g', -1, 32))
		}
		builder.WriteByte('\n')
		if _, err := bw.WriteString(builder.String()); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}
