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

	"github.com/gorse-io/fmlab/common/encoding"
	"github.com/juju/errors"
)

// CSVOptions describes how columns of a delimited text file become features.
type CSVOptions struct {
	Sep           string   // field separator, "," by default
	LabelColumn   string   // target column, unlabeled if absent from the header
	PositiveLabel string   // label value mapped to +1, others to -1; targets are parsed as numbers if empty
	IDColumn      string   // optional row identifier
	Categorical   []string // one-hot encoded columns
	Numerical     []string // standardized numerical columns
}

func (opts *CSVOptions) sep() string {
	if opts.Sep == "" {
		return ","
	}
	return opts.Sep
}

// Escape text for csv.
func Escape(text string) string {
	// check if need escape
	if !strings.Contains(text, ",") &&
		!strings.Contains(text, "\"") &&
		!strings.Contains(text, "\n") &&
		!strings.Contains(text, "\r") {
		return text
	}
	// start to encode
	builder := strings.Builder{}
	builder.WriteRune('"')
	for _, c := range text {
		if c == '"' {
			builder.WriteString("\"\"")
		} else {
			builder.WriteRune(c)
		}
	}
	builder.WriteRune('"')
	return builder.String()
}

// ReadLines parse fields of each line for csv file.
func ReadLines(sc *bufio.Scanner, sep string, handler func(int, []string) bool) error {
	lineCount := 0               // line number of current position
	fields := make([]string, 0)  // fields for current line
	builder := strings.Builder{} // string builder for current field
	quoted := false              // whether current position in quote
	for sc.Scan() {
		// read line
		line := []rune(sc.Text())
		// start of line
		if quoted {
			builder.WriteString("\r\n")
		}
		// parse line
		for i := 0; i < len(line); i++ {
			if string(line[i]) == sep && !quoted {
				// end of field
				fields = append(fields, builder.String())
				builder.Reset()
			} else if line[i] == '"' {
				if quoted {
					if i+1 >= len(line) || line[i+1] != '"' {
						// end of quoted
						quoted = false
					} else {
						i++
						builder.WriteRune('"')
					}
				} else {
					// start of quoted
					quoted = true
				}
			} else {
				builder.WriteRune(line[i])
			}
		}
		// end of line
		if !quoted {
			fields = append(fields, builder.String())
			builder.Reset()
			if !handler(lineCount, fields) {
				return nil
			}
			fields = []string{}
		}
		// increase line count
		lineCount++
	}
	return sc.Err()
}

// ReadCSV reads a delimited text file with a header row.
func ReadCSV(r io.Reader, sep string) (header []string, records [][]string, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	err = ReadLines(sc, sep, func(i int, fields []string) bool {
		if i == 0 {
			header = fields
			return true
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			// skip blank lines
			return true
		}
		records = append(records, fields)
		return true
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if header == nil {
		return nil, nil, errors.NotValidf("csv without header")
	}
	for i, record := range records {
		if len(record) != len(header) {
			return nil, nil, errors.NotValidf("record %d with %d fields (header has %d)", i+1, len(record), len(header))
		}
	}
	return header, records, nil
}

// LoadCSV loads a delimited text file. If encoder is nil, a new encoder is fitted on this file
// and returned; otherwise the given encoder is applied.
func LoadCSV(path string, opts CSVOptions, encoder *Encoder) (*Dataset, *Encoder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	defer file.Close()
	return ParseCSV(file, opts, encoder)
}

// ParseCSV is LoadCSV over a reader.
func ParseCSV(r io.Reader, opts CSVOptions, encoder *Encoder) (*Dataset, *Encoder, error) {
	header, records, err := ReadCSV(r, opts.sep())
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if encoder == nil {
		encoder = NewEncoder(opts.Categorical, opts.Numerical)
		if err = encoder.Fit(header, records); err != nil {
			return nil, nil, errors.Trace(err)
		}
	}
	x, err := encoder.Transform(header, records)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	dataset := &Dataset{X: x}
	columns := columnIndex(header)
	if col, ok := columns[opts.LabelColumn]; ok && opts.LabelColumn != "" {
		dataset.Target = make([]float32, len(records))
		for i, record := range records {
			value := strings.TrimSpace(record[col])
			if opts.PositiveLabel != "" {
				if value == opts.PositiveLabel {
					dataset.Target[i] = 1
				} else {
					dataset.Target[i] = -1
				}
			} else {
				target, err := strconv.ParseFloat(value, 32)
				if err != nil {
					return nil, nil, errors.Annotatef(err, "parse target of record %d", i+1)
				}
				dataset.Target[i] = float32(target)
			}
		}
	}
	if col, ok := columns[opts.IDColumn]; ok && opts.IDColumn != "" {
		dataset.IDs = make([]string, len(records))
		for i, record := range records {
			dataset.IDs[i] = record[col]
		}
	}
	return dataset, encoder, nil
}

// WritePredictions writes a two-column (id, prediction) table. Row numbers are used as
// identifiers if ids is nil.
func WritePredictions(w io.Writer, header [2]string, ids []string, predictions []float32) error {
	if ids != nil && len(ids) != len(predictions) {
		return errors.NotValidf("%d ids with %d predictions", len(ids), len(predictions))
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Escape(header[0]) + "," + Escape(header[1]) + "\n"); err != nil {
		return errors.Trace(err)
	}
	for i, p := range predictions {
		id := strconv.Itoa(i)
		if ids != nil {
			id = ids[i]
		}
		if _, err := bw.WriteString(Escape(id) + "," + encoding.FormatFloat32(p) + "\n"); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// ReadPredictions reads a table written by WritePredictions.
func ReadPredictions(r io.Reader) (ids []string, predictions []float32, err error) {
	header, records, err := ReadCSV(r, ",")
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if len(header) != 2 {
		return nil, nil, errors.NotValidf("prediction table with %d columns", len(header))
	}
	ids = make([]string, len(records))
	predictions = make([]float32, len(records))
	for i, record := range records {
		ids[i] = record[0]
		p, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 32)
		if err != nil {
			return nil, nil, errors.Annotatef(err, "parse prediction of record %d", i+1)
		}
		predictions[i] = float32(p)
	}
	return ids, predictions, nil
}

func columnIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	return columns
}
