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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flightCSV = `id,Month,UniqueCarrier,Origin,Distance,dep_delayed_15min
1,c-8,AA,ATL,732,N
2,c-4,US,PIT,834,N
3,c-9,XE,ATL,416,Y
4,c-11,AA,"DF,W",872,Y
`

var flightOptions = CSVOptions{
	LabelColumn:   "dep_delayed_15min",
	PositiveLabel: "Y",
	IDColumn:      "id",
	Categorical:   []string{"UniqueCarrier", "Origin"},
	Numerical:     []string{"Distance"},
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "abc", Escape("abc"))
	assert.Equal(t, "\"a,bc\"", Escape("a,bc"))
	assert.Equal(t, "\"a\"\"bc\"", Escape("a\"bc"))
	assert.Equal(t, "\"a\nbc\"", Escape("a\nbc"))
}

func TestReadLines(t *testing.T) {
	text := "1,\"xxx,yyy\",\"a\"\"b\"\n2,\"line\nbreak\",c\n"
	var lines [][]string
	err := ReadLines(bufio.NewScanner(strings.NewReader(text)), ",", func(i int, fields []string) bool {
		lines = append(lines, fields)
		return true
	})
	assert.NoError(t, err)
	assert.Equal(t, [][]string{
		{"1", "xxx,yyy", "a\"b"},
		{"2", "line\r\nbreak", "c"},
	}, lines)
}

func TestReadCSV(t *testing.T) {
	header, records, err := ReadCSV(strings.NewReader("a|b\n1|2\n\n3|4\n"), "|")
	assert.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, header)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, records)
	_, _, err = ReadCSV(strings.NewReader("a,b\n1\n"), ",")
	assert.True(t, errors.Is(err, errors.NotValid))
	_, _, err = ReadCSV(strings.NewReader(""), ",")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestParseCSV(t *testing.T) {
	dataset, encoder, err := ParseCSV(strings.NewReader(flightCSV), flightOptions, nil)
	require.NoError(t, err)
	// Distance, AA, US, XE, ATL, PIT, DF,W
	assert.Equal(t, 7, encoder.NumFeatures())
	assert.Equal(t, 7, dataset.NumFeatures())
	assert.Equal(t, "Distance", encoder.FeatureName(0))
	assert.Equal(t, "UniqueCarrier=AA", encoder.FeatureName(1))
	assert.Equal(t, "Origin=ATL", encoder.FeatureName(4))
	assert.Equal(t, "Origin=DF,W", encoder.FeatureName(6))
	assert.Equal(t, "", encoder.FeatureName(7))
	assert.Equal(t, []float32{-1, -1, 1, 1}, dataset.Target)
	assert.Equal(t, []string{"1", "2", "3", "4"}, dataset.IDs)
	assert.InDelta(t, 713.5, encoder.Mean[0], 1e-3)
	// one-hot layout
	row := dataset.X.Dense(3)
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1}, row[1:])
	// standardized distance
	var sum float32
	for i := 0; i < dataset.Count(); i++ {
		sum += dataset.X.Dense(i)[0]
	}
	assert.InDelta(t, 0, sum, 1e-4)
	assert.InDelta(t, (872-713.5)/encoder.StdDev[0], row[0], 1e-4)

	// apply fitted encoder, unseen levels are ignored
	test, _, err := ParseCSV(strings.NewReader("id,Month,UniqueCarrier,Origin,Distance,dep_delayed_15min\n9,c-1,WN,ATL,713.5,N\n"), flightOptions, encoder)
	require.NoError(t, err)
	assert.Equal(t, 7, test.NumFeatures())
	indices, values := test.X.Row(0)
	assert.Equal(t, []int32{4}, indices)
	assert.Equal(t, []float32{1}, values)
}

func TestParseCSV_Errors(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("a,b\n1,2\n"), CSVOptions{Categorical: []string{"c"}}, nil)
	assert.True(t, errors.Is(err, errors.NotFound))
	_, _, err = ParseCSV(strings.NewReader("a,b\n1,x\n"), CSVOptions{Numerical: []string{"b"}}, nil)
	assert.Error(t, err)
	_, _, err = ParseCSV(strings.NewReader("a,b\n1,x\n"), CSVOptions{Numerical: []string{"a"}, LabelColumn: "b"}, nil)
	assert.Error(t, err)
	// numeric target
	dataset, _, err := ParseCSV(strings.NewReader("a,b\n1,2.5\n"), CSVOptions{Numerical: []string{"a"}, LabelColumn: "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, []float32{2.5}, dataset.Target)
	assert.Nil(t, dataset.IDs)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(flightCSV), 0644))
	dataset, encoder, err := LoadCSV(path, flightOptions, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, dataset.Count())

	// marshal encoder
	buf := bytes.NewBuffer(nil)
	require.NoError(t, encoder.Marshal(buf))
	var decoded Encoder
	require.NoError(t, decoded.Unmarshal(buf))
	again, _, err := LoadCSV(path, flightOptions, &decoded)
	require.NoError(t, err)
	for i := 0; i < dataset.Count(); i++ {
		assert.Equal(t, dataset.X.Dense(i), again.X.Dense(i))
	}

	_, _, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), flightOptions, nil)
	assert.Error(t, err)
}

func TestEncoder_Unfitted(t *testing.T) {
	_, err := NewEncoder([]string{"a"}, nil).Transform([]string{"a"}, [][]string{{"x"}})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestWritePredictions(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	err := WritePredictions(buf, [2]string{"id", "dep_delayed_15min"}, []string{"a", "b,c"}, []float32{0.25, 0.5})
	require.NoError(t, err)
	assert.Equal(t, "id,dep_delayed_15min\na,0.25\n\"b,c\",0.5\n", buf.String())
	ids, predictions, err := ReadPredictions(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b,c"}, ids)
	assert.Equal(t, []float32{0.25, 0.5}, predictions)

	buf.Reset()
	require.NoError(t, WritePredictions(buf, [2]string{"id", "p"}, nil, []float32{1}))
	assert.Equal(t, "id,p\n0,1\n", buf.String())
	assert.True(t, errors.Is(WritePredictions(buf, [2]string{"id", "p"}, []string{"a"}, nil), errors.NotValid))
}

func TestLoadLibFM(t *testing.T) {
	dataset, err := LoadLibFM(strings.NewReader("1 0:1 3:0.5\n\n-1 2:2\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, dataset.Count())
	assert.Equal(t, 4, dataset.NumFeatures())
	assert.Equal(t, []float32{1, -1}, dataset.Target)
	assert.Equal(t, []float32{1, 0, 0, 0.5}, dataset.X.Dense(0))

	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteLibFM(buf, dataset))
	assert.Equal(t, "1 0:1 3:0.5\n-1 2:2\n", buf.String())

	dataset, err = LoadLibFM(strings.NewReader("1 3:0.5 0:1\n"), 0)
	require.NoError(t, err)
	indices, values := dataset.X.Row(0)
	assert.Equal(t, []int32{0, 3}, indices)
	assert.Equal(t, []float32{1, 0.5}, values)

	dataset, err = LoadLibFM(strings.NewReader("1 0:1\n"), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, dataset.NumFeatures())

	_, err = LoadLibFM(strings.NewReader("1 0:1 5:1\n"), 3)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = LoadLibFM(strings.NewReader("1 0:1 0:1\n"), 0)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = LoadLibFM(strings.NewReader("1 0-1\n"), 0)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = LoadLibFM(strings.NewReader("x 0:1\n"), 0)
	assert.Error(t, err)
}

func TestLoadLibFMFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.libfm")
	require.NoError(t, os.WriteFile(path, []byte("1 0:1\n-1 1:1\n"), 0644))
	dataset, err := LoadLibFMFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, dataset.Count())
}
