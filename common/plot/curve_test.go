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

package plot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveCurves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curve.png")
	err := SaveCurves(path, "learning curve", "iteration", "loss",
		Series{Name: "train", X: []float64{1, 2, 3}, Y: []float64{0.7, 0.5, 0.4}},
		Series{Name: "test", X: []float64{1, 2, 3}, Y: []float64{0.72, 0.6, 0.55}})
	require.NoError(t, err)
	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, stat.Size())

	err = SaveCurves(path, "", "", "", Series{Name: "bad", X: []float64{1}})
	assert.True(t, errors.Is(err, errors.NotValid))
}
