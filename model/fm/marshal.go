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
	"io"

	"github.com/gorse-io/fmlab/common/encoding"
	"github.com/gorse-io/fmlab/model"
	"github.com/juju/errors"
)

const headerFM = "fmlab.FM"

// MarshalModel writes a fitted model with a header.
func MarshalModel(w io.Writer, m *FittedModel) error {
	if err := encoding.WriteString(w, headerFM); err != nil {
		return errors.Trace(err)
	}
	return m.Marshal(w)
}

// UnmarshalModel reads a model written by MarshalModel.
func UnmarshalModel(r io.Reader) (*FittedModel, error) {
	header, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if header != headerFM {
		return nil, errors.NotValidf("model header %q", header)
	}
	var m FittedModel
	if err = m.Unmarshal(r); err != nil {
		return nil, errors.Trace(err)
	}
	return &m, nil
}

func (m *FittedModel) Marshal(w io.Writer) error {
	if err := encoding.WriteString(w, m.Task); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteString(w, m.Algorithm); err != nil {
		return errors.Trace(err)
	}
	shape := [2]int{m.Params.NumFeatures(), m.Params.NumFactors()}
	if err := encoding.WriteGob(w, shape); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, [][]float32{{m.Params.W0}, m.Params.W}); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(encoding.WriteMatrix(w, m.Params.V))
}

func (m *FittedModel) Unmarshal(r io.Reader) error {
	var err error
	if m.Task, err = encoding.ReadString(r); err != nil {
		return errors.Trace(err)
	}
	if m.Algorithm, err = encoding.ReadString(r); err != nil {
		return errors.Trace(err)
	}
	if m.Task != model.Classification && m.Task != model.Regression {
		return errors.NotValidf("task %q", m.Task)
	}
	var shape [2]int
	if err = encoding.ReadGob(r, &shape); err != nil {
		return errors.Trace(err)
	}
	if shape[0] < 0 || shape[1] < 0 {
		return errors.NotValidf("shape %v", shape)
	}
	m.Params = NewParameters(shape[0], shape[1])
	w0 := make([]float32, 1)
	if err = encoding.ReadMatrix(r, [][]float32{w0, m.Params.W}); err != nil {
		return errors.Trace(err)
	}
	m.Params.W0 = w0[0]
	return errors.Trace(encoding.ReadMatrix(r, m.Params.V))
}
