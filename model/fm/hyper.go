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
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorse-io/fmlab/model"
	"github.com/juju/errors"
)

// HyperParams are the validated hyper-parameters of a factorization machine.
type HyperParams struct {
	Algorithm   string  `validate:"oneof=sgd als mcmc"`
	Task        string  `validate:"oneof=classification regression"`
	NFactors    int     `validate:"gt=0"`
	NEpochs     int     `validate:"gt=0"`
	Lr          float32 `validate:"gte=0"`
	RegW0       float32 `validate:"gte=0"`
	RegW        float32 `validate:"gte=0"`
	RegV        float32 `validate:"gte=0"`
	InitMean    float32
	InitStdDev  float32 `validate:"gte=0"`
	BurnIn      int     `validate:"gte=0,ltfield=NEpochs"`
	RandomState int64
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		hyper := sl.Current().Interface().(HyperParams)
		if hyper.Algorithm == model.SGD && hyper.Lr <= 0 {
			sl.ReportError(hyper.Lr, "Lr", "Lr", "gt", "0")
		}
	}, HyperParams{})
	return v
}

// NewHyperParams reads hyper-parameters with defaults. Reg is the default of RegW0, RegW
// and RegV.
func NewHyperParams(params model.Params) HyperParams {
	reg := params.GetFloat32(model.Reg, 0.01)
	return HyperParams{
		Algorithm:   params.GetString(model.Algorithm, model.MCMC),
		Task:        params.GetString(model.Task, model.Classification),
		NFactors:    params.GetInt(model.NFactors, 8),
		NEpochs:     params.GetInt(model.NEpochs, 100),
		Lr:          params.GetFloat32(model.Lr, 0.01),
		RegW0:       params.GetFloat32(model.RegW0, reg),
		RegW:        params.GetFloat32(model.RegW, reg),
		RegV:        params.GetFloat32(model.RegV, reg),
		InitMean:    params.GetFloat32(model.InitMean, 0),
		InitStdDev:  params.GetFloat32(model.InitStdDev, 0.1),
		BurnIn:      params.GetInt(model.BurnIn, 0),
		RandomState: params.GetInt64(model.RandomState, 0),
	}
}

// Validate returns a NotValid error describing every invalid hyper-parameter.
func (hyper HyperParams) Validate() error {
	err := validate.Struct(hyper)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.Trace(err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, fieldError.Field()+" "+describe(fieldError))
	}
	return errors.NotValidf("hyper-parameters (%s)", strings.Join(messages, ", "))
}

func (hyper HyperParams) isClassification() bool {
	return hyper.Task == model.Classification
}

func describe(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "gt":
		return "must be greater than " + fieldError.Param()
	case "gte":
		return "must not be less than " + fieldError.Param()
	case "oneof":
		return "must be one of [" + fieldError.Param() + "]"
	case "ltfield":
		return "must be less than " + fieldError.Param()
	default:
		return "failed on " + fieldError.Tag()
	}
}
