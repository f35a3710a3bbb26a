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


package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model"
	"github.com/gorse-io/fmlab/model/fm"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding the config file.
const EnvPrefix = "FMLAB"

// Config is the configuration of fmlab.
type Config struct {
	Data   DataConfig   `mapstructure:"data"`
	Model  ModelConfig  `mapstructure:"model"`
	Fit    FitConfig    `mapstructure:"fit"`
	Output OutputConfig `mapstructure:"output"`
	Search SearchConfig `mapstructure:"search"`
}

// DataConfig describes the training and test files.
type DataConfig struct {
	Format        string   `mapstructure:"format" validate:"oneof=csv libfm"`
	TrainFile     string   `mapstructure:"train_file"`
	TestFile      string   `mapstructure:"test_file"`
	TestRatio     float32  `mapstructure:"test_ratio" validate:"gte=0,lt=1"`
	Seed          int64    `mapstructure:"seed"`
	Sep           string   `mapstructure:"sep"`
	LabelColumn   string   `mapstructure:"label_column"`
	PositiveLabel string   `mapstructure:"positive_label"`
	IDColumn      string   `mapstructure:"id_column"`
	Categorical   []string `mapstructure:"categorical"`
	Numerical     []string `mapstructure:"numerical"`
	NumColumns    int      `mapstructure:"num_columns" validate:"gte=0"`
}

// ModelConfig holds the hyper-parameters of the factorization machine. Unset per-group
// regularization strengths fall back to Reg.
type ModelConfig struct {
	Algorithm   string   `mapstructure:"algorithm" validate:"oneof=sgd als mcmc"`
	Task        string   `mapstructure:"task" validate:"oneof=classification regression"`
	NFactors    int      `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs     int      `mapstructure:"n_epochs" validate:"gt=0"`
	Lr          float32  `mapstructure:"lr" validate:"gte=0"`
	Reg         float32  `mapstructure:"reg" validate:"gte=0"`
	RegW0       *float32 `mapstructure:"reg_w0" validate:"omitempty,gte=0"`
	RegW        *float32 `mapstructure:"reg_w" validate:"omitempty,gte=0"`
	RegV        *float32 `mapstructure:"reg_v" validate:"omitempty,gte=0"`
	InitMean    float32  `mapstructure:"init_mean"`
	InitStdDev  float32  `mapstructure:"init_std" validate:"gte=0"`
	BurnIn      int      `mapstructure:"burn_in" validate:"gte=0"`
	RandomState int64    `mapstructure:"random_state"`
}

// FitConfig controls the fitting loop.
type FitConfig struct {
	Jobs    int `mapstructure:"jobs" validate:"gt=0"`
	Verbose int `mapstructure:"verbose" validate:"gte=0"`
}

// OutputConfig lists the artifacts written by the CLI. Empty paths are skipped.
type OutputConfig struct {
	PredictionFile string `mapstructure:"prediction_file"`
	PredictionName string `mapstructure:"prediction_name"`
	ModelFile      string `mapstructure:"model_file"`
	EncoderFile    string `mapstructure:"encoder_file"`
	CurveFile      string `mapstructure:"curve_file"`
	MetricsFile    string `mapstructure:"metrics_file"`
	LibFMFile      string `mapstructure:"libfm_file"`
}

// SearchConfig controls hyper-parameter search.
type SearchConfig struct {
	Method     string   `mapstructure:"method" validate:"oneof=random tpe"`
	Trials     int      `mapstructure:"trials" validate:"gt=0"`
	Algorithms []string `mapstructure:"algorithms" validate:"min=1,dive,oneof=sgd als mcmc"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Format:        "csv",
			TestRatio:     0.2,
			Sep:           ",",
			LabelColumn:   "label",
			PositiveLabel: "",
		},
		Model: ModelConfig{
			Algorithm:  model.MCMC,
			Task:       model.Classification,
			NFactors:   8,
			NEpochs:    100,
			Lr:         0.01,
			Reg:        0.01,
			InitStdDev: 0.1,
		},
		Fit: FitConfig{
			Jobs:    runtime.NumCPU(),
			Verbose: 10,
		},
		Output: OutputConfig{
			PredictionName: "prediction",
		},
		Search: SearchConfig{
			Method:     "tpe",
			Trials:     10,
			Algorithms: []string{model.SGD, model.ALS, model.MCMC},
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [data]
	v.SetDefault("data.format", defaultConfig.Data.Format)
	v.SetDefault("data.train_file", defaultConfig.Data.TrainFile)
	v.SetDefault("data.test_file", defaultConfig.Data.TestFile)
	v.SetDefault("data.test_ratio", defaultConfig.Data.TestRatio)
	v.SetDefault("data.seed", defaultConfig.Data.Seed)
	v.SetDefault("data.sep", defaultConfig.Data.Sep)
	v.SetDefault("data.label_column", defaultConfig.Data.LabelColumn)
	v.SetDefault("data.positive_label", defaultConfig.Data.PositiveLabel)
	v.SetDefault("data.id_column", defaultConfig.Data.IDColumn)
	v.SetDefault("data.categorical", defaultConfig.Data.Categorical)
	v.SetDefault("data.numerical", defaultConfig.Data.Numerical)
	v.SetDefault("data.num_columns", defaultConfig.Data.NumColumns)
	// [model]
	v.SetDefault("model.algorithm", defaultConfig.Model.Algorithm)
	v.SetDefault("model.task", defaultConfig.Model.Task)
	v.SetDefault("model.n_factors", defaultConfig.Model.NFactors)
	v.SetDefault("model.n_epochs", defaultConfig.Model.NEpochs)
	v.SetDefault("model.lr", defaultConfig.Model.Lr)
	v.SetDefault("model.reg", defaultConfig.Model.Reg)
	v.SetDefault("model.init_mean", defaultConfig.Model.InitMean)
	v.SetDefault("model.init_std", defaultConfig.Model.InitStdDev)
	v.SetDefault("model.burn_in", defaultConfig.Model.BurnIn)
	v.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	// [fit]
	v.SetDefault("fit.jobs", defaultConfig.Fit.Jobs)
	v.SetDefault("fit.verbose", defaultConfig.Fit.Verbose)
	// [output]
	v.SetDefault("output.prediction_file", defaultConfig.Output.PredictionFile)
	v.SetDefault("output.prediction_name", defaultConfig.Output.PredictionName)
	v.SetDefault("output.model_file", defaultConfig.Output.ModelFile)
	v.SetDefault("output.encoder_file", defaultConfig.Output.EncoderFile)
	v.SetDefault("output.curve_file", defaultConfig.Output.CurveFile)
	v.SetDefault("output.metrics_file", defaultConfig.Output.MetricsFile)
	v.SetDefault("output.libfm_file", defaultConfig.Output.LibFMFile)
	// [search]
	v.SetDefault("search.method", defaultConfig.Search.Method)
	v.SetDefault("search.trials", defaultConfig.Search.Trials)
	v.SetDefault("search.algorithms", defaultConfig.Search.Algorithms)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	setDefault(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// keys without defaults are invisible to AutomaticEnv
	for _, key := range []string{"model.reg_w0", "model.reg_w", "model.reg_v"} {
		if err := v.BindEnv(key); err != nil {
			panic(err)
		}
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}

// LoadConfig loads configuration from a TOML file. An empty path yields the defaults
// overridden by environment variables.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config %v", path)
		}
	}
	return decode(v)
}

var validate = validator.New()

// Validate checks every section of the configuration.
func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			messages := make([]string, 0, len(fieldErrors))
			for _, fieldError := range fieldErrors {
				messages = append(messages, fmt.Sprintf("%s=%v (%s %s)",
					fieldError.Namespace(), fieldError.Value(), fieldError.Tag(), fieldError.Param()))
			}
			return errors.NotValidf("config: %s", strings.Join(messages, ", "))
		}
		return errors.Trace(err)
	}
	return nil
}

// ModelParams converts the model section to hyper-parameters.
func (config *Config) ModelParams() model.Params {
	params := model.Params{
		model.Algorithm:   config.Model.Algorithm,
		model.Task:        config.Model.Task,
		model.NFactors:    config.Model.NFactors,
		model.NEpochs:     config.Model.NEpochs,
		model.Lr:          config.Model.Lr,
		model.Reg:         config.Model.Reg,
		model.InitMean:    config.Model.InitMean,
		model.InitStdDev:  config.Model.InitStdDev,
		model.BurnIn:      config.Model.BurnIn,
		model.RandomState: config.Model.RandomState,
	}
	if config.Model.RegW0 != nil {
		params[model.RegW0] = *config.Model.RegW0
	}
	if config.Model.RegW != nil {
		params[model.RegW] = *config.Model.RegW
	}
	if config.Model.RegV != nil {
		params[model.RegV] = *config.Model.RegV
	}
	return params
}

func (config *Config) FitConfig() *fm.FitConfig {
	return fm.NewFitConfig().SetJobs(config.Fit.Jobs).SetVerbose(config.Fit.Verbose)
}

func (config *Config) CSVOptions() dataset.CSVOptions {
	return dataset.CSVOptions{
		Sep:           config.Data.Sep,
		LabelColumn:   config.Data.LabelColumn,
		PositiveLabel: config.Data.PositiveLabel,
		IDColumn:      config.Data.IDColumn,
		Categorical:   config.Data.Categorical,
		Numerical:     config.Data.Numerical,
	}
}
