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


package main

import (
	"os"

	"github.com/gorse-io/fmlab/common/log"
	"github.com/gorse-io/fmlab/dataset"
	"github.com/gorse-io/fmlab/model/ensemble"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	blendMean = "mean"
	blendRank = "rank"
)

var blendCommand = &cobra.Command{
	Use:   "blend [prediction files...]",
	Short: "Blend prediction files by weighted mean or rank average",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := loadConfig(cmd)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		method, _ := cmd.Flags().GetString("method")
		weights, _ := cmd.Flags().GetFloat32Slice("weights")
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = conf.Output.PredictionFile
		}
		if output == "" {
			log.Logger().Fatal("empty prediction file")
		}
		ids, predictions, err := readPredictionFiles(args)
		if err != nil {
			log.Logger().Fatal("failed to read predictions", zap.Error(err))
		}
		blended, err := blend(method, predictions, weights)
		if err != nil {
			log.Logger().Fatal("failed to blend predictions", zap.Error(err))
		}
		if err = writePredictions(output, conf, ids, blended); err != nil {
			log.Logger().Fatal("failed to write predictions", zap.Error(err))
		}
	},
}

func init() {
	blendCommand.Flags().String("method", blendMean, "blending method (mean, rank)")
	blendCommand.Flags().Float32Slice("weights", nil, "weights of prediction files (mean only)")
	blendCommand.Flags().StringP("output", "o", "", "prediction file")
}

func blend(method string, predictions [][]float32, weights []float32) ([]float32, error) {
	switch method {
	case blendMean:
		return ensemble.WeightedMean(predictions, weights)
	case blendRank:
		if len(weights) > 0 {
			log.Logger().Warn("weights are ignored by rank average")
		}
		return ensemble.RankAverage(predictions)
	default:
		return nil, errors.NotValidf("blending method %s", method)
	}
}

// readPredictionFiles reads prediction tables that must list the same identifiers in the
// same order.
func readPredictionFiles(paths []string) ([]string, [][]float32, error) {
	var ids []string
	predictions := make([][]float32, 0, len(paths))
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		fileIDs, filePredictions, err := dataset.ReadPredictions(file)
		file.Close()
		if err != nil {
			return nil, nil, errors.Annotatef(err, "read %s", path)
		}
		if ids == nil {
			ids = fileIDs
		} else if len(ids) != len(fileIDs) || lo.ContainsBy(lo.Range(len(ids)), func(i int) bool { return ids[i] != fileIDs[i] }) {
			return nil, nil, errors.NotValidf("identifiers of %s differ from %s", path, paths[0])
		}
		predictions = append(predictions, filePredictions)
	}
	return ids, predictions, nil
}
