// Copyright 2025 gorse Project Authors
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
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gorse-io/asymfactor/base/log"
	"github.com/gorse-io/asymfactor/dataset"
	"github.com/gorse-io/asymfactor/model"
)

var rootCommand = &cobra.Command{
	Use:   "asymfactor",
	Short: "Asymmetric factor model for rating prediction",
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
			viper.SetConfigFile(configPath)
			if err := viper.ReadInConfig(); err != nil {
				log.Logger().Fatal("failed to read config", zap.Error(err))
			}
		}
	},
}

var fitCommand = &cobra.Command{
	Use:   "fit RATINGS_FILE",
	Short: "Train a model on a rating file and report test accuracy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sep, _ := cmd.Flags().GetString("sep")
		header, _ := cmd.Flags().GetBool("header")
		ratings, err := dataset.LoadRatingsFromCSV(args[0], sep, header)
		if err != nil {
			log.Logger().Fatal("failed to load ratings", zap.Error(err))
		}
		var feedback dataset.Feedback
		if implicitPath, _ := cmd.Flags().GetString("implicit"); implicitPath != "" {
			implicit, err := dataset.LoadFeedbackFromCSV(implicitPath, sep, header)
			if err != nil {
				log.Logger().Fatal("failed to load implicit feedback", zap.Error(err))
			}
			feedback = implicit
		}
		testRatio, _ := cmd.Flags().GetFloat32("test-ratio")
		seed, _ := cmd.Flags().GetInt64("seed")
		trainSet, testSet := ratings.Split(testRatio, seed)

		params := paramsFromConfig()
		m := model.NewCombinedAsymmetric(params)
		nEpochs := params.GetInt(model.NEpochs, 30)
		bar := progressbar.Default(int64(nEpochs), "fit")
		alternating, _ := cmd.Flags().GetBool("alternating")
		verbose, _ := cmd.Flags().GetInt("verbose")
		config := model.NewFitConfig().
			SetVerbose(verbose).
			SetAlternating(alternating).
			SetTracker(func(int) { _ = bar.Add(1) })
		m.Fit(trainSet, feedback, config)
		_ = bar.Finish()

		fmt.Printf("RMSE = %v\n", model.RMSE(m, testSet))
		fmt.Printf("MAE  = %v\n", model.MAE(m, testSet))
		if savePath, _ := cmd.Flags().GetString("save"); savePath != "" {
			file, err := os.Create(savePath)
			if err != nil {
				log.Logger().Fatal("failed to create model file", zap.Error(err))
			}
			defer file.Close()
			if err = m.Marshal(file); err != nil {
				log.Logger().Fatal("failed to save model", zap.Error(err))
			}
			log.Logger().Info("model saved", zap.String("path", savePath))
		}
	},
}

var predictCommand = &cobra.Command{
	Use:   "predict MODEL_FILE RATINGS_FILE USER_ID ITEM_ID",
	Short: "Predict a rating with a saved model",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		m := model.NewCombinedAsymmetric(paramsFromConfig())
		file, err := os.Open(args[0])
		if err != nil {
			log.Logger().Fatal("failed to open model file", zap.Error(err))
		}
		defer file.Close()
		if err = m.Unmarshal(file); err != nil {
			log.Logger().Fatal("failed to load model", zap.Error(err))
		}
		sep, _ := cmd.Flags().GetString("sep")
		header, _ := cmd.Flags().GetBool("header")
		ratings, err := dataset.LoadRatingsFromCSV(args[1], sep, header)
		if err != nil {
			log.Logger().Fatal("failed to load ratings", zap.Error(err))
		}
		m.SetData(ratings, nil)
		var userId, itemId int32
		if _, err = fmt.Sscanf(args[2], "%d", &userId); err != nil {
			log.Logger().Fatal("malformed user id", zap.Error(err))
		}
		if _, err = fmt.Sscanf(args[3], "%d", &itemId); err != nil {
			log.Logger().Fatal("malformed item id", zap.Error(err))
		}
		fmt.Println(m.Predict(userId, itemId))
	},
}

// paramsFromConfig collects hyper-parameters set in the config file.
func paramsFromConfig() model.Params {
	params := model.Params{}
	keys := []struct {
		name string
		key  model.ParamName
		load func(string) interface{}
	}{
		{"n_factors", model.NFactors, func(s string) interface{} { return viper.GetInt(s) }},
		{"n_epochs", model.NEpochs, func(s string) interface{} { return viper.GetInt(s) }},
		{"lr", model.Lr, func(s string) interface{} { return viper.GetFloat64(s) }},
		{"bias_lr", model.BiasLr, func(s string) interface{} { return viper.GetFloat64(s) }},
		{"reg", model.Reg, func(s string) interface{} { return viper.GetFloat64(s) }},
		{"bias_reg", model.BiasReg, func(s string) interface{} { return viper.GetFloat64(s) }},
		{"frequency_reg", model.FrequencyReg, func(s string) interface{} { return viper.GetBool(s) }},
		{"random_state", model.RandomState, func(s string) interface{} { return viper.GetInt64(s) }},
		{"init_mean", model.InitMean, func(s string) interface{} { return viper.GetFloat64(s) }},
		{"init_std", model.InitStdDev, func(s string) interface{} { return viper.GetFloat64(s) }},
	}
	for _, k := range keys {
		if viper.IsSet(k.name) {
			params[k.key] = k.load(k.name)
		}
	}
	return params
}

func init() {
	rootCommand.PersistentFlags().String("config", "", "path of config file")
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().String("sep", ",", "field separator of data files")
	rootCommand.PersistentFlags().Bool("header", false, "skip the first line of data files")
	log.AddFlags(rootCommand.PersistentFlags())
	fitCommand.Flags().String("implicit", "", "path of positive only feedback file")
	fitCommand.Flags().Float32("test-ratio", 0.2, "ratio of observations held out for testing")
	fitCommand.Flags().Int64("seed", 0, "random seed of the train/test split")
	fitCommand.Flags().Bool("alternating", false, "alternate user and item side updates between epochs")
	fitCommand.Flags().Int("verbose", 10, "epochs between progress reports")
	fitCommand.Flags().String("save", "", "path to save the trained model")
	rootCommand.AddCommand(fitCommand)
	rootCommand.AddCommand(predictCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute command", zap.Error(err))
	}
}
