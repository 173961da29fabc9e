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

// Package model implements rating prediction models trained by stochastic
// gradient descent.
package model

import (
	"io"

	"github.com/gorse-io/asymfactor/base"
	"github.com/gorse-io/asymfactor/dataset"
)

// Model is the interface for all rating prediction models in this package.
type Model interface {
	// SetParams sets hyper-parameters.
	SetParams(params Params)
	// GetParams returns hyper-parameters.
	GetParams() Params
	// GetParamsGrid returns candidate hyper-parameters for grid search.
	GetParamsGrid(withSize bool) ParamsGrid
	// Fit the model with a rating collection plus optional positive only feedback.
	Fit(trainSet dataset.Ratings, feedback dataset.Feedback, config *FitConfig)
	// Predict the rating given by a user to an item.
	Predict(userId, itemId int32) float32
	// Marshal model into byte stream.
	Marshal(w io.Writer) error
	// Unmarshal model from byte stream.
	Unmarshal(r io.Reader) error
	// Clear model weights.
	Clear()
}

// FitConfig controls one training run.
type FitConfig struct {
	// Verbose is the interval, in epochs, between progress reports.
	Verbose int
	// Alternating updates only the user side on odd epochs and only the
	// item side on even epochs instead of both sides every epoch.
	Alternating bool
	// Tracker is called after every epoch, if set.
	Tracker func(epoch int)
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetAlternating(alternating bool) *FitConfig {
	config.Alternating = alternating
	return config
}

func (config *FitConfig) SetTracker(tracker func(epoch int)) *FitConfig {
	config.Tracker = tracker
	return config
}

func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// BaseModel must be included by every rating prediction model.
// Hyper-parameters and the random generator are managed by BaseModel.
type BaseModel struct {
	Params    Params               // Hyper-parameters
	rng       base.RandomGenerator // Random generator
	randState int64                // Random seed
}

// SetParams sets hyper-parameters for the BaseModel.
func (model *BaseModel) SetParams(params Params) {
	model.Params = params
	model.randState = model.Params.GetInt64(RandomState, 0)
	model.rng = base.NewRandomGenerator(model.randState)
}

// GetParams returns all hyper-parameters.
func (model *BaseModel) GetParams() Params {
	return model.Params
}

func (model *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return model.rng
}
