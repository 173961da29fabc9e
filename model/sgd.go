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

package model

import (
	"github.com/chewxy/math32"

	"github.com/gorse-io/asymfactor/base"
)

// updateFunc applies the gradient step for one rating observation. The two
// flags select whether user side parameters, item side parameters or both
// update on this call.
type updateFunc func(index int, updateUser, updateItem bool)

// SGDBase carries the state shared by biased factorization models trained
// with online stochastic gradient descent: bias terms, rating bounds and the
// common hyper-parameters. Models embed it and inject their per-rating
// update into RunEpochs.
type SGDBase struct {
	// Model parameters
	GlobalBias float32   // mu
	UserBias   []float32 // b_u
	ItemBias   []float32 // b_i
	MinRating  float32
	MaxRating  float32
	// Hyper parameters
	nFactors     int
	nEpochs      int
	lr           float32
	biasLr       float32
	reg          float32
	biasReg      float32
	frequencyReg bool
	initMean     float32
	initStdDev   float32
}

func (sgd *SGDBase) setParams(params Params) {
	sgd.nFactors = params.GetInt(NFactors, 10)
	sgd.nEpochs = params.GetInt(NEpochs, 30)
	sgd.lr = params.GetFloat32(Lr, 0.01)
	sgd.biasLr = params.GetFloat32(BiasLr, 1)
	sgd.reg = params.GetFloat32(Reg, 0.015)
	sgd.biasReg = params.GetFloat32(BiasReg, 0.33)
	sgd.frequencyReg = params.GetBool(FrequencyReg, false)
	sgd.initMean = params.GetFloat32(InitMean, 0)
	sgd.initStdDev = params.GetFloat32(InitStdDev, 0.1)
}

// RunEpochs drives the epoch loop: every epoch visits each rating index in a
// fresh permutation and applies update, then calls endOfEpoch. With
// alternating enabled, odd epochs update the user side and even epochs the
// item side.
func (sgd *SGDBase) RunEpochs(rng base.RandomGenerator, count int, config *FitConfig, update updateFunc, endOfEpoch func(epoch int)) {
	for epoch := 1; epoch <= sgd.nEpochs; epoch++ {
		updateUser, updateItem := true, true
		if config.Alternating {
			updateUser = epoch%2 == 1
			updateItem = epoch%2 == 0
		}
		perm := rng.Perm(count)
		for _, index := range perm {
			update(index, updateUser, updateItem)
		}
		endOfEpoch(epoch)
	}
}

// ScaleToRange squashes a raw score through the logistic function and maps
// it to the rating range.
func (sgd *SGDBase) ScaleToRange(score float32) float32 {
	sig := 1 / (1 + math32.Exp(-score))
	return sgd.MinRating + sig*(sgd.MaxRating-sgd.MinRating)
}
