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

	"github.com/gorse-io/asymfactor/dataset"
)

// Predictor predicts the rating given by a user to an item.
type Predictor interface {
	Predict(userId, itemId int32) float32
}

// Evaluator measures the accuracy of a predictor on a test set.
type Evaluator func(predictor Predictor, testSet dataset.Ratings) float32

// RMSE is root mean square error.
func RMSE(predictor Predictor, testSet dataset.Ratings) float32 {
	var sum float32
	for index := 0; index < testSet.Count(); index++ {
		userId, itemId, rating := testSet.Get(index)
		err := predictor.Predict(userId, itemId) - rating
		sum += err * err
	}
	return math32.Sqrt(sum / float32(testSet.Count()))
}

// MAE is mean absolute error.
func MAE(predictor Predictor, testSet dataset.Ratings) float32 {
	var sum float32
	for index := 0; index < testSet.Count(); index++ {
		userId, itemId, rating := testSet.Get(index)
		sum += math32.Abs(predictor.Predict(userId, itemId) - rating)
	}
	return sum / float32(testSet.Count())
}
