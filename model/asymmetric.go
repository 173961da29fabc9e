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
	"bufio"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gorse-io/asymfactor/base/encoding"
	"github.com/gorse-io/asymfactor/base/log"
	"github.com/gorse-io/asymfactor/common/floats"
	"github.com/gorse-io/asymfactor/dataset"
)

// FormatVersion is the version tag written at the head of model files.
const FormatVersion = "3.00"

// cacheState tags a derived factor cache as stale or fresh. Stale caches are
// rebuilt by their accessor before the next prediction.
type cacheState int

const (
	cacheStale cacheState = iota
	cacheFresh
)

// CombinedAsymmetric is an asymmetric factor model for rating prediction.
// Neither users nor items own directly learned latent vectors: a user is
// represented by the normalized sum of y rows over the items they rated, an
// item by the normalized sum of x rows over the users who rated it. The
// estimated rating is:
//
//	\hat{r}_{ui} = min_r + \sigma(\mu + b_u + b_i + eff(u)^T eff(i)) (max_r - min_r)
//
// where eff(u) = |I_u|^{-1/2} \sum_{j \in I_u} y_j and
// eff(i) = |U_i|^{-1/2} \sum_{v \in U_i} x_v.
//
// Hyper-parameters:
//
//	Lr           - The learning rate of SGD. Default is 0.01.
//	BiasLr       - Learning rate multiplier for bias terms. Default is 1.
//	Reg          - The regularization parameter. Default is 0.015.
//	BiasReg      - Regularization multiplier for bias terms. Default is 0.33.
//	FrequencyReg - Scale regularization by 1/sqrt(interaction count). Default is false.
//	NFactors     - The number of latent factors. Default is 10.
//	NEpochs      - The number of SGD iterations. Default is 30.
//	InitMean     - The mean of initial random latent factors. Default is 0.
//	InitStdDev   - The standard deviation of initial random latent factors. Default is 0.1.
type CombinedAsymmetric struct {
	BaseModel
	SGDBase
	// Model parameters
	X [][]float32 // contribution of each user to the items they rated
	Y [][]float32 // contribution of each item to the users who rated it
	// Derived caches, invalidated whenever X or Y change
	userFactors    [][]float32
	itemFactors    [][]float32
	userCacheState cacheState
	itemCacheState cacheState
	// Neighbor index, rebuilt at the start of every training run
	itemsRatedByUser  [][]int32
	usersWhoRatedItem [][]int32
	// Feedback sources
	ratings   dataset.Ratings
	feedback  dataset.Feedback
	maxUserId int32
	maxItemId int32
	// Entities with at least one interaction in either source
	userTrained *bitset.BitSet
	itemTrained *bitset.BitSet
	// Per-rating buffers
	effUser []float32
	effItem []float32
}

// NewCombinedAsymmetric creates a combined asymmetric factor model.
func NewCombinedAsymmetric(params Params) *CombinedAsymmetric {
	ca := new(CombinedAsymmetric)
	ca.SetParams(params)
	return ca
}

// SetParams sets hyper-parameters of the model.
func (ca *CombinedAsymmetric) SetParams(params Params) {
	ca.BaseModel.SetParams(params)
	ca.SGDBase.setParams(params)
}

func (ca *CombinedAsymmetric) GetParamsGrid(withSize bool) ParamsGrid {
	return ParamsGrid{
		NFactors:   lo.If(withSize, []interface{}{8, 16, 32, 64}).Else([]interface{}{10}),
		Lr:         []interface{}{0.001, 0.005, 0.01, 0.05, 0.1},
		Reg:        []interface{}{0.001, 0.005, 0.015, 0.05, 0.1},
		InitMean:   []interface{}{0},
		InitStdDev: []interface{}{0.001, 0.005, 0.01, 0.05, 0.1},
	}
}

// SetData attaches the rating and feedback sources, recomputes id bounds
// and rebuilds the neighbor index. Fit calls it implicitly. Call it after
// Unmarshal to enable item side predictions on the original training data.
func (ca *CombinedAsymmetric) SetData(ratings dataset.Ratings, feedback dataset.Feedback) {
	if feedback == nil {
		feedback = dataset.NewImplicit()
	}
	ca.ratings = ratings
	ca.feedback = feedback
	ca.maxUserId = max(ratings.MaxUserId(), feedback.MaxUserId())
	ca.maxItemId = max(ratings.MaxItemId(), feedback.MaxItemId())
	ca.buildNeighborIndex()
	ca.itemCacheState = cacheStale
	if ca.Y != nil {
		// A loaded model carries the persisted user factor cache but not y,
		// so the user cache survives until the next training run.
		ca.userCacheState = cacheStale
	}
}

// buildNeighborIndex derives, from the union of both feedback sources, the
// items rated by every user and the users who rated every item. The index is
// read-only for the remainder of the run.
func (ca *CombinedAsymmetric) buildNeighborIndex() {
	itemsRated := make([]mapset.Set[int32], ca.maxUserId+1)
	ratingUsers := make([]mapset.Set[int32], ca.maxItemId+1)
	for u := range itemsRated {
		itemsRated[u] = mapset.NewThreadUnsafeSet[int32]()
	}
	for i := range ratingUsers {
		ratingUsers[i] = mapset.NewThreadUnsafeSet[int32]()
	}
	for index := 0; index < ca.ratings.Count(); index++ {
		userId, itemId, _ := ca.ratings.Get(index)
		itemsRated[userId].Add(itemId)
		ratingUsers[itemId].Add(userId)
	}
	for index := 0; index < ca.feedback.Count(); index++ {
		userId, itemId := ca.feedback.Get(index)
		itemsRated[userId].Add(itemId)
		ratingUsers[itemId].Add(userId)
	}
	ca.itemsRatedByUser = make([][]int32, ca.maxUserId+1)
	for u := range ca.itemsRatedByUser {
		ca.itemsRatedByUser[u] = itemsRated[u].ToSlice()
		slices.Sort(ca.itemsRatedByUser[u])
	}
	ca.usersWhoRatedItem = make([][]int32, ca.maxItemId+1)
	for i := range ca.usersWhoRatedItem {
		ca.usersWhoRatedItem[i] = ratingUsers[i].ToSlice()
		slices.Sort(ca.usersWhoRatedItem[i])
	}
}

// Init allocates and initializes model parameters for the attached data.
// Factor rows of entities without any interaction are forced to zero and
// stay zero until an actual rated interaction updates them.
func (ca *CombinedAsymmetric) Init() {
	ca.UserBias = make([]float32, ca.maxUserId+1)
	ca.ItemBias = make([]float32, ca.maxItemId+1)
	ca.MinRating = ca.ratings.MinRating()
	ca.MaxRating = ca.ratings.MaxRating()
	// start the global bias at the logit of the normalized mean rating so
	// that initial predictions sit at the mean
	ca.GlobalBias = 0
	if ca.ratings.Count() > 0 {
		var sum float32
		for index := 0; index < ca.ratings.Count(); index++ {
			_, _, rating := ca.ratings.Get(index)
			sum += rating
		}
		mean := sum / float32(ca.ratings.Count())
		if mean > ca.MinRating && mean < ca.MaxRating {
			ca.GlobalBias = math32.Log((mean - ca.MinRating) / (ca.MaxRating - mean))
		}
	}
	ca.X = ca.rng.NormalMatrix(int(ca.maxUserId+1), ca.nFactors, ca.initMean, ca.initStdDev)
	ca.Y = ca.rng.NormalMatrix(int(ca.maxItemId+1), ca.nFactors, ca.initMean, ca.initStdDev)
	ca.userTrained = bitset.New(uint(ca.maxUserId + 1))
	for u := int32(0); u <= ca.maxUserId; u++ {
		if ca.interactionsByUser(u) > 0 {
			ca.userTrained.Set(uint(u))
		} else {
			floats.Zero(ca.X[u])
		}
	}
	ca.itemTrained = bitset.New(uint(ca.maxItemId + 1))
	for i := int32(0); i <= ca.maxItemId; i++ {
		if ca.interactionsOfItem(i) > 0 {
			ca.itemTrained.Set(uint(i))
		} else {
			floats.Zero(ca.Y[i])
		}
	}
	ca.effUser = make([]float32, ca.nFactors)
	ca.effItem = make([]float32, ca.nFactors)
	ca.invalidateCaches()
}

// Fit trains the model. Id bounds and the neighbor index are recomputed
// first, then the epoch loop applies the per-rating update to a permutation
// of the rating indices.
func (ca *CombinedAsymmetric) Fit(trainSet dataset.Ratings, feedback dataset.Feedback, config *FitConfig) {
	config = config.LoadDefaultIfNil()
	ca.SetData(trainSet, feedback)
	log.Logger().Info("fit combined asymmetric",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("feedback_size", ca.feedback.Count()),
		zap.Any("params", ca.GetParams()))
	ca.Init()
	start := time.Now()
	fitStart := start
	ca.RunEpochs(ca.rng, trainSet.Count(), config, ca.updateWeights, func(epoch int) {
		ca.invalidateCaches()
		if config.Tracker != nil {
			config.Tracker(epoch)
		}
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == ca.nEpochs) {
			log.Logger().Debug(fmt.Sprintf("fit combined asymmetric %v/%v", epoch, ca.nEpochs),
				zap.String("fit_time", time.Since(fitStart).String()),
				zap.Float32("objective", ca.ComputeObjective()))
			fitStart = time.Now()
		}
	})
	log.Logger().Info("fit combined asymmetric complete",
		zap.String("fit_time", time.Since(start).String()))
}

// updateWeights applies the gradient step for one rating. All gradient terms
// read the effective vectors aggregated before any write of this step, so a
// single rating never observes its own partial updates.
func (ca *CombinedAsymmetric) updateWeights(index int, updateUser, updateItem bool) {
	userId, itemId, rating := ca.ratings.Get(index)
	ratedItems := ca.itemsRatedByUser[userId]
	ratingUsers := ca.usersWhoRatedItem[itemId]
	// effective user vector: y rows summed over rated items, damped by sqrt(count)
	userNorm := 1 / math32.Sqrt(float32(len(ratedItems)))
	floats.SumRowsTo(ca.Y, ratedItems, ca.effUser)
	floats.MulConst(ca.effUser, userNorm)
	// effective item vector: x rows summed over rating users
	itemNorm := 1 / math32.Sqrt(float32(len(ratingUsers)))
	floats.SumRowsTo(ca.X, ratingUsers, ca.effItem)
	floats.MulConst(ca.effItem, itemNorm)

	score := ca.GlobalBias + ca.UserBias[userId] + ca.ItemBias[itemId] + floats.Dot(ca.effUser, ca.effItem)
	sig := 1 / (1 + math32.Exp(-score))
	rangeSize := ca.MaxRating - ca.MinRating
	prediction := ca.MinRating + sig*rangeSize
	err := rating - prediction
	gradientCommon := err * sig * (1 - sig) * rangeSize

	userReg := ca.userRegWeight(userId)
	itemReg := ca.itemRegWeight(itemId)
	if updateUser {
		ca.UserBias[userId] += ca.biasLr * ca.lr * (gradientCommon - ca.biasReg*userReg*ca.UserBias[userId])
	}
	if updateItem {
		ca.ItemBias[itemId] += ca.biasLr * ca.lr * (gradientCommon - ca.biasReg*itemReg*ca.ItemBias[itemId])
	}

	for f := 0; f < ca.nFactors; f++ {
		tmpU := ca.effUser[f]
		tmpI := ca.effItem[f]
		if updateUser {
			// direct row of the rating user
			deltaU := gradientCommon*tmpU - userReg*ca.X[userId][f]
			ca.X[userId][f] += ca.lr * deltaU
			// normalization-scaled fan-out to every other user who rated the item
			for _, otherUserId := range ratingUsers {
				if otherUserId != userId {
					deltaOther := gradientCommon*tmpU*itemNorm - ca.userRegWeight(otherUserId)*ca.X[otherUserId][f]
					ca.X[otherUserId][f] += ca.lr * deltaOther
				}
			}
		}
		if updateItem {
			// direct row of the rated item
			deltaI := gradientCommon*tmpI - itemReg*ca.Y[itemId][f]
			ca.Y[itemId][f] += ca.lr * deltaI
			// normalization-scaled fan-out to every other item rated by the user
			for _, otherItemId := range ratedItems {
				if otherItemId != itemId {
					deltaOther := gradientCommon*tmpI*userNorm - ca.itemRegWeight(otherItemId)*ca.Y[otherItemId][f]
					ca.Y[otherItemId][f] += ca.lr * deltaOther
				}
			}
		}
	}
}

// interactionsByUser sums the user's interactions from both feedback
// sources. Either side clamps to zero when the id exceeds its bounds.
func (ca *CombinedAsymmetric) interactionsByUser(userId int32) int {
	return ca.ratings.CountUser(userId) + ca.feedback.CountUser(userId)
}

func (ca *CombinedAsymmetric) interactionsOfItem(itemId int32) int {
	return ca.ratings.CountItem(itemId) + ca.feedback.CountItem(itemId)
}

func (ca *CombinedAsymmetric) userRegWeight(userId int32) float32 {
	if ca.frequencyReg {
		return ca.reg / math32.Sqrt(float32(ca.interactionsByUser(userId)))
	}
	return ca.reg
}

func (ca *CombinedAsymmetric) itemRegWeight(itemId int32) float32 {
	if ca.frequencyReg {
		return ca.reg / math32.Sqrt(float32(ca.interactionsOfItem(itemId)))
	}
	return ca.reg
}

func (ca *CombinedAsymmetric) invalidateCaches() {
	ca.userFactors = nil
	ca.itemFactors = nil
	ca.userCacheState = cacheStale
	ca.itemCacheState = cacheStale
}

// userFactorCache returns the per-user factor cache, rebuilding it from y
// and the neighbor index when stale. Users without rated neighbors keep a
// zero row.
func (ca *CombinedAsymmetric) userFactorCache() [][]float32 {
	if ca.userCacheState == cacheStale {
		ca.userFactors = make([][]float32, len(ca.UserBias))
		for u := range ca.userFactors {
			ca.userFactors[u] = make([]float32, ca.nFactors)
			neighbors := neighborList(ca.itemsRatedByUser, u)
			if len(neighbors) > 0 && ca.Y != nil {
				floats.SumRowsTo(ca.Y, neighbors, ca.userFactors[u])
				floats.MulConst(ca.userFactors[u], 1/math32.Sqrt(float32(len(neighbors))))
			}
		}
		ca.userCacheState = cacheFresh
	}
	return ca.userFactors
}

// itemFactorCache returns the per-item factor cache, rebuilding it from x
// and the neighbor index when stale.
func (ca *CombinedAsymmetric) itemFactorCache() [][]float32 {
	if ca.itemCacheState == cacheStale {
		ca.itemFactors = make([][]float32, len(ca.ItemBias))
		for i := range ca.itemFactors {
			ca.itemFactors[i] = make([]float32, ca.nFactors)
			neighbors := neighborList(ca.usersWhoRatedItem, i)
			if len(neighbors) > 0 && ca.X != nil {
				floats.SumRowsTo(ca.X, neighbors, ca.itemFactors[i])
				floats.MulConst(ca.itemFactors[i], 1/math32.Sqrt(float32(len(neighbors))))
			}
		}
		ca.itemCacheState = cacheFresh
	}
	return ca.itemFactors
}

func neighborList(lists [][]int32, id int) []int32 {
	if id < 0 || id >= len(lists) {
		return nil
	}
	return lists[id]
}

// Predict the rating given by a user to an item. The derived factor caches
// are rebuilt lazily and persist until the next training pass.
func (ca *CombinedAsymmetric) Predict(userId, itemId int32) float32 {
	userFactors := ca.userFactorCache()
	itemFactors := ca.itemFactorCache()
	score := ca.GlobalBias
	userKnown := userId >= 0 && int(userId) < len(ca.UserBias)
	itemKnown := itemId >= 0 && int(itemId) < len(ca.ItemBias)
	if userKnown {
		score += ca.UserBias[userId]
	} else {
		log.Logger().Warn("unknown user", zap.Int32("user_id", userId))
	}
	if itemKnown {
		score += ca.ItemBias[itemId]
	} else {
		log.Logger().Warn("unknown item", zap.Int32("item_id", itemId))
	}
	if userKnown && itemKnown {
		score += floats.Dot(userFactors[userId], itemFactors[itemId])
	}
	return ca.ScaleToRange(score)
}

// IsUserPredictable returns false if the user has no interaction in either
// feedback source and its factor row was never trained.
func (ca *CombinedAsymmetric) IsUserPredictable(userId int32) bool {
	if userId < 0 || userId > ca.maxUserId || ca.userTrained == nil {
		return false
	}
	return ca.userTrained.Test(uint(userId))
}

// IsItemPredictable returns false if the item has no interaction in either
// feedback source and its factor row was never trained.
func (ca *CombinedAsymmetric) IsItemPredictable(itemId int32) bool {
	if itemId < 0 || itemId > ca.maxItemId || ca.itemTrained == nil {
		return false
	}
	return ca.itemTrained.Test(uint(itemId))
}

// ComputeObjective returns the training loss plus the regularization
// complexity over all user and item ids in range. Complexity terms are
// weighted by sqrt(interaction count) under frequency regularization and by
// the raw count otherwise.
func (ca *CombinedAsymmetric) ComputeObjective() float32 {
	if ca.ratings == nil {
		return 0
	}
	var loss float32
	for index := 0; index < ca.ratings.Count(); index++ {
		userId, itemId, rating := ca.ratings.Get(index)
		err := rating - ca.Predict(userId, itemId)
		loss += err * err
	}
	var complexity float32
	for u := int32(0); u <= ca.maxUserId; u++ {
		w := ca.complexityWeight(ca.interactionsByUser(u))
		norm := floats.Norm(ca.X[u])
		complexity += w * ca.reg * norm * norm
		complexity += w * ca.reg * ca.biasReg * ca.UserBias[u] * ca.UserBias[u]
	}
	for i := int32(0); i <= ca.maxItemId; i++ {
		w := ca.complexityWeight(ca.interactionsOfItem(i))
		norm := floats.Norm(ca.Y[i])
		complexity += w * ca.reg * norm * norm
		complexity += w * ca.reg * ca.biasReg * ca.ItemBias[i] * ca.ItemBias[i]
	}
	return loss + complexity
}

func (ca *CombinedAsymmetric) complexityWeight(count int) float32 {
	if ca.frequencyReg {
		return math32.Sqrt(float32(count))
	}
	return float32(count)
}

// ItemRating is a rated item passed to FoldIn.
type ItemRating struct {
	ItemId int32
	Rating float32
}

// FoldIn is declared to compute transient factors for a user from a list of
// rated items without changing the model. Not implemented in this version.
func (ca *CombinedAsymmetric) FoldIn(ratedItems []ItemRating) ([]float32, error) {
	return nil, errors.NotSupportedf("fold-in")
}

// Marshal writes the model in the plain text layout: version tag, global
// bias, rating bounds, bias vectors, the x matrix and the precomputed user
// factor cache. Note that y is not persisted; the format captures the user
// side through its derived cache instead.
func (ca *CombinedAsymmetric) Marshal(w io.Writer) error {
	buffer := bufio.NewWriter(w)
	if err := encoding.WriteString(buffer, FormatVersion); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteFloat32(buffer, ca.GlobalBias); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteFloat32(buffer, ca.MinRating); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteFloat32(buffer, ca.MaxRating); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(buffer, ca.UserBias); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(buffer, ca.ItemBias); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(buffer, ca.X); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(buffer, ca.userFactorCache()); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(buffer.Flush())
}

// Unmarshal reads a model written by Marshal. All fields are read into
// locals and validated before any live state is overwritten, so a failed
// load leaves the model untouched. If the loaded dimensionality differs
// from the configured number of factors, the loaded value is adopted.
func (ca *CombinedAsymmetric) Unmarshal(r io.Reader) error {
	reader := bufio.NewReader(r)
	version, err := encoding.ReadLine(reader)
	if err != nil {
		return errors.Trace(err)
	}
	if version != FormatVersion {
		log.Logger().Warn("unexpected model format version",
			zap.String("expect", FormatVersion), zap.String("actual", version))
	}
	globalBias, err := encoding.ReadFloat32(reader)
	if err != nil {
		return errors.Trace(err)
	}
	minRating, err := encoding.ReadFloat32(reader)
	if err != nil {
		return errors.Trace(err)
	}
	maxRating, err := encoding.ReadFloat32(reader)
	if err != nil {
		return errors.Trace(err)
	}
	userBias, err := encoding.ReadVector(reader)
	if err != nil {
		return errors.Trace(err)
	}
	itemBias, err := encoding.ReadVector(reader)
	if err != nil {
		return errors.Trace(err)
	}
	x, err := encoding.ReadMatrix(reader)
	if err != nil {
		return errors.Trace(err)
	}
	userFactors, err := encoding.ReadMatrix(reader)
	if err != nil {
		return errors.Trace(err)
	}
	// validate dimensional consistency before mutating anything
	if len(userBias) != len(x) {
		return errors.Errorf("user bias length %d does not match user factor row count %d",
			len(userBias), len(x))
	}
	numFactors := ca.nFactors
	if len(x) > 0 {
		numFactors = len(x[0])
	} else if len(userFactors) > 0 {
		numFactors = len(userFactors[0])
	}
	for _, row := range userFactors {
		if len(row) != numFactors {
			return errors.Errorf("factor matrices disagree on dimensionality: %d vs %d",
				numFactors, len(row))
		}
	}
	if numFactors != ca.nFactors {
		log.Logger().Warn("number of factors differs from configuration, adopting loaded value",
			zap.Int("configured", ca.nFactors), zap.Int("loaded", numFactors))
		ca.nFactors = numFactors
	}
	// overwrite live state
	ca.GlobalBias = globalBias
	ca.MinRating = minRating
	ca.MaxRating = maxRating
	ca.UserBias = userBias
	ca.ItemBias = itemBias
	ca.X = x
	ca.Y = nil
	ca.userFactors = userFactors
	ca.userCacheState = cacheFresh
	ca.itemFactors = nil
	ca.itemCacheState = cacheStale
	ca.maxUserId = int32(len(userBias)) - 1
	ca.maxItemId = int32(len(itemBias)) - 1
	ca.itemsRatedByUser = nil
	ca.usersWhoRatedItem = nil
	return nil
}

// Clear model weights.
func (ca *CombinedAsymmetric) Clear() {
	ca.UserBias = nil
	ca.ItemBias = nil
	ca.X = nil
	ca.Y = nil
	ca.userFactors = nil
	ca.itemFactors = nil
	ca.itemsRatedByUser = nil
	ca.usersWhoRatedItem = nil
	ca.userTrained = nil
	ca.itemTrained = nil
}

func (ca *CombinedAsymmetric) Invalid() bool {
	return ca == nil || ca.UserBias == nil || ca.ItemBias == nil || ca.X == nil
}
