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

// Package dataset holds rating observations and positive only feedback used
// to train rating prediction models. Ids are raw non-negative integers,
// ratings are 32-bit floats.
package dataset

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/gorse-io/asymfactor/base"
)

// Ratings is random access to explicit rating observations.
type Ratings interface {
	// Count returns the number of rating observations.
	Count() int
	// Get returns the observation at a rating index.
	Get(index int) (userId, itemId int32, rating float32)
	// MaxUserId returns the maximum observed user id, -1 when empty.
	MaxUserId() int32
	// MaxItemId returns the maximum observed item id, -1 when empty.
	MaxItemId() int32
	// CountUser returns the number of observations by a user.
	CountUser(userId int32) int
	// CountItem returns the number of observations of an item.
	CountItem(itemId int32) int
	// MinRating returns the smallest observed rating value.
	MinRating() float32
	// MaxRating returns the largest observed rating value.
	MaxRating() float32
}

// Feedback is a positive only feedback source. It carries no rating values,
// only interaction counts and id bounds.
type Feedback interface {
	Count() int
	Get(index int) (userId, itemId int32)
	MaxUserId() int32
	MaxItemId() int32
	CountUser(userId int32) int
	CountItem(itemId int32) int
}

// Dataset is an ordered collection of (user, item, rating) triplets.
type Dataset struct {
	users      []int32
	items      []int32
	ratings    []float32
	userCounts []int
	itemCounts []int
	minRating  float32
	maxRating  float32
}

// NewDataset creates an empty rating collection.
func NewDataset() *Dataset {
	return &Dataset{}
}

// Add appends a rating observation.
func (d *Dataset) Add(userId, itemId int32, rating float32) {
	if len(d.ratings) == 0 {
		d.minRating = rating
		d.maxRating = rating
	} else {
		d.minRating = min(d.minRating, rating)
		d.maxRating = max(d.maxRating, rating)
	}
	d.users = append(d.users, userId)
	d.items = append(d.items, itemId)
	d.ratings = append(d.ratings, rating)
	d.userCounts = grow(d.userCounts, int(userId))
	d.itemCounts = grow(d.itemCounts, int(itemId))
	d.userCounts[userId]++
	d.itemCounts[itemId]++
}

func (d *Dataset) Count() int {
	return len(d.ratings)
}

func (d *Dataset) Get(index int) (int32, int32, float32) {
	return d.users[index], d.items[index], d.ratings[index]
}

func (d *Dataset) MaxUserId() int32 {
	return int32(len(d.userCounts)) - 1
}

func (d *Dataset) MaxItemId() int32 {
	return int32(len(d.itemCounts)) - 1
}

func (d *Dataset) CountUser(userId int32) int {
	if userId < 0 || int(userId) >= len(d.userCounts) {
		return 0
	}
	return d.userCounts[userId]
}

func (d *Dataset) CountItem(itemId int32) int {
	if itemId < 0 || int(itemId) >= len(d.itemCounts) {
		return 0
	}
	return d.itemCounts[itemId]
}

func (d *Dataset) MinRating() float32 {
	return d.minRating
}

func (d *Dataset) MaxRating() float32 {
	return d.maxRating
}

// Split splits the collection into a training set and a test set. The test
// set receives ratio of the observations, selected by a seeded shuffle.
func (d *Dataset) Split(ratio float32, seed int64) (*Dataset, *Dataset) {
	rng := base.NewRandomGenerator(seed)
	perm := rng.Perm(d.Count())
	testSize := int(float32(d.Count()) * ratio)
	train, test := NewDataset(), NewDataset()
	for i, index := range perm {
		userId, itemId, rating := d.Get(index)
		if i < testSize {
			test.Add(userId, itemId, rating)
		} else {
			train.Add(userId, itemId, rating)
		}
	}
	return train, test
}

// Implicit is a positive only feedback collection.
type Implicit struct {
	users      []int32
	items      []int32
	userCounts []int
	itemCounts []int
}

// NewImplicit creates an empty feedback collection.
func NewImplicit() *Implicit {
	return &Implicit{}
}

// Add appends a positive feedback pair.
func (f *Implicit) Add(userId, itemId int32) {
	f.users = append(f.users, userId)
	f.items = append(f.items, itemId)
	f.userCounts = grow(f.userCounts, int(userId))
	f.itemCounts = grow(f.itemCounts, int(itemId))
	f.userCounts[userId]++
	f.itemCounts[itemId]++
}

func (f *Implicit) Count() int {
	return len(f.users)
}

func (f *Implicit) Get(index int) (int32, int32) {
	return f.users[index], f.items[index]
}

func (f *Implicit) MaxUserId() int32 {
	return int32(len(f.userCounts)) - 1
}

func (f *Implicit) MaxItemId() int32 {
	return int32(len(f.itemCounts)) - 1
}

func (f *Implicit) CountUser(userId int32) int {
	if userId < 0 || int(userId) >= len(f.userCounts) {
		return 0
	}
	return f.userCounts[userId]
}

func (f *Implicit) CountItem(itemId int32) int {
	if itemId < 0 || int(itemId) >= len(f.itemCounts) {
		return 0
	}
	return f.itemCounts[itemId]
}

func grow(counts []int, id int) []int {
	for len(counts) <= id {
		counts = append(counts, 0)
	}
	return counts
}

// LoadRatingsFromCSV reads (userId, itemId, rating) triplets from a
// delimited text file.
func LoadRatingsFromCSV(path, sep string, hasHeader bool) (*Dataset, error) {
	d := NewDataset()
	err := forEachLine(path, hasHeader, func(fields []string) error {
		if len(fields) < 3 {
			return errors.Errorf("expected at least 3 fields, got %d", len(fields))
		}
		userId, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return errors.Trace(err)
		}
		itemId, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return errors.Trace(err)
		}
		rating, err := strconv.ParseFloat(fields[2], 32)
		if err != nil {
			return errors.Trace(err)
		}
		d.Add(int32(userId), int32(itemId), float32(rating))
		return nil
	}, sep)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return d, nil
}

// LoadFeedbackFromCSV reads positive only (userId, itemId) pairs from a
// delimited text file. Extra fields are ignored.
func LoadFeedbackFromCSV(path, sep string, hasHeader bool) (*Implicit, error) {
	f := NewImplicit()
	err := forEachLine(path, hasHeader, func(fields []string) error {
		if len(fields) < 2 {
			return errors.Errorf("expected at least 2 fields, got %d", len(fields))
		}
		userId, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return errors.Trace(err)
		}
		itemId, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return errors.Trace(err)
		}
		f.Add(int32(userId), int32(itemId))
		return nil
	}, sep)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return f, nil
}

func forEachLine(path string, hasHeader bool, handler func(fields []string) error, sep string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if hasHeader {
			hasHeader = false
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err = handler(strings.Split(line, sep)); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(scanner.Err())
}
