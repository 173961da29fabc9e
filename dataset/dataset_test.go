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

package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataset(t *testing.T) {
	d := NewDataset()
	assert.Zero(t, d.Count())
	assert.Equal(t, int32(-1), d.MaxUserId())
	assert.Equal(t, int32(-1), d.MaxItemId())

	d.Add(0, 5, 3)
	d.Add(2, 1, 5)
	d.Add(0, 1, 1)
	assert.Equal(t, 3, d.Count())
	userId, itemId, rating := d.Get(1)
	assert.Equal(t, int32(2), userId)
	assert.Equal(t, int32(1), itemId)
	assert.Equal(t, float32(5), rating)
	assert.Equal(t, int32(2), d.MaxUserId())
	assert.Equal(t, int32(5), d.MaxItemId())
	assert.Equal(t, 2, d.CountUser(0))
	assert.Equal(t, 0, d.CountUser(1))
	assert.Equal(t, 2, d.CountItem(1))
	assert.Equal(t, float32(1), d.MinRating())
	assert.Equal(t, float32(5), d.MaxRating())
	// ids out of range count zero
	assert.Zero(t, d.CountUser(-1))
	assert.Zero(t, d.CountUser(100))
	assert.Zero(t, d.CountItem(-1))
	assert.Zero(t, d.CountItem(100))
}

func TestSplit(t *testing.T) {
	d := NewDataset()
	for i := int32(0); i < 10; i++ {
		d.Add(i, i, float32(i%5)+1)
	}
	train, test := d.Split(0.2, 0)
	assert.Equal(t, 8, train.Count())
	assert.Equal(t, 2, test.Count())
	// the split is reproducible for a fixed seed
	train2, test2 := d.Split(0.2, 0)
	for i := 0; i < test.Count(); i++ {
		u1, i1, r1 := test.Get(i)
		u2, i2, r2 := test2.Get(i)
		assert.Equal(t, u1, u2)
		assert.Equal(t, i1, i2)
		assert.Equal(t, r1, r2)
	}
	assert.Equal(t, train.Count(), train2.Count())
}

func TestImplicit(t *testing.T) {
	f := NewImplicit()
	assert.Zero(t, f.Count())
	assert.Equal(t, int32(-1), f.MaxUserId())
	f.Add(1, 3)
	f.Add(1, 0)
	assert.Equal(t, 2, f.Count())
	userId, itemId := f.Get(0)
	assert.Equal(t, int32(1), userId)
	assert.Equal(t, int32(3), itemId)
	assert.Equal(t, int32(1), f.MaxUserId())
	assert.Equal(t, int32(3), f.MaxItemId())
	assert.Equal(t, 2, f.CountUser(1))
	assert.Zero(t, f.CountUser(0))
	assert.Equal(t, 1, f.CountItem(0))
	assert.Zero(t, f.CountItem(2))
}

func TestLoadRatingsFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratings.csv")
	require.NoError(t, os.WriteFile(path, []byte("user,item,rating\n0,1,4\n\n2,0,3.5\n"), 0o644))
	d, err := LoadRatingsFromCSV(path, ",", true)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Count())
	userId, itemId, rating := d.Get(1)
	assert.Equal(t, int32(2), userId)
	assert.Equal(t, int32(0), itemId)
	assert.Equal(t, float32(3.5), rating)

	_, err = LoadRatingsFromCSV(path, ",", false)
	assert.Error(t, err)
	_, err = LoadRatingsFromCSV(filepath.Join(t.TempDir(), "missing.csv"), ",", false)
	assert.Error(t, err)
}

func TestLoadFeedbackFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.csv")
	require.NoError(t, os.WriteFile(path, []byte("0\t1\n2\t0\textra\n"), 0o644))
	f, err := LoadFeedbackFromCSV(path, "\t", false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Count())
	userId, itemId := f.Get(1)
	assert.Equal(t, int32(2), userId)
	assert.Equal(t, int32(0), itemId)
}
