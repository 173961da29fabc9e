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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams(t *testing.T) {
	p := Params{
		NFactors:     10,
		Lr:           0.5,
		FrequencyReg: true,
		RandomState:  42,
	}
	assert.Equal(t, 10, p.GetInt(NFactors, 0))
	assert.Equal(t, 30, p.GetInt(NEpochs, 30))
	assert.Equal(t, float32(0.5), p.GetFloat32(Lr, 0))
	assert.True(t, p.GetBool(FrequencyReg, false))
	assert.False(t, p.GetBool(BiasReg, false))
	assert.Equal(t, int64(42), p.GetInt64(RandomState, 0))
	// type mismatch falls back to the default
	assert.Equal(t, 0, p.GetInt(Lr, 0))
	assert.False(t, p.GetBool(NFactors, false))
}

func TestParamsCopy(t *testing.T) {
	p := Params{NFactors: 10}
	q := p.Copy()
	q[NFactors] = 20
	assert.Equal(t, 10, p.GetInt(NFactors, 0))
	assert.Equal(t, 20, q.GetInt(NFactors, 0))
}

func TestParamsOverwrite(t *testing.T) {
	p := Params{NFactors: 10, Lr: 0.1}
	q := p.Overwrite(Params{Lr: 0.5, NEpochs: 100})
	assert.Equal(t, 10, q.GetInt(NFactors, 0))
	assert.Equal(t, float32(0.5), q.GetFloat32(Lr, 0))
	assert.Equal(t, 100, q.GetInt(NEpochs, 0))
	// the receiver is left untouched
	assert.Equal(t, float32(0.1), p.GetFloat32(Lr, 0))
}

func TestParamsGrid(t *testing.T) {
	grid := ParamsGrid{NFactors: []interface{}{10, 20}}
	grid.Fill(ParamsGrid{NFactors: []interface{}{5}, Lr: []interface{}{0.1}})
	assert.Equal(t, 2, grid.Len())
	assert.Equal(t, []interface{}{10, 20}, grid[NFactors])
	assert.Equal(t, []interface{}{0.1}, grid[Lr])
}
