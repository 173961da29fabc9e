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

package encoding

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFloat32(t *testing.T) {
	assert.Equal(t, "0.1", FormatFloat32(0.1))
	assert.Equal(t, "-3.5", FormatFloat32(-3.5))
	assert.Equal(t, "0", FormatFloat32(0))
	val, err := ParseFloat32(FormatFloat32(0.123456789))
	require.NoError(t, err)
	assert.Equal(t, float32(0.123456789), val)
	_, err = ParseFloat32("not a number")
	assert.Error(t, err)
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("first\r\nsecond\nlast"))
	line, err := ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, "first", line)
	line, err = ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, "second", line)
	// a line without trailing newline is still readable
	line, err = ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, "last", line)
	_, err = ReadLine(r)
	assert.Error(t, err)
}

func TestVector(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteVector(buf, []float32{1.5, -0.25, 0}))
	v, err := ReadVector(bufio.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -0.25, 0}, v)
}

func TestVectorEmpty(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteVector(buf, nil))
	v, err := ReadVector(bufio.NewReader(buf))
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestVectorTruncated(t *testing.T) {
	_, err := ReadVector(bufio.NewReader(strings.NewReader("3\n1\n2\n")))
	assert.Error(t, err)
}

func TestMatrix(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteMatrix(buf, [][]float32{{1, 2, 3}, {-4, 5.5, 6}}))
	m, err := ReadMatrix(bufio.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3}, {-4, 5.5, 6}}, m)
}

func TestMatrixMalformed(t *testing.T) {
	_, err := ReadMatrix(bufio.NewReader(strings.NewReader("2\n")))
	assert.Error(t, err)
	_, err = ReadMatrix(bufio.NewReader(strings.NewReader("2 2\n1 2\n3\n")))
	assert.Error(t, err)
	_, err = ReadMatrix(bufio.NewReader(strings.NewReader("1 2\n1 x\n")))
	assert.Error(t, err)
}
