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

// Package encoding implements the plain text framing convention shared by
// model files: one scalar per line, vectors and matrices preceded by a
// dimension header, all numbers in locale independent decimal text.
package encoding

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// FormatFloat32 returns the shortest decimal text that parses back to val.
func FormatFloat32(val float32) string {
	return strconv.FormatFloat(float64(val), 'f', -1, 32)
}

// ParseFloat32 parses decimal text written by FormatFloat32.
func ParseFloat32(s string) (float32, error) {
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return float32(val), nil
}

// ReadLine reads one line and strips the trailing newline.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", errors.Trace(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteString writes a single line.
func WriteString(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return errors.Trace(err)
}

// WriteFloat32 writes a scalar on its own line.
func WriteFloat32(w io.Writer, val float32) error {
	return WriteString(w, FormatFloat32(val))
}

// ReadFloat32 reads a scalar from its own line.
func ReadFloat32(r *bufio.Reader) (float32, error) {
	line, err := ReadLine(r)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return ParseFloat32(line)
}

// WriteVector writes a vector framed by its length header.
func WriteVector(w io.Writer, v []float32) error {
	if _, err := fmt.Fprintln(w, len(v)); err != nil {
		return errors.Trace(err)
	}
	for _, val := range v {
		if err := WriteFloat32(w, val); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadVector reads a vector framed by its length header.
func ReadVector(r *bufio.Reader) ([]float32, error) {
	line, err := ReadLine(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	length, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return nil, errors.Trace(err)
	}
	v := make([]float32, length)
	for i := range v {
		if v[i], err = ReadFloat32(r); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return v, nil
}

// WriteMatrix writes a matrix framed by a "rows cols" header, one row per
// line with space separated values.
func WriteMatrix(w io.Writer, m [][]float32) error {
	rows, cols := len(m), 0
	if rows > 0 {
		cols = len(m[0])
	}
	if _, err := fmt.Fprintln(w, rows, cols); err != nil {
		return errors.Trace(err)
	}
	builder := strings.Builder{}
	for _, row := range m {
		builder.Reset()
		for j, val := range row {
			if j > 0 {
				builder.WriteByte(' ')
			}
			builder.WriteString(FormatFloat32(val))
		}
		if _, err := fmt.Fprintln(w, builder.String()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ReadMatrix reads a matrix framed by a "rows cols" header.
func ReadMatrix(r *bufio.Reader) ([][]float32, error) {
	line, err := ReadLine(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return nil, errors.Errorf("malformed matrix header %q", line)
	}
	rows, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, errors.Trace(err)
	}
	cols, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := make([][]float32, rows)
	for i := range m {
		if line, err = ReadLine(r); err != nil {
			return nil, errors.Trace(err)
		}
		values := strings.Fields(line)
		if len(values) != cols {
			return nil, errors.Errorf("matrix row %d has %d columns, expected %d", i, len(values), cols)
		}
		m[i] = make([]float32, cols)
		for j, value := range values {
			if m[i][j], err = ParseFloat32(value); err != nil {
				return nil, errors.Trace(err)
			}
		}
	}
	return m, nil
}
