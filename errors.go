/*
Copyright © 2026 the CPlan authors.
This file is part of CPlan.

CPlan is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

CPlan is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with CPlan.  If not, see <http://www.gnu.org/licenses/>.
*/

package cplan

import "fmt"

// ConfigurationError indicates missing or invalid run configuration:
// rule fields, layer paths, boundaries or parameters. It is never worth
// retrying.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string { return "cplan: configuration: " + e.msg }

// ConfigErrorf returns a *ConfigurationError with a formatted message.
func ConfigErrorf(format string, a ...interface{}) error {
	return &ConfigurationError{msg: fmt.Sprintf(format, a...)}
}

// DataError indicates that input data cannot support the requested
// operation, for example a layer with no valid cells.
type DataError struct {
	// Layer is the layer path the problem was found in, if any.
	Layer string
	// Cells is the number of cells affected.
	Cells int
	msg   string
}

func (e *DataError) Error() string {
	if e.Layer == "" {
		return "cplan: data: " + e.msg
	}
	return fmt.Sprintf("cplan: data: layer '%s' (%d cells): %s", e.Layer, e.Cells, e.msg)
}

// DataErrorf returns a *DataError with a formatted message.
func DataErrorf(layer string, cells int, format string, a ...interface{}) error {
	return &DataError{Layer: layer, Cells: cells, msg: fmt.Sprintf(format, a...)}
}

// SolveError wraps an error raised by the solver itself, for example
// because the model was malformed.
type SolveError struct {
	Err error
}

func (e *SolveError) Error() string { return "cplan: solve: " + e.Err.Error() }

func (e *SolveError) Unwrap() error { return e.Err }

// TilingError indicates that a tile archive could not be produced.
type TilingError struct {
	msg string
	Err error
}

func (e *TilingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cplan: tiling: %s: %v", e.msg, e.Err)
	}
	return "cplan: tiling: " + e.msg
}

func (e *TilingError) Unwrap() error { return e.Err }

// TilingErrorf returns a *TilingError with a formatted message.
func TilingErrorf(format string, a ...interface{}) error {
	return &TilingError{msg: fmt.Sprintf(format, a...)}
}

// WrapTilingError returns a *TilingError wrapping err.
func WrapTilingError(err error, msg string) error {
	return &TilingError{msg: msg, Err: err}
}
