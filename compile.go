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

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/spatialmodel/cplan/milp"
)

// Compiler builds binary selection models from layers and rules.
type Compiler struct {
	// Log receives warnings about skipped constraints and fallbacks.
	// The standard logger is used if it is nil.
	Log logrus.FieldLogger
}

func (c *Compiler) log() logrus.FieldLogger {
	if c == nil || c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// Compiled is a model ready to be solved, together with the mapping from
// model variables to grid cells.
type Compiled struct {
	Model *milp.Model

	// Cells holds the grid cell of each model variable.
	Cells []Cell

	Grid Grid

	// DummyObjective is true if no layer contributed an objective term.
	DummyObjective bool

	// Target is the number of cells required by the fallback cardinality
	// constraint, or zero if none was added.
	Target int
}

// layerValues memoizes layer values at the valid cells for one Compile
// call. NaN marks missing values.
type layerValues struct {
	layers map[string]*Layer
	cells  []Cell
	memo   map[string][]float64
}

func (lv *layerValues) get(path string) []float64 {
	if v, ok := lv.memo[path]; ok {
		return v
	}
	l := lv.layers[path]
	v := make([]float64, len(lv.cells))
	for i, cell := range lv.cells {
		v[i] = l.At(cell.Row, cell.Col)
	}
	lv.memo[path] = v
	return v
}

// Compile builds a maximization model with one binary variable per valid
// cell of mask, in row-major order. Rules are applied in sorted path order.
// If no lock or value constraint applies, a cardinality constraint
// selecting targetArea cells (or percent of valid cells, if isPercentage)
// is added.
func (c *Compiler) Compile(layers map[string]*Layer, rules map[string]LayerRule, mask *Mask, targetArea float64, isPercentage bool) (*Compiled, error) {
	if mask == nil {
		return nil, ConfigErrorf("no validity mask provided")
	}
	paths := sortedKeys(rules)
	for _, path := range paths {
		if err := rules[path].Validate(path); err != nil {
			return nil, err
		}
		l, ok := layers[path]
		if !ok || l == nil {
			return nil, ConfigErrorf("layer '%s' not found; available layers: %s",
				path, strings.Join(sortedKeys(layers), ", "))
		}
		if !l.SameFrame(mask.Grid) {
			return nil, DataErrorf(path, l.Len(), "grid %d×%d %+v does not match mask grid %d×%d %+v",
				l.Rows, l.Cols, l.Transform, mask.Rows, mask.Cols, mask.Transform)
		}
	}
	cells := mask.Cells()
	if len(cells) == 0 {
		return nil, DataErrorf("", 0, "no valid cells inside the boundary")
	}
	lv := &layerValues{layers: layers, cells: cells, memo: make(map[string][]float64)}
	if err := c.checkEmpty(paths, lv); err != nil {
		return nil, err
	}

	m := milp.NewModel(true)
	for _, cell := range cells {
		m.AddVar(fmt.Sprintf("x_%d_%d", cell.Row, cell.Col))
	}
	out := &Compiled{Model: m, Cells: cells, Grid: mask.Grid}

	for _, path := range paths {
		r := rules[path]
		if r.Mode != Flexible || r.Importance == nil || *r.Importance == 0 {
			continue
		}
		for i, v := range lv.get(path) {
			if !math.IsNaN(v) {
				m.Objective = append(m.Objective, milp.Term{Var: i, Coef: *r.Importance * v})
			}
		}
	}
	if len(m.Objective) == 0 {
		out.DummyObjective = true
		for i := range cells {
			m.Objective = append(m.Objective, milp.Term{Var: i, Coef: 1})
		}
		c.log().WithField("cells", len(cells)).Warn("cplan: no objective terms; maximizing the number of selected cells")
	}

	for _, path := range paths {
		r := rules[path]
		vals := lv.get(path)
		var locked int
		switch r.Mode {
		case LockedIn:
			for i, v := range vals {
				if !math.IsNaN(v) && v >= *r.Threshold {
					m.AddConstraint(fmt.Sprintf("lock_in_%s_%s", path, cells[i]),
						[]milp.Term{{Var: i, Coef: 1}}, milp.EQ, 1)
					locked++
				}
			}
		case LockedOut:
			for i, v := range vals {
				if !math.IsNaN(v) && v > *r.Threshold {
					m.AddConstraint(fmt.Sprintf("lock_out_%s_%s", path, cells[i]),
						[]milp.Term{{Var: i, Coef: 1}}, milp.EQ, 0)
					locked++
				}
			}
		}
		if r.Mode != Flexible {
			c.log().WithFields(logrus.Fields{"layer": path, "mode": r.Mode, "cells": locked}).Info("cplan: locked cells")
		}
		for j, vc := range r.Constraints {
			c.addValueConstraint(m, path, j, vc, vals)
		}
	}

	if len(m.Constraints) == 0 {
		out.Target = TargetCells(targetArea, isPercentage, len(cells))
		terms := make([]milp.Term, len(cells))
		for i := range cells {
			terms[i] = milp.Term{Var: i, Coef: 1}
		}
		m.AddConstraint("target_area", terms, milp.EQ, float64(out.Target))
		c.log().WithFields(logrus.Fields{
			"target_area":   targetArea,
			"is_percentage": isPercentage,
			"cells":         out.Target,
			"valid_cells":   len(cells),
		}).Warn("cplan: NO LOCK OR VALUE CONSTRAINTS GIVEN; FALLING BACK TO A TARGET AREA CONSTRAINT")
	}
	c.log().WithFields(logrus.Fields{
		"vars":        m.NumVars(),
		"constraints": len(m.Constraints),
		"terms":       len(m.Objective),
	}).Info("cplan: compiled model")
	return out, nil
}

func (c *Compiler) addValueConstraint(m *milp.Model, path string, j int, vc ValueConstraint, vals []float64) {
	var (
		terms   []milp.Term
		present []float64
	)
	for i, v := range vals {
		if !math.IsNaN(v) {
			terms = append(terms, milp.Term{Var: i, Coef: v})
			present = append(present, v)
		}
	}
	if len(terms) == 0 {
		c.log().WithError(DataErrorf(path, 0, "no valid values")).Warn("cplan: skipping value constraint")
		return
	}
	scale := 1.0
	if vc.Type == Percent {
		total := floats.Sum(present)
		if total == 0 {
			c.log().WithError(DataErrorf(path, len(present), "layer total is zero")).Warn("cplan: skipping percent constraint")
			return
		}
		scale = total / 100
	}
	if vc.Min != nil {
		m.AddConstraint(fmt.Sprintf("min_%s_%d", path, j), terms, milp.GE, *vc.Min*scale)
	}
	if vc.Max != nil {
		m.AddConstraint(fmt.Sprintf("max_%s_%d", path, j), terms, milp.LE, *vc.Max*scale)
	}
}

// checkEmpty warns about layers with no data inside the mask and fails if
// every layer of a group is empty.
func (c *Compiler) checkEmpty(paths []string, lv *layerValues) error {
	type count struct{ layers, empty int }
	groups := make(map[string]*count)
	for _, path := range paths {
		group, _, err := SplitLayerPath(path)
		if err != nil {
			group = path
		}
		if groups[group] == nil {
			groups[group] = new(count)
		}
		groups[group].layers++
		n := 0
		for _, v := range lv.get(path) {
			if !math.IsNaN(v) {
				n++
			}
		}
		if n == 0 {
			groups[group].empty++
			c.log().WithError(DataErrorf(path, len(lv.cells), "no valid data inside the boundary")).Warn("cplan: empty layer")
		}
	}
	for _, group := range sortedKeys(groups) {
		if g := groups[group]; g.empty == g.layers {
			return DataErrorf(group, len(lv.cells), "all %d layers of the group are empty inside the boundary", g.layers)
		}
	}
	return nil
}

// TargetCells returns the number of cells selected by the fallback
// cardinality constraint. A percentage is rounded half to even. The result
// is clamped to [1, valid].
func TargetCells(targetArea float64, isPercentage bool, valid int) int {
	t := targetArea
	if isPercentage {
		t = math.RoundToEven(targetArea / 100 * float64(valid))
	} else {
		t = math.Trunc(t)
	}
	// Clamp before converting so huge targets cannot overflow.
	t = math.Max(1, math.Min(t, float64(valid)))
	if math.IsNaN(t) {
		t = 1
	}
	return int(t)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
