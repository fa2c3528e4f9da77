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
	"context"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/cplan/milp"
)

// Version is the version of CPlan.
const Version = "0.1.0"

// Pipeline runs one optimization from loaded layers to a selection grid.
type Pipeline struct {
	// Solver solves the compiled model. milp.DefaultSolver is used if it
	// is nil.
	Solver milp.Solver

	Log logrus.FieldLogger
}

// Result is the outcome of Pipeline.Optimize.
type Result struct {
	Status milp.Status

	// Selection is the solution grid, or nil if the solver returned no
	// values.
	Selection *Layer

	// Selected is the number of selected cells in Selection.
	Selected int

	Compiled *Compiled
}

func (p *Pipeline) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

// Optimize masks, compiles, solves and projects one run. The first layer
// in sorted path order sets the grid frame. A non-optimal solver status is
// not an error.
func (p *Pipeline) Optimize(ctx context.Context, layers map[string]*Layer, params *Parameters) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	paths := params.LayerPaths()
	ref, ok := layers[paths[0]]
	if !ok || ref == nil {
		return nil, ConfigErrorf("layer '%s' not found; available layers: %v", paths[0], sortedKeys(layers))
	}
	mask, err := ComputeMask(ref.Grid, params.Geometry)
	if err != nil {
		return nil, err
	}
	p.log().WithFields(logrus.Fields{
		"rows":  mask.Rows,
		"cols":  mask.Cols,
		"cells": mask.Count(),
	}).Info("cplan: computed boundary mask")

	compiler := &Compiler{Log: p.Log}
	compiled, err := compiler.Compile(layers, params.Layers, mask, params.TargetArea, params.IsPercentage)
	if err != nil {
		return nil, err
	}

	solver := p.Solver
	if solver == nil {
		solver = milp.DefaultSolver(p.log())
	}
	status, sol, err := Solve(ctx, solver, compiled)
	if err != nil {
		return nil, err
	}
	res := &Result{Status: status, Compiled: compiled}
	log := p.log().WithField("status", status)
	if status != milp.Optimal {
		log.Warn("cplan: solver did not find an optimal solution")
	}
	if len(sol) == 0 {
		return res, nil
	}
	res.Selection, err = Project(sol, mask.Grid, params.Geometry)
	if err != nil {
		return nil, err
	}
	res.Selected = res.Selection.CountPositive()
	if res.Selected == 0 {
		log.Warn("cplan: no cells selected")
	}
	log.WithField("cells", res.Selected).Info("cplan: optimization complete")
	return res, nil
}
