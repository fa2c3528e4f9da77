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

//go:build highs

package milp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	highs "github.com/bartolsthoorn/gohighs"
	"github.com/sirupsen/logrus"
)

// highsInteger is HiGHS's integer variable type (kHighsVarTypeInteger).
const highsInteger = highs.VariableType(1)

func init() {
	defaultSolver = func(log logrus.FieldLogger) Solver {
		return &HiGHS{Log: log}
	}
}

// HiGHS solves models with the HiGHS mixed-integer solver. A context
// deadline becomes the HiGHS time limit.
type HiGHS struct {
	// MIPRelGap is the relative optimality gap at which HiGHS stops. Zero
	// uses the HiGHS default.
	MIPRelGap float64

	// Threads limits the HiGHS worker threads. Zero uses the HiGHS default.
	Threads int

	Log logrus.FieldLogger
}

func (h *HiGHS) log() logrus.FieldLogger {
	if h.Log == nil {
		return logrus.StandardLogger()
	}
	return h.Log
}

// toHiGHS converts m to a HiGHS model with binary columns and one sparse
// row per constraint.
func toHiGHS(m *Model) *highs.Model {
	n := m.NumVars()
	hm := &highs.Model{
		Maximize: m.Maximize,
		ColCosts: make([]float64, n),
		ColLower: make([]float64, n),
		ColUpper: make([]float64, n),
		VarTypes: make([]highs.VariableType, n),
	}
	for j := 0; j < n; j++ {
		hm.ColUpper[j] = 1
		hm.VarTypes[j] = highsInteger
	}
	for _, t := range m.Objective {
		hm.ColCosts[t.Var] += t.Coef
	}
	for _, c := range m.Constraints {
		coef := make(map[int]float64, len(c.Terms))
		for _, t := range c.Terms {
			coef[t.Var] += t.Coef
		}
		cols := make([]int, 0, len(coef))
		for v := range coef {
			cols = append(cols, v)
		}
		sort.Ints(cols)
		vals := make([]float64, len(cols))
		for k, v := range cols {
			vals[k] = coef[v]
		}
		lower, upper := math.Inf(-1), math.Inf(1)
		switch c.Sense {
		case LE:
			upper = c.RHS
		case GE:
			lower = c.RHS
		default:
			lower, upper = c.RHS, c.RHS
		}
		hm.AddSparseRow(lower, cols, vals, upper)
	}
	return hm
}

// Solve implements Solver. If ctx is canceled before HiGHS returns, Solve
// returns ctx.Err() and the solve is abandoned.
func (h *HiGHS) Solve(ctx context.Context, m *Model) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.NumVars() == 0 {
		return &Result{Status: Optimal, X: []float64{}}, nil
	}
	opts := []highs.SolveOption{highs.WithOutput(false)}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, highs.WithTimeLimit(math.Max(time.Until(deadline).Seconds(), 0.001)))
	}
	if h.MIPRelGap > 0 {
		opts = append(opts, highs.WithMIPRelGap(h.MIPRelGap))
	}
	if h.Threads > 0 {
		opts = append(opts, highs.WithThreads(h.Threads))
	}

	type outcome struct {
		sol *highs.Solution
		err error
	}
	done := make(chan outcome, 1)
	hm := toHiGHS(m)
	go func() {
		sol, err := hm.Solve(opts...)
		done <- outcome{sol: sol, err: err}
	}()
	var o outcome
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o = <-done:
	}
	if o.err != nil {
		return nil, fmt.Errorf("milp: HiGHS: %w", o.err)
	}

	res := &Result{}
	switch {
	case o.sol.IsOptimal():
		res.Status = Optimal
	case o.sol.IsInfeasible():
		// Binary columns are bounded, so unbounded-or-infeasible means
		// infeasible.
		res.Status = Infeasible
	case o.sol.IsUnbounded():
		res.Status = Unbounded
	case o.sol.IsTimeLimit():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Status = NotSolved
	default:
		res.Status = NotSolved
	}
	if o.sol.HasSolution() && (res.Status == Optimal || res.Status == NotSolved) {
		res.X = make([]float64, m.NumVars())
		for j := range res.X {
			res.X[j] = math.Round(o.sol.Value(j))
		}
		res.Objective = Eval(m.Objective, res.X)
		if res.Status == NotSolved {
			res.Status = Undefined
		}
	}
	h.log().WithFields(logrus.Fields{
		"vars":        m.NumVars(),
		"constraints": len(m.Constraints),
		"status":      res.Status,
	}).Debug("milp: HiGHS solve complete")
	return res, nil
}
