//go:build highs

package milp

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestHiGHS(t *testing.T) {
	t.Run("knapsack", func(t *testing.T) {
		m := NewModel(true)
		vars(m, 4)
		m.Objective = []Term{{0, 10}, {1, 13}, {2, 7}, {3, 8}}
		m.AddConstraint("weight", []Term{{0, 5}, {1, 7}, {2, 4}, {3, 3}}, LE, 14)
		res, err := new(HiGHS).Solve(context.Background(), m)
		if err != nil {
			t.Fatal(err)
		}
		if want := []float64{0, 1, 1, 1}; res.Status != Optimal || !reflect.DeepEqual(res.X, want) {
			t.Errorf("%v %v != %v", res.Status, res.X, want)
		}
	})
	t.Run("infeasible", func(t *testing.T) {
		m := NewModel(true)
		vars(m, 3)
		m.Objective = ones(3)
		m.AddConstraint("a", []Term{{0, 2}, {1, 2}, {2, 2}}, EQ, 3)
		res, err := new(HiGHS).Solve(context.Background(), m)
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != Infeasible || res.X != nil {
			t.Errorf("%v %v", res.Status, res.X)
		}
	})
	t.Run("large", func(t *testing.T) {
		m, want := cardinalityModel(10000, 5000)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		res, err := new(HiGHS).Solve(ctx, m)
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != Optimal || !reflect.DeepEqual(res.X, want) {
			t.Errorf("status %v", res.Status)
		}
	})
	t.Run("default", func(t *testing.T) {
		if _, ok := DefaultSolver(nil).(*HiGHS); !ok {
			t.Errorf("default solver is %T", DefaultSolver(nil))
		}
	})
}
