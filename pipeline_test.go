package cplan

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/ctessum/geom"

	"github.com/spatialmodel/cplan/milp"
)

func selectedCells(l *Layer) []Cell {
	var cells []Cell
	for r := 0; r < l.Rows; r++ {
		for c := 0; c < l.Cols; c++ {
			if l.At(r, c) > 0.5 {
				cells = append(cells, Cell{Row: r, Col: c})
			}
		}
	}
	return cells
}

func TestOptimizeScenario(t *testing.T) {
	l := testLayer(t, scenarioValues)
	layers := map[string]*Layer{"species/habitat": l}
	tests := []struct {
		name     string
		boundary geom.Polygon
		want     []Cell
	}{
		{
			// Rows 0-2: 12 valid cells, so 6 are selected.
			name:     "rows 0-2",
			boundary: rect(0, 1, 4, 4),
			want:     []Cell{{0, 1}, {1, 0}, {1, 1}, {1, 2}, {2, 2}, {2, 3}},
		},
		{
			// Rows 0-1, columns 0-2: 6 valid cells, so 3 are selected.
			name:     "rows 0-1, cols 0-2",
			boundary: rect(0, 2, 3, 4),
			want:     []Cell{{1, 0}, {1, 1}, {1, 2}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			params := DefaultParameters()
			params.Geometry = Geometries{test.boundary}
			params.Layers = map[string]LayerRule{"species/habitat": {Mode: Flexible, Importance: float(1)}}
			res, err := new(Pipeline).Optimize(context.Background(), layers, params)
			if err != nil {
				t.Fatal(err)
			}
			if res.Status != milp.Optimal {
				t.Fatalf("status: %v", res.Status)
			}
			have := selectedCells(res.Selection)
			if !reflect.DeepEqual(have, test.want) {
				t.Errorf("%v != %v", have, test.want)
			}
			if res.Selected != len(test.want) {
				t.Errorf("selected: %d != %d", res.Selected, len(test.want))
			}
		})
	}
}

func TestOptimizeAbsoluteTargetClamp(t *testing.T) {
	l := testLayer(t, scenarioValues)
	params := DefaultParameters()
	// Rows 0-1 and columns 0-1 of rows 2: 10 valid cells.
	params.Geometry = Geometries{rect(0, 2, 4, 4), rect(0, 1, 2, 2)}
	params.TargetArea = 150
	params.IsPercentage = false
	params.Layers = map[string]LayerRule{"a/v": {Mode: Flexible, Importance: float(1)}}
	res, err := new(Pipeline).Optimize(context.Background(), map[string]*Layer{"a/v": l}, params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Compiled.Model.NumVars() != 10 {
		t.Fatalf("valid cells: %d != 10", res.Compiled.Model.NumVars())
	}
	if res.Status != milp.Optimal || res.Selected != 10 {
		t.Errorf("status %v, selected %d; want Optimal, 10", res.Status, res.Selected)
	}
}

func TestOptimizeLocksOnly(t *testing.T) {
	l := testLayer(t, scenarioValues)
	roads := testLayer(t, [][]float64{{0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {1, 1, 1, 1}})
	params := DefaultParameters()
	params.Geometry = Geometries{rect(0, 0, 4, 4)}
	params.Layers = map[string]LayerRule{
		"a/in":        {Mode: LockedIn, Threshold: float(3)},
		"human/roads": {Mode: LockedOut, Threshold: float(0.5)},
	}
	layers := map[string]*Layer{"a/in": l, "human/roads": roads}
	res, err := new(Pipeline).Optimize(context.Background(), layers, params)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Compiled.DummyObjective {
		t.Error("expected dummy objective")
	}
	if res.Status != milp.Optimal {
		t.Fatalf("status: %v", res.Status)
	}
	// The dummy objective selects every cell that is not locked out.
	var want []Cell
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			want = append(want, Cell{r, c})
		}
	}
	if have := selectedCells(res.Selection); !reflect.DeepEqual(have, want) {
		t.Errorf("%v != %v", have, want)
	}
}

func TestOptimizeInfeasibleLocks(t *testing.T) {
	l := testLayer(t, scenarioValues)
	params := DefaultParameters()
	params.Geometry = Geometries{rect(0, 0, 4, 4)}
	params.Layers = map[string]LayerRule{
		"a/in":  {Mode: LockedIn, Threshold: float(5)},
		"a/out": {Mode: LockedOut, Threshold: float(2)},
	}
	res, err := new(Pipeline).Optimize(context.Background(), map[string]*Layer{"a/in": l, "a/out": l}, params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != milp.Infeasible {
		t.Errorf("status: %v != Infeasible", res.Status)
	}
	if res.Selection != nil {
		t.Error("infeasible run should have no selection")
	}
}

func TestOptimizePercentMinimum(t *testing.T) {
	l := testLayer(t, scenarioValues)
	params := DefaultParameters()
	params.Geometry = Geometries{rect(0, 0, 4, 4)}
	params.Layers = map[string]LayerRule{
		"a/cost": {Mode: Flexible, Importance: float(-1),
			Constraints: []ValueConstraint{{Min: float(30), Type: Percent}}},
	}
	res, err := new(Pipeline).Optimize(context.Background(), map[string]*Layer{"a/cost": l}, params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != milp.Optimal {
		t.Fatalf("status: %v", res.Status)
	}
	var sum float64
	for _, c := range selectedCells(res.Selection) {
		if v := l.At(c.Row, c.Col); !math.IsNaN(v) {
			sum += v
		}
	}
	// The cheapest selection reaching 30% of 25 has a value of 8.
	if sum != 8 {
		t.Errorf("selected value %g; want 8", sum)
	}
}

type failingSolver struct{}

func (failingSolver) Solve(context.Context, *milp.Model) (*milp.Result, error) {
	return nil, errors.New("license expired")
}

func TestOptimizeSolverError(t *testing.T) {
	l := testLayer(t, scenarioValues)
	params := DefaultParameters()
	params.Geometry = Geometries{rect(0, 0, 4, 4)}
	params.Layers = map[string]LayerRule{"a/v": {Mode: Flexible, Importance: float(1)}}
	p := &Pipeline{Solver: failingSolver{}}
	_, err := p.Optimize(context.Background(), map[string]*Layer{"a/v": l}, params)
	var se *SolveError
	if !errors.As(err, &se) {
		t.Fatalf("want SolveError, have %v", err)
	}
}

func TestProject(t *testing.T) {
	l := testLayer(t, scenarioValues)
	boundary := []geom.Polygonal{rect(0, 1, 4, 4)}
	sol := Solution{{0, 0}: 1, {2, 3}: 1, {3, 3}: 1, {1, 1}: 0}
	p, err := Project(sol, l.Grid, boundary)
	if err != nil {
		t.Fatal(err)
	}
	// (3,3) is outside the boundary and is zeroed.
	want := []float64{
		1, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 1,
		0, 0, 0, 0,
	}
	if !reflect.DeepEqual(p.Data, want) {
		t.Errorf("%v != %v", p.Data, want)
	}

	t.Run("idempotent", func(t *testing.T) {
		again := make(Solution)
		for i, v := range p.Data {
			again[Cell{Row: i / p.Cols, Col: i % p.Cols}] = v
		}
		p2, err := Project(again, l.Grid, boundary)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(p.Data, p2.Data) {
			t.Errorf("%v != %v", p2.Data, p.Data)
		}
	})
	t.Run("outside grid", func(t *testing.T) {
		_, err := Project(Solution{{4, 0}: 1}, l.Grid, boundary)
		var de *DataError
		if !errors.As(err, &de) {
			t.Errorf("want DataError, have %v", err)
		}
	})
	t.Run("all zero", func(t *testing.T) {
		p, err := Project(Solution{{3, 0}: 1}, l.Grid, boundary)
		if err != nil {
			t.Fatal(err)
		}
		if p.CountPositive() != 0 {
			t.Error("expected an all-zero grid")
		}
	})
}

func TestSolutionSelected(t *testing.T) {
	s := Solution{{0, 0}: 1, {0, 1}: 0, {1, 0}: 0.9999999}
	if n := s.Selected(); n != 2 {
		t.Errorf("%d != 2", n)
	}
	keys := make([]string, 0, len(s))
	for c := range s {
		keys = append(keys, c.String())
	}
	sort.Strings(keys)
	if want := []string{"(0,0)", "(0,1)", "(1,0)"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("%v != %v", keys, want)
	}
}
