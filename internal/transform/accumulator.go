package transform

import (
	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/dataprocessing"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// axis identifies the row entity of a sheet. Unused parts stay empty.
type axis struct {
	story   string
	element string
}

type valueKey struct {
	axis      int
	direction string
	loadCase  string
}

// accumulator folds rows into one value per (axis, direction, load case).
// Axes are numbered in order of first appearance; that number is the
// record's sheet_order.
type accumulator struct {
	spec   catalog.Spec
	index  map[axis]int
	axes   []axis
	ids    [][2]int64
	values map[valueKey]float64
}

func newAccumulator(spec catalog.Spec) *accumulator {
	return &accumulator{
		spec:   spec,
		index:  make(map[axis]int),
		values: make(map[valueKey]float64),
	}
}

func (a *accumulator) add(ax axis, values []dataprocessing.Value) {
	i, ok := a.index[ax]
	if !ok {
		i = len(a.axes)
		a.index[ax] = i
		a.axes = append(a.axes, ax)
	}
	for _, v := range values {
		k := valueKey{axis: i, direction: v.Direction, loadCase: v.LoadCase}
		if cur, seen := a.values[k]; seen {
			a.values[k] = a.spec.Aggregate(cur, v.Value)
			continue
		}
		a.values[k] = v.Value
	}
}

// resolve looks up the store ids of every axis in appearance order.
func (a *accumulator) resolve(fn func(axis) (storyID, elementID int64, err error)) error {
	a.ids = make([][2]int64, len(a.axes))
	for i, ax := range a.axes {
		storyID, elementID, err := fn(ax)
		if err != nil {
			return err
		}
		a.ids[i] = [2]int64{storyID, elementID}
	}
	return nil
}

// records emits scaled records ordered by axis, direction and load case
// column order.
func (a *accumulator) records(spec catalog.Spec, resultSetID int64, source string, loadCases []string, lcIDs []int64) []domain.NormalizedRecord {
	out := make([]domain.NormalizedRecord, 0, len(a.values))
	for i := range a.axes {
		for _, dir := range spec.Directions {
			for j, lc := range loadCases {
				v, ok := a.values[valueKey{axis: i, direction: dir, loadCase: lc}]
				if !ok {
					continue
				}
				out = append(out, domain.NormalizedRecord{
					ResultSetID: resultSetID,
					ResultType:  spec.Name,
					Direction:   dir,
					LoadCaseID:  lcIDs[j],
					StoryID:     a.ids[i][0],
					ElementID:   a.ids[i][1],
					Value:       v * spec.Scale,
					SheetOrder:  i,
					SourceFile:  source,
				})
			}
		}
	}
	return out
}

// storyOrder returns the distinct story names in order of first appearance.
func (a *accumulator) storyOrder() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, ax := range a.axes {
		if ax.story == "" {
			continue
		}
		if _, ok := seen[ax.story]; ok {
			continue
		}
		seen[ax.story] = struct{}{}
		out = append(out, ax.story)
	}
	return out
}
