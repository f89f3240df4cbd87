// Package catalog is the typed registry of result categories. Each category
// names the sheet it is read from, the column convention used to recover
// load case names, and how its values are scaled and ordered for display.
//
// Adding a category means adding one Category constant and one Spec literal.
package catalog

import (
	"fmt"
	"sort"

	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

// Category identifies a result category.
type Category int

const (
	StoryDrifts Category = iota + 1
	StoryAccelerations
	StoryForces
	StoryDisplacements
	WallShears
	ColumnShears
	QuadRotations
	SoilPressures
	VerticalDisplacements
)

// Family groups categories by their axis entity.
type Family string

const (
	FamilyStory   Family = "story"
	FamilyElement Family = "element"
	FamilyJoint   Family = "joint"
)

// Ordering selects how rows of a category are displayed.
type Ordering int

const (
	// OrderBySheet sorts rows by the sheet_order of the category's own records.
	OrderBySheet Ordering = iota
	// OrderByGlobalStory sorts rows by the project-global story order. Used
	// where the source sheet is sorted by element name instead of elevation.
	OrderByGlobalStory
)

// Aggregation combines several rows of the same axis entity and load case.
type Aggregation int

const (
	// AggregateMaxAbs keeps the value with the largest magnitude, sign included.
	AggregateMaxAbs Aggregation = iota
	// AggregateMax keeps the largest value.
	AggregateMax
)

// Spec is the static description of a category.
type Spec struct {
	Category    Category
	Name        string
	Sheet       string
	Prefix      string
	Family      Family
	ElementType string
	Directions  []string
	Unit        string
	Scale       float64
	Ordering    Ordering
	Aggregation Aggregation
}

// CanonicalStorySheet is the category whose row order defines the
// project-global story order.
const CanonicalStorySheet = StoryDrifts

// FoundationSheet is the reference sheet listing foundation joints.
const FoundationSheet = "Foundation Joints"

const gravity = 9.81

var specs = []Spec{
	{Category: StoryDrifts, Name: "StoryDrifts", Sheet: "Story Drifts", Prefix: "Drift", Family: FamilyStory,
		Directions: []string{"X", "Y"}, Unit: "%", Scale: 100},
	{Category: StoryAccelerations, Name: "StoryAccelerations", Sheet: "Story Accelerations", Prefix: "Accel", Family: FamilyStory,
		Directions: []string{"UX", "UY"}, Unit: "g", Scale: 1 / gravity},
	{Category: StoryForces, Name: "StoryForces", Sheet: "Story Forces", Prefix: "Shear", Family: FamilyStory,
		Directions: []string{"VX", "VY"}, Unit: "kN", Scale: 1},
	{Category: StoryDisplacements, Name: "StoryDisplacements", Sheet: "Story Displacements", Prefix: "Disp", Family: FamilyStory,
		Directions: []string{"UX", "UY"}, Unit: "mm", Scale: 1},
	{Category: WallShears, Name: "WallShears", Sheet: "Pier Forces", Prefix: "Shear", Family: FamilyElement,
		ElementType: domain.ElementTypeWall, Directions: []string{"V2", "V3"}, Unit: "kN", Scale: 1},
	{Category: ColumnShears, Name: "ColumnShears", Sheet: "Column Forces", Prefix: "Shear", Family: FamilyElement,
		ElementType: domain.ElementTypeColumn, Directions: []string{"V2", "V3"}, Unit: "kN", Scale: 1},
	{Category: QuadRotations, Name: "QuadRotations", Sheet: "Quad Rotations", Prefix: "Rot", Family: FamilyElement,
		ElementType: domain.ElementTypeQuad, Directions: []string{"R"}, Unit: "%", Scale: 100, Ordering: OrderByGlobalStory},
	{Category: SoilPressures, Name: "SoilPressures", Sheet: "Soil Pressures", Prefix: "Pressure", Family: FamilyJoint,
		ElementType: domain.ElementTypeJoint, Directions: []string{"Z"}, Unit: "kPa", Scale: 1, Aggregation: AggregateMax},
	{Category: VerticalDisplacements, Name: "VerticalDisplacements", Sheet: "Vertical Displacements", Prefix: "Disp", Family: FamilyJoint,
		ElementType: domain.ElementTypeJoint, Directions: []string{"UZ"}, Unit: "mm", Scale: 1},
}

var (
	byCategory = make(map[Category]*Spec, len(specs))
	byName     = make(map[string]*Spec, len(specs))
	bySheet    = make(map[string]*Spec, len(specs))
)

func init() {
	for i := range specs {
		s := &specs[i]
		byCategory[s.Category] = s
		byName[s.Name] = s
		bySheet[s.Sheet] = s
	}
}

// String returns the category name.
func (c Category) String() string {
	if s, ok := byCategory[c]; ok {
		return s.Name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Spec returns the static description of c. It panics on an unknown
// category, which can only come from a programming error.
func (c Category) Spec() Spec {
	s, ok := byCategory[c]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown category %d", int(c)))
	}
	return *s
}

// All returns every category spec in registry order.
func All() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	return out
}

// Lookup finds a category by its result type name.
func Lookup(name string) (Spec, bool) {
	s, ok := byName[name]
	if !ok {
		return Spec{}, false
	}
	return *s, true
}

// BySheet finds the category read from the given sheet.
func BySheet(sheet string) (Spec, bool) {
	s, ok := bySheet[sheet]
	if !ok {
		return Spec{}, false
	}
	return *s, true
}

// Names returns the result type names sorted alphabetically.
func Names() []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// HasDirection reports whether d is one of the category's direction suffixes.
func (s Spec) HasDirection(d string) bool {
	for _, dir := range s.Directions {
		if dir == d {
			return true
		}
	}
	return false
}

// AxisColumns returns the header names of the axis columns for the family.
func (s Spec) AxisColumns() []string {
	switch s.Family {
	case FamilyElement:
		return []string{"Element", "Story"}
	case FamilyJoint:
		return []string{"Joint"}
	default:
		return []string{"Story"}
	}
}

// Aggregate combines an existing value with a new one using the category's aggregation rule.
func (s Spec) Aggregate(current, next float64) float64 {
	switch s.Aggregation {
	case AggregateMax:
		if next > current {
			return next
		}
		return current
	default:
		if abs(next) > abs(current) {
			return next
		}
		return current
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
