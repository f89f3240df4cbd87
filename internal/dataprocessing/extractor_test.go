package dataprocessing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
	"github.com/AdrianZavoianu/RPS-sub000/internal/shared/testutil"
)

func openFixture(t *testing.T, sheets ...testutil.Sheet) *Workbook {
	t.Helper()
	ref := testutil.WriteWorkbook(t, t.TempDir(), "run.xlsx", sheets...)
	wb, err := OpenWorkbook(ref)
	require.NoError(t, err)
	t.Cleanup(func() { wb.Close() })
	return wb
}

func set(lcs ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(lcs))
	for _, lc := range lcs {
		out[lc] = struct{}{}
	}
	return out
}

func TestParseColumn(t *testing.T) {
	tests := []struct {
		name     string
		category catalog.Category
		header   string
		want     Column
		wantOK   bool
	}{
		{"simple", catalog.StoryDrifts, "Drift_DES_X", Column{LoadCase: "DES", Direction: "X"}, true},
		{"load case with underscores", catalog.StoryDrifts, "Drift_TH_01_Max_Y", Column{LoadCase: "TH_01_Max", Direction: "Y"}, true},
		{"surrounding spaces", catalog.StoryForces, "  Shear_MCE_VX ", Column{LoadCase: "MCE", Direction: "VX"}, true},
		{"element direction", catalog.WallShears, "Shear_DES_V3", Column{LoadCase: "DES", Direction: "V3"}, true},
		{"wrong prefix", catalog.StoryDrifts, "Accel_DES_X", Column{}, false},
		{"unknown direction", catalog.StoryDrifts, "Drift_DES_Z", Column{}, false},
		{"empty load case", catalog.StoryDrifts, "Drift__X", Column{}, false},
		{"axis column", catalog.StoryDrifts, "Story", Column{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseColumn(tt.category.Spec(), tt.header)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenWorkbook_Checksum(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "a.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L2", "L1"}, []string{"DES"}, testutil.Constant(0.01)))

	wb, err := OpenWorkbook(ref)
	require.NoError(t, err)
	defer wb.Close()

	assert.Len(t, wb.Ref.Checksum, 64)
	sum, err := FileChecksum(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, sum, wb.Ref.Checksum)
	assert.True(t, wb.HasSheet("story drifts "))
	assert.False(t, wb.HasSheet("Pier Forces"))
	assert.Equal(t, []string{"Story Drifts"}, wb.SheetNames())
}

func TestOpenWorkbook_Corrupt(t *testing.T) {
	ref := testutil.WriteCorruptFile(t, t.TempDir(), "bad.xlsx")
	_, err := OpenWorkbook(ref)
	assert.Error(t, err)
}

func TestScanHeader(t *testing.T) {
	sheet := testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES", "MCE", "SLE"}, testutil.Constant(1))
	sheet.Header = append(sheet.Header, "Notes", "Drift_DES_X")
	sheet.Rows[0] = append(sheet.Rows[0], "n/a", 1.0)
	wb := openFixture(t, sheet)

	ex := NewColumnExtractor(catalog.StoryDrifts.Spec(), slog.Default(), time.Second)
	lcs, err := ex.ScanHeader(wb)
	require.NoError(t, err)
	assert.Equal(t, []string{"DES", "MCE", "SLE"}, lcs)

	missing := NewColumnExtractor(catalog.SoilPressures.Spec(), slog.Default(), time.Second)
	_, err = missing.ScanHeader(wb)
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestExtract_FiltersLoadCases(t *testing.T) {
	value := func(story, lc, dir string) interface{} {
		switch lc {
		case "DES":
			return 0.01
		case "MCE":
			return 0.02
		default:
			return 0.03
		}
	}
	wb := openFixture(t, testutil.StorySheet(catalog.StoryDrifts, []string{"L3", "L2", "L1"}, []string{"DES", "MCE", "SLE"}, value))

	ex := NewColumnExtractor(catalog.StoryDrifts.Spec(), nil, time.Second)
	out, err := ex.Extract(context.Background(), wb, set("MCE"))
	require.NoError(t, err)

	assert.Equal(t, []string{"MCE"}, out.LoadCases)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, "L3", out.Rows[0].Story)
	assert.Equal(t, 2, out.Rows[0].Number)
	for _, row := range out.Rows {
		require.Len(t, row.Values, 2)
		for _, v := range row.Values {
			assert.Equal(t, "MCE", v.LoadCase)
			assert.Equal(t, 0.02, v.Value)
		}
	}
	assert.Empty(t, out.Dropped)
}

func TestExtract_EmptyAllowedYieldsNothing(t *testing.T) {
	wb := openFixture(t, testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(1)))
	ex := NewColumnExtractor(catalog.StoryDrifts.Spec(), nil, time.Second)

	out, err := ex.Extract(context.Background(), wb, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Rows)
	assert.Empty(t, out.LoadCases)
}

func TestExtract_MalformedRowDropped(t *testing.T) {
	value := func(story, lc, dir string) interface{} {
		if story == "L2" && dir == "Y" {
			return "abc"
		}
		return 0.5
	}
	wb := openFixture(t, testutil.StorySheet(catalog.StoryDrifts, []string{"L3", "L2", "L1"}, []string{"DES"}, value))

	logger, handler := testutil.NewTestLogger(t)
	ex := NewColumnExtractor(catalog.StoryDrifts.Spec(), logger, time.Second)
	out, err := ex.Extract(context.Background(), wb, set("DES"))
	require.NoError(t, err)

	require.Len(t, out.Rows, 2)
	assert.Equal(t, "L3", out.Rows[0].Story)
	assert.Equal(t, "L1", out.Rows[1].Story)

	require.Len(t, out.Dropped, 1)
	assert.Equal(t, rpserrors.KindMalformedRow, out.Dropped[0].Kind)
	assert.Equal(t, 3, out.Dropped[0].Row)
	assert.Equal(t, "DES", out.Dropped[0].LoadCase)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "dropping malformed row")
}

func TestExtract_MalformedCellOutsideAllowListIgnored(t *testing.T) {
	value := func(story, lc, dir string) interface{} {
		if lc == "MCE" {
			return "#N/A"
		}
		return 1.0
	}
	wb := openFixture(t, testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES", "MCE"}, value))
	ex := NewColumnExtractor(catalog.StoryDrifts.Spec(), nil, time.Second)

	out, err := ex.Extract(context.Background(), wb, set("DES"))
	require.NoError(t, err)
	assert.Len(t, out.Rows, 1)
	assert.Empty(t, out.Dropped)
}

func TestExtract_ElementAndJointAxes(t *testing.T) {
	rows := []testutil.ElementRow{{Element: "P1", Story: "L2"}, {Element: "P1", Story: "L1"}}
	wb := openFixture(t,
		testutil.ElementSheet(catalog.WallShears, rows, []string{"DES"}, testutil.Constant(120)),
		testutil.JointSheet(catalog.SoilPressures, []string{"J1", "J2"}, []string{"DES"}, testutil.Constant(80)),
	)

	walls, err := NewColumnExtractor(catalog.WallShears.Spec(), nil, time.Second).
		Extract(context.Background(), wb, set("DES"))
	require.NoError(t, err)
	require.Len(t, walls.Rows, 2)
	assert.Equal(t, "P1", walls.Rows[0].Element)
	assert.Equal(t, "L2", walls.Rows[0].Story)
	assert.Len(t, walls.Rows[0].Values, 2)

	soil, err := NewColumnExtractor(catalog.SoilPressures.Spec(), nil, time.Second).
		Extract(context.Background(), wb, set("DES"))
	require.NoError(t, err)
	require.Len(t, soil.Rows, 2)
	assert.Equal(t, "J1", soil.Rows[0].Element)
	assert.Empty(t, soil.Rows[0].Story)
}

func TestExtract_MissingAxisColumn(t *testing.T) {
	sheet := testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(1))
	sheet.Header[0] = "Level"
	wb := openFixture(t, sheet)

	_, err := NewColumnExtractor(catalog.StoryDrifts.Spec(), nil, time.Second).
		Extract(context.Background(), wb, set("DES"))
	assert.ErrorIs(t, err, ErrMissingAxisColumn)
}

func TestReadFoundationJoints(t *testing.T) {
	wb := openFixture(t, testutil.FoundationSheet("J3", "J1", "J3", "", "J2"))
	joints, ok, err := ReadFoundationJoints(wb)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"J3", "J1", "J2"}, joints)

	plain := openFixture(t, testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(1)))
	joints, ok, err = ReadFoundationJoints(plain)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, joints)
}

func TestExtractorSet(t *testing.T) {
	extractors := DefaultExtractors(nil, time.Second)
	all := extractors.All()
	require.Len(t, all, len(catalog.All()))
	assert.Equal(t, catalog.StoryDrifts, all[0].Category())

	ex, ok := extractors.Get(catalog.QuadRotations)
	require.True(t, ok)
	assert.Equal(t, catalog.QuadRotations, ex.Category())

	custom := NewExtractorSet()
	_, ok = custom.Get(catalog.StoryDrifts)
	assert.False(t, ok)
	custom.Register(ex)
	assert.Len(t, custom.All(), 1)
}
