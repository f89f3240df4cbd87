package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/shared/testutil"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

func TestResultService_CachesUntilInvalidated(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))

	p, _ := newTestPipeline(t)
	stats := importFiles(t, p, "DES", []domain.FileRef{ref}, nil)
	ctx := context.Background()

	first, err := p.GetDataset(ctx, stats.ResultSetID, "StoryDrifts", "X")
	require.NoError(t, err)
	second, err := p.GetDataset(ctx, stats.ResultSetID, "StoryDrifts", "X")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, p.Results().Cached(stats.ResultSetID))

	p.Invalidate(stats.ResultSetID)
	assert.Equal(t, 0, p.Results().Cached(stats.ResultSetID))

	third, err := p.GetDataset(ctx, stats.ResultSetID, "StoryDrifts", "X")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, first.Rows, third.Rows)
}

func TestResultService_ImportInvalidates(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))

	p, _ := newTestPipeline(t)
	stats := importFiles(t, p, "DES", []domain.FileRef{ref}, nil)
	ctx := context.Background()

	before, err := p.GetDataset(ctx, stats.ResultSetID, "StoryDrifts", "X")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, before.Rows[0].Values["DES"], 1e-9)

	ref = testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.05)))
	importFiles(t, p, "DES", []domain.FileRef{ref}, nil)

	after, err := p.GetDataset(ctx, stats.ResultSetID, "StoryDrifts", "X")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, after.Rows[0].Values["DES"], 1e-9)
}

func TestResultService_NewServiceStartsCold(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))

	p, h := newTestPipeline(t)
	stats := importFiles(t, p, "DES", []domain.FileRef{ref}, nil)
	_, err := p.GetDataset(context.Background(), stats.ResultSetID, "StoryDrifts", "X")
	require.NoError(t, err)

	fresh := NewResultService(h, nil)
	assert.Equal(t, 0, fresh.Cached(stats.ResultSetID))
	assert.Equal(t, 1, p.Results().Cached(stats.ResultSetID))
}

func TestResultService_SummaryColumns(t *testing.T) {
	dir := t.TempDir()
	values := map[string]float64{"DES": 0.01, "MCE": 0.03, "SLE": 0.02}
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L2", "L1"}, []string{"DES", "MCE", "SLE"},
			func(_, lc, _ string) interface{} { return values[lc] }))

	p, _ := newTestPipeline(t)
	stats := importFiles(t, p, "DES", []domain.FileRef{ref}, nil)

	ds, err := p.GetDataset(context.Background(), stats.ResultSetID, "StoryDrifts", "Y")
	require.NoError(t, err)
	assert.Equal(t, "%", ds.Unit)
	assert.Equal(t, []string{"DES", "MCE", "SLE"}, ds.LoadCases)
	require.Len(t, ds.Rows, 2)
	for _, row := range ds.Rows {
		assert.InDelta(t, 2.0, row.Average, 1e-9)
		assert.InDelta(t, 3.0, row.Maximum, 1e-9)
		assert.InDelta(t, 1.0, row.Minimum, 1e-9)
	}
}

func TestResultService_QuadRotationsFollowGlobalStoryOrder(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"Roof", "L2", "L1"}, []string{"DES"}, testutil.Constant(0.01)),
		testutil.ElementSheet(catalog.QuadRotations, []testutil.ElementRow{
			{Element: "Q1", Story: "L1"},
			{Element: "Q1", Story: "Roof"},
			{Element: "Q2", Story: "L2"},
			{Element: "Q0", Story: "L2"},
		}, []string{"DES"}, testutil.Constant(0.002)))

	p, _ := newTestPipeline(t)
	stats := importFiles(t, p, "DES", []domain.FileRef{ref}, nil)

	ds, err := p.GetDataset(context.Background(), stats.ResultSetID, "QuadRotations", "R")
	require.NoError(t, err)
	labels := make([]string, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{"Q1 @ Roof", "Q0 @ L2", "Q2 @ L2", "Q1 @ L1"}, labels)
}

func TestResultService_StoryRowsFollowSheetOrder(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryForces, []string{"S3", "S1", "S2"}, []string{"DES"}, testutil.Constant(10)))

	p, _ := newTestPipeline(t)
	stats := importFiles(t, p, "DES", []domain.FileRef{ref}, nil)

	ds, err := p.GetDataset(context.Background(), stats.ResultSetID, "StoryForces", "VX")
	require.NoError(t, err)
	require.Len(t, ds.Rows, 3)
	for i, want := range []string{"S3", "S1", "S2"} {
		assert.Equal(t, want, ds.Rows[i].Story)
		assert.Equal(t, i, ds.Rows[i].SheetOrder)
	}
}

func TestResultService_Errors(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		resultSet  int64
		resultType string
		direction  string
		want       error
	}{
		{name: "unknown result type", resultSet: 1, resultType: "Nope", direction: "X", want: ErrUnknownResultType},
		{name: "unknown direction", resultSet: 1, resultType: "StoryDrifts", direction: "Z", want: ErrUnknownDirection},
		{name: "missing result set", resultSet: 42, resultType: "StoryDrifts", direction: "X", want: ErrResultSetNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.GetDataset(ctx, tt.resultSet, tt.resultType, tt.direction)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := p.ListLoadCases(ctx, 1, "Nope")
	assert.ErrorIs(t, err, ErrUnknownResultType)
}
