package cachebuild

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/config"
	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

func openSession(t *testing.T) *store.Session {
	t.Helper()
	ctx := context.Background()
	m := store.NewManager(config.StoreConfig{}, nil)
	t.Cleanup(func() { _ = m.Close() })
	h, err := m.Acquire(ctx, filepath.Join(t.TempDir(), "project.rps"))
	require.NoError(t, err)
	s, err := h.Session(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedDrifts writes drifts for stories L3, L2, L1 and load cases DES, MCE.
func seedDrifts(t *testing.T, s *store.Session) int64 {
	t.Helper()
	ctx := context.Background()
	var rsID int64
	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error {
		rs, err := tx.EnsureResultSet(ctx, "DES", "NLTHA")
		if err != nil {
			return err
		}
		rsID = rs.ID

		var lcIDs []int64
		for _, lc := range []string{"DES", "MCE"} {
			id, err := tx.EnsureLoadCase(ctx, lc)
			if err != nil {
				return err
			}
			lcIDs = append(lcIDs, id)
		}

		var records []domain.NormalizedRecord
		for order, story := range []string{"L3", "L2", "L1"} {
			storyID, err := tx.EnsureStory(ctx, story)
			if err != nil {
				return err
			}
			for i, lcID := range lcIDs {
				for _, dir := range []string{"X", "Y"} {
					records = append(records, domain.NormalizedRecord{
						ResultSetID: rsID, ResultType: "StoryDrifts", Direction: dir, LoadCaseID: lcID,
						StoryID: storyID, Value: float64(order+1) * float64(i+1), SheetOrder: order, SourceFile: "a.xlsx",
					})
				}
			}
		}
		_, err = tx.ReplaceRecords(ctx, rsID, "StoryDrifts", lcIDs, records)
		return err
	}))
	return rsID
}

func TestBuild_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	rsID := seedDrifts(t, s)
	b := New(nil)

	first, err := b.Build(ctx, s, rsID, catalog.StoryDrifts)
	require.NoError(t, err)
	firstText, err := s.CacheText(ctx, rsID, "StoryDrifts")
	require.NoError(t, err)

	second, err := b.Build(ctx, s, rsID, catalog.StoryDrifts)
	require.NoError(t, err)
	secondText, err := s.CacheText(ctx, rsID, "StoryDrifts")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstText, secondText)

	require.Len(t, first, 6)
	assert.Equal(t, "X", first[0].Direction)
	assert.Equal(t, 0, first[0].SheetOrder)
	assert.Equal(t, map[string]float64{"DES": 1, "MCE": 2}, first[0].Values)
	assert.Equal(t, "Y", first[3].Direction)
	assert.Equal(t, map[string]float64{"DES": 3, "MCE": 6}, first[5].Values)
}

func TestBuild_ReplacesStaleRows(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	rsID := seedDrifts(t, s)
	b := New(nil)

	_, err := b.Build(ctx, s, rsID, catalog.StoryDrifts)
	require.NoError(t, err)

	// Drop MCE and rebuild: the cache must no longer mention it.
	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error {
		id, err := tx.EnsureLoadCase(ctx, "MCE")
		if err != nil {
			return err
		}
		_, err = tx.ReplaceRecords(ctx, rsID, "StoryDrifts", []int64{id}, nil)
		return err
	}))
	rows, err := b.Build(ctx, s, rsID, catalog.StoryDrifts)
	require.NoError(t, err)
	for _, r := range rows {
		assert.NotContains(t, r.Values, "MCE")
	}

	cached, err := s.CacheRows(ctx, rsID, "StoryDrifts", "X")
	require.NoError(t, err)
	require.Len(t, cached, 3)
	assert.Equal(t, map[string]float64{"DES": 1}, cached[0].Values)
}

func TestBuild_RefusesPendingWrites(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	rsID := seedDrifts(t, s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.EnsureLoadCase(ctx, "SLE")
	require.NoError(t, err)

	_, err = New(nil).Build(ctx, s, rsID, catalog.StoryDrifts)
	assert.ErrorIs(t, err, ErrUncommittedWrites)
	assert.Equal(t, rpserrors.KindCacheInconsistency, rpserrors.KindOf(err))

	require.NoError(t, tx.Commit())
	require.NoError(t, s.Flush(ctx))
	_, err = New(nil).Build(ctx, s, rsID, catalog.StoryDrifts)
	assert.NoError(t, err)
}

func TestBuild_EmptyResultType(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	rsID := seedDrifts(t, s)

	rows, err := New(nil).Build(ctx, s, rsID, catalog.WallShears)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPivot_OrderIndependent(t *testing.T) {
	spec := catalog.WallShears.Spec()
	var records []store.RecordRow
	for order, el := range []int64{30, 10, 20} {
		for _, dir := range []string{"V3", "V2"} {
			for _, lc := range []string{"DES", "MCE"} {
				records = append(records, store.RecordRow{
					NormalizedRecord: domain.NormalizedRecord{
						ResultSetID: 1, ResultType: spec.Name, Direction: dir,
						StoryID: 5, ElementID: el, Value: float64(el), SheetOrder: order,
					},
					LoadCase: lc,
				})
			}
		}
	}

	want := Pivot(spec, records)
	shuffled := append([]store.RecordRow(nil), records...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	assert.Equal(t, want, Pivot(spec, shuffled))

	require.Len(t, want, 6)
	assert.Equal(t, "V2", want[0].Direction)
	assert.EqualValues(t, 30, want[0].ElementID)
	assert.EqualValues(t, 10, want[1].ElementID)
	assert.Equal(t, "V3", want[3].Direction)
}

func storyRecords(file, lc string, stories []int64) []store.RecordRow {
	var out []store.RecordRow
	for order, storyID := range stories {
		out = append(out, store.RecordRow{
			NormalizedRecord: domain.NormalizedRecord{
				ResultSetID: 1, ResultType: "StoryForces", Direction: "VX",
				StoryID: storyID, Value: 1, SheetOrder: order, SourceFile: file,
			},
			LoadCase: lc,
		})
	}
	return out
}

func TestPivot_FilesWithDifferentStoryOrder(t *testing.T) {
	spec := catalog.StoryForces.Spec()
	const s1, s2, s3 = 1, 2, 3

	tests := []struct {
		name    string
		records []store.RecordRow
		want    []int64
	}{
		{
			name: "same stories, ties go to the first path",
			records: append(storyRecords("a.xlsx", "A", []int64{s3, s1, s2}),
				storyRecords("b.xlsx", "B", []int64{s1, s2, s3})...),
			want: []int64{s3, s1, s2},
		},
		{
			name: "file with more stories leads",
			records: append(storyRecords("a.xlsx", "A", []int64{s2, s1}),
				storyRecords("b.xlsx", "B", []int64{s3, s1, s2})...),
			want: []int64{s3, s1, s2},
		},
		{
			name: "stories missing from the lead file follow",
			records: append(storyRecords("a.xlsx", "A", []int64{s2, s1}),
				storyRecords("b.xlsx", "B", []int64{s3})...),
			want: []int64{s2, s1, s3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := Pivot(spec, tt.records)
			require.Len(t, rows, len(tt.want))
			for i, row := range rows {
				assert.Equal(t, tt.want[i], row.StoryID, "row %d", i)
				assert.Equal(t, i, row.SheetOrder, "row %d", i)
			}
		})
	}
}
