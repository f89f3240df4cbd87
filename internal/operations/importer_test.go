package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdrianZavoianu/RPS-sub000/internal/catalog"
	"github.com/AdrianZavoianu/RPS-sub000/internal/config"
	"github.com/AdrianZavoianu/RPS-sub000/internal/conflicts"
	"github.com/AdrianZavoianu/RPS-sub000/internal/dataprocessing"
	rpserrors "github.com/AdrianZavoianu/RPS-sub000/internal/errors"
	"github.com/AdrianZavoianu/RPS-sub000/internal/prescan"
	"github.com/AdrianZavoianu/RPS-sub000/internal/shared/testutil"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

var driftSheet = catalog.StoryDrifts.Spec().Sheet

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingInvalidator) Invalidate(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func newTestImporter(t *testing.T, opts ...Option) (*Importer, *store.Handle) {
	t.Helper()
	ctx := context.Background()
	m := store.NewManager(config.StoreConfig{}, nil)
	t.Cleanup(func() { _ = m.Close() })
	h, err := m.Acquire(ctx, filepath.Join(t.TempDir(), "project.rps"))
	require.NoError(t, err)
	logger, _ := testutil.NewTestLogger(t)
	return NewImporter(h, dataprocessing.DefaultExtractors(logger, 0), logger, opts...), h
}

// prepareRequest prescans files and resolves conflicts the way a caller of
// the pipeline would.
func prepareRequest(t *testing.T, files []domain.FileRef, resolution domain.Resolution) domain.ImportRequest {
	t.Helper()
	result, err := prescan.New(dataprocessing.DefaultExtractors(nil, 0), nil).Scan(context.Background(), files, 2)
	require.NoError(t, err)
	allow, err := conflicts.Resolve(conflicts.Detect(result), resolution)
	require.NoError(t, err)

	req := domain.ImportRequest{
		ResultSet:        "DES",
		AnalysisCategory: "NLTHA",
		AllowList:        *allow,
		FoundationJoints: result.SharedFoundationJoints(),
	}
	for _, f := range result.Files {
		req.Files = append(req.Files, f.File)
	}
	return req
}

func readSession(t *testing.T, h *store.Handle) *store.Session {
	t.Helper()
	s, err := h.Session(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func loadCaseNames(t *testing.T, s *store.Session, rsID int64, resultType string) []string {
	t.Helper()
	lcs, err := s.LoadCases(context.Background(), rsID, resultType)
	require.NoError(t, err)
	names := make([]string, 0, len(lcs))
	for _, lc := range lcs {
		names = append(names, lc.Name)
	}
	return names
}

func TestImporter_ResolvedConflictYieldsThreeLoadCases(t *testing.T) {
	dir := t.TempDir()
	stories := []string{"L2", "L1"}
	file1 := testutil.WriteWorkbook(t, dir, "file1.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, stories, []string{"DES_X", "DES_Y"}, testutil.Constant(0.01)))
	file2 := testutil.WriteWorkbook(t, dir, "file2.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, stories, []string{"DES_X", "SLE_X"}, testutil.Constant(0.02)))

	res := domain.Resolution{}
	res.Choose(driftSheet, "DES_X", file2.Path)
	req := prepareRequest(t, []domain.FileRef{file1, file2}, res)

	inv := &recordingInvalidator{}
	imp, h := newTestImporter(t, WithInvalidator(inv))
	stats, err := imp.Run(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Empty(t, stats.Errors)
	assert.Equal(t, 2, stats.FilesProcessed)
	assert.Equal(t, 3, stats.LoadCasesImported)
	assert.Equal(t, 0, stats.LoadCasesSkipped)
	assert.Equal(t, 3*2*2, stats.RecordsWritten)
	assert.Equal(t, 4, stats.CacheRowsBuilt)
	assert.Equal(t, []int64{stats.ResultSetID}, inv.ids)

	s := readSession(t, h)
	assert.ElementsMatch(t, []string{"DES_X", "DES_Y", "SLE_X"}, loadCaseNames(t, s, stats.ResultSetID, "StoryDrifts"))

	rows, err := s.CacheRows(context.Background(), stats.ResultSetID, "StoryDrifts", "X")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "L2", rows[0].Story)
	assert.InDelta(t, 2.0, rows[0].Values["DES_X"], 1e-9, "DES_X must come from file2")
	assert.InDelta(t, 1.0, rows[0].Values["DES_Y"], 1e-9)
	assert.InDelta(t, 2.0, rows[0].Values["SLE_X"], 1e-9)
}

func TestImporter_UnreadableFileDoesNotStopBatch(t *testing.T) {
	dir := t.TempDir()
	var files []domain.FileRef
	for i := 1; i <= 10; i++ {
		lc := fmt.Sprintf("LC%02d", i)
		files = append(files, testutil.WriteWorkbook(t, dir, fmt.Sprintf("run%02d.xlsx", i),
			testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{lc}, testutil.Constant(0.01))))
	}
	req := prepareRequest(t, files, nil)

	// The fourth file breaks between prescan and import.
	require.NoError(t, os.WriteFile(files[3].Path, []byte("not a zip archive"), 0o644))

	imp, h := newTestImporter(t)
	stats, err := imp.Run(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, 9, stats.FilesProcessed)
	assert.Equal(t, 9, stats.LoadCasesImported)
	assert.Equal(t, 1, stats.LoadCasesSkipped)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, string(rpserrors.KindUnreadableFile), stats.Errors[0].Kind)
	assert.Equal(t, files[3].Path, stats.Errors[0].File)

	s := readSession(t, h)
	names := loadCaseNames(t, s, stats.ResultSetID, "StoryDrifts")
	assert.Len(t, names, 9)
	assert.NotContains(t, names, "LC04")
}

func TestImporter_StaleFileSkipped(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))
	req := prepareRequest(t, []domain.FileRef{ref}, nil)

	testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1", "B1"}, []string{"DES"}, testutil.Constant(0.03)))

	imp, _ := newTestImporter(t)
	stats, err := imp.Run(context.Background(), req, nil)
	require.NoError(t, err)

	require.Len(t, stats.Errors, 1)
	assert.Equal(t, string(rpserrors.KindStaleFile), stats.Errors[0].Kind)
	assert.Equal(t, 0, stats.FilesProcessed)
	assert.Equal(t, 0, stats.RecordsWritten)
	assert.Equal(t, 1, stats.LoadCasesSkipped)
}

func TestImporter_MissingSheetRecorded(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))

	wallSheet := catalog.WallShears.Spec().Sheet
	req := domain.ImportRequest{
		ResultSet:        "DES",
		AnalysisCategory: "NLTHA",
		Files:            []domain.FileRef{ref},
		AllowList: domain.AllowList{Sheets: map[string]map[string][]string{
			driftSheet: {ref.Path: {"DES"}},
			wallSheet:  {ref.Path: {"DES"}},
		}},
	}

	imp, _ := newTestImporter(t)
	stats, err := imp.Run(context.Background(), req, nil)
	require.NoError(t, err)

	require.Len(t, stats.Errors, 1)
	assert.Equal(t, string(rpserrors.KindMissingSheet), stats.Errors[0].Kind)
	assert.Equal(t, wallSheet, stats.Errors[0].Sheet)
	assert.Equal(t, 1, stats.LoadCasesImported)
	assert.Equal(t, 1, stats.LoadCasesSkipped)
}

func TestImporter_ReimportReplacesRecords(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L2", "L1"}, []string{"DES", "MCE"}, testutil.Constant(0.01)))
	req := prepareRequest(t, []domain.FileRef{ref}, nil)

	imp, h := newTestImporter(t)
	first, err := imp.Run(context.Background(), req, nil)
	require.NoError(t, err)
	second, err := imp.Run(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ResultSetID, second.ResultSetID)
	assert.Equal(t, first.RecordsWritten, second.RecordsWritten)

	s := readSession(t, h)
	records, err := s.Records(context.Background(), first.ResultSetID, "StoryDrifts")
	require.NoError(t, err)
	assert.Len(t, records, first.RecordsWritten)

	sets, err := s.ResultSets(context.Background())
	require.NoError(t, err)
	assert.Len(t, sets, 1)
}

func TestImporter_ProgressPhases(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))
	req := prepareRequest(t, []domain.FileRef{ref}, nil)

	var events []domain.ImportProgress
	imp, _ := newTestImporter(t)
	stats, err := imp.Run(context.Background(), req, func(p domain.ImportProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)

	phases := make([]domain.ImportPhase, 0, len(events))
	for _, e := range events {
		assert.Equal(t, stats.RunID, e.RunID)
		phases = append(phases, e.Phase)
	}
	assert.Equal(t, domain.PhaseStarted, phases[0])
	assert.Equal(t, domain.PhaseCompleted, phases[len(phases)-1])
	assert.Equal(t, 100.0, events[len(events)-1].Percent)

	index := func(p domain.ImportPhase) int {
		for i, got := range phases {
			if got == p {
				return i
			}
		}
		return -1
	}
	assert.Less(t, index(domain.PhaseSheet), index(domain.PhaseFlush))
	assert.Less(t, index(domain.PhaseFlush), index(domain.PhaseCacheBuild))
}

func TestImporter_RejectsConcurrentImport(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))
	req := prepareRequest(t, []domain.FileRef{ref}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	block := func(domain.ImportProgress) {
		once.Do(func() {
			close(started)
			<-release
		})
	}

	imp, _ := newTestImporter(t)
	done, err := imp.Start(context.Background(), req, block)
	require.NoError(t, err)
	<-started
	assert.True(t, imp.Running())

	_, err = imp.Start(context.Background(), req, nil)
	assert.ErrorIs(t, err, ErrImportInProgress)

	close(release)
	out := <-done
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Stats.LoadCasesImported)
}

func TestImporter_ContinuesAfterCallerCancels(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))
	req := prepareRequest(t, []domain.FileRef{ref}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	imp, _ := newTestImporter(t)
	done, err := imp.Start(ctx, req, nil)
	require.NoError(t, err)
	cancel()

	out := <-done
	require.NoError(t, out.Err)
	assert.Equal(t, 1, out.Stats.LoadCasesImported)
}

func TestImporter_ValidatesRequest(t *testing.T) {
	imp, _ := newTestImporter(t)
	_, err := imp.Run(context.Background(), domain.ImportRequest{AnalysisCategory: "NLTHA"}, nil)
	assert.Error(t, err)
	assert.False(t, imp.Running())
}

func TestImporter_StoreUnreachableIsFatal(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.WriteWorkbook(t, dir, "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))
	req := prepareRequest(t, []domain.FileRef{ref}, nil)

	imp, h := newTestImporter(t)
	require.NoError(t, h.Release())

	_, err := imp.Run(context.Background(), req, nil)
	require.Error(t, err)
	assert.True(t, rpserrors.IsFatal(err))
	assert.Equal(t, rpserrors.KindStoreUnreachable, rpserrors.KindOf(err))
}

func TestOrderSheets_CanonicalFirst(t *testing.T) {
	specs := orderSheets([]string{"Pier Forces", "Story Forces", driftSheet, "unknown"})
	require.Len(t, specs, 3)
	assert.Equal(t, catalog.StoryDrifts, specs[0].Category)
	assert.Equal(t, catalog.StoryForces, specs[1].Category)
	assert.Equal(t, catalog.WallShears, specs[2].Category)
}

func TestImporter_NothingImportableLeavesNoResultSet(t *testing.T) {
	ref := testutil.WriteWorkbook(t, t.TempDir(), "run.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))
	req := prepareRequest(t, []domain.FileRef{ref}, nil)
	req.AllowList.Sheets = map[string]map[string][]string{driftSheet: {ref.Path: {"GHOST"}}}

	imp, h := newTestImporter(t)
	stats, err := imp.Run(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.ResultSetID)
	assert.Zero(t, stats.RecordsWritten)

	sets, err := readSession(t, h).ResultSets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestImporter_ResultSetCreatedWithFirstWritingSheet(t *testing.T) {
	dir := t.TempDir()
	empty := testutil.WriteWorkbook(t, dir, "a.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"DES"}, testutil.Constant(0.01)))
	full := testutil.WriteWorkbook(t, dir, "b.xlsx",
		testutil.StorySheet(catalog.StoryDrifts, []string{"L1"}, []string{"MCE"}, testutil.Constant(0.02)))
	req := prepareRequest(t, []domain.FileRef{empty, full}, nil)
	req.AllowList.Sheets = map[string]map[string][]string{driftSheet: {
		empty.Path: {"GHOST"},
		full.Path:  {"MCE"},
	}}

	imp, h := newTestImporter(t)
	stats, err := imp.Run(context.Background(), req, nil)
	require.NoError(t, err)
	require.NotZero(t, stats.ResultSetID)

	s := readSession(t, h)
	sets, err := s.ResultSets(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"MCE"}, loadCaseNames(t, s, stats.ResultSetID, "StoryDrifts"))
}
