package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/AdrianZavoianu/RPS-sub000/internal/exporter"
	"github.com/AdrianZavoianu/RPS-sub000/internal/files"
	"github.com/AdrianZavoianu/RPS-sub000/internal/validation"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts/domain"
)

func newPrescanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prescan <file-or-dir>...",
		Short: "List the sheets, load cases and conflicts of result workbooks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := collectWorkbooks(a, args)
			if err != nil {
				return err
			}
			result, err := a.pipeline.Prescan(cmd.Context(), refs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printPrescan(out, result)
			printConflicts(out, a.pipeline.DetectConflicts(result))
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	var (
		resultSet string
		category  string
		choose    []string
		skip      []string
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "import <file-or-dir>...",
		Short: "Import the selected load cases into a result set",
		Long: `Import scans the workbooks, resolves load cases offered by several files
on the same sheet and writes the selection into the project store.

Conflicts are resolved with --choose "Sheet:LoadCase=path" or skipped with
--skip "Sheet:LoadCase". Conflicts left unresolved are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			refs, err := collectWorkbooks(a, args)
			if err != nil {
				return err
			}
			result, err := a.pipeline.Prescan(ctx, refs)
			if err != nil {
				return err
			}
			choices, err := parseResolution(choose, skip)
			if err != nil {
				return err
			}
			allow, err := a.pipeline.Resolve(a.pipeline.DetectConflicts(result), choices)
			if err != nil {
				return err
			}
			if !allow.Complete() {
				for _, k := range allow.Unresolved {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s / %s is offered by several files and will be skipped\n", k.Sheet, k.LoadCase)
				}
			}

			req := domain.ImportRequest{
				ResultSet:        resultSet,
				AnalysisCategory: category,
				AllowList:        *allow,
				FoundationJoints: result.SharedFoundationJoints(),
			}
			for _, f := range result.Files {
				req.Files = append(req.Files, f.File)
			}
			if len(req.Files) == 0 {
				return fmt.Errorf("no readable workbooks among %d files", len(refs))
			}

			var progress func(domain.ImportProgress)
			var finish func()
			if !quiet {
				progress, finish = progressReporter(cmd.ErrOrStderr(), len(req.Files), a.cfg.Import.ProgressBuffer)
			}
			stats, err := a.pipeline.ImportSelected(ctx, req, progress)
			if finish != nil {
				finish()
			}
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&resultSet, "result-set", "", "result set name")
	cmd.Flags().StringVar(&category, "category", "NLTHA", "analysis category")
	cmd.Flags().StringArrayVar(&choose, "choose", nil, `conflict choice "Sheet:LoadCase=path"`)
	cmd.Flags().StringArrayVar(&skip, "skip", nil, `skip a conflicting load case "Sheet:LoadCase"`)
	cmd.Flags().BoolVar(&quiet, "quiet", false, "no progress bar")
	_ = cmd.MarkFlagRequired("result-set")
	return cmd
}

func newResultsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "results",
		Short: "List result sets with their result types and load cases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sets, err := a.pipeline.ListResultSets(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tCREATED\tRESULT TYPES\tLOAD CASES")
			for _, rs := range sets {
				types, err := a.pipeline.ListResultTypes(ctx, rs.ID)
				if err != nil {
					return err
				}
				lcs, err := a.pipeline.ListLoadCases(ctx, rs.ID, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", rs.ID, rs.Name, rs.AnalysisCategory,
					humanize.Time(rs.CreatedAt), strings.Join(types, ","), len(lcs))
			}
			return tw.Flush()
		},
	}
}

func newDatasetCmd(a *app) *cobra.Command {
	var (
		resultSetID int64
		resultType  string
		direction   string
		output      string
		bom         bool
		precision   int
	)
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Export one result type and direction of a result set as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := a.pipeline.GetDataset(cmd.Context(), resultSetID, resultType, direction)
			if err != nil {
				return err
			}
			headers, records := exporter.DatasetTable(ds, precision)
			return writeCSV(a, cmd.OutOrStdout(), output, exporter.WriteOptions{Headers: headers, Records: records, BOMPrefix: bom})
		},
	}
	cmd.Flags().Int64Var(&resultSetID, "result-set-id", 0, "result set id")
	cmd.Flags().StringVar(&resultType, "type", "", "result type, e.g. StoryDrifts")
	cmd.Flags().StringVar(&direction, "direction", "", "direction, e.g. X")
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().BoolVar(&bom, "bom", false, "prefix a UTF-8 BOM for Excel")
	cmd.Flags().IntVar(&precision, "precision", exporter.DefaultPrecision, "decimal places")
	_ = cmd.MarkFlagRequired("result-set-id")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("direction")
	return cmd
}

func newCompareCmd(a *app) *cobra.Command {
	var (
		output    string
		bom       bool
		precision int
	)
	cmd := &cobra.Command{
		Use:   "compare <comparison-set-id>",
		Short: "Export a comparison set as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid comparison set id %q: %w", args[0], err)
			}
			cd, err := a.pipeline.GetComparisonDataset(cmd.Context(), id)
			if err != nil {
				return err
			}
			headers, records := exporter.ComparisonTable(cd, precision)
			return writeCSV(a, cmd.OutOrStdout(), output, exporter.WriteOptions{Headers: headers, Records: records, BOMPrefix: bom})
		},
	}
	cmd.Flags().StringVarP(&output, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().BoolVar(&bom, "bom", false, "prefix a UTF-8 BOM for Excel")
	cmd.Flags().IntVar(&precision, "precision", exporter.DefaultPrecision, "decimal places")

	cmd.AddCommand(newCompareSaveCmd(a), newCompareListCmd(a), newCompareDeleteCmd(a))
	return cmd
}

func newCompareSaveCmd(a *app) *cobra.Command {
	var (
		id          int64
		name        string
		resultSets  []int64
		resultTypes []string
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or update a comparison set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cs, err := a.pipeline.ComparisonSets().Save(cmd.Context(), domain.ComparisonSet{
				ID:           id,
				Name:         name,
				ResultSetIDs: resultSets,
				ResultTypes:  resultTypes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved comparison set %d %q\n", cs.ID, cs.Name)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "existing comparison set to update")
	cmd.Flags().StringVar(&name, "name", "", "comparison set name")
	cmd.Flags().Int64SliceVar(&resultSets, "result-sets", nil, "result set ids in comparison order")
	cmd.Flags().StringSliceVar(&resultTypes, "types", nil, "result types to compare")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCompareListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List comparison sets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sets, err := a.pipeline.ComparisonSets().List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tRESULT SETS\tRESULT TYPES")
			for _, cs := range sets {
				ids := make([]string, 0, len(cs.ResultSetIDs))
				for _, id := range cs.ResultSetIDs {
					ids = append(ids, strconv.FormatInt(id, 10))
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", cs.ID, cs.Name, strings.Join(ids, ","), strings.Join(cs.ResultTypes, ","))
			}
			return tw.Flush()
		},
	}
}

func newCompareDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <comparison-set-id>",
		Short: "Delete a comparison set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid comparison set id %q: %w", args[0], err)
			}
			return a.pipeline.ComparisonSets().Delete(cmd.Context(), id)
		},
	}
}

// parseResolution turns "Sheet:LoadCase=path" choices and "Sheet:LoadCase"
// skips into a resolution. Sheet names may contain spaces but not colons.
// Chosen paths take the same canonical form as collected workbooks.
func parseResolution(choose, skip []string) (domain.Resolution, error) {
	res := domain.Resolution{}
	for _, c := range choose {
		key, file, ok := strings.Cut(c, "=")
		if !ok || file == "" {
			return nil, fmt.Errorf("invalid --choose %q: want Sheet:LoadCase=path", c)
		}
		sheet, lc, err := splitKey(key)
		if err != nil {
			return nil, fmt.Errorf("invalid --choose %q: %w", c, err)
		}
		res.Choose(sheet, lc, files.CanonicalPath(file))
	}
	for _, s := range skip {
		sheet, lc, err := splitKey(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --skip %q: %w", s, err)
		}
		res.Choose(sheet, lc, domain.SkipChoice)
	}
	return res, nil
}

func splitKey(key string) (sheet, loadCase string, err error) {
	sheet, loadCase, ok := strings.Cut(key, ":")
	sheet, loadCase = strings.TrimSpace(sheet), strings.TrimSpace(loadCase)
	if !ok || sheet == "" || loadCase == "" {
		return "", "", fmt.Errorf("want Sheet:LoadCase")
	}
	return sheet, loadCase, nil
}

// progressReporter feeds import progress into a progress bar. Events are
// handed over through a buffered channel so a slow terminal never stalls
// the import for long.
func progressReporter(w io.Writer, files, buffer int) (func(domain.ImportProgress), func()) {
	bar := progressbar.NewOptions(files,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	events := make(chan domain.ImportProgress, buffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range events {
			_ = bar.Set(p.Current)
			if desc := progressLabel(p); desc != "" {
				bar.Describe(desc)
			}
		}
		_ = bar.Finish()
	}()

	report := func(p domain.ImportProgress) { events <- p }
	finish := func() {
		close(events)
		<-done
	}
	return report, finish
}

func progressLabel(p domain.ImportProgress) string {
	switch p.Phase {
	case domain.PhaseSheet:
		return p.File + " / " + p.Sheet
	case domain.PhaseFile:
		return p.File
	case domain.PhaseFlush:
		return "committing"
	case domain.PhaseCacheBuild:
		return "building cache " + p.Sheet
	default:
		return ""
	}
}

func collectWorkbooks(a *app, args []string) ([]domain.FileRef, error) {
	v := validation.NewFileValidator(a.logger)
	for _, arg := range args {
		if err := v.ValidateInput(arg); err != nil {
			return nil, err
		}
	}
	return files.NewDiscovery("").Collect(args)
}

func writeCSV(a *app, stdout io.Writer, path string, opts exporter.WriteOptions) error {
	w := exporter.NewCSVWriter(a.logger)
	if path == "" {
		return w.Write(stdout, opts)
	}
	if err := validation.NewFileValidator(a.logger).ValidateOutputDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	return w.WriteCSV(path, opts)
}

func printPrescan(w io.Writer, result *domain.PrescanResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSIZE\tMODIFIED\tSHEET\tLOAD CASES")
	for _, f := range result.Files {
		sheets := make([]string, 0, len(f.Sheets))
		for s := range f.Sheets {
			sheets = append(sheets, s)
		}
		sort.Strings(sheets)
		for i, s := range sheets {
			name, size, mod := "", "", ""
			if i == 0 {
				name, size, mod = f.File.Name, humanize.Bytes(uint64(f.File.Size)), humanize.Time(f.File.ModTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, size, mod, s, strings.Join(f.Sheets[s], ","))
		}
	}
	_ = tw.Flush()

	for _, e := range result.Errors {
		fmt.Fprintf(w, "unreadable: %s: %s\n", e.File.Path, e.Message)
	}
}

func printConflicts(w io.Writer, c *domain.Conflicts) {
	if c.Count() == 0 {
		fmt.Fprintln(w, "no conflicts")
		return
	}
	fmt.Fprintf(w, "%d conflicts:\n", c.Count())
	for _, k := range c.Keys() {
		fmt.Fprintf(w, "  %s:%s offered by %s\n", k.Sheet, k.LoadCase, strings.Join(c.Sheets[k.Sheet][k.LoadCase], ", "))
	}
}

func printStats(w io.Writer, stats *domain.ImportStats) {
	fmt.Fprintf(w, "result set %d: %d files, %d load cases imported, %d skipped, %s records, %s cache rows in %s\n",
		stats.ResultSetID, stats.FilesProcessed, stats.LoadCasesImported, stats.LoadCasesSkipped,
		humanize.Comma(int64(stats.RecordsWritten)), humanize.Comma(int64(stats.CacheRowsBuilt)),
		stats.Duration.Round(time.Millisecond))
	for _, e := range stats.Errors {
		fmt.Fprintf(w, "error [%s] %s %s: %s\n", e.Kind, e.File, e.Sheet, e.Message)
	}
	if n := len(stats.Warnings); n > 0 {
		fmt.Fprintf(w, "%d warnings\n", n)
		for _, warn := range stats.Warnings {
			fmt.Fprintf(w, "warning [%s] %s %s: %s\n", warn.Kind, warn.File, warn.Sheet, warn.Message)
		}
	}
}
