// rps imports structural analysis result workbooks into a project store and
// reads datasets and comparisons back out of it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AdrianZavoianu/RPS-sub000/internal/config"
	"github.com/AdrianZavoianu/RPS-sub000/internal/infrastructure"
	"github.com/AdrianZavoianu/RPS-sub000/internal/services"
	"github.com/AdrianZavoianu/RPS-sub000/internal/store"
	"github.com/AdrianZavoianu/RPS-sub000/pkg/contracts"
)

// app holds what every command needs once the root pre-run has finished.
type app struct {
	configPath  string
	envFile     string
	storePath   string
	metricsPath string

	cfg       *config.Config
	logger    *slog.Logger
	telemetry *infrastructure.Telemetry
	manager   *store.Manager
	handle    *store.Handle
	pipeline  *services.Pipeline
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one command and tears the app down on every exit path,
// including a failed setup or command.
func run(ctx context.Context, args []string) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown(ctx))
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rps",
		Short: "Import and compare structural analysis results",
		Long: `rps reads result workbooks exported from structural analysis runs,
lets you choose which file supplies each load case, stores the selection in a
per-project SQLite file and serves datasets and comparisons from it.`,
		Version:           contracts.GetFullVersionString(),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file")
	flags.StringVar(&a.envFile, "env", ".env", "dotenv file loaded before configuration")
	flags.StringVar(&a.storePath, "store", "", "project store file (overrides RPS_STORE_PATH)")
	flags.StringVar(&a.metricsPath, "metrics", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		newPrescanCmd(a),
		newImportCmd(a),
		newResultsCmd(a),
		newDatasetCmd(a),
		newCompareCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.storePath != "" {
		cfg.Store.Path = a.storePath
	}
	a.cfg = cfg

	a.logger, err = infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return err
	}

	a.telemetry, err = infrastructure.InitializeTelemetry(cfg.Telemetry, os.Stderr, a.logger)
	if err != nil {
		return err
	}

	a.manager = store.NewManager(cfg.Store, a.logger)
	a.handle, err = a.manager.Acquire(cmd.Context(), cfg.Store.Path)
	if err != nil {
		return err
	}

	a.pipeline, err = services.NewPipeline(a.handle, cfg.Import, a.logger, services.WithTelemetry(a.telemetry))
	return err
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.metricsPath != "" && a.telemetry != nil {
		errs = append(errs, a.writeMetrics())
	}
	if a.handle != nil {
		errs = append(errs, a.handle.Release())
	}
	if a.manager != nil {
		errs = append(errs, a.manager.Close())
	}
	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		errs = append(errs, a.telemetry.Shutdown(shutdownCtx))
	}
	errs = append(errs, infrastructure.CloseLogFile())
	return errors.Join(errs...)
}

func (a *app) writeMetrics() error {
	f, err := os.Create(a.metricsPath)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := a.telemetry.WriteMetrics(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
