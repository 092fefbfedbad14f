package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/homedeck/internal/config"
	"github.com/jask/homedeck/internal/database"
	"github.com/jask/homedeck/internal/database/repository"
	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/logging"
	"github.com/jask/homedeck/internal/pages"
	"github.com/jask/homedeck/internal/placement"
	"github.com/jask/homedeck/internal/service"
)

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "homedeck",
		Short:        "Home-page widget layout manager",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), runTUI)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.AddCommand(
		newListCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newMoveCmd(),
		newSwapCmd(),
		newResizeCmd(),
		newReconcileCmd(),
		newResetCmd(),
		newProvidersCmd(),
		newRevokeCmd(),
	)
	return root
}

// env is one process's wired page core, already reconciled.
type env struct {
	cfg         config.Config
	log         *zap.Logger
	store       placement.Store
	snapshots   *repository.SnapshotRepo
	registry    *host.Registry
	model       *pages.Model
	placements  *service.PlacementService
	maintenance *service.MaintenanceService
	report      service.Report
}

func withEnv(ctx context.Context, fn func(ctx context.Context, e *env) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.MigrateEmbedded(cfg.Database.Path); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	e := &env{cfg: cfg, log: log, snapshots: repository.NewSnapshotRepo(db)}
	switch cfg.Store.Driver {
	case config.DriverFile:
		e.store = placement.NewFileStore(cfg.Store.FilePath, log.Named("store"))
	default:
		e.store = placement.NewSQLStore(e.snapshots, log.Named("store"))
	}

	providers, err := parseProviders(cfg.Host.Providers)
	if err != nil {
		return err
	}
	e.registry = host.NewRegistry(host.RegistryConfig{
		Capacity:  cfg.Host.Capacity,
		Providers: providers,
		Store:     repository.NewAllocationRepo(db),
		Logger:    log.Named("host"),
	})
	if err := e.registry.Load(ctx); err != nil {
		return err
	}
	lease, err := host.Acquire(ctx, e.registry)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()

	e.model = pages.NewModel(e.store, e.registry, pages.Options{
		MaxPages: cfg.Pages.Max,
		Grid:     pages.FixedGrid{Cols: cfg.Grid.Columns, Rows: cfg.Grid.MaxRows},
		Visible:  pages.HideApps(cfg.Pages.HiddenApps),
		Logger:   log.Named("pages"),
	})
	defer e.model.Close()
	for i, apps := range cfg.Pages.Apps {
		if err := e.model.SetPageApps(i, apps); err != nil {
			return fmt.Errorf("pages.apps: %w", err)
		}
	}

	e.report = (&service.Reconciler{
		Store:   e.store,
		Host:    e.registry,
		Model:   e.model,
		Timeout: cfg.Reconcile.Timeout,
		Logger:  log.Named("reconcile"),
	}).Run(ctx)

	e.placements = &service.PlacementService{Host: e.registry, Model: e.model, Logger: log.Named("placement")}
	e.maintenance = &service.MaintenanceService{Store: e.store, Host: e.registry, Model: e.model, Logger: log.Named("maintenance")}
	return fn(ctx, e)
}

func parseProviders(raw []string) ([]placement.ProviderRef, error) {
	out := make([]placement.ProviderRef, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		ref, err := placement.ParseProviderRef(s)
		if err != nil {
			return nil, fmt.Errorf("host.providers: %w", err)
		}
		out = append(out, ref)
	}
	return out, nil
}
