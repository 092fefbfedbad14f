package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jask/homedeck/internal/database"
	"github.com/jask/homedeck/internal/database/repository"
	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/pages"
	"github.com/jask/homedeck/internal/placement"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	clock   = placement.ProviderRef{Package: "com.x", Class: "Clock"}
	weather = placement.ProviderRef{Package: "com.x", Class: "Weather"}
	unit    = placement.Size{Width: 1, Height: 1}
)

// countingStore wraps a Store and counts writes.
type countingStore struct {
	placement.Store
	mu    sync.Mutex
	saves int
}

func (s *countingStore) Save(ctx context.Context, records []placement.Record) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Store.Save(ctx, records)
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newModel(t *testing.T, store placement.Store, adapter host.Adapter) *pages.Model {
	t.Helper()
	m := pages.NewModel(store, adapter, pages.Options{MaxPages: 3, Grid: pages.FixedGrid{Cols: 4, Rows: 3}})
	t.Cleanup(m.Close)
	return m
}

// bound allocates and binds a fresh id on r.
func bound(t *testing.T, r *host.Registry, p placement.ProviderRef) int {
	t.Helper()
	ctx := context.Background()
	id, err := r.AllocateID(ctx)
	require.NoError(t, err)
	_, err = r.BindView(ctx, id, p)
	require.NoError(t, err)
	return id
}

type sqliteEnv struct {
	snapshots   *repository.SnapshotRepo
	allocations *repository.AllocationRepo
}

func openSQLite(t *testing.T) sqliteEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("../database/migrations")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(dbPath, migrations))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqliteEnv{
		snapshots:   repository.NewSnapshotRepo(db),
		allocations: repository.NewAllocationRepo(db),
	}
}
