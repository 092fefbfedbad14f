package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/pages"
	"github.com/jask/homedeck/internal/placement"
)

func TestPlaceAllocatesBindsAndPersists(t *testing.T) {
	ctx := context.Background()
	reg := host.NewRegistry(host.RegistryConfig{Capacity: 2, Providers: []placement.ProviderRef{clock}})
	store := placement.NewFileStore(filepath.Join(t.TempDir(), "p.json"), nil)
	model := newModel(t, store, reg)
	svc := &PlacementService{Host: reg, Model: model}

	rec, err := svc.Place(ctx, clock, 1, placement.Position{X: 3}, placement.Size{Width: 2, Height: 1})
	require.NoError(t, err)
	require.Equal(t, 1, rec.WidgetID)
	require.True(t, reg.IsValid(ctx, rec.WidgetID))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []placement.Record{rec}, loaded)
}

func TestPlaceNoCapacityLeavesNoState(t *testing.T) {
	ctx := context.Background()
	reg := host.NewRegistry(host.RegistryConfig{Capacity: 1, Providers: []placement.ProviderRef{clock}})
	store := &countingStore{Store: placement.NewFileStore(filepath.Join(t.TempDir(), "p.json"), nil)}
	model := newModel(t, store, reg)
	svc := &PlacementService{Host: reg, Model: model}

	_, err := svc.Place(ctx, clock, 0, placement.Position{}, unit)
	require.NoError(t, err)
	_, err = svc.Place(ctx, clock, 0, placement.Position{}, unit)
	require.ErrorIs(t, err, host.ErrNoCapacity)

	require.Len(t, model.Records(), 1)
	require.Equal(t, 1, store.saveCount())
}

func TestPlaceFailureReclaimsID(t *testing.T) {
	ctx := context.Background()
	reg := host.NewRegistry(host.RegistryConfig{Providers: []placement.ProviderRef{clock}})
	model := newModel(t, placement.NewFileStore(filepath.Join(t.TempDir(), "p.json"), nil), reg)
	svc := &PlacementService{Host: reg, Model: model}

	_, err := svc.Place(ctx, weather, 0, placement.Position{}, unit)
	require.ErrorIs(t, err, host.ErrProviderUnavailable)
	require.Empty(t, reg.Allocated())
	require.Empty(t, model.Records())

	_, err = svc.Place(ctx, clock, 3, placement.Position{}, unit)
	require.ErrorIs(t, err, pages.ErrOutOfRange)
	_, err = svc.Place(ctx, clock, 0, placement.Position{}, placement.Size{Width: 5, Height: 1})
	require.ErrorIs(t, err, pages.ErrOutOfRange)
	require.Empty(t, reg.Allocated())
}

func TestPlacementsSurviveRestartWithSQLite(t *testing.T) {
	ctx := context.Background()
	env := openSQLite(t)
	providers := []placement.ProviderRef{clock, weather}

	// first process
	reg := host.NewRegistry(host.RegistryConfig{Providers: providers, Store: env.allocations})
	require.NoError(t, reg.Load(ctx))
	store := placement.NewSQLStore(env.snapshots, nil)
	model := newModel(t, store, reg)
	svc := &PlacementService{Host: reg, Model: model}
	a, err := svc.Place(ctx, clock, 0, placement.Position{}, unit)
	require.NoError(t, err)
	b, err := svc.Place(ctx, weather, 1, placement.Position{}, placement.Size{Width: 2, Height: 2})
	require.NoError(t, err)
	require.NoError(t, model.MoveWidget(ctx, a.WidgetID, 0, 2))
	require.NoError(t, reg.Revoke(ctx, b.WidgetID))

	// second process
	reg2 := host.NewRegistry(host.RegistryConfig{Providers: providers, Store: env.allocations})
	require.NoError(t, reg2.Load(ctx))
	model2 := newModel(t, store, reg2)
	report := (&Reconciler{Store: store, Host: reg2, Model: model2}).Run(ctx)
	require.Equal(t, Report{Loaded: 2, Kept: 1, Dropped: 1}, report)

	rec, ok := model2.Position(a.WidgetID)
	require.True(t, ok)
	require.Equal(t, 2, rec.Page)
	_, ok = model2.Position(b.WidgetID)
	require.False(t, ok)

	// third process sees the pruned state and the freed id
	reg3 := host.NewRegistry(host.RegistryConfig{Providers: providers, Store: env.allocations})
	require.NoError(t, reg3.Load(ctx))
	require.Equal(t, []int{a.WidgetID}, reg3.Allocated())
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}
