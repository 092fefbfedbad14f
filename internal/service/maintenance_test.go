package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/placement"
)

func TestMaintenanceReset(t *testing.T) {
	ctx := context.Background()
	reg := host.NewRegistry(host.RegistryConfig{Providers: []placement.ProviderRef{clock, weather}})
	store := placement.NewFileStore(filepath.Join(t.TempDir(), "p.json"), nil)
	model := newModel(t, store, reg)
	svc := &PlacementService{Host: reg, Model: model}
	for i, p := range []placement.ProviderRef{clock, weather, clock} {
		_, err := svc.Place(ctx, p, i, placement.Position{}, unit)
		require.NoError(t, err)
	}

	m := &MaintenanceService{Store: store, Host: reg, Model: model}
	require.NoError(t, m.Reset(ctx))

	require.Empty(t, model.Records())
	require.Empty(t, reg.Allocated())
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded)

	require.Error(t, (&MaintenanceService{}).Reset(ctx))
}

func TestMaintenanceResetReclaimsHeldRecords(t *testing.T) {
	ctx := context.Background()
	reg := host.NewRegistry(host.RegistryConfig{Providers: []placement.ProviderRef{clock}})
	id := bound(t, reg, clock)
	store := placement.NewFileStore(filepath.Join(t.TempDir(), "p.json"), nil)
	model := newModel(t, store, reg)
	model.Hold([]placement.Record{{WidgetID: id, Provider: clock, Size: unit}})

	require.NoError(t, (&MaintenanceService{Store: store, Host: reg, Model: model}).Reset(ctx))
	require.Empty(t, reg.Allocated())
	require.Empty(t, model.Held())
}
