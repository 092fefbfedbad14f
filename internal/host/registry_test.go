package host

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/homedeck/internal/database"
	"github.com/jask/homedeck/internal/database/repository"
	"github.com/jask/homedeck/internal/placement"
)

var (
	clock   = placement.ProviderRef{Package: "com.x", Class: "Clock"}
	weather = placement.ProviderRef{Package: "com.x", Class: "Weather"}
)

func TestAllocateReusesReclaimedIDs(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(RegistryConfig{Capacity: 3, Providers: []placement.ProviderRef{clock}})

	a, err := r.AllocateID(ctx)
	require.NoError(t, err)
	b, err := r.AllocateID(ctx)
	require.NoError(t, err)
	c, err := r.AllocateID(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, []int{a, b, c})

	_, err = r.AllocateID(ctx)
	require.ErrorIs(t, err, ErrNoCapacity)

	require.NoError(t, r.ReclaimID(ctx, b))
	require.NoError(t, r.ReclaimID(ctx, b), "reclaim is idempotent")
	next, err := r.AllocateID(ctx)
	require.NoError(t, err)
	require.Equal(t, b, next)
}

func TestBindViewAndValidity(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(RegistryConfig{Providers: []placement.ProviderRef{clock, weather}})

	id, err := r.AllocateID(ctx)
	require.NoError(t, err)
	require.False(t, r.IsValid(ctx, id), "allocated but unbound")

	h, err := r.BindView(ctx, id, clock)
	require.NoError(t, err)
	require.Equal(t, id, h.WidgetID)
	require.Equal(t, clock, h.Provider)
	require.NotEmpty(t, h.Token)
	require.True(t, r.IsValid(ctx, id))

	h2, err := r.BindView(ctx, id, clock)
	require.NoError(t, err)
	require.NotEqual(t, h.Token, h2.Token)

	_, err = r.BindView(ctx, id, weather)
	require.ErrorIs(t, err, ErrProviderUnavailable, "bound ids keep their provider")
	h3, err := r.BindView(ctx, id, clock)
	require.NoError(t, err)
	require.Equal(t, clock, h3.Provider)

	_, err = r.BindView(ctx, id, placement.ProviderRef{Package: "com.gone", Class: "X"})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = r.BindView(ctx, 42, clock)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	r.Uninstall(clock)
	require.False(t, r.IsValid(ctx, id))
	r.Install(clock)
	require.True(t, r.IsValid(ctx, id))

	require.NoError(t, r.Revoke(ctx, id))
	require.False(t, r.IsValid(ctx, id))
	_, err = r.BindView(ctx, id, clock)
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestLeaseReleasesOnce(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(RegistryConfig{})

	lease, err := Acquire(ctx, r)
	require.NoError(t, err)
	require.True(t, r.Listening())

	_, err = Acquire(ctx, r)
	require.ErrorIs(t, err, ErrAlreadyListening)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))
	require.False(t, r.Listening())

	require.ErrorIs(t, r.StopListening(ctx), ErrNotListening)
}

func TestRegistryPersistsAllocations(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.MigrateEmbedded(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := repository.NewAllocationRepo(db)

	cfg := RegistryConfig{Providers: []placement.ProviderRef{clock, weather}, Store: repo}
	first := NewRegistry(cfg)
	require.NoError(t, first.Load(ctx))
	a, err := first.AllocateID(ctx)
	require.NoError(t, err)
	_, err = first.BindView(ctx, a, clock)
	require.NoError(t, err)
	b, err := first.AllocateID(ctx)
	require.NoError(t, err)
	_, err = first.BindView(ctx, b, weather)
	require.NoError(t, err)
	require.NoError(t, first.Revoke(ctx, b))
	c, err := first.AllocateID(ctx)
	require.NoError(t, err)
	require.NoError(t, first.ReclaimID(ctx, c))

	second := NewRegistry(cfg)
	require.NoError(t, second.Load(ctx))
	require.Equal(t, []int{a, b}, second.Allocated())
	require.True(t, second.IsValid(ctx, a))
	require.False(t, second.IsValid(ctx, b))
}

func TestSuggest(t *testing.T) {
	r := NewRegistry(RegistryConfig{Providers: []placement.ProviderRef{clock, weather}})

	got, ok := r.Suggest("com.x/Clok")
	require.True(t, ok)
	require.Equal(t, clock, got)

	got, ok = r.Suggest("COM.X/WEATHER")
	require.True(t, ok)
	require.Equal(t, weather, got)

	_, ok = r.Suggest("org.unrelated/Calendar")
	require.False(t, ok)
	_, ok = r.Suggest("")
	require.False(t, ok)
}
