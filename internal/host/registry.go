package host

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/homedeck/internal/database/repository"
	"github.com/jask/homedeck/internal/placement"
)

// AllocationStore persists the registry's id table across restarts.
type AllocationStore interface {
	List(ctx context.Context) ([]repository.Allocation, error)
	Put(ctx context.Context, a repository.Allocation) error
	Delete(ctx context.Context, widgetID int) error
}

// RegistryConfig configures a Registry. A nil Store keeps the id table in
// memory only.
type RegistryConfig struct {
	Capacity  int
	Providers []placement.ProviderRef
	Store     AllocationStore
	Logger    *zap.Logger
}

type allocation struct {
	provider placement.ProviderRef
	revoked  bool
}

// Registry is a local widget host. Ids are handed out lowest-free first, so
// a reclaimed id is reused by the next allocation.
type Registry struct {
	mu        sync.Mutex
	capacity  int
	providers map[placement.ProviderRef]struct{}
	ids       map[int]*allocation
	listening bool
	store     AllocationStore
	log       *zap.Logger
}

var (
	_ Adapter    = (*Registry)(nil)
	_ Enumerator = (*Registry)(nil)
)

func NewRegistry(cfg RegistryConfig) *Registry {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		capacity:  cfg.Capacity,
		providers: make(map[placement.ProviderRef]struct{}, len(cfg.Providers)),
		ids:       make(map[int]*allocation),
		store:     cfg.Store,
		log:       log,
	}
	for _, p := range cfg.Providers {
		r.providers[p] = struct{}{}
	}
	return r
}

// Load restores the id table from the allocation store.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	list, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range list {
		alloc := &allocation{revoked: a.Revoked}
		if a.Provider != "" {
			if ref, err := placement.ParseProviderRef(a.Provider); err == nil {
				alloc.provider = ref
			}
		}
		r.ids[a.WidgetID] = alloc
	}
	return nil
}

func (r *Registry) AllocateID(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity > 0 && len(r.ids) >= r.capacity {
		return 0, ErrNoCapacity
	}
	id := 1
	for {
		if _, taken := r.ids[id]; !taken {
			break
		}
		id++
	}
	alloc := &allocation{}
	if err := r.persist(ctx, id, alloc); err != nil {
		return 0, err
	}
	r.ids[id] = alloc
	return id, nil
}

func (r *Registry) ReclaimID(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return nil
	}
	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("reclaim %d: %w", id, err)
		}
	}
	delete(r.ids, id)
	return nil
}

func (r *Registry) BindView(ctx context.Context, id int, provider placement.ProviderRef) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alloc, ok := r.ids[id]
	if !ok || alloc.revoked {
		return Handle{}, fmt.Errorf("%w: id %d is not allocated", ErrProviderUnavailable, id)
	}
	if _, ok := r.providers[provider]; !ok {
		return Handle{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}
	if alloc.provider.Valid() && alloc.provider != provider {
		// the id was reused for another widget; the caller's record is stale
		return Handle{}, fmt.Errorf("%w: id %d is bound to %s", ErrProviderUnavailable, id, alloc.provider)
	}
	if !alloc.provider.Valid() {
		next := &allocation{provider: provider}
		if err := r.persist(ctx, id, next); err != nil {
			return Handle{}, err
		}
		r.ids[id] = next
	}
	return Handle{WidgetID: id, Provider: provider, Token: uuid.NewString()}, nil
}

func (r *Registry) IsValid(ctx context.Context, id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	alloc, ok := r.ids[id]
	if !ok || alloc.revoked || !alloc.provider.Valid() {
		return false
	}
	_, installed := r.providers[alloc.provider]
	return installed
}

func (r *Registry) StartListening(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listening {
		return ErrAlreadyListening
	}
	r.listening = true
	r.log.Debug("widget host listening")
	return nil
}

func (r *Registry) StopListening(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.listening {
		return ErrNotListening
	}
	r.listening = false
	r.log.Debug("widget host stopped listening")
	return nil
}

// Listening reports whether the host is between Start and StopListening.
func (r *Registry) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

// Install makes provider resolvable.
func (r *Registry) Install(provider placement.ProviderRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = struct{}{}
}

// Uninstall removes provider; ids bound to it stop being valid.
func (r *Registry) Uninstall(provider placement.ProviderRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, provider)
}

// Revoke invalidates id without reclaiming it, as a revoked bind
// permission would.
func (r *Registry) Revoke(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alloc, ok := r.ids[id]
	if !ok {
		return fmt.Errorf("revoke %d: not allocated", id)
	}
	next := &allocation{provider: alloc.provider, revoked: true}
	if err := r.persist(ctx, id, next); err != nil {
		return err
	}
	r.ids[id] = next
	return nil
}

// Allocated returns the currently allocated ids in ascending order.
func (r *Registry) Allocated() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Providers lists installed providers sorted by name.
func (r *Registry) Providers() []placement.ProviderRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]placement.ProviderRef, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Suggest returns the installed provider closest to query, if any is close
// enough to be a plausible typo.
func (r *Registry) Suggest(query string) (placement.ProviderRef, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return placement.ProviderRef{}, false
	}
	var (
		best     placement.ProviderRef
		bestDist = -1
	)
	for _, p := range r.Providers() {
		d := levenshtein.ComputeDistance(query, strings.ToLower(p.String()))
		if bestDist < 0 || d < bestDist {
			best, bestDist = p, d
		}
	}
	if bestDist < 0 {
		return placement.ProviderRef{}, false
	}
	maxlen := len(query)
	if n := len(best.String()); n > maxlen {
		maxlen = n
	}
	if float64(bestDist)/float64(maxlen) >= 0.4 {
		return placement.ProviderRef{}, false
	}
	return best, true
}

func (r *Registry) persist(ctx context.Context, id int, a *allocation) error {
	if r.store == nil {
		return nil
	}
	rec := repository.Allocation{WidgetID: id, Revoked: a.revoked}
	if a.provider.Valid() {
		rec.Provider = a.provider.String()
	}
	if err := r.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("persist allocation %d: %w", id, err)
	}
	return nil
}
