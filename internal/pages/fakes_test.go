package pages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/placement"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	clockRef   = placement.ProviderRef{Package: "com.x", Class: "Clock"}
	weatherRef = placement.ProviderRef{Package: "com.x", Class: "Weather"}
)

type memStore struct {
	mu      sync.Mutex
	records []placement.Record
	saves   int
	removes int
	saveErr error
}

func (s *memStore) Load(ctx context.Context) ([]placement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]placement.Record(nil), s.records...), nil
}

func (s *memStore) Save(ctx context.Context, records []placement.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = append([]placement.Record(nil), records...)
	return nil
}

func (s *memStore) Remove(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = placement.Filter(s.records, id)
	return nil
}

func (s *memStore) removeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removes
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// fakeHost accepts any id it was told about and binds installed providers.
type fakeHost struct {
	mu         sync.Mutex
	installed  map[placement.ProviderRef]bool
	reclaimed  []int
	reclaimErr error
}

func newFakeHost(providers ...placement.ProviderRef) *fakeHost {
	h := &fakeHost{installed: map[placement.ProviderRef]bool{}}
	for _, p := range providers {
		h.installed[p] = true
	}
	return h
}

func (h *fakeHost) AllocateID(ctx context.Context) (int, error) {
	return 0, errors.New("not used")
}

func (h *fakeHost) ReclaimID(ctx context.Context, id int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reclaimed = append(h.reclaimed, id)
	return h.reclaimErr
}

func (h *fakeHost) BindView(ctx context.Context, id int, p placement.ProviderRef) (host.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.installed[p] {
		return host.Handle{}, fmt.Errorf("%w: %s", host.ErrProviderUnavailable, p)
	}
	return host.Handle{WidgetID: id, Provider: p, Token: fmt.Sprintf("tok-%d", id)}, nil
}

func (h *fakeHost) IsValid(ctx context.Context, id int) bool { return true }

func (h *fakeHost) StartListening(ctx context.Context) error { return nil }
func (h *fakeHost) StopListening(ctx context.Context) error  { return nil }

func (h *fakeHost) reclaimedIDs() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.reclaimed...)
}

func newTestModel(t *testing.T) (*Model, *memStore, *fakeHost) {
	t.Helper()
	store := &memStore{}
	h := newFakeHost(clockRef, weatherRef)
	m := NewModel(store, h, Options{MaxPages: 3, Grid: FixedGrid{Cols: 4, Rows: 3}})
	t.Cleanup(m.Close)
	return m, store, h
}
