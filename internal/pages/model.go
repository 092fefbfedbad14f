// Package pages holds the in-memory home-page layout: which widgets sit on
// which page, in what order and at what size, plus the live host bindings
// that render them. Every mutation is written through to a placement.Store
// before the operation returns.
//
// A Model expects one writer at a time; concurrent operations are
// serialized in call order.
package pages

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/placement"
)

var (
	ErrOutOfRange  = errors.New("pages: out of range")
	ErrDuplicateID = errors.New("pages: widget id already placed")
)

// PageState is the derived view of one page.
type PageState struct {
	Index       int
	Widgets     []placement.Record
	VisibleApps []string
	AppsFirst   bool
}

// Options configures a Model.
type Options struct {
	MaxPages int
	Grid     GridCapacity
	Visible  VisibilityFunc
	Logger   *zap.Logger
}

type page struct {
	widgets   []placement.Record
	apps      []string
	appsFirst bool
}

func (p *page) indexOf(id int) int {
	for i, r := range p.widgets {
		if r.WidgetID == id {
			return i
		}
	}
	return -1
}

// Model is the page layout. The zero value is not usable; use NewModel.
type Model struct {
	// writeMu orders mutate-then-persist sequences; mu guards state reads.
	writeMu sync.Mutex
	mu      sync.Mutex

	pages    []page
	bindings map[int]host.Handle

	// held records are persisted but not shown; see Hold.
	held []placement.Record

	grid    GridCapacity
	visible VisibilityFunc
	store   placement.Store
	host    host.Adapter
	log     *zap.Logger
	stream  broadcaster
}

func NewModel(store placement.Store, adapter host.Adapter, opts Options) *Model {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.Grid == nil {
		opts.Grid = FixedGrid{Cols: 4, Rows: 4}
	}
	if opts.Visible == nil {
		opts.Visible = AllVisible
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Model{
		pages:    make([]page, opts.MaxPages),
		bindings: make(map[int]host.Handle),
		grid:     opts.Grid,
		visible:  opts.Visible,
		store:    store,
		host:     adapter,
		log:      opts.Logger,
	}
}

func (m *Model) MaxPages() int { return len(m.pages) }

func (m *Model) Grid() GridCapacity { return m.grid }

// CheckPlacement validates a page index and size against the model bounds.
func (m *Model) CheckPlacement(pageIndex int, size placement.Size) error {
	if err := m.checkPage(pageIndex); err != nil {
		return err
	}
	return m.checkSize(size)
}

func (m *Model) checkPage(i int) error {
	if i < 0 || i >= len(m.pages) {
		return fmt.Errorf("%w: page %d not in [0,%d)", ErrOutOfRange, i, len(m.pages))
	}
	return nil
}

func (m *Model) checkSize(s placement.Size) error {
	cols, rows := m.grid.Columns(), m.grid.MaxRows()
	if s.Width < 1 || s.Height < 1 || s.Width > cols || s.Height > rows {
		return fmt.Errorf("%w: size %dx%d exceeds %dx%d", ErrOutOfRange, s.Width, s.Height, cols, rows)
	}
	return nil
}

// Pages returns a copy of every page's state.
func (m *Model) Pages() []PageState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statesLocked()
}

func (m *Model) statesLocked() []PageState {
	out := make([]PageState, len(m.pages))
	for i, p := range m.pages {
		st := PageState{
			Index:     i,
			Widgets:   append([]placement.Record(nil), p.widgets...),
			AppsFirst: p.appsFirst,
		}
		for _, pkg := range p.apps {
			if m.visible(pkg) {
				st.VisibleApps = append(st.VisibleApps, pkg)
			}
		}
		out[i] = st
	}
	return out
}

// Records flattens the layout into page order, the form that is persisted.
func (m *Model) Records() []placement.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordsLocked()
}

func (m *Model) recordsLocked() []placement.Record {
	var out []placement.Record
	for _, p := range m.pages {
		out = append(out, p.widgets...)
	}
	return out
}

// Hold keeps records that could not be reconciled. They are not shown, but
// every snapshot written until the next Restore carries them, so their
// widget ids stay referenced for a later pass.
func (m *Model) Hold(records []placement.Record) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	m.held = append([]placement.Record(nil), records...)
	m.mu.Unlock()
}

// Held returns the records set by Hold.
func (m *Model) Held() []placement.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]placement.Record(nil), m.held...)
}

// snapshotLocked is the persisted form: the layout followed by held
// records whose id is not placed.
func (m *Model) snapshotLocked() []placement.Record {
	out := m.recordsLocked()
	if len(m.held) == 0 {
		return out
	}
	live := make(map[int]bool, len(out))
	for _, r := range out {
		live[r.WidgetID] = true
	}
	for _, r := range m.held {
		if !live[r.WidgetID] {
			out = append(out, r)
		}
	}
	return out
}

// Position looks up a placed widget by id.
func (m *Model) Position(id int) (placement.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pages {
		if i := p.indexOf(id); i >= 0 {
			return p.widgets[i], true
		}
	}
	return placement.Record{}, false
}

// Binding returns the live host handle for a placed widget.
func (m *Model) Binding(id int) (host.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.bindings[id]
	return h, ok
}

// Subscribe returns a channel that receives the full page state after every
// completed operation, starting with the current state. Only the latest
// unread state is kept. cancel closes the channel.
func (m *Model) Subscribe() (<-chan []PageState, func()) {
	return m.stream.subscribe(m.Pages())
}

// Close ends every subscription.
func (m *Model) Close() {
	m.stream.closeAll()
}

// Restore replaces the whole layout without persisting it and drops any
// held records. Records on pages outside the model are ignored.
func (m *Model) Restore(records []placement.Record, bindings map[int]host.Handle) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	m.held = nil
	for i := range m.pages {
		m.pages[i].widgets = nil
	}
	for _, r := range records {
		if r.Page < 0 || r.Page >= len(m.pages) {
			m.log.Warn("restore skipped record outside page range", zap.Int("widget_id", r.WidgetID), zap.Int("page", r.Page))
			continue
		}
		m.pages[r.Page].widgets = append(m.pages[r.Page].widgets, r)
	}
	m.bindings = make(map[int]host.Handle, len(bindings))
	for id, h := range bindings {
		m.bindings[id] = h
	}
	states := m.statesLocked()
	m.mu.Unlock()

	m.stream.publish(states)
}

// SetPageApps sets the candidate app packages shown in a page's apps
// section. Visibility is applied when states are derived.
func (m *Model) SetPageApps(pageIndex int, packages []string) error {
	return m.updateView(pageIndex, func(p *page) {
		p.apps = append([]string(nil), packages...)
	})
}

// SetAppsFirst orders the apps section before the widgets section.
func (m *Model) SetAppsFirst(pageIndex int, first bool) error {
	return m.updateView(pageIndex, func(p *page) {
		p.appsFirst = first
	})
}

func (m *Model) updateView(pageIndex int, fn func(p *page)) error {
	if err := m.checkPage(pageIndex); err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	fn(&m.pages[pageIndex])
	states := m.statesLocked()
	m.mu.Unlock()

	m.stream.publish(states)
	return nil
}

// commit writes the current layout through to the store and publishes it.
// The caller holds writeMu and has already applied its in-memory change.
func (m *Model) commit(ctx context.Context) error {
	m.mu.Lock()
	records := m.snapshotLocked()
	states := m.statesLocked()
	m.mu.Unlock()

	err := m.store.Save(ctx, records)
	m.stream.publish(states)
	if err != nil {
		m.log.Error("persist placements", zap.Int("records", len(records)), zap.Error(err))
		return fmt.Errorf("persist placements: %w", err)
	}
	return nil
}

// commitRemoval deletes one record from the stored snapshot and publishes
// the layout. The caller holds writeMu.
func (m *Model) commitRemoval(ctx context.Context, id int) error {
	m.mu.Lock()
	states := m.statesLocked()
	m.mu.Unlock()

	err := m.store.Remove(ctx, id)
	m.stream.publish(states)
	if err != nil {
		m.log.Error("remove placement", zap.Int("widget_id", id), zap.Error(err))
		return fmt.Errorf("persist placements: %w", err)
	}
	return nil
}
