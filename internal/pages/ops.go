package pages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/placement"
)

// AddWidget binds an already allocated widget id to provider and appends it
// to the page. The id is not reclaimed on failure; that belongs to whoever
// allocated it.
func (m *Model) AddWidget(ctx context.Context, id int, provider placement.ProviderRef, pageIndex int, pos placement.Position, size placement.Size) (placement.Record, error) {
	if err := m.CheckPlacement(pageIndex, size); err != nil {
		return placement.Record{}, err
	}
	if !provider.Valid() {
		return placement.Record{}, fmt.Errorf("%w: malformed provider %q", host.ErrProviderUnavailable, provider)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if _, placed := m.Position(id); placed {
		return placement.Record{}, fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	handle, err := m.host.BindView(ctx, id, provider)
	if err != nil {
		return placement.Record{}, fmt.Errorf("bind widget %d: %w", id, err)
	}

	rec := placement.Record{WidgetID: id, Provider: provider, Position: pos, Size: size, Page: pageIndex}
	m.mu.Lock()
	m.pages[pageIndex].widgets = append(m.pages[pageIndex].widgets, rec)
	m.bindings[id] = handle
	m.mu.Unlock()

	m.log.Info("widget added", zap.Int("widget_id", id), zap.Int("page", pageIndex), zap.Stringer("provider", provider))
	return rec, m.commit(ctx)
}

// RemoveWidget drops a widget from a page, deletes its stored record and
// hands the id back to the host. Removing an absent id is a no-op. Host
// reclamation is best effort; the snapshot is authoritative.
func (m *Model) RemoveWidget(ctx context.Context, id, pageIndex int) error {
	if err := m.checkPage(pageIndex); err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	p := &m.pages[pageIndex]
	i := p.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return nil
	}
	p.widgets = append(p.widgets[:i], p.widgets[i+1:]...)
	delete(m.bindings, id)
	m.held = placement.Filter(m.held, id)
	m.mu.Unlock()

	err := m.commitRemoval(ctx, id)
	if rerr := m.host.ReclaimID(ctx, id); rerr != nil {
		m.log.Warn("reclaim widget id", zap.Int("widget_id", id), zap.Error(rerr))
	}
	m.log.Info("widget removed", zap.Int("widget_id", id), zap.Int("page", pageIndex))
	return err
}

// MoveWidget moves a widget to the end of another page. A widget that is
// not on from is left alone.
func (m *Model) MoveWidget(ctx context.Context, id, from, to int) error {
	if err := m.checkPage(from); err != nil {
		return err
	}
	if err := m.checkPage(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	src := &m.pages[from]
	i := src.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return nil
	}
	rec := src.widgets[i]
	src.widgets = append(src.widgets[:i], src.widgets[i+1:]...)
	rec.Page = to
	m.pages[to].widgets = append(m.pages[to].widgets, rec)
	m.mu.Unlock()

	m.log.Debug("widget moved", zap.Int("widget_id", id), zap.Int("from", from), zap.Int("to", to))
	return m.commit(ctx)
}

// SwapWidgets exchanges the order slot and position of two widgets on the
// same page. Both must be present, otherwise nothing happens.
func (m *Model) SwapWidgets(ctx context.Context, a, b, pageIndex int) error {
	if err := m.checkPage(pageIndex); err != nil {
		return err
	}
	if a == b {
		return nil
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	p := &m.pages[pageIndex]
	i, j := p.indexOf(a), p.indexOf(b)
	if i < 0 || j < 0 {
		m.mu.Unlock()
		return nil
	}
	w := p.widgets
	w[i].Position, w[j].Position = w[j].Position, w[i].Position
	w[i], w[j] = w[j], w[i]
	m.mu.Unlock()

	return m.commit(ctx)
}

// ResizeWidget sets a widget's size in cells. Sizes outside
// [1, columns] x [1, max rows] are rejected; callers clamp beforehand.
func (m *Model) ResizeWidget(ctx context.Context, id, pageIndex, width, height int) error {
	size := placement.Size{Width: width, Height: height}
	if err := m.CheckPlacement(pageIndex, size); err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	p := &m.pages[pageIndex]
	i := p.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return nil
	}
	if p.widgets[i].Size == size {
		m.mu.Unlock()
		return nil
	}
	p.widgets[i].Size = size
	m.mu.Unlock()

	return m.commit(ctx)
}
