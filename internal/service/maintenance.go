package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/pages"
	"github.com/jask/homedeck/internal/placement"
)

// MaintenanceService houses destructive actions surfaced through the CLI and TUI.
type MaintenanceService struct {
	Store  placement.Store
	Host   host.Adapter
	Model  *pages.Model
	Logger *zap.Logger
}

// Reset removes every placed or held widget: ids go back to the host and
// an empty snapshot is written.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.Store == nil || s.Model == nil {
		return fmt.Errorf("maintenance: not configured")
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	records := append(s.Model.Records(), s.Model.Held()...)
	if err := s.Store.Save(ctx, nil); err != nil {
		return fmt.Errorf("reset placements: %w", err)
	}
	s.Model.Restore(nil, nil)
	for _, rec := range records {
		if err := s.Host.ReclaimID(ctx, rec.WidgetID); err != nil {
			log.Warn("reclaim widget id during reset", zap.Int("widget_id", rec.WidgetID), zap.Error(err))
		}
	}
	log.Info("placements reset", zap.Int("removed", len(records)))
	return nil
}
