package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/pages"
	"github.com/jask/homedeck/internal/placement"
)

// PlacementService runs the interactive add flow: allocate an id, bind it
// to the picked provider and place it. A failed add leaves no allocated id
// behind.
type PlacementService struct {
	Host   host.Adapter
	Model  *pages.Model
	Logger *zap.Logger
}

// Place adds a widget for provider to the given page.
func (s *PlacementService) Place(ctx context.Context, provider placement.ProviderRef, pageIndex int, pos placement.Position, size placement.Size) (placement.Record, error) {
	if err := s.Model.CheckPlacement(pageIndex, size); err != nil {
		return placement.Record{}, err
	}
	id, err := s.Host.AllocateID(ctx)
	if err != nil {
		return placement.Record{}, fmt.Errorf("allocate widget id: %w", err)
	}
	rec, err := s.Model.AddWidget(ctx, id, provider, pageIndex, pos, size)
	if err != nil {
		if _, placed := s.Model.Position(id); placed {
			// in memory but not durable; keep the id so the layout stays rendered
			return rec, err
		}
		if rerr := s.Host.ReclaimID(ctx, id); rerr != nil && s.Logger != nil {
			s.Logger.Warn("reclaim widget id after failed add", zap.Int("widget_id", id), zap.Error(rerr))
		}
		return placement.Record{}, err
	}
	return rec, nil
}
