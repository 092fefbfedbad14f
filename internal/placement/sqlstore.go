package placement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/homedeck/internal/database/repository"
)

// SQLStore keeps the snapshot in the sqlite placement_snapshot row.
type SQLStore struct {
	repo *repository.SnapshotRepo
	log  *zap.Logger
}

func NewSQLStore(repo *repository.SnapshotRepo, log *zap.Logger) *SQLStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStore{repo: repo, log: log}
}

func (s *SQLStore) Load(ctx context.Context) ([]Record, error) {
	snap, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		return nil, nil
	}
	records, err := DecodeSnapshot(snap.Payload)
	if err != nil {
		s.log.Warn("discarding unreadable placement snapshot", zap.String("revision", snap.Revision), zap.Error(err))
		return nil, nil
	}
	return records, nil
}

func (s *SQLStore) Save(ctx context.Context, records []Record) error {
	data, err := EncodeSnapshot(records)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	rev, err := s.repo.Put(ctx, data)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.log.Debug("placement snapshot saved", zap.String("revision", rev), zap.Int("records", len(records)))
	return nil
}

// Remove filters one record out of the snapshot inside a single transaction.
// A corrupt stored payload is replaced by an empty snapshot.
func (s *SQLStore) Remove(ctx context.Context, widgetID int) error {
	return s.repo.Update(ctx, func(current []byte) ([]byte, error) {
		records, err := DecodeSnapshot(current)
		if err != nil {
			s.log.Warn("discarding unreadable placement snapshot", zap.Error(err))
			records = nil
		}
		return EncodeSnapshot(Filter(records, widgetID))
	})
}
