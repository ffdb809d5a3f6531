package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tasknest/data-sync/store"
)

// Service is the protocol entry point. It owns the authoritative clock and
// sequences the delta computation and reconciliation; all state lives in the
// injected storage.
type Service struct {
	storage store.SyncStorage
	now     func() time.Time
}

func NewService(storage store.SyncStorage) *Service {
	return &Service{
		storage: storage,
		now:     time.Now,
	}
}

// Pull returns everything owned by userID that changed after the client's
// watermark, plus the server timestamp that becomes the next watermark.
//
// The timestamp is captured before the range queries run. A push landing
// between the snapshot and a query shows up in this delta with a timestamp
// at or above the returned one, so the next pull sees it again instead of
// skipping it.
func (s *Service) Pull(ctx context.Context, userID string, req PullRequest) (*PullResponse, error) {
	if req.LastPulledAt < 0 {
		return nil, fmt.Errorf("%w: lastPulledAt is negative", ErrInvalidWatermark)
	}

	timestamp := s.now().UnixMilli()
	changes := make(Changes, len(store.Tables))
	for _, spec := range store.Tables {
		records, err := s.storage.ListChangedSince(ctx, spec.Name, userID, req.LastPulledAt)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s changes: %w", spec.Name, err)
		}
		changes[spec.Name] = computeTableDelta(spec, records, req.LastPulledAt)
	}
	return &PullResponse{Changes: changes, Timestamp: timestamp}, nil
}

// Push validates and applies the client's changeset. Tables are applied in
// registry order (projects before tasks) and every bucket of every table
// shares one server timestamp, so a whole push is attributable to a single
// point on the watermark axis. A failure aborts the push; the client
// retries the same changeset and converges.
func (s *Service) Push(ctx context.Context, userID string, changes Changes) error {
	if err := changes.Validate(); err != nil {
		return err
	}

	nowMs := s.now().UnixMilli()
	for _, spec := range store.Tables {
		tc, ok := changes[spec.Name]
		if !ok {
			continue
		}
		if err := applyTableChanges(ctx, s.storage, spec, userID, tc, nowMs); err != nil {
			return err
		}
	}
	return nil
}
