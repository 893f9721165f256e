package event

import (
	"context"

	"github.com/funnelkit/journey/engine"
	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/persistence"
	"go.uber.org/zap"
)

// Service is the synchronous resume path. Producers (email tracking,
// form submissions, stage changes) call Resume directly; matching
// enrollments advance inline rather than waiting for the next tick.
type Service struct {
	store    persistence.EnrollmentStore
	executor *engine.StepExecutor
}

func NewService(store persistence.EnrollmentStore, executor *engine.StepExecutor) *Service {
	return &Service{
		store:    store,
		executor: executor,
	}
}

// Resume advances every enrollment waiting on (eventType, entityId). A
// failed claim means the scheduler's timeout sweep (or a concurrent
// producer) got there first; whoever wins the claim owns the branch
// taken, so the loser no-ops.
func (s *Service) Resume(ctx context.Context, eventType string, entityId string, payload map[string]any) error {
	waiting, err := s.store.FindWaiting(ctx, eventType, entityId)
	if err != nil {
		return err
	}
	for _, enrollment := range waiting {
		claimed, err := s.store.Claim(ctx, enrollment.Id, enrollment.ClaimVersion)
		if err != nil {
			logger.Error("error claiming enrollment", zap.String("enrollment", enrollment.Id), zap.Error(err))
			continue
		}
		if !claimed {
			logger.Debug("lost resume claim race", zap.String("enrollment", enrollment.Id))
			continue
		}
		enrollment.ClaimVersion++
		wake := engine.Wake{Kind: engine.WAKE_EVENT, Payload: payload}
		if err := s.executor.Advance(ctx, enrollment, wake); err != nil {
			logger.Error("error resuming enrollment", zap.String("enrollment", enrollment.Id), zap.Error(err))
		}
	}
	return nil
}

// Cancel raises the cancel flag and then tries to finalize the
// enrollment inline, so a waiter with no timeout does not hold its
// active slot until an event happens to arrive. Everything past the flag
// write is best effort: a lost claim leaves the flag to be observed at
// the next wake.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := s.store.RequestCancel(ctx, id); err != nil {
		return err
	}
	enrollment, err := s.store.Get(ctx, id)
	if err != nil || enrollment.Terminal() {
		return nil
	}
	claimed, err := s.store.Claim(ctx, enrollment.Id, enrollment.ClaimVersion)
	if err != nil {
		logger.Error("error claiming enrollment", zap.String("enrollment", enrollment.Id), zap.Error(err))
		return nil
	}
	if !claimed {
		logger.Debug("lost cancel claim race", zap.String("enrollment", enrollment.Id))
		return nil
	}
	enrollment.ClaimVersion++
	if err := s.executor.Advance(ctx, enrollment, engine.Wake{Kind: engine.WAKE_TICK}); err != nil {
		logger.Error("error cancelling enrollment", zap.String("enrollment", enrollment.Id), zap.Error(err))
	}
	return nil
}
