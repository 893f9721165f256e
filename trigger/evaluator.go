package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/funnelkit/journey/cache"
	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/predicate"
	"go.uber.org/zap"
)

// Evaluator matches incoming domain events to published workflow
// definitions and creates enrollments. Idempotency lives in the store's
// active-uniqueness constraint, not here.
type Evaluator struct {
	definitions *cache.DefinitionCache
	store       persistence.EnrollmentStore
	now         func() time.Time
}

func NewEvaluator(definitions *cache.DefinitionCache, store persistence.EnrollmentStore) *Evaluator {
	return &Evaluator{
		definitions: definitions,
		store:       store,
		now:         time.Now,
	}
}

// Evaluate returns the ids of enrollments created for the event.
func (ev *Evaluator) Evaluate(ctx context.Context, event model.Event) ([]string, error) {
	definitions, err := ev.definitions.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	var created []string
	for _, wf := range definitions {
		if wf.Trigger.EventType != event.Type {
			continue
		}
		if err := model.Validate(wf); err != nil {
			// a broken graph must never produce an enrollment
			logger.Error("skipping workflow with invalid definition", zap.String("workflow", wf.Id), zap.Error(err))
			continue
		}
		matched, err := predicate.EvalGroups(wf.Trigger.Filters, event.Payload)
		if err != nil {
			logger.Warn("error evaluating trigger filters", zap.String("workflow", wf.Id), zap.Error(err))
			continue
		}
		if !matched {
			continue
		}
		enrollment := model.NewEnrollment(wf, event.EntityId, ev.now())
		err = ev.store.Create(ctx, enrollment)
		if err != nil {
			if errors.Is(err, persistence.ErrDuplicateActive) {
				logger.Debug("entity already enrolled", zap.String("workflow", wf.Id), zap.String("entity", event.EntityId))
				continue
			}
			logger.Error("error creating enrollment", zap.String("workflow", wf.Id), zap.String("entity", event.EntityId), zap.Error(err))
			continue
		}
		logger.Info("enrollment created", zap.String("workflow", wf.Id), zap.String("entity", event.EntityId), zap.String("enrollment", enrollment.Id))
		created = append(created, enrollment.Id)
	}
	return created, nil
}
