package engine

import (
	"context"
	"errors"
	"time"

	"github.com/funnelkit/journey/action"
	"github.com/funnelkit/journey/analytics"
	"github.com/funnelkit/journey/cache"
	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/predicate"
	"github.com/funnelkit/journey/util"
	"go.uber.org/zap"
)

type WakeKind string

const WAKE_TICK WakeKind = "tick"
const WAKE_EVENT WakeKind = "event"

// Wake describes why an enrollment is being advanced: a scheduler tick
// (which also covers delay expiry and event-wait timeouts) or a matched
// event carrying its payload.
type Wake struct {
	Kind    WakeKind
	Payload map[string]any
}

type Config struct {
	MaxStepsPerTick       int
	MaxStepsPerEnrollment int
	MaxActionAttempts     int
	RetryBackoff          time.Duration
	ActionTimeout         time.Duration
}

// StepExecutor is the state machine core. It is invoked with a claimed
// enrollment (the caller won the CAS on ClaimVersion) and owns every
// mutation of the record until the final version-guarded persist. A
// failure inside one enrollment never propagates to the caller's loop.
type StepExecutor struct {
	store       persistence.EnrollmentStore
	definitions *cache.DefinitionCache
	registry    *action.Registry
	entities    EntityProvider
	collector   analytics.Collector
	cfg         Config
	now         func() time.Time
}

func NewStepExecutor(cfg Config, store persistence.EnrollmentStore, definitions *cache.DefinitionCache,
	registry *action.Registry, entities EntityProvider, collector analytics.Collector) *StepExecutor {
	if collector == nil {
		collector = analytics.NoopCollector{}
	}
	return &StepExecutor{
		store:       store,
		definitions: definitions,
		registry:    registry,
		entities:    entities,
		collector:   collector,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Advance drives one claimed enrollment as far as it can go in this
// invocation and persists the outcome. The returned error reports
// infrastructure trouble only; enrollment-level failures are terminal
// states, not errors.
func (ex *StepExecutor) Advance(ctx context.Context, enrollment *model.Enrollment, wake Wake) error {
	if enrollment.Terminal() {
		return nil
	}
	now := ex.now()
	wf, err := ex.definitions.Get(ctx, enrollment.WorkflowId)
	if err != nil {
		logger.Error("workflow definition not found", zap.String("workflow", enrollment.WorkflowId), zap.Error(err))
		ex.fail(enrollment, enrollment.CurrentStepId, 0, now, "workflow definition not found")
		return ex.persist(ctx, enrollment, now)
	}
	entity, err := ex.entities.Snapshot(ctx, enrollment.EntityId)
	if err != nil {
		logger.Error("error loading entity snapshot", zap.String("entity", enrollment.EntityId), zap.Error(err))
		entity = map[string]any{"id": enrollment.EntityId}
	}
	data := predicateData(entity, wake)

	if enrollment.CancelRequested {
		ex.terminate(enrollment, model.STATUS_CANCELLED)
		logger.Info("enrollment cancelled", zap.String("enrollment", enrollment.Id))
		return ex.persist(ctx, enrollment, now)
	}
	if ex.goalMet(wf, data) {
		ex.terminate(enrollment, model.STATUS_GOAL_MET)
		logger.Info("enrollment goal met", zap.String("enrollment", enrollment.Id), zap.String("workflow", wf.Id))
		return ex.persist(ctx, enrollment, now)
	}

	if done := ex.reposition(enrollment, wf, wake, now); done {
		return ex.persist(ctx, enrollment, now)
	}

	steps := 0
	for enrollment.Status == model.STATUS_ACTIVE {
		if steps >= ex.cfg.MaxStepsPerTick {
			// budget for this wake spent; progress is persisted and the
			// next tick continues the chain
			next := now
			enrollment.NextExecutionTime = &next
			break
		}
		if enrollment.StepsExecuted >= ex.cfg.MaxStepsPerEnrollment {
			ex.fail(enrollment, enrollment.CurrentStepId, 0, now, "max steps per enrollment exceeded")
			break
		}
		step, ok := wf.Step(enrollment.CurrentStepId)
		if !ok {
			ex.fail(enrollment, enrollment.CurrentStepId, 0, now, "current step no longer exists in workflow definition")
			break
		}
		cont := ex.executeStep(ctx, wf, enrollment, step, data, entity, now)
		steps++
		if !cont {
			break
		}
	}
	return ex.persist(ctx, enrollment, now)
}

// reposition translates the wake reason into the step the loop should run
// next. Returns true when the wake fully resolves the enrollment (or is
// spurious) and no step loop is needed.
func (ex *StepExecutor) reposition(enrollment *model.Enrollment, wf *model.WorkflowDefinition, wake Wake, now time.Time) bool {
	switch enrollment.Status {
	case model.STATUS_ACTIVE:
		enrollment.WaitingForEvent = nil
		enrollment.NextExecutionTime = nil
		return false
	case model.STATUS_WAITING_DELAY:
		step, ok := wf.Step(enrollment.CurrentStepId)
		if !ok {
			ex.fail(enrollment, enrollment.CurrentStepId, 0, now, "current step no longer exists in workflow definition")
			return true
		}
		enrollment.NextExecutionTime = nil
		ex.moveTo(enrollment, firstNext(step))
		return false
	case model.STATUS_WAITING_EVENT:
		wait := enrollment.WaitingForEvent
		step, ok := wf.Step(enrollment.CurrentStepId)
		if !ok {
			ex.fail(enrollment, enrollment.CurrentStepId, 0, now, "current step no longer exists in workflow definition")
			return true
		}
		if wake.Kind == WAKE_EVENT {
			enrollment.WaitingForEvent = nil
			ex.moveTo(enrollment, firstNext(step))
			return false
		}
		if wait != nil && wait.TimeoutAt != nil && !wait.TimeoutAt.After(now) {
			enrollment.WaitingForEvent = nil
			ex.moveTo(enrollment, wait.TimeoutStepId)
			return false
		}
		// spurious tick for a wait with no expired timeout: the claim was
		// consumed but there is nothing to do
		return true
	default:
		return true
	}
}

func (ex *StepExecutor) executeStep(ctx context.Context, wf *model.WorkflowDefinition, enrollment *model.Enrollment,
	step *model.Step, data map[string]any, entity map[string]any, now time.Time) bool {
	enrollment.StepsExecuted++
	switch step.Type {
	case model.STEP_TYPE_ACTION:
		return ex.runAction(ctx, wf, enrollment, step, data, entity, now)
	case model.STEP_TYPE_CONDITION:
		return ex.runCondition(enrollment, step, data, now)
	case model.STEP_TYPE_DELAY:
		return ex.runDelay(enrollment, step, now)
	case model.STEP_TYPE_WAIT_EVENT:
		return ex.runWaitEvent(enrollment, step, now)
	case model.STEP_TYPE_GOAL:
		// workflow-level criteria were checked on entry; an unmet goal
		// step falls through
		enrollment.AppendHistory(model.StepExecution{
			StepId: step.Id, Status: model.STEP_COMPLETED, StartedAt: now, CompletedAt: now,
			Result: map[string]any{"goalMet": false},
		})
		ex.moveTo(enrollment, firstNext(step))
		return true
	}
	ex.fail(enrollment, step.Id, 0, now, "unknown step type "+string(step.Type))
	return false
}

func (ex *StepExecutor) runAction(ctx context.Context, wf *model.WorkflowDefinition, enrollment *model.Enrollment,
	step *model.Step, data map[string]any, entity map[string]any, now time.Time) bool {
	attempt := enrollment.Attempts + 1
	handler, err := ex.registry.Get(step.Action.Name)
	if err != nil {
		ex.collector.RecordStepFailure(wf.Id, enrollment.Id, step.Id, step.Action.Name, err.Error())
		ex.fail(enrollment, step.Id, attempt, now, err.Error())
		return false
	}
	params := util.ResolveParams(data, step.Action.Params)
	actionCtx, cancel := context.WithTimeout(ctx, ex.cfg.ActionTimeout)
	result, err := handler.Execute(actionCtx, params, entity)
	cancel()
	if err == nil {
		enrollment.Attempts = 0
		enrollment.AppendHistory(model.StepExecution{
			StepId: step.Id, Status: model.STEP_COMPLETED, Attempt: attempt,
			StartedAt: now, CompletedAt: ex.now(), Result: result,
		})
		ex.collector.RecordStepSuccess(wf.Id, enrollment.Id, step.Id, step.Action.Name, result)
		ex.moveTo(enrollment, firstNext(step))
		return true
	}
	if errors.Is(actionCtx.Err(), context.DeadlineExceeded) {
		err = action.Transient(err)
	}
	enrollment.AppendHistory(model.StepExecution{
		StepId: step.Id, Status: model.STEP_FAILED, Attempt: attempt,
		StartedAt: now, CompletedAt: ex.now(), Error: err.Error(),
	})
	if action.IsTransient(err) && attempt < ex.cfg.MaxActionAttempts {
		enrollment.Attempts = attempt
		backoff := ex.cfg.RetryBackoff << (attempt - 1)
		next := now.Add(backoff)
		enrollment.NextExecutionTime = &next
		enrollment.WaitingForEvent = nil
		logger.Warn("action failed, retrying", zap.String("enrollment", enrollment.Id), zap.String("step", step.Id),
			zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		return false
	}
	ex.collector.RecordStepFailure(wf.Id, enrollment.Id, step.Id, step.Action.Name, err.Error())
	ex.terminate(enrollment, model.STATUS_FAILED)
	logger.Error("action failed permanently", zap.String("enrollment", enrollment.Id), zap.String("step", step.Id),
		zap.Int("attempt", attempt), zap.Error(err))
	return false
}

func (ex *StepExecutor) runCondition(enrollment *model.Enrollment, step *model.Step, data map[string]any, now time.Time) bool {
	cfg := step.Condition
	branch, err := predicate.SelectBranch(cfg.Groups, data)
	if err != nil {
		logger.Warn("error evaluating condition", zap.String("enrollment", enrollment.Id), zap.String("step", step.Id), zap.Error(err))
	}
	target := ""
	if branch >= 0 && branch < len(step.NextStepIds) {
		target = step.NextStepIds[branch]
	} else if len(cfg.DefaultStepId) > 0 {
		target = cfg.DefaultStepId
	}
	enrollment.AppendHistory(model.StepExecution{
		StepId: step.Id, Status: model.STEP_COMPLETED, StartedAt: now, CompletedAt: now,
		Result: map[string]any{"branch": branch, "target": target},
	})
	// no matching group and no default is a dead end, not an error
	ex.moveTo(enrollment, target)
	return true
}

func (ex *StepExecutor) runDelay(enrollment *model.Enrollment, step *model.Step, now time.Time) bool {
	wake, err := ComputeWake(step.Delay, now)
	if err != nil {
		ex.fail(enrollment, step.Id, 0, now, err.Error())
		return false
	}
	enrollment.AppendHistory(model.StepExecution{
		StepId: step.Id, Status: model.STEP_COMPLETED, StartedAt: now, CompletedAt: now,
		Result: map[string]any{"wakeAt": wake},
	})
	enrollment.Status = model.STATUS_WAITING_DELAY
	enrollment.NextExecutionTime = &wake
	enrollment.WaitingForEvent = nil
	return false
}

func (ex *StepExecutor) runWaitEvent(enrollment *model.Enrollment, step *model.Step, now time.Time) bool {
	cfg := step.WaitEvent
	wait := &model.EventWait{
		EventType:     cfg.EventType,
		TimeoutStepId: cfg.TimeoutStepId,
	}
	if cfg.TimeoutSeconds > 0 {
		timeoutAt := now.Add(time.Duration(cfg.TimeoutSeconds) * time.Second)
		wait.TimeoutAt = &timeoutAt
	}
	enrollment.AppendHistory(model.StepExecution{
		StepId: step.Id, Status: model.STEP_COMPLETED, StartedAt: now, CompletedAt: now,
		Result: map[string]any{"waitingFor": cfg.EventType},
	})
	// no timeout means waiting indefinitely until a matching event; that
	// is an intentional configuration, surfaced by the stale-waits report
	enrollment.Status = model.STATUS_WAITING_EVENT
	enrollment.WaitingForEvent = wait
	enrollment.NextExecutionTime = nil
	return false
}

// moveTo advances the cursor, completing the enrollment at a dead end.
func (ex *StepExecutor) moveTo(enrollment *model.Enrollment, stepId string) {
	if len(stepId) == 0 {
		ex.terminate(enrollment, model.STATUS_COMPLETED)
		return
	}
	enrollment.CurrentStepId = stepId
	enrollment.Status = model.STATUS_ACTIVE
	enrollment.WaitingForEvent = nil
	enrollment.NextExecutionTime = nil
}

func (ex *StepExecutor) terminate(enrollment *model.Enrollment, status model.EnrollmentStatus) {
	enrollment.Status = status
	enrollment.NextExecutionTime = nil
	enrollment.WaitingForEvent = nil
	enrollment.Attempts = 0
}

func (ex *StepExecutor) fail(enrollment *model.Enrollment, stepId string, attempt int, now time.Time, reason string) {
	enrollment.AppendHistory(model.StepExecution{
		StepId: stepId, Status: model.STEP_FAILED, Attempt: attempt,
		StartedAt: now, CompletedAt: now, Error: reason,
	})
	ex.terminate(enrollment, model.STATUS_FAILED)
}

func (ex *StepExecutor) goalMet(wf *model.WorkflowDefinition, data map[string]any) bool {
	if len(wf.GoalCriteria) == 0 {
		return false
	}
	met, err := predicate.EvalGroups(wf.GoalCriteria, data)
	if err != nil {
		logger.Warn("error evaluating goal criteria", zap.String("workflow", wf.Id), zap.Error(err))
		return false
	}
	return met
}

func (ex *StepExecutor) persist(ctx context.Context, enrollment *model.Enrollment, now time.Time) error {
	if enrollment.Status == model.STATUS_ACTIVE && enrollment.NextExecutionTime == nil && enrollment.WaitingForEvent == nil {
		// the loop ended on an executable step (cap or retry paths set
		// their own schedule); run again on the next tick
		next := now
		enrollment.NextExecutionTime = &next
	}
	err := ex.store.Update(ctx, enrollment)
	if errors.Is(err, persistence.ErrConflict) {
		// lost the final write to a newer claim; the winner owns the
		// transition
		logger.Debug("enrollment update lost claim race", zap.String("enrollment", enrollment.Id))
		return nil
	}
	return err
}

func firstNext(step *model.Step) string {
	if len(step.NextStepIds) == 0 {
		return ""
	}
	return step.NextStepIds[0]
}

func predicateData(entity map[string]any, wake Wake) map[string]any {
	data := make(map[string]any, len(entity)+1)
	for k, v := range entity {
		data[k] = v
	}
	if wake.Kind == WAKE_EVENT && wake.Payload != nil {
		data["event"] = wake.Payload
	}
	return data
}
