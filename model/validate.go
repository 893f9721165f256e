package model

import "fmt"

// DefinitionError marks a malformed workflow graph. It is raised at
// publish and trigger time so a broken enrollment is never created; the
// executor never sees a dangling step reference.
type DefinitionError struct {
	WorkflowId string
	Detail     string
}

func (e DefinitionError) Error() string {
	return fmt.Sprintf("invalid workflow definition %s: %s", e.WorkflowId, e.Detail)
}

func definitionErr(wf *WorkflowDefinition, format string, args ...any) error {
	return DefinitionError{WorkflowId: wf.Id, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks the step graph: every referenced step id resolves, every
// step carries the config its type requires, and the trigger names an
// event. Cycles are legal.
func Validate(wf *WorkflowDefinition) error {
	if len(wf.Steps) == 0 {
		return definitionErr(wf, "workflow has no steps")
	}
	if _, ok := wf.Steps[wf.EntryStepId]; !ok {
		return definitionErr(wf, "entry step %q does not exist", wf.EntryStepId)
	}
	if len(wf.Trigger.EventType) == 0 {
		return definitionErr(wf, "trigger event type is empty")
	}
	for id, step := range wf.Steps {
		if id != step.Id {
			return definitionErr(wf, "step keyed %q has id %q", id, step.Id)
		}
		for _, next := range step.NextStepIds {
			if _, ok := wf.Steps[next]; !ok {
				return definitionErr(wf, "step %q references non-existent step %q", id, next)
			}
		}
		if err := validateStep(wf, step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(wf *WorkflowDefinition, step *Step) error {
	switch step.Type {
	case STEP_TYPE_ACTION:
		if step.Action == nil || len(step.Action.Name) == 0 {
			return definitionErr(wf, "action step %q has no action name", step.Id)
		}
	case STEP_TYPE_CONDITION:
		cfg := step.Condition
		if cfg == nil || len(cfg.Groups) == 0 {
			return definitionErr(wf, "condition step %q has no predicate groups", step.Id)
		}
		if len(cfg.Groups) > len(step.NextStepIds) {
			return definitionErr(wf, "condition step %q has %d groups but %d branches", step.Id, len(cfg.Groups), len(step.NextStepIds))
		}
		if len(cfg.DefaultStepId) > 0 {
			if _, ok := wf.Steps[cfg.DefaultStepId]; !ok {
				return definitionErr(wf, "condition step %q default references non-existent step %q", step.Id, cfg.DefaultStepId)
			}
		}
	case STEP_TYPE_DELAY:
		cfg := step.Delay
		if cfg == nil {
			return definitionErr(wf, "delay step %q has no delay config", step.Id)
		}
		switch cfg.Kind {
		case DELAY_DURATION:
			if cfg.Seconds <= 0 {
				return definitionErr(wf, "delay step %q has non-positive duration", step.Id)
			}
		case DELAY_UNTIL:
			if cfg.Until == nil {
				return definitionErr(wf, "delay step %q has no until date", step.Id)
			}
		case DELAY_BUSINESS_DAYS:
			if cfg.Days < 0 {
				return definitionErr(wf, "delay step %q has negative business days", step.Id)
			}
		case DELAY_DAY_OF_WEEK:
			if len(cfg.Weekdays) == 0 {
				return definitionErr(wf, "delay step %q has no weekdays", step.Id)
			}
		default:
			return definitionErr(wf, "delay step %q has unknown kind %q", step.Id, cfg.Kind)
		}
	case STEP_TYPE_WAIT_EVENT:
		cfg := step.WaitEvent
		if cfg == nil || len(cfg.EventType) == 0 {
			return definitionErr(wf, "wait step %q has no event type", step.Id)
		}
		if len(cfg.TimeoutStepId) > 0 {
			if cfg.TimeoutSeconds <= 0 {
				return definitionErr(wf, "wait step %q has timeout step but no timeout", step.Id)
			}
			if _, ok := wf.Steps[cfg.TimeoutStepId]; !ok {
				return definitionErr(wf, "wait step %q timeout references non-existent step %q", step.Id, cfg.TimeoutStepId)
			}
		}
	case STEP_TYPE_GOAL:
		// goal steps evaluate the workflow-level goal criteria
	default:
		return definitionErr(wf, "step %q has unknown type %q", step.Id, step.Type)
	}
	return nil
}
