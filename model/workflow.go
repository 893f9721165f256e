package model

import "time"

type StepType string

const STEP_TYPE_ACTION StepType = "action"
const STEP_TYPE_CONDITION StepType = "condition"
const STEP_TYPE_DELAY StepType = "delay"
const STEP_TYPE_WAIT_EVENT StepType = "wait_event"
const STEP_TYPE_GOAL StepType = "goal"

type Operator string

const OP_EQUALS Operator = "equals"
const OP_NOT_EQUALS Operator = "notEquals"
const OP_CONTAINS Operator = "contains"
const OP_GREATER_THAN Operator = "greaterThan"
const OP_LESS_THAN Operator = "lessThan"
const OP_IS_EMPTY Operator = "isEmpty"
const OP_IS_NOT_EMPTY Operator = "isNotEmpty"

type Combinator string

const COMBINE_AND Combinator = "AND"
const COMBINE_OR Combinator = "OR"

// Predicate compares one field of the evaluated data against a value.
// Field is either a plain map key or a "$..." jsonpath reference.
type Predicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// PredicateGroup combines predicates with AND/OR. Expression optionally
// holds a scripted predicate evaluated with `$` bound to the data; when
// set it is combined with the field predicates under the same combinator.
type PredicateGroup struct {
	Combinator Combinator  `json:"combinator,omitempty"`
	Predicates []Predicate `json:"predicates,omitempty"`
	Expression string      `json:"expression,omitempty"`
}

type ActionConfig struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"parameters,omitempty"`
}

// ConditionConfig branches on the first matching group: group i selects
// NextStepIds[i] of the owning step. DefaultStepId is the else branch.
type ConditionConfig struct {
	Groups        []PredicateGroup `json:"groups"`
	DefaultStepId string           `json:"defaultStepId,omitempty"`
}

type DelayKind string

const DELAY_DURATION DelayKind = "duration"
const DELAY_UNTIL DelayKind = "until"
const DELAY_BUSINESS_DAYS DelayKind = "business_days"
const DELAY_DAY_OF_WEEK DelayKind = "day_of_week"

type DelayConfig struct {
	Kind    DelayKind  `json:"kind"`
	Seconds int64      `json:"seconds,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
	// Business-days delay: skip ahead Days business days, waking at the
	// start of the business window (WindowStartHour..WindowEndHour,
	// Mon-Fri). Days=0 means the next open window.
	Days            int `json:"days,omitempty"`
	WindowStartHour int `json:"windowStartHour,omitempty"`
	WindowEndHour   int `json:"windowEndHour,omitempty"`
	// Day-of-week delay: the next day matching Weekdays, waking at
	// Hour:Minute.
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	Hour     int            `json:"hour,omitempty"`
	Minute   int            `json:"minute,omitempty"`
}

type WaitEventConfig struct {
	EventType      string `json:"eventType"`
	TimeoutSeconds int64  `json:"timeoutSeconds,omitempty"`
	TimeoutStepId  string `json:"timeoutStepId,omitempty"`
}

// Step is one node of the workflow graph. Exactly one of the type-specific
// configs is set, matching Type. NextStepIds are branch targets in
// configured order; for linear steps only NextStepIds[0] is used. Cycles
// are legal.
type Step struct {
	Id          string           `json:"id"`
	Type        StepType         `json:"type"`
	NextStepIds []string         `json:"nextStepIds,omitempty"`
	Action      *ActionConfig    `json:"action,omitempty"`
	Condition   *ConditionConfig `json:"condition,omitempty"`
	Delay       *DelayConfig     `json:"delay,omitempty"`
	WaitEvent   *WaitEventConfig `json:"waitEvent,omitempty"`
}

type TriggerConfig struct {
	EventType string           `json:"eventType"`
	Filters   []PredicateGroup `json:"filters,omitempty"`
}

// WorkflowDefinition is immutable once published; a new version replaces it.
type WorkflowDefinition struct {
	Id           string           `json:"id"`
	Version      int              `json:"version"`
	Name         string           `json:"name"`
	Enabled      bool             `json:"enabled"`
	EntryStepId  string           `json:"entryStepId"`
	Steps        map[string]*Step `json:"steps"`
	Trigger      TriggerConfig    `json:"trigger"`
	GoalCriteria []PredicateGroup `json:"goalCriteria,omitempty"`
}

func (wf *WorkflowDefinition) Step(id string) (*Step, bool) {
	s, ok := wf.Steps[id]
	return s, ok
}
