package model

import (
	"time"

	"github.com/google/uuid"
)

type EnrollmentStatus string

const STATUS_ACTIVE EnrollmentStatus = "active"
const STATUS_WAITING_DELAY EnrollmentStatus = "waiting_delay"
const STATUS_WAITING_EVENT EnrollmentStatus = "waiting_for_event"
const STATUS_COMPLETED EnrollmentStatus = "completed"
const STATUS_FAILED EnrollmentStatus = "failed"
const STATUS_GOAL_MET EnrollmentStatus = "goal_met"
const STATUS_CANCELLED EnrollmentStatus = "cancelled"

func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case STATUS_COMPLETED, STATUS_FAILED, STATUS_GOAL_MET, STATUS_CANCELLED:
		return true
	}
	return false
}

type StepExecutionStatus string

const STEP_COMPLETED StepExecutionStatus = "completed"
const STEP_FAILED StepExecutionStatus = "failed"

type StepExecution struct {
	StepId      string              `json:"stepId"`
	Status      StepExecutionStatus `json:"status"`
	Attempt     int                 `json:"attempt,omitempty"`
	StartedAt   time.Time           `json:"startedAt"`
	CompletedAt time.Time           `json:"completedAt"`
	Result      map[string]any      `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type EventWait struct {
	EventType     string     `json:"eventType"`
	TimeoutAt     *time.Time `json:"timeoutAt,omitempty"`
	TimeoutStepId string     `json:"timeoutStepId,omitempty"`
}

// Enrollment is the durable record of one entity's progress through a
// workflow. All engine state lives here; it is mutated only under a claim
// on ClaimVersion. For any non-terminal enrollment exactly one of
// NextExecutionTime and WaitingForEvent is set.
type Enrollment struct {
	Id                string           `json:"id"`
	WorkflowId        string           `json:"workflowId"`
	WorkflowVersion   int              `json:"workflowVersion"`
	EntityId          string           `json:"entityId"`
	Status            EnrollmentStatus `json:"status"`
	CurrentStepId     string           `json:"currentStepId"`
	NextExecutionTime *time.Time       `json:"nextExecutionTime,omitempty"`
	WaitingForEvent   *EventWait       `json:"waitingForEvent,omitempty"`
	History           []StepExecution  `json:"history"`
	ClaimVersion      int64            `json:"claimVersion"`
	Attempts          int              `json:"attempts,omitempty"`
	StepsExecuted     int              `json:"stepsExecuted"`
	CancelRequested   bool             `json:"cancelRequested,omitempty"`
	Paused            bool             `json:"paused,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

func NewEnrollment(wf *WorkflowDefinition, entityId string, now time.Time) *Enrollment {
	next := now
	return &Enrollment{
		Id:                uuid.New().String(),
		WorkflowId:        wf.Id,
		WorkflowVersion:   wf.Version,
		EntityId:          entityId,
		Status:            STATUS_ACTIVE,
		CurrentStepId:     wf.EntryStepId,
		NextExecutionTime: &next,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (e *Enrollment) Terminal() bool {
	return e.Status.Terminal()
}

// AppendHistory records a step execution. History is append-only; nothing
// ever truncates it.
func (e *Enrollment) AppendHistory(ex StepExecution) {
	e.History = append(e.History, ex)
}

// Due reports whether the enrollment is eligible for a scheduler wake at
// the given instant, either through its schedule or an expired event wait.
func (e *Enrollment) Due(now time.Time) bool {
	if e.Terminal() || e.Paused {
		return false
	}
	if e.NextExecutionTime != nil && !e.NextExecutionTime.After(now) {
		return true
	}
	if e.WaitingForEvent != nil && e.WaitingForEvent.TimeoutAt != nil && !e.WaitingForEvent.TimeoutAt.After(now) {
		return true
	}
	return false
}

// WakeTime returns the instant at which the scheduler should next look at
// this enrollment, if any.
func (e *Enrollment) WakeTime() *time.Time {
	if e.Terminal() {
		return nil
	}
	if e.NextExecutionTime != nil {
		return e.NextExecutionTime
	}
	if e.WaitingForEvent != nil {
		return e.WaitingForEvent.TimeoutAt
	}
	return nil
}

func (e *Enrollment) Clone() *Enrollment {
	c := *e
	if e.NextExecutionTime != nil {
		t := *e.NextExecutionTime
		c.NextExecutionTime = &t
	}
	if e.WaitingForEvent != nil {
		w := *e.WaitingForEvent
		if e.WaitingForEvent.TimeoutAt != nil {
			t := *e.WaitingForEvent.TimeoutAt
			w.TimeoutAt = &t
		}
		c.WaitingForEvent = &w
	}
	c.History = make([]StepExecution, len(e.History))
	copy(c.History, e.History)
	return &c
}
