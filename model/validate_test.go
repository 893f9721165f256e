package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validDefinition() *WorkflowDefinition {
	return &WorkflowDefinition{
		Id:          "welcome-series",
		Version:     1,
		Name:        "Welcome Series",
		Enabled:     true,
		EntryStepId: "send-welcome",
		Trigger:     TriggerConfig{EventType: "contact.created"},
		Steps: map[string]*Step{
			"send-welcome": {
				Id:          "send-welcome",
				Type:        STEP_TYPE_ACTION,
				NextStepIds: []string{"wait-open"},
				Action:      &ActionConfig{Name: "send_email", Params: map[string]any{"templateId": "welcome"}},
			},
			"wait-open": {
				Id:          "wait-open",
				Type:        STEP_TYPE_WAIT_EVENT,
				NextStepIds: []string{"check-plan"},
				WaitEvent:   &WaitEventConfig{EventType: "email.opened", TimeoutSeconds: 86400, TimeoutStepId: "send-welcome"},
			},
			"check-plan": {
				Id:          "check-plan",
				Type:        STEP_TYPE_CONDITION,
				NextStepIds: []string{"pause-two-days"},
				Condition: &ConditionConfig{
					Groups: []PredicateGroup{
						{Predicates: []Predicate{{Field: "plan", Operator: OP_EQUALS, Value: "pro"}}},
					},
				},
			},
			"pause-two-days": {
				Id:    "pause-two-days",
				Type:  STEP_TYPE_DELAY,
				Delay: &DelayConfig{Kind: DELAY_DURATION, Seconds: 172800},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test valid definition":      testValidDefinition,
		"test missing entry step":    testMissingEntry,
		"test dangling reference":    testDanglingReference,
		"test missing trigger event": testMissingTriggerEvent,
		"test step config checks":    testStepConfigChecks,
	} {
		t.Run(scenario, fn)
	}
}

func testValidDefinition(t *testing.T) {
	require.NoError(t, Validate(validDefinition()))
}

func testMissingEntry(t *testing.T) {
	wf := validDefinition()
	wf.EntryStepId = "does-not-exist"
	err := Validate(wf)
	require.Error(t, err)
	var defErr DefinitionError
	require.ErrorAs(t, err, &defErr)
	require.Equal(t, wf.Id, defErr.WorkflowId)

	wf = validDefinition()
	wf.Steps = nil
	require.Error(t, Validate(wf))
}

func testDanglingReference(t *testing.T) {
	wf := validDefinition()
	wf.Steps["send-welcome"].NextStepIds = []string{"nowhere"}
	require.Error(t, Validate(wf))

	wf = validDefinition()
	wf.Steps["mismatch"] = &Step{Id: "other", Type: STEP_TYPE_GOAL}
	require.Error(t, Validate(wf))
}

func testMissingTriggerEvent(t *testing.T) {
	wf := validDefinition()
	wf.Trigger.EventType = ""
	require.Error(t, Validate(wf))
}

func testStepConfigChecks(t *testing.T) {
	wf := validDefinition()
	wf.Steps["send-welcome"].Action = nil
	require.Error(t, Validate(wf))

	wf = validDefinition()
	wf.Steps["check-plan"].Condition.Groups = append(wf.Steps["check-plan"].Condition.Groups,
		PredicateGroup{Predicates: []Predicate{{Field: "plan", Operator: OP_EQUALS, Value: "free"}}})
	require.Error(t, Validate(wf), "more groups than branches")

	wf = validDefinition()
	wf.Steps["check-plan"].Condition.DefaultStepId = "nowhere"
	require.Error(t, Validate(wf))

	wf = validDefinition()
	wf.Steps["pause-two-days"].Delay = &DelayConfig{Kind: DELAY_DURATION, Seconds: 0}
	require.Error(t, Validate(wf))

	wf = validDefinition()
	wf.Steps["pause-two-days"].Delay = &DelayConfig{Kind: DELAY_UNTIL}
	require.Error(t, Validate(wf))

	wf = validDefinition()
	until := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wf.Steps["pause-two-days"].Delay = &DelayConfig{Kind: DELAY_UNTIL, Until: &until}
	require.NoError(t, Validate(wf))

	wf = validDefinition()
	wf.Steps["pause-two-days"].Delay = &DelayConfig{Kind: "fortnight"}
	require.Error(t, Validate(wf))

	wf = validDefinition()
	wf.Steps["wait-open"].WaitEvent.TimeoutSeconds = 0
	require.Error(t, Validate(wf), "timeout step without timeout")

	wf = validDefinition()
	wf.Steps["wait-open"].WaitEvent.TimeoutStepId = "nowhere"
	require.Error(t, Validate(wf))

	wf = validDefinition()
	wf.Steps["wait-open"].WaitEvent.TimeoutStepId = ""
	wf.Steps["wait-open"].WaitEvent.TimeoutSeconds = 0
	require.NoError(t, Validate(wf), "indefinite wait is legal")
}
