package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/funnelkit/journey/action"
	"github.com/funnelkit/journey/cache"
	"github.com/funnelkit/journey/engine"
	"github.com/funnelkit/journey/event"
	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence/memory"
	"github.com/funnelkit/journey/trigger"
	"github.com/stretchr/testify/require"
)

type recordedSend struct {
	params map[string]any
}

type recordingAction struct {
	name  string
	sends []recordedSend
}

func (a *recordingAction) Name() string { return a.name }

func (a *recordingAction) Execute(ctx context.Context, params map[string]any, entity map[string]any) (map[string]any, error) {
	a.sends = append(a.sends, recordedSend{params: params})
	return nil, nil
}

type testServer struct {
	server      *Server
	enrollments *memory.EnrollmentStore
	emails      *recordingAction
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	enrollments := memory.NewEnrollmentStore()
	definitions := memory.NewDefinitionStore()
	definitionCache := cache.NewDefinitionCache(definitions)
	registry := action.NewRegistry()
	emails := &recordingAction{name: "send_email"}
	registry.Register(emails)
	executor := engine.NewStepExecutor(engine.Config{
		MaxStepsPerTick:       25,
		MaxStepsPerEnrollment: 1000,
		MaxActionAttempts:     3,
		RetryBackoff:          time.Minute,
		ActionTimeout:         time.Second,
	}, enrollments, definitionCache, registry, &engine.StaticEntityProvider{}, nil)

	server, err := NewServer(0, enrollments, definitions, definitionCache,
		trigger.NewEvaluator(definitionCache, enrollments),
		event.NewService(enrollments, executor),
		24*time.Hour)
	require.NoError(t, err)
	return &testServer{server: server, enrollments: enrollments, emails: emails}
}

func (ts *testServer) do(t *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.server.Handler.ServeHTTP(rec, req)
	return rec
}

func welcomeDefinition() *model.WorkflowDefinition {
	return &model.WorkflowDefinition{
		Id:          "welcome",
		Version:     1,
		Name:        "Welcome",
		Enabled:     true,
		EntryStepId: "send",
		Trigger:     model.TriggerConfig{EventType: "contact.created"},
		Steps: map[string]*model.Step{
			"send": {
				Id:          "send",
				Type:        model.STEP_TYPE_ACTION,
				NextStepIds: []string{"wait"},
				Action:      &model.ActionConfig{Name: "send_email"},
			},
			"wait": {
				Id:        "wait",
				Type:      model.STEP_TYPE_WAIT_EVENT,
				WaitEvent: &model.WaitEventConfig{EventType: "email.opened"},
			},
		},
	}
}

func TestServer(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, ts *testServer){
		"test publish and get definition": testPublishDefinition,
		"test publish rejects invalid":    testPublishInvalid,
		"test event enrolls and resumes":  testEventFlow,
		"test enrollment endpoints":       testEnrollmentEndpoints,
		"test operator flags":             testOperatorFlags,
		"test stale report":               testStaleReport,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newTestServer(t))
		})
	}
}

func testPublishDefinition(t *testing.T, ts *testServer) {
	rec := ts.do(t, http.MethodPost, "/definitions", welcomeDefinition())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/definitions/welcome", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wf model.WorkflowDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	require.Equal(t, "welcome", wf.Id)

	rec = ts.do(t, http.MethodGet, "/definitions/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/definitions/welcome", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/definitions/welcome", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func testPublishInvalid(t *testing.T, ts *testServer) {
	wf := welcomeDefinition()
	wf.EntryStepId = "nowhere"
	rec := ts.do(t, http.MethodPost, "/definitions", wf)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func testEventFlow(t *testing.T, ts *testServer) {
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/definitions", welcomeDefinition()).Code)

	// missing fields rejected
	rec := ts.do(t, http.MethodPost, "/events", model.Event{Type: "contact.created"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/events", model.Event{Type: "contact.created", EntityId: "c1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Enrolled []string `json:"enrolled"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Enrolled, 1)

	// the trigger only creates the enrollment; the scheduler owns the
	// first advance, so no email is sent synchronously here
	require.Empty(t, ts.emails.sends)
}

func testEnrollmentEndpoints(t *testing.T, ts *testServer) {
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/definitions", welcomeDefinition()).Code)
	rec := ts.do(t, http.MethodPost, "/events", model.Event{Type: "contact.created", EntityId: "c1"})
	var resp struct {
		Enrolled []string `json:"enrolled"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Enrolled, 1)
	id := resp.Enrolled[0]

	rec = ts.do(t, http.MethodGet, "/enrollments/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var e model.Enrollment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	require.Equal(t, "welcome", e.WorkflowId)

	rec = ts.do(t, http.MethodGet, "/enrollments/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/enrollments/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func testOperatorFlags(t *testing.T, ts *testServer) {
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/definitions", welcomeDefinition()).Code)
	rec := ts.do(t, http.MethodPost, "/events", model.Event{Type: "contact.created", EntityId: "c1"})
	var resp struct {
		Enrolled []string `json:"enrolled"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id := resp.Enrolled[0]

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/enrollments/"+id+"/pause", nil).Code)
	stored, err := ts.enrollments.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, stored.Paused)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/enrollments/"+id+"/resume", nil).Code)
	stored, err = ts.enrollments.Get(context.Background(), id)
	require.NoError(t, err)
	require.False(t, stored.Paused)

	// cancel finalizes inline when the claim is free
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/enrollments/"+id+"/cancel", nil).Code)
	stored, err = ts.enrollments.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, stored.CancelRequested)
	require.Equal(t, model.STATUS_CANCELLED, stored.Status)
	require.Nil(t, stored.NextExecutionTime)

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/enrollments/missing/cancel", nil).Code)

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/enrollments/missing/pause", nil).Code)
}

func testStaleReport(t *testing.T, ts *testServer) {
	wf := welcomeDefinition()
	e := model.NewEnrollment(wf, "c1", time.Now().Add(-72*time.Hour))
	e.Status = model.STATUS_WAITING_EVENT
	e.NextExecutionTime = nil
	e.WaitingForEvent = &model.EventWait{EventType: "email.opened"}
	e.UpdatedAt = time.Now().Add(-72 * time.Hour)
	require.NoError(t, ts.enrollments.Create(context.Background(), e))

	rec := ts.do(t, http.MethodGet, "/enrollments/stale", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stale []model.Enrollment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stale))
	require.Len(t, stale, 1)
	require.Equal(t, e.Id, stale[0].Id)

	rec = ts.do(t, http.MethodGet, "/enrollments/stale?limit=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
