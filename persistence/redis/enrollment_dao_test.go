package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/util"
	"github.com/stretchr/testify/require"
)

// The suite needs a running redis; set REDIS_ADDR to enable it.
func testConfig(t *testing.T) Config {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	return Config{
		Addrs:     []string{addr},
		Namespace: fmt.Sprintf("journeytest-%d", time.Now().UnixNano()),
	}
}

func newTestEnrollment(workflowId string, entityId string) *model.Enrollment {
	wf := &model.WorkflowDefinition{Id: workflowId, Version: 1, EntryStepId: "start"}
	return model.NewEnrollment(wf, entityId, time.Now().Add(-time.Minute))
}

func TestRedisEnrollmentDao(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, dao *redisEnrollmentDao,
	){
		"test create get update":    testCreateGetUpdate,
		"test duplicate active":     testDuplicateActive,
		"test claim cas":            testClaimCAS,
		"test claim lease":          testClaimLease,
		"test flag merge on update": testFlagMerge,
		"test pause schedule":       testPauseSchedule,
		"test schedule index":       testScheduleIndex,
		"test wait index":           testWaitIndex,
	} {
		t.Run(scenario, func(t *testing.T) {
			dao := NewRedisEnrollmentDao(testConfig(t), util.NewJsonEncoderDecoder[model.Enrollment]())
			fn(t, dao)
		})
	}
}

func testCreateGetUpdate(t *testing.T, dao *redisEnrollmentDao) {
	ctx := context.Background()
	e := newTestEnrollment("wf-1", "c1")
	require.NoError(t, dao.Create(ctx, e))

	got, err := dao.Get(ctx, e.Id)
	require.NoError(t, err)
	require.Equal(t, e.Id, got.Id)
	require.Equal(t, int64(0), got.ClaimVersion)

	_, err = dao.Get(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	got.Status = model.STATUS_WAITING_DELAY
	wake := time.Now().Add(time.Hour)
	got.NextExecutionTime = &wake
	require.NoError(t, dao.Update(ctx, got))
	require.Equal(t, int64(1), got.ClaimVersion)

	stale := got.Clone()
	stale.ClaimVersion = 0
	require.ErrorIs(t, dao.Update(ctx, stale), persistence.ErrConflict)
}

func testDuplicateActive(t *testing.T, dao *redisEnrollmentDao) {
	ctx := context.Background()
	require.NoError(t, dao.Create(ctx, newTestEnrollment("wf-1", "c1")))
	require.ErrorIs(t, dao.Create(ctx, newTestEnrollment("wf-1", "c1")), persistence.ErrDuplicateActive)
	require.NoError(t, dao.Create(ctx, newTestEnrollment("wf-1", "c2")))

	// completing the first enrollment frees the slot
	e, err := dao.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	first := e[0]
	first.Status = model.STATUS_COMPLETED
	first.NextExecutionTime = nil
	require.NoError(t, dao.Update(ctx, first))
	require.NoError(t, dao.Create(ctx, newTestEnrollment("wf-1", first.EntityId)))
}

func testClaimCAS(t *testing.T, dao *redisEnrollmentDao) {
	ctx := context.Background()
	e := newTestEnrollment("wf-1", "c1")
	require.NoError(t, dao.Create(ctx, e))

	claimed, err := dao.Claim(ctx, e.Id, 0)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = dao.Claim(ctx, e.Id, 0)
	require.NoError(t, err)
	require.False(t, claimed)

	claimed, err = dao.Claim(ctx, e.Id, 1)
	require.NoError(t, err)
	require.True(t, claimed)
}

func testClaimLease(t *testing.T, dao *redisEnrollmentDao) {
	ctx := context.Background()
	e := newTestEnrollment("wf-1", "c1")
	require.NoError(t, dao.Create(ctx, e))

	due, err := dao.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	claimed, err := dao.Claim(ctx, e.Id, 0)
	require.NoError(t, err)
	require.True(t, claimed)

	// claimed but not yet persisted: invisible to the sweep
	due, err = dao.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	// the lease expires, so a crashed claim holder's work is retried
	due, err = dao.FindDue(ctx, time.Now().Add(persistence.ClaimLease+time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// a persisted transition releases the lease immediately
	got := due[0]
	past := time.Now().Add(-time.Minute)
	got.NextExecutionTime = &past
	require.NoError(t, dao.Update(ctx, got))
	due, err = dao.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func testFlagMerge(t *testing.T, dao *redisEnrollmentDao) {
	ctx := context.Background()
	e := newTestEnrollment("wf-1", "c1")
	require.NoError(t, dao.Create(ctx, e))

	snapshot, err := dao.Get(ctx, e.Id)
	require.NoError(t, err)

	require.NoError(t, dao.RequestCancel(ctx, e.Id))
	require.NoError(t, dao.SetPaused(ctx, e.Id, true))

	snapshot.Status = model.STATUS_WAITING_DELAY
	wake := time.Now().Add(time.Hour)
	snapshot.NextExecutionTime = &wake
	require.NoError(t, dao.Update(ctx, snapshot))

	got, err := dao.Get(ctx, e.Id)
	require.NoError(t, err)
	require.True(t, got.CancelRequested)
	require.True(t, got.Paused)
	require.Equal(t, model.STATUS_WAITING_DELAY, got.Status)
}

func testPauseSchedule(t *testing.T, dao *redisEnrollmentDao) {
	ctx := context.Background()
	pausedE := newTestEnrollment("wf-1", "c1")
	require.NoError(t, dao.Create(ctx, pausedE))
	liveE := newTestEnrollment("wf-1", "c2")
	require.NoError(t, dao.Create(ctx, liveE))

	// a paused overdue record must not occupy the batch window
	require.NoError(t, dao.SetPaused(ctx, pausedE.Id, true))
	due, err := dao.FindDue(ctx, time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, liveE.Id, due[0].Id)

	due, err = dao.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// unpausing restores the schedule entry at the stored wake
	require.NoError(t, dao.SetPaused(ctx, pausedE.Id, false))
	due, err = dao.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
}

func testScheduleIndex(t *testing.T, dao *redisEnrollmentDao) {
	ctx := context.Background()
	e := newTestEnrollment("wf-1", "c1")
	require.NoError(t, dao.Create(ctx, e))

	due, err := dao.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// moving the wake into the future removes it from the due window
	got := due[0]
	got.Status = model.STATUS_WAITING_DELAY
	wake := time.Now().Add(time.Hour)
	got.NextExecutionTime = &wake
	require.NoError(t, dao.Update(ctx, got))

	due, err = dao.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = dao.FindDue(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// terminal state drops the schedule entry entirely
	got = due[0]
	got.Status = model.STATUS_COMPLETED
	got.NextExecutionTime = nil
	require.NoError(t, dao.Update(ctx, got))

	due, err = dao.FindDue(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func testWaitIndex(t *testing.T, dao *redisEnrollmentDao) {
	ctx := context.Background()
	e := newTestEnrollment("wf-1", "c1")
	require.NoError(t, dao.Create(ctx, e))

	got, err := dao.Get(ctx, e.Id)
	require.NoError(t, err)
	got.Status = model.STATUS_WAITING_EVENT
	got.NextExecutionTime = nil
	got.WaitingForEvent = &model.EventWait{EventType: "email.opened"}
	require.NoError(t, dao.Update(ctx, got))

	waiting, err := dao.FindWaiting(ctx, "email.opened", "c1")
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	require.Equal(t, e.Id, waiting[0].Id)

	waiting, err = dao.FindWaiting(ctx, "email.clicked", "c1")
	require.NoError(t, err)
	require.Empty(t, waiting)

	// an indefinite wait shows up in the stale report once old enough
	stale, err := dao.FindStaleWaiting(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	// resuming clears both indexes
	got = waitingOrFail(t, dao, "email.opened", "c1")
	got.Status = model.STATUS_COMPLETED
	got.WaitingForEvent = nil
	require.NoError(t, dao.Update(ctx, got))

	waiting, err = dao.FindWaiting(ctx, "email.opened", "c1")
	require.NoError(t, err)
	require.Empty(t, waiting)

	stale, err = dao.FindStaleWaiting(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Empty(t, stale)
}

func waitingOrFail(t *testing.T, dao *redisEnrollmentDao, eventType string, entityId string) *model.Enrollment {
	t.Helper()
	waiting, err := dao.FindWaiting(context.Background(), eventType, entityId)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	return waiting[0]
}
