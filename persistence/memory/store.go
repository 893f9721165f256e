package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
)

var _ persistence.EnrollmentStore = new(EnrollmentStore)

// EnrollmentStore keeps everything under one mutex. It backs tests and
// single-process embedding; the claim and flag semantics match the redis
// implementation exactly.
type EnrollmentStore struct {
	mu          sync.Mutex
	enrollments map[string]*model.Enrollment
	active      map[string]string    // workflowId:entityId -> enrollment id
	leases      map[string]time.Time // claimed ids -> lease expiry
}

func NewEnrollmentStore() *EnrollmentStore {
	return &EnrollmentStore{
		enrollments: make(map[string]*model.Enrollment),
		active:      make(map[string]string),
		leases:      make(map[string]time.Time),
	}
}

func activeKey(workflowId string, entityId string) string {
	return workflowId + ":" + entityId
}

func (s *EnrollmentStore) Create(ctx context.Context, enrollment *model.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := activeKey(enrollment.WorkflowId, enrollment.EntityId)
	if _, ok := s.active[key]; ok {
		return persistence.ErrDuplicateActive
	}
	s.enrollments[enrollment.Id] = enrollment.Clone()
	s.active[key] = enrollment.Id
	return nil
}

func (s *EnrollmentStore) Get(ctx context.Context, id string) (*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.enrollments[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return stored.Clone(), nil
}

func (s *EnrollmentStore) Update(ctx context.Context, enrollment *model.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.enrollments[enrollment.Id]
	if !ok {
		return persistence.ErrNotFound
	}
	if stored.ClaimVersion != enrollment.ClaimVersion {
		return persistence.ErrConflict
	}
	next := enrollment.Clone()
	next.ClaimVersion = stored.ClaimVersion + 1
	// Operator flags are owned by SetPaused/RequestCancel; a claim-holder
	// write must not clear a flag raised after the record was read.
	next.CancelRequested = stored.CancelRequested
	next.Paused = stored.Paused
	next.UpdatedAt = time.Now()
	s.enrollments[enrollment.Id] = next
	if next.Terminal() {
		key := activeKey(next.WorkflowId, next.EntityId)
		if s.active[key] == next.Id {
			delete(s.active, key)
		}
	}
	delete(s.leases, next.Id)
	enrollment.ClaimVersion = next.ClaimVersion
	return nil
}

func (s *EnrollmentStore) Claim(ctx context.Context, id string, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.enrollments[id]
	if !ok {
		return false, persistence.ErrNotFound
	}
	if stored.ClaimVersion != version {
		return false, nil
	}
	stored.ClaimVersion++
	s.leases[id] = time.Now().Add(persistence.ClaimLease)
	return true, nil
}

func (s *EnrollmentStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*model.Enrollment
	for _, e := range s.enrollments {
		if lease, ok := s.leases[e.Id]; ok && now.Before(lease) {
			continue
		}
		if e.Due(now) {
			due = append(due, e.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool {
		wi, wj := due[i].WakeTime(), due[j].WakeTime()
		if wi == nil || wj == nil {
			return wj == nil
		}
		return wi.Before(*wj)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *EnrollmentStore) FindWaiting(ctx context.Context, eventType string, entityId string) ([]*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var waiting []*model.Enrollment
	for _, e := range s.enrollments {
		if e.Status != model.STATUS_WAITING_EVENT || e.Paused || e.WaitingForEvent == nil {
			continue
		}
		if e.WaitingForEvent.EventType == eventType && e.EntityId == entityId {
			waiting = append(waiting, e.Clone())
		}
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].CreatedAt.Before(waiting[j].CreatedAt) })
	return waiting, nil
}

func (s *EnrollmentStore) FindStaleWaiting(ctx context.Context, cutoff time.Time, limit int) ([]*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []*model.Enrollment
	for _, e := range s.enrollments {
		if e.Status != model.STATUS_WAITING_EVENT {
			continue
		}
		if e.UpdatedAt.Before(cutoff) {
			stale = append(stale, e.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (s *EnrollmentStore) SetPaused(ctx context.Context, id string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.enrollments[id]
	if !ok {
		return persistence.ErrNotFound
	}
	stored.Paused = paused
	return nil
}

func (s *EnrollmentStore) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.enrollments[id]
	if !ok {
		return persistence.ErrNotFound
	}
	stored.CancelRequested = true
	return nil
}

var _ persistence.DefinitionStore = new(DefinitionStore)

type DefinitionStore struct {
	mu          sync.RWMutex
	definitions map[string]*model.WorkflowDefinition
}

func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{definitions: make(map[string]*model.WorkflowDefinition)}
}

func (s *DefinitionStore) Save(ctx context.Context, wf *model.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[wf.Id] = wf
	return nil
}

func (s *DefinitionStore) Get(ctx context.Context, id string) (*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.definitions[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return wf, nil
}

func (s *DefinitionStore) ListEnabled(ctx context.Context) ([]*model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var enabled []*model.WorkflowDefinition
	for _, wf := range s.definitions {
		if wf.Enabled {
			enabled = append(enabled, wf)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Id < enabled[j].Id })
	return enabled, nil
}

func (s *DefinitionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.definitions, id)
	return nil
}
