package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/funnelkit/journey/model"
)

// ClaimLease is how long a successful Claim keeps the enrollment out of
// due scans before it becomes visible again. The lease covers queue wait
// plus execution; after expiry a crashed claim holder's enrollment is
// swept up once more, so side effects remain at-least-once.
const ClaimLease = 2 * time.Minute

// ErrNotFound: no record with the given key.
var ErrNotFound = errors.New("not found")

// ErrConflict: a CAS claim or version-guarded update lost a race. Routine,
// not an error condition for callers; the winner owns the transition.
var ErrConflict = errors.New("concurrent modification")

// ErrDuplicateActive: an active-family enrollment already exists for the
// (workflow, entity) pair.
var ErrDuplicateActive = errors.New("active enrollment exists")

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	if len(e.Message) == 0 {
		return "error in storage layer"
	}
	return "error in storage layer: " + e.Message
}

// EnrollmentStore is the system of record for enrollment progress.
//
// Claim performs the atomic compare-and-swap that grants exclusive right
// to advance one enrollment: it succeeds only when the stored claim
// version equals the version the caller read, and increments it. A
// successful claim also hides the enrollment from FindDue for ClaimLease,
// so a queued or slow claim holder is not re-selected by the next sweep.
// Update is
// likewise version-guarded, so a writer that lost its claim mid-flight
// cannot clobber the winner's transition. Operator flags (pause/cancel)
// are merged on write: an in-flight Update cannot clear a flag raised
// after the record was read.
type EnrollmentStore interface {
	Create(ctx context.Context, enrollment *model.Enrollment) error
	Get(ctx context.Context, id string) (*model.Enrollment, error)
	Update(ctx context.Context, enrollment *model.Enrollment) error
	Claim(ctx context.Context, id string, version int64) (bool, error)

	// FindDue returns non-terminal, non-paused enrollments whose schedule
	// or event-wait timeout has expired, oldest first, bounded by limit.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Enrollment, error)
	// FindWaiting returns enrollments waiting for the given event type and
	// entity.
	FindWaiting(ctx context.Context, eventType string, entityId string) ([]*model.Enrollment, error)
	// FindStaleWaiting reports enrollments that have been waiting for an
	// event since before the cutoff. Indefinite waits are legal; this
	// feeds the operator report, it is not an error scan.
	FindStaleWaiting(ctx context.Context, cutoff time.Time, limit int) ([]*model.Enrollment, error)

	SetPaused(ctx context.Context, id string, paused bool) error
	RequestCancel(ctx context.Context, id string) error
}

// DefinitionStore holds published workflow definitions. Authoring CRUD is
// owned by the surrounding application; the engine only reads.
type DefinitionStore interface {
	Save(ctx context.Context, wf *model.WorkflowDefinition) error
	Get(ctx context.Context, id string) (*model.WorkflowDefinition, error)
	ListEnabled(ctx context.Context) ([]*model.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
}
