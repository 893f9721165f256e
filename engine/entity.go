package engine

import "context"

// EntityProvider supplies a read-only snapshot of the target entity
// (contact, company, deal) for predicate evaluation and action handlers.
// The CRUD layer owning the records lives outside the engine.
type EntityProvider interface {
	Snapshot(ctx context.Context, entityId string) (map[string]any, error)
}

// StaticEntityProvider serves fixed entity maps. Used in tests and in
// deployments where producers push the full entity state in the event
// payload.
type StaticEntityProvider struct {
	Entities map[string]map[string]any
}

func (p *StaticEntityProvider) Snapshot(ctx context.Context, entityId string) (map[string]any, error) {
	if e, ok := p.Entities[entityId]; ok {
		return e, nil
	}
	return map[string]any{"id": entityId}, nil
}
