package action

import (
	"context"

	"github.com/funnelkit/journey/logger"
	"go.uber.org/zap"
)

// EntityUpdater is the external collaborator owning entity records.
type EntityUpdater interface {
	UpdateField(ctx context.Context, entityId string, field string, value any) error
}

var _ Handler = new(updateFieldAction)

type updateFieldAction struct {
	updater EntityUpdater
}

func NewUpdateFieldAction(updater EntityUpdater) *updateFieldAction {
	return &updateFieldAction{updater: updater}
}

func (a *updateFieldAction) Name() string {
	return "update_field"
}

func (a *updateFieldAction) Execute(ctx context.Context, params map[string]any, entity map[string]any) (map[string]any, error) {
	field, _ := params["field"].(string)
	if len(field) == 0 {
		return nil, Permanentf("update_field: no field name")
	}
	entityId, _ := entity["id"].(string)
	value := params["value"]
	if err := a.updater.UpdateField(ctx, entityId, field, value); err != nil {
		return nil, err
	}
	return map[string]any{"field": field, "value": value}, nil
}

var _ Handler = new(leadScoreAction)

// leadScoreAction adjusts the lead score through the same updater; the
// scoring rule catalog lives outside the engine.
type leadScoreAction struct {
	updater EntityUpdater
}

func NewLeadScoreAction(updater EntityUpdater) *leadScoreAction {
	return &leadScoreAction{updater: updater}
}

func (a *leadScoreAction) Name() string {
	return "update_lead_score"
}

func (a *leadScoreAction) Execute(ctx context.Context, params map[string]any, entity map[string]any) (map[string]any, error) {
	delta, ok := params["points"].(float64)
	if !ok {
		if n, isInt := params["points"].(int); isInt {
			delta, ok = float64(n), true
		}
	}
	if !ok {
		return nil, Permanentf("update_lead_score: no points value")
	}
	current, _ := entity["leadScore"].(float64)
	next := current + delta
	entityId, _ := entity["id"].(string)
	if err := a.updater.UpdateField(ctx, entityId, "leadScore", next); err != nil {
		return nil, err
	}
	return map[string]any{"leadScore": next}, nil
}

type LogEntityUpdater struct{}

func (LogEntityUpdater) UpdateField(ctx context.Context, entityId string, field string, value any) error {
	logger.Info("update entity field", zap.String("entity", entityId), zap.String("field", field), zap.Any("value", value))
	return nil
}
