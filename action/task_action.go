package action

import (
	"context"

	"github.com/funnelkit/journey/logger"
	"go.uber.org/zap"
)

// TaskCreator is the external collaborator owning the task/todo system.
type TaskCreator interface {
	CreateTask(ctx context.Context, entityId string, title string, params map[string]any) (string, error)
}

var _ Handler = new(createTaskAction)

type createTaskAction struct {
	creator TaskCreator
}

func NewCreateTaskAction(creator TaskCreator) *createTaskAction {
	return &createTaskAction{creator: creator}
}

func (a *createTaskAction) Name() string {
	return "create_task"
}

func (a *createTaskAction) Execute(ctx context.Context, params map[string]any, entity map[string]any) (map[string]any, error) {
	title, _ := params["title"].(string)
	if len(title) == 0 {
		return nil, Permanentf("create_task: no title")
	}
	entityId, _ := entity["id"].(string)
	taskId, err := a.creator.CreateTask(ctx, entityId, title, params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"taskId": taskId}, nil
}

type LogTaskCreator struct{}

func (LogTaskCreator) CreateTask(ctx context.Context, entityId string, title string, params map[string]any) (string, error) {
	logger.Info("create task", zap.String("entity", entityId), zap.String("title", title))
	return "task-" + entityId, nil
}
