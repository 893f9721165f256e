package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/util"
	"go.uber.org/zap"
)

const DEFINITION_KEY string = "DEFINITION"

var _ persistence.DefinitionStore = new(redisDefinitionDao)

type redisDefinitionDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowDefinition]
}

func NewRedisDefinitionDao(conf Config, encoderDecoder util.EncoderDecoder[model.WorkflowDefinition]) *redisDefinitionDao {
	return &redisDefinitionDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: encoderDecoder,
	}
}

func (rdd *redisDefinitionDao) Save(ctx context.Context, wf *model.WorkflowDefinition) error {
	key := rdd.getNamespaceKey(DEFINITION_KEY)
	data, err := rdd.encoderDecoder.Encode(*wf)
	if err != nil {
		return err
	}
	if err := rdd.redisClient.HSet(ctx, key, wf.Id, string(data)).Err(); err != nil {
		logger.Error("error in saving workflow definition", zap.String("workflow", wf.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdd *redisDefinitionDao) Get(ctx context.Context, id string) (*model.WorkflowDefinition, error) {
	key := rdd.getNamespaceKey(DEFINITION_KEY)
	wfStr, err := rdd.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		logger.Error("error in getting workflow definition", zap.String("workflow", id), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rdd.encoderDecoder.Decode([]byte(wfStr))
}

func (rdd *redisDefinitionDao) ListEnabled(ctx context.Context) ([]*model.WorkflowDefinition, error) {
	key := rdd.getNamespaceKey(DEFINITION_KEY)
	all, err := rdd.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("error in listing workflow definitions", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var enabled []*model.WorkflowDefinition
	for id, wfStr := range all {
		wf, err := rdd.encoderDecoder.Decode([]byte(wfStr))
		if err != nil {
			logger.Error("can not decode workflow definition", zap.String("workflow", id), zap.Error(err))
			continue
		}
		if wf.Enabled {
			enabled = append(enabled, wf)
		}
	}
	return enabled, nil
}

func (rdd *redisDefinitionDao) Delete(ctx context.Context, id string) error {
	key := rdd.getNamespaceKey(DEFINITION_KEY)
	if err := rdd.redisClient.HDel(ctx, key, id).Err(); err != nil {
		logger.Error("error in deleting workflow definition", zap.String("workflow", id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
