package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/util"
	"go.uber.org/zap"
)

const ENROLLMENT_KEY string = "ENROLLMENT"
const SCHEDULE_KEY string = "SCHEDULE"
const WAIT_KEY string = "WAIT"
const WAITING_KEY string = "WAITING"
const ACTIVE_KEY string = "ACTIVE"

// createScript registers the record only when no active enrollment holds
// the (workflow, entity) key.
var createScript = rd.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', 0)
redis.call('ZADD', KEYS[3], tonumber(ARGV[3]), ARGV[2])
return 1
`)

// claimScript is the atomic compare-and-swap granting exclusive right to
// advance the enrollment. A win pushes the schedule entry out to the
// lease deadline, so the claimed enrollment stays invisible to due scans
// until the holder's update lands or the lease expires.
var claimScript = rd.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if not v or tonumber(v) ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', tonumber(v) + 1)
redis.call('ZADD', KEYS[2], 'XX', tonumber(ARGV[3]), ARGV[2])
return 1
`)

// updateScript persists a claim-holder's transition: version-guarded
// write, operator flags carried over from the stored record, and all
// scan indexes maintained in the same atomic step.
var updateScript = rd.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if not v or tonumber(v) ~= tonumber(ARGV[1]) then
	return 0
end
local new = cjson.decode(ARGV[2])
local oldraw = redis.call('HGET', KEYS[1], 'data')
if oldraw then
	local old = cjson.decode(oldraw)
	new['cancelRequested'] = old['cancelRequested']
	new['paused'] = old['paused']
end
new['claimVersion'] = tonumber(v) + 1
redis.call('HSET', KEYS[1], 'data', cjson.encode(new), 'version', tonumber(v) + 1)
if ARGV[4] == '' or new['paused'] then
	redis.call('ZREM', KEYS[2], ARGV[3])
else
	redis.call('ZADD', KEYS[2], tonumber(ARGV[4]), ARGV[3])
end
if ARGV[5] == '1' then
	redis.call('SREM', KEYS[5], ARGV[3])
end
if ARGV[6] == '1' then
	redis.call('SADD', KEYS[6], ARGV[3])
	redis.call('ZADD', KEYS[3], tonumber(ARGV[7]), ARGV[3])
else
	redis.call('ZREM', KEYS[3], ARGV[3])
end
if ARGV[8] == '1' then
	local cur = redis.call('GET', KEYS[4])
	if cur == ARGV[3] then
		redis.call('DEL', KEYS[4])
	end
end
return 1
`)

// flagScript flips an operator flag inside the stored record without
// touching the claim version, so it cannot invalidate an in-flight claim.
var flagScript = rd.NewScript(`
local raw = redis.call('HGET', KEYS[1], 'data')
if not raw then
	return 0
end
local obj = cjson.decode(raw)
if ARGV[2] == '1' then
	obj[ARGV[1]] = true
else
	obj[ARGV[1]] = nil
end
redis.call('HSET', KEYS[1], 'data', cjson.encode(obj))
return 1
`)

// pauseScript flips the paused flag and keeps the schedule index in step:
// a paused enrollment leaves the zset entirely, so a backlog of paused
// overdue records can never crowd live due enrollments out of a sweep's
// batch window. Resume restores the entry at the caller-computed wake.
var pauseScript = rd.NewScript(`
local raw = redis.call('HGET', KEYS[1], 'data')
if not raw then
	return 0
end
local obj = cjson.decode(raw)
if ARGV[1] == '1' then
	obj['paused'] = true
	redis.call('ZREM', KEYS[2], ARGV[3])
else
	obj['paused'] = nil
	if ARGV[2] ~= '' then
		redis.call('ZADD', KEYS[2], tonumber(ARGV[2]), ARGV[3])
	end
end
redis.call('HSET', KEYS[1], 'data', cjson.encode(obj))
return 1
`)

var _ persistence.EnrollmentStore = new(redisEnrollmentDao)

type redisEnrollmentDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Enrollment]
}

func NewRedisEnrollmentDao(conf Config, encoderDecoder util.EncoderDecoder[model.Enrollment]) *redisEnrollmentDao {
	return &redisEnrollmentDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: encoderDecoder,
	}
}

func (re *redisEnrollmentDao) recordKey(id string) string {
	return re.getNamespaceKey(ENROLLMENT_KEY, id)
}

func (re *redisEnrollmentDao) waitKey(eventType string, entityId string) string {
	return re.getNamespaceKey(WAIT_KEY, eventType, entityId)
}

func (re *redisEnrollmentDao) activeKey(workflowId string, entityId string) string {
	return re.getNamespaceKey(ACTIVE_KEY, workflowId, entityId)
}

func (re *redisEnrollmentDao) Create(ctx context.Context, enrollment *model.Enrollment) error {
	data, err := re.encoderDecoder.Encode(*enrollment)
	if err != nil {
		return err
	}
	score := enrollment.NextExecutionTime.UnixMilli()
	keys := []string{
		re.recordKey(enrollment.Id),
		re.activeKey(enrollment.WorkflowId, enrollment.EntityId),
		re.getNamespaceKey(SCHEDULE_KEY),
	}
	res, err := createScript.Run(ctx, re.redisClient, keys, string(data), enrollment.Id, score).Int()
	if err != nil {
		logger.Error("error in creating enrollment", zap.String("id", enrollment.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if res == 0 {
		return persistence.ErrDuplicateActive
	}
	return nil
}

func (re *redisEnrollmentDao) Get(ctx context.Context, id string) (*model.Enrollment, error) {
	res, err := re.redisClient.HMGet(ctx, re.recordKey(id), "data", "version").Result()
	if err != nil {
		logger.Error("error in getting enrollment", zap.String("id", id), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(res) < 2 || res[0] == nil {
		return nil, persistence.ErrNotFound
	}
	enrollment, err := re.encoderDecoder.Decode([]byte(res[0].(string)))
	if err != nil {
		return nil, err
	}
	version, err := strconv.ParseInt(res[1].(string), 10, 64)
	if err != nil {
		return nil, err
	}
	enrollment.ClaimVersion = version
	return enrollment, nil
}

func (re *redisEnrollmentDao) Update(ctx context.Context, enrollment *model.Enrollment) error {
	old, err := re.Get(ctx, enrollment.Id)
	if err != nil {
		return err
	}
	data, err := re.encoderDecoder.Encode(*enrollment)
	if err != nil {
		return err
	}
	score := ""
	if wake := enrollment.WakeTime(); wake != nil {
		score = strconv.FormatInt(wake.UnixMilli(), 10)
	}
	hasOldWait := "0"
	oldWaitKey := re.waitKey("", "")
	if old.WaitingForEvent != nil {
		hasOldWait = "1"
		oldWaitKey = re.waitKey(old.WaitingForEvent.EventType, old.EntityId)
	}
	hasNewWait := "0"
	newWaitKey := re.waitKey("", "")
	if enrollment.WaitingForEvent != nil && !enrollment.Terminal() {
		hasNewWait = "1"
		newWaitKey = re.waitKey(enrollment.WaitingForEvent.EventType, enrollment.EntityId)
	}
	terminal := "0"
	if enrollment.Terminal() {
		terminal = "1"
	}
	keys := []string{
		re.recordKey(enrollment.Id),
		re.getNamespaceKey(SCHEDULE_KEY),
		re.getNamespaceKey(WAITING_KEY),
		re.activeKey(enrollment.WorkflowId, enrollment.EntityId),
		oldWaitKey,
		newWaitKey,
	}
	args := []any{
		enrollment.ClaimVersion,
		string(data),
		enrollment.Id,
		score,
		hasOldWait,
		hasNewWait,
		time.Now().UnixMilli(),
		terminal,
	}
	res, err := updateScript.Run(ctx, re.redisClient, keys, args...).Int()
	if err != nil {
		logger.Error("error in saving enrollment", zap.String("id", enrollment.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if res == 0 {
		return persistence.ErrConflict
	}
	enrollment.ClaimVersion++
	return nil
}

func (re *redisEnrollmentDao) Claim(ctx context.Context, id string, version int64) (bool, error) {
	keys := []string{re.recordKey(id), re.getNamespaceKey(SCHEDULE_KEY)}
	lease := time.Now().Add(persistence.ClaimLease).UnixMilli()
	res, err := claimScript.Run(ctx, re.redisClient, keys, version, id, lease).Int()
	if err != nil {
		logger.Error("error in claiming enrollment", zap.String("id", id), zap.Error(err))
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	return res == 1, nil
}

func (re *redisEnrollmentDao) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Enrollment, error) {
	opt := &rd.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}
	ids, err := re.redisClient.ZRangeByScore(ctx, re.getNamespaceKey(SCHEDULE_KEY), opt).Result()
	if err != nil {
		logger.Error("error while scanning schedule", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	enrollments, err := re.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	due := make([]*model.Enrollment, 0, len(enrollments))
	for _, e := range enrollments {
		if e.Due(now) {
			due = append(due, e)
		}
	}
	return due, nil
}

func (re *redisEnrollmentDao) FindWaiting(ctx context.Context, eventType string, entityId string) ([]*model.Enrollment, error) {
	ids, err := re.redisClient.SMembers(ctx, re.waitKey(eventType, entityId)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		logger.Error("error while scanning wait index", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	enrollments, err := re.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	waiting := make([]*model.Enrollment, 0, len(enrollments))
	for _, e := range enrollments {
		if e.Status == model.STATUS_WAITING_EVENT && !e.Paused {
			waiting = append(waiting, e)
		}
	}
	return waiting, nil
}

func (re *redisEnrollmentDao) FindStaleWaiting(ctx context.Context, cutoff time.Time, limit int) ([]*model.Enrollment, error) {
	opt := &rd.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(cutoff.UnixMilli(), 10),
		Count: int64(limit),
	}
	ids, err := re.redisClient.ZRangeByScore(ctx, re.getNamespaceKey(WAITING_KEY), opt).Result()
	if err != nil {
		logger.Error("error while scanning waiting index", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	enrollments, err := re.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	stale := make([]*model.Enrollment, 0, len(enrollments))
	for _, e := range enrollments {
		if e.Status == model.STATUS_WAITING_EVENT {
			stale = append(stale, e)
		}
	}
	return stale, nil
}

func (re *redisEnrollmentDao) SetPaused(ctx context.Context, id string, paused bool) error {
	flag := "0"
	score := ""
	if paused {
		flag = "1"
	} else {
		// Restore the schedule entry at the stored wake time. An update
		// racing this read rewrites the score itself, so a stale value
		// here is corrected at the next persisted transition.
		stored, err := re.Get(ctx, id)
		if err != nil {
			return err
		}
		if wake := stored.WakeTime(); wake != nil {
			score = strconv.FormatInt(wake.UnixMilli(), 10)
		}
	}
	keys := []string{re.recordKey(id), re.getNamespaceKey(SCHEDULE_KEY)}
	res, err := pauseScript.Run(ctx, re.redisClient, keys, flag, score, id).Int()
	if err != nil {
		logger.Error("error in setting pause flag", zap.String("id", id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if res == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (re *redisEnrollmentDao) RequestCancel(ctx context.Context, id string) error {
	return re.setFlag(ctx, id, "cancelRequested", "1")
}

func (re *redisEnrollmentDao) setFlag(ctx context.Context, id string, field string, value string) error {
	res, err := flagScript.Run(ctx, re.redisClient, []string{re.recordKey(id)}, field, value).Int()
	if err != nil {
		logger.Error("error in setting enrollment flag", zap.String("id", id), zap.String("flag", field), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if res == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (re *redisEnrollmentDao) fetch(ctx context.Context, ids []string) ([]*model.Enrollment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := re.redisClient.Pipeline()
	cmds := make([]*rd.SliceCmd, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, pipe.HMGet(ctx, re.recordKey(id), "data", "version"))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, rd.Nil) {
		logger.Error("error while fetching enrollments", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	enrollments := make([]*model.Enrollment, 0, len(ids))
	for _, cmd := range cmds {
		res, err := cmd.Result()
		if err != nil || len(res) < 2 || res[0] == nil {
			continue
		}
		enrollment, err := re.encoderDecoder.Decode([]byte(res[0].(string)))
		if err != nil {
			logger.Error("can not decode enrollment record", zap.Error(err))
			continue
		}
		if version, err := strconv.ParseInt(res[1].(string), 10, 64); err == nil {
			enrollment.ClaimVersion = version
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, nil
}
