package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/funnelkit/journey/engine"
	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/util"
	"go.uber.org/zap"
)

type Config struct {
	TickInterval time.Duration
	BatchSize    int
	Capacity     int
	Concurrency  int
}

// Scheduler is the pull half of the wake-up model: a periodic sweep over
// due enrollments that also covers delay expiry, event-wait timeouts, and
// recovery from any missed push notification. Claims make it safe to run
// the sweep on multiple processes at once.
type Scheduler struct {
	cfg      Config
	store    persistence.EnrollmentStore
	executor *engine.StepExecutor
	pool     *util.Worker
	stop     chan struct{}
	wg       *sync.WaitGroup
	now      func() time.Time
}

func NewScheduler(cfg Config, store persistence.EnrollmentStore, executor *engine.StepExecutor, wg *sync.WaitGroup) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		store:    store,
		executor: executor,
		stop:     make(chan struct{}),
		wg:       wg,
		now:      time.Now,
	}
	s.pool = util.NewWorker("enrollment-executor", wg, s.handle, cfg.Capacity, cfg.Concurrency)
	return s
}

func (s *Scheduler) Start() {
	s.pool.Start()
	tw := util.NewTickWorker("scheduler", s.cfg.TickInterval, s.stop, s.Sweep, s.wg)
	tw.Start()
	logger.Info("scheduler started", zap.Duration("interval", s.cfg.TickInterval), zap.Int("batch", s.cfg.BatchSize))
}

func (s *Scheduler) Stop() {
	s.stop <- struct{}{}
	s.pool.Stop()
}

// Sweep runs one tick: select due enrollments, claim each, hand the
// claimed ones to the pool. Backlog past the batch cap waits for the next
// tick; a lost claim is a routine skip.
func (s *Scheduler) Sweep() {
	ctx := context.Background()
	due, err := s.store.FindDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		logger.Error("error scanning due enrollments", zap.Error(err))
		return
	}
	for _, enrollment := range due {
		claimed, err := s.store.Claim(ctx, enrollment.Id, enrollment.ClaimVersion)
		if err != nil {
			logger.Error("error claiming enrollment", zap.String("enrollment", enrollment.Id), zap.Error(err))
			continue
		}
		if !claimed {
			logger.Debug("lost tick claim race", zap.String("enrollment", enrollment.Id))
			continue
		}
		enrollment.ClaimVersion++
		s.pool.Sender() <- enrollment
	}
}

func (s *Scheduler) handle(task util.Task) error {
	enrollment := task.(*model.Enrollment)
	err := s.executor.Advance(context.Background(), enrollment, engine.Wake{Kind: engine.WAKE_TICK})
	if err != nil {
		// log and continue; one enrollment's trouble never aborts a batch
		logger.Error("error advancing enrollment", zap.String("enrollment", enrollment.Id), zap.Error(err))
	}
	return nil
}
