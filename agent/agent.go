package agent

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/funnelkit/journey/config"
	"github.com/funnelkit/journey/container"
	"github.com/funnelkit/journey/engine"
	"github.com/funnelkit/journey/event"
	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/rest"
	"github.com/funnelkit/journey/scheduler"
	"github.com/funnelkit/journey/trigger"
)

// Agent wires storage, the step executor, the scheduler and the http
// surface together and owns their lifecycle.
type Agent struct {
	Config           config.Config
	diContainer      *container.DIContiner
	stepExecutor     *engine.StepExecutor
	triggerEvaluator *trigger.Evaluator
	resumeService    *event.Service
	scheduler        *scheduler.Scheduler
	httpServer       *rest.Server
	shutdown         bool
	shutdowns        chan struct{}
	shutdownLock     sync.Mutex
	wg               sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	conf.Sanitize()
	a := &Agent{
		Config:    conf,
		shutdowns: make(chan struct{}),
	}
	setup := []func() error{
		a.setupContainer,
		a.setupStepExecutor,
		a.setupTriggerEvaluator,
		a.setupResumeService,
		a.setupScheduler,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupContainer() error {
	a.diContainer = container.NewDiContainer()
	return a.diContainer.Init(a.Config)
}

func (a *Agent) setupStepExecutor() error {
	a.stepExecutor = engine.NewStepExecutor(engine.Config{
		MaxStepsPerTick:       a.Config.MaxStepsPerTick,
		MaxStepsPerEnrollment: a.Config.MaxStepsPerEnrollment,
		MaxActionAttempts:     a.Config.MaxActionAttempts,
		RetryBackoff:          time.Duration(a.Config.RetryBackoffSeconds) * time.Second,
		ActionTimeout:         time.Duration(a.Config.ActionTimeoutSeconds) * time.Second,
	}, a.diContainer.GetEnrollmentStore(), a.diContainer.GetDefinitionCache(),
		a.diContainer.GetActionRegistry(), a.diContainer.GetEntityProvider(), a.diContainer.GetCollector())
	return nil
}

func (a *Agent) setupTriggerEvaluator() error {
	a.triggerEvaluator = trigger.NewEvaluator(a.diContainer.GetDefinitionCache(), a.diContainer.GetEnrollmentStore())
	return nil
}

func (a *Agent) setupResumeService() error {
	a.resumeService = event.NewService(a.diContainer.GetEnrollmentStore(), a.stepExecutor)
	return nil
}

func (a *Agent) setupScheduler() error {
	a.scheduler = scheduler.NewScheduler(scheduler.Config{
		TickInterval: time.Duration(a.Config.TickIntervalSeconds) * time.Second,
		BatchSize:    a.Config.BatchSize,
		Capacity:     a.Config.WorkerCapacity,
		Concurrency:  a.Config.WorkerConcurrency,
	}, a.diContainer.GetEnrollmentStore(), a.stepExecutor, &a.wg)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.diContainer.GetEnrollmentStore(),
		a.diContainer.GetDefinitionStore(), a.diContainer.GetDefinitionCache(),
		a.triggerEvaluator, a.resumeService,
		time.Duration(a.Config.StaleWaitMinutes)*time.Minute)
	if err != nil {
		return err
	}
	return nil
}

func (a *Agent) Start() error {
	a.scheduler.Start()
	go func() {
		err := a.httpServer.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{
		func() error {
			logger.Info("stopping scheduler")
			a.scheduler.Stop()
			return nil
		},
		a.httpServer.Stop,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
