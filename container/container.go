package container

import (
	"net/http"
	"time"

	"github.com/funnelkit/journey/action"
	"github.com/funnelkit/journey/analytics"
	"github.com/funnelkit/journey/cache"
	"github.com/funnelkit/journey/config"
	"github.com/funnelkit/journey/engine"
	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/persistence/memory"
	rd "github.com/funnelkit/journey/persistence/redis"
	"github.com/funnelkit/journey/util"
)

type DIContiner struct {
	initialized      bool
	enrollmentStore  persistence.EnrollmentStore
	definitionStore  persistence.DefinitionStore
	definitionCache  *cache.DefinitionCache
	actionRegistry   *action.Registry
	entityProvider   engine.EntityProvider
	collector        analytics.Collector
	EnrollmentEncDec util.EncoderDecoder[model.Enrollment]
	DefinitionEncDec util.EncoderDecoder[model.WorkflowDefinition]
}

func NewDiContainer() *DIContiner {
	return &DIContiner{
		initialized: false,
	}
}

func (d *DIContiner) setInitialized() {
	d.initialized = true
}

func (d *DIContiner) Init(conf config.Config) error {
	defer d.setInitialized()

	d.EnrollmentEncDec = util.NewJsonEncoderDecoder[model.Enrollment]()
	d.DefinitionEncDec = util.NewJsonEncoderDecoder[model.WorkflowDefinition]()

	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rdConf := rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Namespace: conf.RedisConfig.Namespace,
		}
		d.enrollmentStore = rd.NewRedisEnrollmentDao(rdConf, d.EnrollmentEncDec)
		d.definitionStore = rd.NewRedisDefinitionDao(rdConf, d.DefinitionEncDec)
	default:
		d.enrollmentStore = memory.NewEnrollmentStore()
		d.definitionStore = memory.NewDefinitionStore()
	}
	d.definitionCache = cache.NewDefinitionCache(d.definitionStore)
	d.collector = analytics.NoopCollector{}
	if conf.AnalyticsLogFile != "" {
		collector, err := analytics.NewLogFileCollector(conf.AnalyticsLogFile)
		if err != nil {
			return err
		}
		d.collector = collector
	}
	d.entityProvider = &engine.StaticEntityProvider{}

	d.actionRegistry = action.NewRegistry()
	d.actionRegistry.Register(action.NewSendEmailAction(action.LogEmailSender{}))
	d.actionRegistry.Register(action.NewCreateTaskAction(action.LogTaskCreator{}))
	d.actionRegistry.Register(action.NewUpdateFieldAction(action.LogEntityUpdater{}))
	d.actionRegistry.Register(action.NewLeadScoreAction(action.LogEntityUpdater{}))
	d.actionRegistry.Register(action.NewHttpAction(&http.Client{Timeout: time.Duration(conf.ActionTimeoutSeconds) * time.Second}))
	return nil
}

// SetEntityProvider plugs the CRUD layer's snapshot source in; must be
// called before the engine starts advancing enrollments.
func (d *DIContiner) SetEntityProvider(p engine.EntityProvider) {
	d.entityProvider = p
}

func (d *DIContiner) SetCollector(c analytics.Collector) {
	d.collector = c
}

func (d *DIContiner) GetEnrollmentStore() persistence.EnrollmentStore {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.enrollmentStore
}

func (d *DIContiner) GetDefinitionStore() persistence.DefinitionStore {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.definitionStore
}

func (d *DIContiner) GetDefinitionCache() *cache.DefinitionCache {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.definitionCache
}

func (d *DIContiner) GetActionRegistry() *action.Registry {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.actionRegistry
}

func (d *DIContiner) GetEntityProvider() engine.EntityProvider {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.entityProvider
}

func (d *DIContiner) GetCollector() analytics.Collector {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.collector
}
