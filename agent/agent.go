package agent

import (
	"sync"
	"time"

	"github.com/ticket721/actionset/analytics"
	"github.com/ticket721/actionset/config"
	"github.com/ticket721/actionset/container"
	"github.com/ticket721/actionset/executor"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/metrics"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/scheduler"
	"github.com/ticket721/actionset/service"
	"github.com/ticket721/actionset/validation"
	"github.com/ticket721/actionset/workflows/cart"
	"github.com/ticket721/actionset/workflows/events"
	"go.uber.org/zap"
)

const METRICS_REPORTING_PERIOD = time.Minute

type Agent struct {
	Config       config.Config
	container    *container.DIContiner
	service      *service.ActionSetService
	validator    *validation.Validator
	executors    []executor.Executor
	stopExporter func()
	started      bool
	shutdown     bool
	failures     chan error
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config:   conf,
		failures: make(chan error, 1),
	}
	setup := []func() error{
		a.setupAnalytics,
		a.setupContainer,
		a.setupService,
		a.setupWorkflows,
		a.setupExecutors,
		a.setupScheduler,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			if a.container != nil {
				_ = a.container.Close()
			}
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupAnalytics() error {
	return analytics.InitDataCollector(a.Config.AnalyticsConfig)
}

func (a *Agent) setupContainer() error {
	a.container = container.NewDiContainer()
	return a.container.Init(a.Config)
}

func (a *Agent) setupService() error {
	a.service = service.NewActionSetService(
		a.container.GetActionSetStorage(),
		a.container.GetQueues(),
		a.container.GetRightsStorage(),
	)
	return nil
}

func (a *Agent) setupWorkflows() error {
	a.validator = validation.NewValidator()
	register := []func(*service.ActionSetService, *validation.Validator) error{
		events.Register,
		cart.Register,
	}
	for _, fn := range register {
		if err := fn(a.service, a.validator); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) setupExecutors() error {
	conf := a.Config.ExecutorConfig.WithDefaults()
	queues := a.container.GetQueues()
	runner := executor.NewTaskRunner(a.service)
	a.executors = append(a.executors,
		executor.NewQueueExecutor(model.ACTION_TYPE_INPUT, queues.Input, runner, conf.InputWorkers, conf, &a.wg),
		executor.NewQueueExecutor(model.ACTION_TYPE_EVENT, queues.Event, runner, conf.EventWorkers, conf, &a.wg),
	)
	return nil
}

func (a *Agent) setupScheduler() error {
	s := scheduler.NewEventScheduler(
		a.container.GetActionSetStorage(),
		a.container.GetQueues().Event,
		a.Config.SchedulerConfig,
		a.fail,
		&a.wg,
	)
	a.executors = append(a.executors, s)
	return nil
}

func (a *Agent) Service() *service.ActionSetService {
	return a.service
}

// Failures reports the error of a background loop that can not go on. The
// process is expected to shut down when it fires.
func (a *Agent) Failures() <-chan error {
	return a.failures
}

func (a *Agent) fail(err error) {
	select {
	case a.failures <- err:
	default:
	}
}

// Start runs the queue executors and the event scheduler.
func (a *Agent) Start() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.started || a.shutdown {
		return nil
	}
	if err := metrics.Register(); err != nil {
		return err
	}
	a.stopExporter = metrics.StartExporter(METRICS_REPORTING_PERIOD)
	for _, ex := range a.executors {
		if err := ex.Start(); err != nil {
			return err
		}
		logger.Info("started", zap.String("executor", ex.Name()))
	}
	a.started = true
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down agent")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	for _, ex := range a.executors {
		if err := ex.Stop(); err != nil {
			logger.Error("error stopping executor", zap.String("executor", ex.Name()), zap.Error(err))
		}
	}
	logger.Info("waiting for all executors to shutdown...")
	a.wg.Wait()

	if a.stopExporter != nil {
		a.stopExporter()
	}
	shutdown := []func() error{
		analytics.Close,
		a.container.Close,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
