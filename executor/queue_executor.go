package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ticket721/actionset/config"
	"github.com/ticket721/actionset/logger"
	"github.com/ticket721/actionset/model"
	"github.com/ticket721/actionset/persistence"
	"github.com/ticket721/actionset/util"
	"go.uber.org/zap"
)

const STOPPED_REASON = "executor stopped"
const STALLED_REASON = "job stalled"

// QueueExecutor polls one job queue on a tick and hands the jobs to a pool
// of workers running them through the TaskRunner. Jobs are acked when the
// run succeeds. A failed run is retried after the configured delay until
// MaxAttempts runs were made, then the job is failed. A second tick takes
// back jobs active for longer than JobTimeout.
type QueueExecutor struct {
	kind    model.ActionType
	queue   persistence.Queue
	runner  *TaskRunner
	conf    config.ExecutorConfig
	ctx     context.Context
	tw      *util.TickWorker
	reaper  *util.TickWorker
	workers []*util.Worker[*model.Job]
	next    int
}

func NewQueueExecutor(kind model.ActionType, queue persistence.Queue, runner *TaskRunner, workers int, conf config.ExecutorConfig, wg *sync.WaitGroup) *QueueExecutor {
	conf = conf.WithDefaults()
	ex := &QueueExecutor{
		kind:   kind,
		queue:  queue,
		runner: runner,
		conf:   conf,
		ctx:    context.Background(),
	}
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("%s-worker-%d", queue.Name(), i)
		ex.workers = append(ex.workers, util.NewWorker(name, wg, ex.process, conf.BatchSize))
	}
	ex.tw = util.NewTickWorker(ex.Name(), conf.PollInterval, ex.handle, wg)
	reapInterval := conf.JobTimeout / 2
	if reapInterval <= 0 {
		reapInterval = conf.JobTimeout
	}
	ex.reaper = util.NewTickWorker(ex.queue.Name()+"-reaper", reapInterval, ex.reap, wg)
	return ex
}

var _ Executor = new(QueueExecutor)

func (ex *QueueExecutor) Name() string {
	return ex.queue.Name() + "-executor"
}

func (ex *QueueExecutor) Start() error {
	for _, w := range ex.workers {
		w.Start()
	}
	ex.tw.Start()
	ex.reaper.Start()
	logger.Info("queue executor started", zap.String("queue", ex.queue.Name()), zap.Int("workers", len(ex.workers)))
	return nil
}

func (ex *QueueExecutor) IsRunning() bool {
	return ex.tw.IsRunning()
}

// Stop stops polling and the workers. Jobs polled but not started yet are
// handed back to the queue for a retry so they do not stay active.
func (ex *QueueExecutor) Stop() error {
	ex.tw.Stop()
	ex.reaper.Stop()
	ex.tw.Wait()
	ex.reaper.Wait()
	for _, w := range ex.workers {
		w.Stop()
	}
	for _, w := range ex.workers {
		for _, job := range w.Drain() {
			ex.release(job, STOPPED_REASON)
		}
	}
	return nil
}

func (ex *QueueExecutor) free() int {
	free := 0
	for _, w := range ex.workers {
		free += w.Free()
	}
	return free
}

// handle runs on the tick goroutine, the only sender to the workers, so the
// free capacity it reads cannot shrink before the jobs are sent.
func (ex *QueueExecutor) handle() {
	n := ex.free()
	if n > ex.conf.BatchSize {
		n = ex.conf.BatchSize
	}
	if n == 0 {
		return
	}
	jobs, err := ex.queue.Poll(ex.ctx, n)
	if err != nil {
		logger.Error("error while polling queue", zap.String("queue", ex.queue.Name()), zap.Error(err))
		return
	}
	for _, job := range jobs {
		ex.nextWorker().Sender() <- job
	}
}

func (ex *QueueExecutor) nextWorker() *util.Worker[*model.Job] {
	for {
		w := ex.workers[ex.next%len(ex.workers)]
		ex.next++
		if w.Free() > 0 {
			return w
		}
	}
}

func (ex *QueueExecutor) process(job *model.Job) error {
	progress := func(percent int) {
		if err := ex.queue.Progress(ex.ctx, job.Id, percent); err != nil {
			logger.Warn("error while reporting job progress", zap.String("job", job.Id), zap.Error(err))
		}
	}
	if err := ex.runner.Run(ex.ctx, ex.kind, job, progress); err != nil {
		ex.release(job, err.Error())
		return err
	}
	return ex.queue.Ack(ex.ctx, job.Id)
}

// release takes job out of the active list, delayed for another run while
// attempts remain and failed otherwise.
func (ex *QueueExecutor) release(job *model.Job, reason string) {
	attempt := job.AttemptsMade + 1
	if attempt < ex.conf.MaxAttempts {
		delay := ex.conf.RetryDelay(attempt)
		if err := ex.queue.Retry(ex.ctx, job.Id, reason, delay); err != nil {
			logger.Error("error while retrying job", zap.String("queue", ex.queue.Name()), zap.String("job", job.Id), zap.Error(err))
			return
		}
		logger.Info("retrying job", zap.String("queue", ex.queue.Name()), zap.String("job", job.Id), zap.Int("attempt", attempt), zap.Duration("retryAfter", delay), zap.String("reason", reason))
		return
	}
	if err := ex.queue.Fail(ex.ctx, job.Id, reason); err != nil {
		logger.Error("error while failing job", zap.String("queue", ex.queue.Name()), zap.String("job", job.Id), zap.Error(err))
		return
	}
	logger.Error("job attempts exhausted", zap.String("queue", ex.queue.Name()), zap.String("job", job.Id), zap.Int("maxAttempts", ex.conf.MaxAttempts), zap.String("reason", reason))
}

// reap releases jobs whose worker did not ack or fail them within the job
// timeout, such as jobs of a process that died mid-run.
func (ex *QueueExecutor) reap() {
	stalled, err := ex.queue.Stalled(ex.ctx, time.Now().Add(-ex.conf.JobTimeout))
	if err != nil {
		logger.Error("error while listing stalled jobs", zap.String("queue", ex.queue.Name()), zap.Error(err))
		return
	}
	for _, job := range stalled {
		logger.Warn("job stalled", zap.String("queue", ex.queue.Name()), zap.String("job", job.Id), zap.Time("activatedAt", job.ActivatedAt))
		ex.release(job, STALLED_REASON)
	}
}
