package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server  *asynq.Server
	log     *logrus.Entry
	sweeper Job
	purger  Job
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, sweeper, purger Job, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// 周期任务自己保证不重叠，这里不需要并发
			Concurrency: 2,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID := ""
				if rw := task.ResultWriter(); rw != nil {
					taskID = rw.TaskID()
				}
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{server: server, log: logEntry, sweeper: sweeper, purger: purger}
}

// Mux 返回注册了所有任务处理器的 ServeMux
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypePresenceSweep, NewPeriodicHandler(ws.sweeper))
	mux.Handle(tasks.TypeMessageRetention, NewPeriodicHandler(ws.purger))
	return mux
}

// Start 运行 Worker Server，应该在一个单独的 goroutine 中调用
func (ws *WorkerServer) Start() {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(ws.Mux()); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Errorf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}

// Scheduler 按固定间隔投递周期任务
type Scheduler struct {
	scheduler *asynq.Scheduler
	log       *logrus.Entry
}

// NewScheduler 注册清扫和保留期任务
func NewScheduler(redisOpt asynq.RedisClientOpt, sweepEvery, retentionEvery time.Duration, logger *logrus.Logger) (*Scheduler, error) {
	logEntry := logger.WithField("component", "scheduler")
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})

	entries := []struct {
		every time.Duration
		task  *asynq.Task
	}{
		{sweepEvery, tasks.NewPresenceSweepTask()},
		{retentionEvery, tasks.NewMessageRetentionTask()},
	}
	for _, e := range entries {
		schedule := "@every " + e.every.String()
		entryID, err := scheduler.Register(schedule, e.task, asynq.Queue("default"))
		if err != nil {
			return nil, err
		}
		logEntry.Infof("Periodic task %s registered with schedule '%s' (EntryID: %s)", e.task.Type(), schedule, entryID)
	}
	return &Scheduler{scheduler: scheduler, log: logEntry}, nil
}

// Start 启动 Scheduler，应该在一个单独的 goroutine 中调用
func (s *Scheduler) Start() {
	s.log.Info("Asynq scheduler starting...")
	if err := s.scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		s.log.Errorf("Asynq scheduler Run() failed: %v", err)
		return
	}
	s.log.Info("Asynq scheduler stopped.")
}

// Shutdown 停止 Scheduler
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
