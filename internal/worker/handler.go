package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/service"
)

// Job 一次性执行的周期任务，返回处理的行数
type Job interface {
	RunOnce(ctx context.Context) (int64, error)
}

// PeriodicHandler 把 Job 适配成 asynq 的任务处理器
type PeriodicHandler struct {
	job Job
}

// NewPeriodicHandler 创建 Handler 实例
func NewPeriodicHandler(job Job) *PeriodicHandler {
	if job == nil {
		panic("Job cannot be nil for PeriodicHandler")
	}
	return &PeriodicHandler{job: job}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PeriodicHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
	})
	logCtx.Debug("Processing periodic task...")

	affected, err := h.job.RunOnce(ctx)
	if errors.Is(err, service.ErrRunInProgress) {
		// 上一次还没跑完，本周期跳过
		logCtx.Info("Previous run still in progress, skipping")
		return nil
	}
	if err != nil {
		logCtx.WithError(err).Error("Periodic task failed")
		return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	logCtx.WithField("affected", affected).Info("Periodic task processed successfully")
	return nil
}
