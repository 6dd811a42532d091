package tasks

import (
	"time"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypePresenceSweep    = "presence:sweep"    // 把长时间未活动的参与者标记为离线
	TypeMessageRetention = "message:retention" // 清理过期的持久化消息
)

// 周期任务没有 payload，下一个周期会自然重跑，所以不重试
const periodicTaskTimeout = 2 * time.Minute

// NewPresenceSweepTask 创建一次在线状态清扫任务
func NewPresenceSweepTask() *asynq.Task {
	return asynq.NewTask(TypePresenceSweep, nil, asynq.MaxRetry(0), asynq.Timeout(periodicTaskTimeout))
}

// NewMessageRetentionTask 创建一次消息保留期清理任务
func NewMessageRetentionTask() *asynq.Task {
	return asynq.NewTask(TypeMessageRetention, nil, asynq.MaxRetry(0), asynq.Timeout(periodicTaskTimeout))
}
