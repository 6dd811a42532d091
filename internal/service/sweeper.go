package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/repository"
)

// 默认每 5 分钟扫描一次，超过 5 分钟没有活动的在线参与者标记为离线
const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultStaleAfter    = 5 * time.Minute
)

// ErrRunInProgress 上一次执行尚未结束
var ErrRunInProgress = errors.New("previous run still in progress")

// PresenceSweeper 只作用于持久化后端，内存后端不做处理。
type PresenceSweeper struct {
	durable    repository.DurableStore
	staleAfter time.Duration
	now        func() time.Time
	running    sync.Mutex
}

// NewPresenceSweeper 创建 PresenceSweeper。durable 为 nil 时 RunOnce 什么都不做。
func NewPresenceSweeper(durable repository.DurableStore, staleAfter time.Duration) *PresenceSweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &PresenceSweeper{durable: durable, staleAfter: staleAfter, now: time.Now}
}

// RunOnce 执行一次扫描。与正在进行的扫描重叠时直接返回 ErrRunInProgress。
func (s *PresenceSweeper) RunOnce(ctx context.Context) (int64, error) {
	if s.durable == nil {
		return 0, nil
	}
	if !s.running.TryLock() {
		return 0, ErrRunInProgress
	}
	defer s.running.Unlock()

	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.durable.MarkStaleOffline(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logrus.WithFields(logrus.Fields{"count": n, "cutoff": cutoff}).Info("PresenceSweeper: marked stale participants offline")
	}
	return n, nil
}

// Run 按固定间隔执行，直到 ctx 结束。失败只记录日志，下一次照常执行。
func (s *PresenceSweeper) Run(ctx context.Context, interval time.Duration) {
	runEvery(ctx, "presence_sweep", interval, func(ctx context.Context) error {
		_, err := s.RunOnce(ctx)
		return err
	})
}

// runEvery 在同一个 goroutine 里顺序执行 fn，上一次结束之前不会开始下一次
func runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := logrus.WithField("task", name)
	log.WithField("interval", interval).Info("Periodic task started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Periodic task stopped")
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.WithError(err).Error("Periodic task failed")
			}
		}
	}
}
