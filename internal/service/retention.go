package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vibe-meeting/internal/repository"
)

// DefaultMessageRetention 持久化消息保留 30 天
const DefaultMessageRetention = 30 * 24 * time.Hour

// RetentionPurger 定期删除持久化后端中过期的消息
type RetentionPurger struct {
	durable   repository.DurableStore
	retention time.Duration
	now       func() time.Time
	running   sync.Mutex
}

func NewRetentionPurger(durable repository.DurableStore, retention time.Duration) *RetentionPurger {
	if retention <= 0 {
		retention = DefaultMessageRetention
	}
	return &RetentionPurger{durable: durable, retention: retention, now: time.Now}
}

func (p *RetentionPurger) RunOnce(ctx context.Context) (int64, error) {
	if p.durable == nil {
		return 0, nil
	}
	if !p.running.TryLock() {
		return 0, ErrRunInProgress
	}
	defer p.running.Unlock()

	cutoff := p.now().Add(-p.retention)
	n, err := p.durable.PurgeMessagesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logrus.WithFields(logrus.Fields{"count": n, "cutoff": cutoff}).Info("RetentionPurger: purged expired messages")
	}
	return n, nil
}

func (p *RetentionPurger) Run(ctx context.Context, interval time.Duration) {
	runEvery(ctx, "message_retention", interval, func(ctx context.Context) error {
		_, err := p.RunOnce(ctx)
		return err
	})
}
