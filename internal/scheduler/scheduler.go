// Package scheduler периодически запускает пакетную выплату.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/settlement-core/internal/model"
)

// Runner выполняет пакетную выплату за период, которому принадлежит now.
type Runner interface {
	RunPayouts(ctx context.Context, now time.Time) (model.PayoutRunResult, error)
}

// Scheduler вызывает Runner сразу после старта и затем с заданным интервалом.
// Повторные вызовы в пределах одного периода безопасны: дубликаты отсекает Runner.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// New создаёт планировщик. Интервал по умолчанию — один час.
func New(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Run блокируется до отмены контекста.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("payout scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("payout scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	res, err := s.runner.RunPayouts(ctx, now)
	if err != nil {
		s.logger.Error("scheduled payout run failed", zap.Time("now", now), zap.Error(err))
		return
	}
	if res.Skipped {
		s.logger.Debug("scheduled payout run skipped", zap.String("reason", res.SkipReason))
		return
	}
	s.logger.Info("scheduled payout run finished",
		zap.String("run_id", res.RunID.String()),
		zap.String("status", string(res.Status)),
	)
}
