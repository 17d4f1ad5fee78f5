package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/UkralStul/requestwatch/internal/metrics"
)

// Task - периодическая задача.
type Task interface {
	Name() string
	Run(ctx context.Context, log logrus.FieldLogger) (Summary, error)
}

// Readiness - зависимость, готовности которой ждут перед первым проходом.
type Readiness interface {
	WaitReady(ctx context.Context) error
}

// Schedule ждёт готовности, запускает задачу сразу и затем каждые interval.
// Проходы одной задачи не перекрываются. Возвращает nil при отмене ctx.
func Schedule(ctx context.Context, ready Readiness, task Task, interval time.Duration, log logrus.FieldLogger) error {
	log = log.WithField("task", task.Name())
	log.Info("waiting for chat connection")
	if err := ready.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		RunOnce(ctx, task, log)

		select {
		case <-ctx.Done():
			log.Info("task stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce выполняет один проход с отдельным run_id.
func RunOnce(ctx context.Context, task Task, log logrus.FieldLogger) Summary {
	log = log.WithField("run_id", uuid.NewString())
	start := time.Now()

	sum, err := task.Run(ctx, log)
	elapsed := time.Since(start)
	metrics.PassDuration.WithLabelValues(task.Name()).Observe(elapsed.Seconds())

	log = log.WithFields(sum.fields()).WithField("took", elapsed.Round(time.Millisecond).String())
	if err != nil {
		log.WithError(err).Error("pass failed")
		return sum
	}
	log.Info("pass finished")
	return sum
}
