// sweep.go — фоновый сборщик устаревших экземпляров.
//
// Удаляет экземпляры, не обновлявшиеся дольше retention TTL.
// Запускается как горутина с периодическим тикером (DE_SWEEP_INTERVAL);
// нулевой TTL отключает сборщик полностью.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/dicomemu/internal/repository"
)

// Prometheus метрики сборщика
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "de_sweep_runs_total",
		Help: "Общее количество запусков сборщика устаревших экземпляров",
	})
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "de_sweep_duration_seconds",
		Help:    "Длительность выполнения сборщика в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного запуска сборщика.
type SweepResult struct {
	// DeletedCount — количество удалённых экземпляров
	DeletedCount int
	// Errors — количество ошибок при обработке экземпляров
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// SweepService — фоновое удаление экземпляров с истёкшим retention.
// Удаление выполняется через DeleteService, поэтому лента изменений
// и события ведут себя так же, как при удалении по запросу.
type SweepService struct {
	instances repository.InstanceRepository
	deleter   *DeleteService
	ttl       time.Duration
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweepService создаёт сборщик. ttl == 0 — сборка отключена.
func NewSweepService(
	instances repository.InstanceRepository,
	deleter *DeleteService,
	ttl, interval time.Duration,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		instances: instances,
		deleter:   deleter,
		ttl:       ttl,
		interval:  interval,
		logger:    logger.With(slog.String("component", "sweep")),
	}
}

// Start запускает фоновую горутину сборщика с периодическим тикером.
// Вызывается один раз при старте приложения. При нулевом TTL — no-op.
func (sw *SweepService) Start(ctx context.Context) {
	if sw.ttl <= 0 {
		sw.logger.Info("Сборщик устаревших экземпляров отключён")
		return
	}

	swCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel

	go sw.run(swCtx)

	sw.logger.Info("Сборщик запущен",
		slog.String("ttl", sw.ttl.String()),
		slog.String("interval", sw.interval.String()),
	)
}

// Stop останавливает фоновый процесс сборщика.
func (sw *SweepService) Stop() {
	if sw.cancel != nil {
		sw.cancel()
		sw.logger.Info("Сборщик остановлен")
	}
}

// run — основной цикл фоновой горутины.
func (sw *SweepService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	sw.RunOnce(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл сборки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (sw *SweepService) RunOnce(ctx context.Context) *SweepResult {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	cutoff := time.Now().UTC().Add(-sw.ttl)
	expired, err := sw.instances.ListUpdatedBefore(ctx, cutoff)
	if err != nil {
		sw.logger.Error("Ошибка выборки устаревших экземпляров",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return result
	}

	for _, rec := range expired {
		if ctx.Err() != nil {
			break
		}
		if err := sw.deleter.DeleteExpired(ctx, rec); err != nil {
			// Экземпляр мог быть заменён или удалён между выборкой
			// и удалением — это не ошибка
			if errors.Is(err, ErrNotFound) {
				continue
			}
			sw.logger.Error("Ошибка удаления устаревшего экземпляра",
				slog.String("sop_instance_uid", rec.SOPInstanceUID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		result.DeletedCount++
	}

	result.Duration = time.Since(start)
	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if result.DeletedCount > 0 || result.Errors > 0 {
		sw.logger.Info("Сборка завершена",
			slog.Int("deleted", result.DeletedCount),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}
	return result
}
