// Точка входа DICOM Emulator — локального эмулятора DICOMweb-сервиса.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/arturkryukov/dicomemu/internal/api/handlers"
	"github.com/arturkryukov/dicomemu/internal/api/middleware"
	"github.com/arturkryukov/dicomemu/internal/config"
	"github.com/arturkryukov/dicomemu/internal/events"
	"github.com/arturkryukov/dicomemu/internal/repository"
	"github.com/arturkryukov/dicomemu/internal/server"
	"github.com/arturkryukov/dicomemu/internal/service"
	"github.com/arturkryukov/dicomemu/internal/storage/filestore"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("DICOM Emulator запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("db_path", cfg.DBPath),
	)

	// --- Инициализация компонентов ---

	// 1. База данных SQLite с миграциями
	db, err := repository.Open(cfg.DBPath)
	if err != nil {
		logger.Error("Ошибка инициализации базы данных", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// 2. Файловое хранилище
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Приёмники событий из конфигурации
	sinks, err := buildSinks(cfg)
	if err != nil {
		logger.Error("Ошибка инициализации приёмников событий", slog.String("error", err.Error()))
		os.Exit(1)
	}
	eventManager := events.NewManager(sinks, cfg.EventTimeout, logger)
	defer eventManager.Close()
	logger.Info("Приёмники событий настроены", slog.Int("count", eventManager.SinkCount()))

	// 4. Репозитории вне транзакций
	instances := repository.NewInstanceRepository(db)
	feed := repository.NewChangeFeedRepository(db)

	// 5. Кэш метаданных
	metadataCache := lru.NewLRU[string, json.RawMessage](
		cfg.MetadataCacheSize, nil, cfg.MetadataCacheTTL)

	// 6. Сервисы
	ingestSvc := service.NewIngestService(db, store, eventManager, cfg.MaxPartSize, logger)
	retrieveSvc := service.NewRetrieveService(instances, store, metadataCache, logger)
	searchSvc := service.NewSearchService(instances, logger)
	deleteSvc := service.NewDeleteService(db, store, eventManager, logger)
	feedSvc := service.NewChangeFeedService(feed, logger)

	// 7. Фоновый сборщик устаревших экземпляров
	ctx := context.Background()
	sweepSvc := service.NewSweepService(instances, deleteSvc, cfg.RetentionTTL, cfg.SweepInterval, logger)
	sweepSvc.Start(ctx)
	defer sweepSvc.Stop()

	// 8. Handlers
	healthHandler := handlers.NewHealthHandler(db, store)
	apiHandler := handlers.New(ingestSvc, retrieveSvc, searchSvc, deleteSvc, feedSvc, healthHandler)

	// 9. HTTP-сервер с middleware
	srv := server.New(cfg, logger, apiHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildSinks собирает приёмники событий по заданным переменным
// окружения. Ни один приёмник не задан — события не публикуются.
func buildSinks(cfg *config.Config) ([]events.Sink, error) {
	var sinks []events.Sink

	if cfg.EventWebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.EventWebhookURL))
	}
	if cfg.EventFilePath != "" {
		fileSink, err := events.NewFileSink(cfg.EventFilePath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.EventAMQPURL != "" {
		sinks = append(sinks, events.NewAMQPSink(cfg.EventAMQPURL, cfg.EventAMQPExchange))
	}
	if len(cfg.EventKafkaBrokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(cfg.EventKafkaBrokers, cfg.EventKafkaTopic))
	}
	return sinks, nil
}
