// Пакет config — загрузка и валидация конфигурации DICOM Emulator
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации DICOM Emulator.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Путь к директории хранения DICOM-файлов
	DataDir string
	// Путь к файлу базы данных SQLite
	DBPath string
	// Максимальный размер одной части STOW-запроса в байтах
	MaxPartSize int64
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Таймаут публикации события в один приёмник
	EventTimeout time.Duration
	// URL вебхука для событий (опционально)
	EventWebhookURL string
	// Путь к JSONL-журналу событий (опционально)
	EventFilePath string
	// URL AMQP-брокера для событий (опционально)
	EventAMQPURL string
	// Имя AMQP exchange (при заданном EventAMQPURL)
	EventAMQPExchange string
	// Список Kafka-брокеров через запятую (опционально)
	EventKafkaBrokers []string
	// Имя Kafka-топика (при заданных брокерах)
	EventKafkaTopic string

	// Retention TTL экземпляров; 0 — сборка отключена
	RetentionTTL time.Duration
	// Интервал запуска сборщика устаревших экземпляров
	SweepInterval time.Duration

	// Ёмкость LRU-кэша метаданных (количество документов)
	MetadataCacheSize int
	// TTL записей кэша метаданных
	MetadataCacheTTL time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// DE_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("DE_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("DE_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("DE_PORT: значение %d вне диапазона 1-65535", port)
	}
	cfg.Port = port

	// DE_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("DE_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// DE_DB_PATH — обязательный
	cfg.DBPath, err = getEnvRequired("DE_DB_PATH")
	if err != nil {
		return nil, err
	}

	// DE_MAX_PART_SIZE — максимальный размер части STOW (по умолчанию 2 GB)
	maxPartSize, err := getEnvInt64("DE_MAX_PART_SIZE", 2147483648)
	if err != nil {
		return nil, fmt.Errorf("DE_MAX_PART_SIZE: %w", err)
	}
	if maxPartSize <= 0 {
		return nil, fmt.Errorf("DE_MAX_PART_SIZE: значение должно быть положительным")
	}
	cfg.MaxPartSize = maxPartSize

	// DE_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DE_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DE_LOG_LEVEL: %w", err)
	}

	// DE_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DE_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DE_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// DE_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DE_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DE_SHUTDOWN_TIMEOUT: %w", err)
	}

	// DE_EVENT_TIMEOUT — таймаут публикации в один приёмник (по умолчанию 5s)
	cfg.EventTimeout, err = getEnvDuration("DE_EVENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DE_EVENT_TIMEOUT: %w", err)
	}

	// DE_EVENT_WEBHOOK_URL — вебхук событий (опционально)
	cfg.EventWebhookURL = getEnvDefault("DE_EVENT_WEBHOOK_URL", "")

	// DE_EVENT_FILE_PATH — JSONL-журнал событий (опционально)
	cfg.EventFilePath = getEnvDefault("DE_EVENT_FILE_PATH", "")

	// DE_EVENT_AMQP_URL / DE_EVENT_AMQP_EXCHANGE — AMQP-приёмник (опционально)
	cfg.EventAMQPURL = getEnvDefault("DE_EVENT_AMQP_URL", "")
	cfg.EventAMQPExchange = getEnvDefault("DE_EVENT_AMQP_EXCHANGE", "dicom.events")
	if cfg.EventAMQPURL != "" && cfg.EventAMQPExchange == "" {
		return nil, fmt.Errorf("DE_EVENT_AMQP_EXCHANGE: обязателен при заданном DE_EVENT_AMQP_URL")
	}

	// DE_EVENT_KAFKA_BROKERS / DE_EVENT_KAFKA_TOPIC — Kafka-приёмник (опционально)
	if brokers := getEnvDefault("DE_EVENT_KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.EventKafkaBrokers = append(cfg.EventKafkaBrokers, b)
			}
		}
	}
	cfg.EventKafkaTopic = getEnvDefault("DE_EVENT_KAFKA_TOPIC", "dicom-events")
	if len(cfg.EventKafkaBrokers) > 0 && cfg.EventKafkaTopic == "" {
		return nil, fmt.Errorf("DE_EVENT_KAFKA_TOPIC: обязателен при заданных DE_EVENT_KAFKA_BROKERS")
	}

	// DE_RETENTION_TTL — retention экземпляров (по умолчанию 0, отключено)
	cfg.RetentionTTL, err = getEnvDuration("DE_RETENTION_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("DE_RETENTION_TTL: %w", err)
	}
	if cfg.RetentionTTL < 0 {
		return nil, fmt.Errorf("DE_RETENTION_TTL: значение не может быть отрицательным")
	}

	// DE_SWEEP_INTERVAL — интервал сборщика (по умолчанию 1h)
	cfg.SweepInterval, err = getEnvDuration("DE_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DE_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("DE_SWEEP_INTERVAL: значение должно быть положительным")
	}

	// DE_METADATA_CACHE_SIZE — ёмкость кэша метаданных (по умолчанию 1024)
	cfg.MetadataCacheSize, err = getEnvInt("DE_METADATA_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("DE_METADATA_CACHE_SIZE: %w", err)
	}
	if cfg.MetadataCacheSize <= 0 {
		return nil, fmt.Errorf("DE_METADATA_CACHE_SIZE: значение должно быть положительным")
	}

	// DE_METADATA_CACHE_TTL — TTL кэша метаданных (по умолчанию 5m)
	cfg.MetadataCacheTTL, err = getEnvDuration("DE_METADATA_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DE_METADATA_CACHE_TTL: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
