package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
// Нулевые поля заменяются значениями из окружения или значениями по умолчанию
// в геттерах, поэтому пустой Config тоже рабочий.
type Config struct {
	Game      GameConfig      `yaml:"game"`
	Levels    LevelsConfig    `yaml:"levels"`
	Storage   StorageConfig   `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type GameConfig struct {
	RotationSpeed float64 `yaml:"rotation_speed"` // градусов в секунду
	TickRate      int     `yaml:"tick_rate"`      // тиков в секунду
	QueueSize     int     `yaml:"queue_size"`
}

// Бэкенды репозитория уровней
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMaria  = "maria"
)

type LevelsConfig struct {
	Dir     string `yaml:"dir"`     // каталог YAML-уровней для импорта
	Backend string `yaml:"backend"` // memory | file | badger | redis | maria
}

type StorageConfig struct {
	BadgerPath string `yaml:"badger_path"`
	RedisAddr  string `yaml:"redis_addr"`
	MariaDSN   string `yaml:"maria_dsn"`
	MongoURI   string `yaml:"mongo_uri"` // если задан, записи пишутся в MongoDB
	CacheTTL   int    `yaml:"cache_ttl_seconds"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто - шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // host:port OTLP HTTP
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getIntWithEnvFallback(s.RESTPort, "BLOCKROLL_REST_PORT", 8088)
}

// GetTickRate возвращает частоту тиков
func (g *GameConfig) GetTickRate() int {
	return getIntWithEnvFallback(g.TickRate, "BLOCKROLL_TICK_RATE", 20)
}

// GetRotationSpeed возвращает скорость поворота в градусах в секунду
func (g *GameConfig) GetRotationSpeed() float64 {
	if g.RotationSpeed > 0 {
		return g.RotationSpeed
	}
	if envVal := os.Getenv("BLOCKROLL_ROTATION_SPEED"); envVal != "" {
		if v, err := strconv.ParseFloat(envVal, 64); err == nil && v > 0 {
			return v
		}
	}
	return 180
}

// GetDir возвращает каталог уровней
func (l *LevelsConfig) GetDir() string {
	return getStringWithEnvFallback(l.Dir, "BLOCKROLL_LEVELS_DIR", "assets/levels")
}

// GetBackend возвращает бэкенд репозитория уровней
func (l *LevelsConfig) GetBackend() string {
	return getStringWithEnvFallback(l.Backend, "BLOCKROLL_LEVELS_BACKEND", BackendMemory)
}

// GetBadgerPath возвращает каталог Badger
func (s *StorageConfig) GetBadgerPath() string {
	return getStringWithEnvFallback(s.BadgerPath, "BLOCKROLL_BADGER_PATH", "data/badger")
}

// GetRedisAddr возвращает адрес Redis
func (s *StorageConfig) GetRedisAddr() string {
	return getStringWithEnvFallback(s.RedisAddr, "REDIS_ADDR", "localhost:6379")
}

// GetMariaDSN возвращает DSN MariaDB
func (s *StorageConfig) GetMariaDSN() string {
	return getStringWithEnvFallback(s.MariaDSN, "MYSQL_DSN", "")
}

// GetMongoURI возвращает URI MongoDB
func (s *StorageConfig) GetMongoURI() string {
	return getStringWithEnvFallback(s.MongoURI, "MONGO_URI", "")
}

// GetCacheTTL возвращает срок жизни уровня в кеше перед redis/maria
func (s *StorageConfig) GetCacheTTL() time.Duration {
	return time.Duration(getIntWithEnvFallback(s.CacheTTL, "BLOCKROLL_CACHE_TTL_SECONDS", 300)) * time.Second
}

// GetURL возвращает адрес NATS; пусто - шина в памяти
func (e *EventBusConfig) GetURL() string {
	return getStringWithEnvFallback(e.URL, "NATS_URL", "")
}

// GetRetention возвращает срок хранения событий в JetStream
func (e *EventBusConfig) GetRetention() time.Duration {
	return time.Duration(getIntWithEnvFallback(e.Retention, "BLOCKROLL_EVENT_RETENTION_HOURS", 24)) * time.Hour
}

// GetLevel возвращает уровень логирования
func (l *LoggingConfig) GetLevel() string {
	return getStringWithEnvFallback(l.Level, "BLOCKROLL_LOG_LEVEL", "info")
}

// GetDir возвращает каталог логов
func (l *LoggingConfig) GetDir() string {
	return getStringWithEnvFallback(l.Dir, "BLOCKROLL_LOG_DIR", "logs")
}

// GetEndpoint возвращает адрес OTLP коллектора
func (t *TelemetryConfig) GetEndpoint() string {
	return getStringWithEnvFallback(t.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configVal int, envVar string, defaultVal int) int {
	// Если значение задано в конфиге и больше 0, используем его
	if configVal > 0 {
		return configVal
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	// Используем дефолтное значение
	return defaultVal
}

func getStringWithEnvFallback(configVal, envVar, defaultVal string) string {
	if configVal != "" {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultVal
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV BLOCKROLL_CONFIG,
// а без него возвращает пустой Config (все значения по умолчанию).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BLOCKROLL_CONFIG")
		if path == "" {
			return &Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}
