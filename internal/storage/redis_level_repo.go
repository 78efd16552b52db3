package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/logging"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr        string        // Адрес Redis сервера
	Password    string        // Пароль (пустой если не требуется)
	DB          int           // Номер базы данных
	KeyPrefix   string        // Префикс для ключей
	DialTimeout time.Duration // Таймаут подключения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:        "localhost:6379",
		KeyPrefix:   "blockroll:",
		DialTimeout: 5 * time.Second,
	}
}

// RedisLevelRepo хранит уровни в Redis: JSON по ключу <prefix>level:<id>
// и множество ID в <prefix>levels.
type RedisLevelRepo struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisLevelRepo подключается к Redis и проверяет соединение
func NewRedisLevelRepo(config *RedisConfig) (*RedisLevelRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Connected to Redis at %s", config.Addr)
	return &RedisLevelRepo{client: client, keyPrefix: config.KeyPrefix}, nil
}

func (r *RedisLevelRepo) levelKey(id string) string { return r.keyPrefix + "level:" + id }
func (r *RedisLevelRepo) indexKey() string          { return r.keyPrefix + "levels" }

func (r *RedisLevelRepo) Get(ctx context.Context, id string) (*level.Level, error) {
	data, err := r.client.Get(ctx, r.levelKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("level %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var lvl level.Level
	if err := json.Unmarshal(data, &lvl); err != nil {
		return nil, fmt.Errorf("ошибка десериализации уровня %s: %w", id, err)
	}
	return &lvl, nil
}

func (r *RedisLevelRepo) List(ctx context.Context) ([]*level.Level, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*level.Level{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.levelKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*level.Level, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Ключ удален, а индекс еще нет
			logging.Warn("redis: уровень %s есть в индексе, но отсутствует", ids[i])
			continue
		}
		var lvl level.Level
		if err := json.Unmarshal([]byte(s), &lvl); err != nil {
			return nil, fmt.Errorf("ошибка десериализации уровня %s: %w", ids[i], err)
		}
		out = append(out, &lvl)
	}
	sortLevels(out)
	return out, nil
}

func (r *RedisLevelRepo) Save(ctx context.Context, lvl *level.Level) error {
	if err := lvl.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(lvl)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.levelKey(lvl.ID), data, 0)
	pipe.SAdd(ctx, r.indexKey(), lvl.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisLevelRepo) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.levelKey(id))
	pipe.SRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return fmt.Errorf("level %q: %w", id, ErrNotFound)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisLevelRepo) Close() error {
	return r.client.Close()
}
