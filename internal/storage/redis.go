package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"edge-gatekeeper/internal/domain"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix prefixa todas as chaves do gatekeeper no Redis
const KeyPrefix = "gatekeeper:rate_limit:"

// admitScript executa a janela fixa de forma atômica no Redis.
// Retorna {admitido(0|1), count, window_start_ms}.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local start = tonumber(redis.call('HGET', key, 'window_start'))
local count = tonumber(redis.call('HGET', key, 'count'))

if (not start) or (not count) or (now - start > window) then
	redis.call('HSET', key, 'count', 1, 'window_start', now)
	redis.call('PEXPIRE', key, window + 1000)
	return {1, 1, now}
end

if count >= limit then
	return {0, count, start}
end

count = redis.call('HINCRBY', key, 'count', 1)
return {1, count, start}
`)

// RedisStorage implementa domain.RateLimiterStorage usando Redis.
// A quota é compartilhada entre instâncias e as chaves expiram sozinhas.
type RedisStorage struct {
	client redis.Cmdable
	logger domain.Logger
}

// NewRedisStorage cria uma nova instância do RedisStorage
func NewRedisStorage(host, port, password string, db int, logger domain.Logger) (*RedisStorage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,

		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger != nil {
		logger.Info("Redis connection established", map[string]interface{}{
			"host": host,
			"port": port,
			"db":   db,
		})
	}

	return NewRedisStorageWithClient(rdb, logger), nil
}

// NewRedisStorageWithClient cria o storage sobre um cliente já configurado
func NewRedisStorageWithClient(client redis.Cmdable, logger domain.Logger) *RedisStorage {
	return &RedisStorage{
		client: client,
		logger: logger,
	}
}

// Admit executa o script de admissão
func (r *RedisStorage) Admit(ctx context.Context, identity string, limit int, window time.Duration, now time.Time) (*domain.RateLimitRecord, bool, error) {
	start := time.Now()
	key := BuildKey(identity)

	result, err := admitScript.Run(ctx, r.client, []string{key}, limit, window.Milliseconds(), now.UnixMilli()).Result()
	if err != nil {
		r.logStorageOperation("ADMIT", key, false, time.Since(start).Seconds()*1000, err)
		return nil, false, fmt.Errorf("failed to admit key %s: %w", key, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		err := fmt.Errorf("invalid admit result for key %s", key)
		r.logStorageOperation("ADMIT", key, false, time.Since(start).Seconds()*1000, err)
		return nil, false, err
	}

	admitted, err := toInt64(values[0])
	if err != nil {
		return nil, false, fmt.Errorf("invalid admitted flag for key %s: %w", key, err)
	}
	count, err := toInt64(values[1])
	if err != nil {
		return nil, false, fmt.Errorf("invalid count for key %s: %w", key, err)
	}
	windowStartMs, err := toInt64(values[2])
	if err != nil {
		return nil, false, fmt.Errorf("invalid window start for key %s: %w", key, err)
	}

	r.logStorageOperation("ADMIT", key, true, time.Since(start).Seconds()*1000, nil)
	return &domain.RateLimitRecord{
		Identity:    identity,
		Count:       int(count),
		WindowStart: time.UnixMilli(windowStartMs),
	}, admitted == 1, nil
}

// Get recupera o registro de uma identidade
func (r *RedisStorage) Get(ctx context.Context, identity string) (*domain.RateLimitRecord, error) {
	start := time.Now()
	key := BuildKey(identity)

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		r.logStorageOperation("GET", key, false, time.Since(start).Seconds()*1000, err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if len(fields) == 0 {
		r.logStorageOperation("GET", key, true, time.Since(start).Seconds()*1000, nil)
		return nil, nil
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, fmt.Errorf("invalid count for key %s: %w", key, err)
	}
	windowStartMs, err := strconv.ParseInt(fields["window_start"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid window start for key %s: %w", key, err)
	}

	r.logStorageOperation("GET", key, true, time.Since(start).Seconds()*1000, nil)
	return &domain.RateLimitRecord{
		Identity:    identity,
		Count:       count,
		WindowStart: time.UnixMilli(windowStartMs),
	}, nil
}

// Reset limpa os dados de uma identidade
func (r *RedisStorage) Reset(ctx context.Context, identity string) error {
	start := time.Now()
	key := BuildKey(identity)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logStorageOperation("RESET", key, false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("failed to reset key %s: %w", key, err)
	}

	r.logStorageOperation("RESET", key, true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Health verifica se o storage está saudável
func (r *RedisStorage) Health(ctx context.Context) error {
	start := time.Now()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logStorageOperation("HEALTH", "ping", false, time.Since(start).Seconds()*1000, err)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.logStorageOperation("HEALTH", "ping", true, time.Since(start).Seconds()*1000, nil)
	return nil
}

// Close fecha a conexão com o storage
func (r *RedisStorage) Close() error {
	if client, ok := r.client.(*redis.Client); ok {
		if err := client.Close(); err != nil {
			if r.logger != nil {
				r.logger.Error("Failed to close Redis connection", err, nil)
			}
			return err
		}
		if r.logger != nil {
			r.logger.Info("Redis connection closed", nil)
		}
	}
	return nil
}

// GetStats retorna estatísticas do pool de conexões
func (r *RedisStorage) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"type": "redis",
	}
	if client, ok := r.client.(*redis.Client); ok {
		pool := client.PoolStats()
		stats["hits"] = pool.Hits
		stats["misses"] = pool.Misses
		stats["timeouts"] = pool.Timeouts
		stats["total_conns"] = pool.TotalConns
		stats["idle_conns"] = pool.IdleConns
	}
	return stats
}

// logStorageOperation registra operações de storage
func (r *RedisStorage) logStorageOperation(operation, key string, success bool, latency float64, err error) {
	if r.logger == nil {
		return
	}
	if success {
		r.logger.Debug("Storage operation completed", map[string]interface{}{
			"operation": operation,
			"key":       key,
			"latency":   latency,
		})
	} else {
		r.logger.Error("Storage operation failed", err, map[string]interface{}{
			"operation": operation,
			"key":       key,
			"latency":   latency,
		})
	}
}

// BuildKey constrói a chave Redis de uma identidade
func BuildKey(identity string) string {
	return KeyPrefix + identity
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return strconv.ParseInt(fmt.Sprint(v), 10, 64)
	}
}
