package stats

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rm-3284/mle-bench-hpc/internal/config"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
)

// KeyPrefix es el prefijo del hash de estadísticas: grader:stats:<competition>
const KeyPrefix = "grader:stats:"

// RedisStore guarda los contadores en un hash de Redis, compartido entre procesos
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore conecta a Redis con la configuración dada
func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Verificar conexión
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Redis stats store connected successfully")

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient usa un cliente ya creado
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func statsKey(competitionID string) string {
	return KeyPrefix + competitionID
}

// Record incrementa los contadores en una sola transacción
func (r *RedisStore) Record(ctx context.Context, competitionID string, verdict models.Verdict) error {
	key := statsKey(competitionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, FieldTotalRequests, 1)
		pipe.HIncrBy(ctx, key, verdictField(verdict), 1)
		pipe.HSet(ctx, key, FieldLastValidatedAt, time.Now().UTC().Unix())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record stats: %w", err)
	}
	return nil
}

// Snapshot lee los contadores (convertir strings a int64)
func (r *RedisStore) Snapshot(ctx context.Context, competitionID string) (*Stats, error) {
	values, err := r.client.HGetAll(ctx, statsKey(competitionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := &Stats{Competition: competitionID}
	stats.TotalRequests = parseInt(values[FieldTotalRequests])
	stats.TotalAccepted = parseInt(values[FieldTotalAccepted])
	stats.TotalRejected = parseInt(values[FieldTotalRejected])
	stats.TotalFaults = parseInt(values[FieldTotalFaults])

	if ts := parseInt(values[FieldLastValidatedAt]); ts > 0 {
		last := time.Unix(ts, 0).UTC()
		stats.LastValidatedAt = &last
	}

	return stats, nil
}

// Health verifica el estado de Redis
func (r *RedisStore) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close cierra la conexión con Redis
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func parseInt(value string) int64 {
	if value == "" {
		return 0
	}
	n, _ := strconv.ParseInt(value, 10, 64)
	return n
}
