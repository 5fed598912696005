package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"fleet-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Payment statistics keys. Snapshots are stored per generation; bumping
// the generation counter orphans every snapshot written before it.
const (
	PaymentStatisticsGenKey    = "payments:statistics:gen"
	paymentStatisticsKeyFormat = "payments:statistics:%d"
)

// StatisticsTTL bounds how long a statistics snapshot may be served
const StatisticsTTL = 30 * time.Second

var client *redis.Client

// Init initializes the Redis connection. On failure the client is left nil
// and every cache call degrades to a miss.
func Init(addr, password string, db int) error {
	client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the failed client and set to nil for graceful degradation
		client.Close()
		client = nil
		return err
	}
	return nil
}

// GetClient returns the Redis client
func GetClient() *redis.Client {
	return client
}

// SetClient swaps the client, used by tests and by Close
func SetClient(c *redis.Client) {
	client = c
}

// Close releases the connection
func Close() {
	if client == nil {
		return
	}
	client.Close()
	client = nil
}

// ============================================
// Generic Cache Functions
// ============================================

// GetCached returns cached data for a key
func GetCached(ctx context.Context, key string) ([]byte, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetCached stores data with a TTL
func SetCached(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if client == nil {
		return
	}
	client.Set(ctx, key, data, ttl)
}

// InvalidateKeys removes specific cache keys
func InvalidateKeys(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	client.Del(ctx, keys...)
}

// IsHealthy returns true if Redis connection is working
func IsHealthy() bool {
	if client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

// ============================================
// Payment Statistics Cache
// ============================================

// PaymentStatisticsCache serves dashboard statistics from Redis. Every
// invalidation moves the generation, so a snapshot computed before a
// change can only ever land under a generation nobody reads anymore.
type PaymentStatisticsCache struct {
	TTL time.Duration
}

func NewPaymentStatisticsCache() *PaymentStatisticsCache {
	return &PaymentStatisticsCache{TTL: StatisticsTTL}
}

func statisticsKey(generation uint64) string {
	return fmt.Sprintf(paymentStatisticsKeyFormat, generation)
}

// Generation returns the current epoch; ok is false when Redis is unavailable
func (c *PaymentStatisticsCache) Generation(ctx context.Context) (uint64, bool) {
	if client == nil {
		return 0, false
	}
	gen, err := client.Get(ctx, PaymentStatisticsGenKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	return gen, true
}

func (c *PaymentStatisticsCache) GetStatistics(ctx context.Context, generation uint64) (*models.PaymentStatistics, bool) {
	key := statisticsKey(generation)
	data, ok := GetCached(ctx, key)
	if !ok {
		return nil, false
	}
	stats, err := decodeStatistics(data)
	if err != nil {
		log.Printf("[Cache] Discarding unreadable statistics entry: %v", err)
		InvalidateKeys(ctx, key)
		return nil, false
	}
	return stats, true
}

func (c *PaymentStatisticsCache) SetStatistics(ctx context.Context, generation uint64, stats *models.PaymentStatistics) {
	if client == nil {
		return
	}
	data, err := encodeStatistics(stats)
	if err != nil {
		return
	}
	SetCached(ctx, statisticsKey(generation), data, c.TTL)
}

// InvalidateStatistics starts a new generation. Old snapshots expire on their TTL.
func (c *PaymentStatisticsCache) InvalidateStatistics(ctx context.Context) {
	if client == nil {
		return
	}
	if err := client.Incr(ctx, PaymentStatisticsGenKey).Err(); err != nil {
		log.Printf("[Cache] Failed to invalidate statistics: %v", err)
	}
}

func encodeStatistics(stats *models.PaymentStatistics) ([]byte, error) {
	return json.Marshal(stats)
}

func decodeStatistics(data []byte) (*models.PaymentStatistics, error) {
	var stats models.PaymentStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
