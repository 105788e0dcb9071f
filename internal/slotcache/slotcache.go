// Package slotcache keeps merged court slots in Redis so repeated availability
// reads skip the template, override and booking queries.
package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/models"
)

const (
	keyPrefix = "courtbook:slots"
	scanCount = 100
)

type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func New(rdb redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// NewClient connects to the configured Redis server and pings it.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func courtPattern(courtID int64) string {
	return fmt.Sprintf("%s:%d:*", keyPrefix, courtID)
}

func key(courtID int64, date string) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, courtID, date)
}

func (c *Cache) Get(ctx context.Context, courtID int64, date string) ([]models.Slot, bool, error) {
	payload, err := c.rdb.Get(ctx, key(courtID, date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached slots: %w", err)
	}

	var slots []models.Slot
	if err := json.Unmarshal(payload, &slots); err != nil {
		return nil, false, fmt.Errorf("decode cached slots: %w", err)
	}
	return slots, true, nil
}

func (c *Cache) Set(ctx context.Context, courtID int64, date string, slots []models.Slot) error {
	if slots == nil {
		slots = []models.Slot{}
	}
	payload, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	if err := c.rdb.Set(ctx, key(courtID, date), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached slots: %w", err)
	}
	return nil
}

// Invalidate drops one court's cached slots for one date.
func (c *Cache) Invalidate(ctx context.Context, courtID int64, date string) error {
	if err := c.rdb.Del(ctx, key(courtID, date)).Err(); err != nil {
		return fmt.Errorf("invalidate cached slots: %w", err)
	}
	return nil
}

// InvalidateCourt drops every cached date of a court, for template changes.
func (c *Cache) InvalidateCourt(ctx context.Context, courtID int64) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, courtPattern(courtID), scanCount).Result()
		if err != nil {
			return fmt.Errorf("scan cached slots: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("invalidate cached slots: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
