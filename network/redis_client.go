package network

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v7"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/service"
)

// RedisClient persists file mapping records. All records live in one
// hash, keyed by the sanitized original reference, so that lookups are
// a single HGET.
type RedisClient struct {
	client  *redis.Client
	hashKey string
}

func NewRedisClient(address, password string, db int) *RedisClient {
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
		hashKey: constants.MappingHashKey,
	}
}

func (c *RedisClient) Ping() (string, error) {
	return c.client.Ping().Result()
}

// MappingGet returns the mapping record for originalID. It returns
// nil, nil if there is no record.
func (c *RedisClient) MappingGet(ctx context.Context, originalID string) (*service.FileMappingRecord, error) {
	field := service.MappingKey(originalID)
	data, err := c.client.WithContext(ctx).HGet(c.hashKey, field).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("MappingGet (%s): %s", originalID, err.Error())
	}
	record, err := service.FileMappingRecordFromJson(data)
	if err != nil {
		return nil, fmt.Errorf("MappingGet (%s): invalid record: %s", originalID, err.Error())
	}
	return record, nil
}

// MappingSave stores record, replacing any earlier record for the same
// original reference.
func (c *RedisClient) MappingSave(ctx context.Context, record *service.FileMappingRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	jsonData, err := record.ToJson()
	if err != nil {
		return err
	}
	_, err = c.client.WithContext(ctx).HSet(c.hashKey, record.StorageKey(), jsonData).Result()
	return err
}

// MappingCount returns the number of stored mapping records.
func (c *RedisClient) MappingCount(ctx context.Context) (int64, error) {
	return c.client.WithContext(ctx).HLen(c.hashKey).Result()
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}
