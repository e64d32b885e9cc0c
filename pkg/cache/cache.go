package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL 상수 정의
const (
	TTLAccount = 10 * time.Minute // 계정 공개 정보
	TTLDefault = 5 * time.Minute
)

// 캐시 키 접두사
const (
	PrefixAccount = "store:account:"
)

// Service Redis 캐시 서비스 인터페이스
type Service interface {
	// 기본 캐시 연산
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// 계정 캐시
	GetAccount(ctx context.Context, accountID string, dest interface{}) error
	SetAccount(ctx context.Context, accountID string, data interface{}) error
	InvalidateAccount(ctx context.Context, accountID string) error

	// 유틸리티
	IsAvailable() bool
	Ping(ctx context.Context) error
}

// redisCache Redis 기반 캐시 구현
type redisCache struct {
	client *redis.Client
}

// NewService 새로운 캐시 서비스 생성. client가 nil이면 모든 연산이 no-op
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

// IsAvailable Redis 연결 가능 여부
func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

// Ping Redis 연결 테스트
func (c *redisCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return c.client.Ping(ctx).Err()
}

// Get 캐시에서 값 조회
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return fmt.Errorf("redis not available")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Set 캐시에 값 저장
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil // Redis 없으면 무시
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete 캐시 삭제
func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Exists 캐시 존재 여부 확인
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// ========================================
// 계정 캐시
// ========================================

// GetAccount 계정 캐시 조회
func (c *redisCache) GetAccount(ctx context.Context, accountID string, dest interface{}) error {
	return c.Get(ctx, PrefixAccount+accountID, dest)
}

// SetAccount 계정 캐시 저장
func (c *redisCache) SetAccount(ctx context.Context, accountID string, data interface{}) error {
	return c.Set(ctx, PrefixAccount+accountID, data, TTLAccount)
}

// InvalidateAccount 계정 캐시 무효화
func (c *redisCache) InvalidateAccount(ctx context.Context, accountID string) error {
	return c.Delete(ctx, PrefixAccount+accountID)
}
