// Package kvstore はRedis接続の生成を提供する。
package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Open はREDIS_URL形式の接続文字列からRedisクライアントを生成する。
// redis.NewClientは接続を試行しないため、疎通確認にはPingを使用すること。
func Open(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ping はRedisへの疎通を確認する。
func Ping(ctx context.Context, client redis.Cmdable) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
