// Package cache Redis 读缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// ChatHistory 直播间最近消息的 cache-aside 缓存，每个房间一个 Redis List（时间升序）。
// 写入前内容已脱敏。每个房间另有一个版本号，发送/删除时递增；
// 回填只在版本号与读库前一致时生效，读库期间发生的删除不会被旧数据覆盖。
type ChatHistory struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	stale  atomic.Int64
}

// versionTTL 远大于列表 TTL，版本号过期只会让回填多失败一次
const versionTTL = 24 * time.Hour

var errStaleFill = errors.New("chat history changed during fill")

func NewChatHistory(client *redis.Client, ttl time.Duration) *ChatHistory {
	return &ChatHistory{client: client, ttl: ttl}
}

func historyKey(liveStreamID string) string {
	return fmt.Sprintf("chat:history:%s", liveStreamID)
}

func versionKey(liveStreamID string) string {
	return fmt.Sprintf("chat:history:%s:ver", liveStreamID)
}

// Version 读库前调用，结果交给 Set。读取失败时 ok=false，调用方不应回填。
func (c *ChatHistory) Version(ctx context.Context, liveStreamID string) (int64, bool) {
	v, err := c.client.Get(ctx, versionKey(liveStreamID)).Int64()
	if err != nil && err != redis.Nil {
		logger.Warn("chat history version read failed", zap.String("live", liveStreamID), zap.Error(err))
		return 0, false
	}
	return v, true
}

// Get 取最近 limit 条；未命中返回 ok=false
func (c *ChatHistory) Get(ctx context.Context, liveStreamID string, limit int) ([]*model.ChatMessage, bool) {
	raw, err := c.client.LRange(ctx, historyKey(liveStreamID), int64(-limit), -1).Result()
	if err != nil || len(raw) == 0 {
		if err != nil && err != redis.Nil {
			logger.Warn("chat history cache read failed", zap.String("live", liveStreamID), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	out := make([]*model.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			c.misses.Add(1)
			return nil, false
		}
		out = append(out, &m)
	}
	c.hits.Add(1)
	return out, true
}

// Set 整体替换房间缓存；version 必须是读库前 Version 的返回值。
// 版本号已变化（期间有发送或删除）时放弃写入，返回 false。
func (c *ChatHistory) Set(ctx context.Context, liveStreamID string, msgs []*model.ChatMessage, version int64) bool {
	if len(msgs) == 0 {
		return false
	}
	items := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return false
		}
		items = append(items, payload)
	}

	key, verKey := historyKey(liveStreamID), versionKey(liveStreamID)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.RPush(ctx, key, items...)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, verKey)

	switch {
	case err == nil:
		return true
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.stale.Add(1)
		logger.Debug("chat history fill skipped", zap.String("live", liveStreamID))
	default:
		logger.Warn("chat history cache write failed", zap.String("live", liveStreamID), zap.Error(err))
	}
	return false
}

// Invalidate 新消息或删除后失效：递增版本号并删除列表
func (c *ChatHistory) Invalidate(ctx context.Context, liveStreamID string) {
	verKey := versionKey(liveStreamID)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, verKey)
	pipe.Expire(ctx, verKey, versionTTL)
	pipe.Del(ctx, historyKey(liveStreamID))
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("chat history cache invalidate failed", zap.String("live", liveStreamID), zap.Error(err))
	}
}

// Counters 命中/未命中次数
func (c *ChatHistory) Counters() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// StaleFills 因并发修改而放弃的回填次数
func (c *ChatHistory) StaleFills() int64 { return c.stale.Load() }
