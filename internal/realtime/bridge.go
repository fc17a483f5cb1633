package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// Broadcaster 房间/用户级别的事件投递
type Broadcaster interface {
	Broadcast(roomID string, payload []byte) int
	NotifyUser(userID string, payload []byte) int
}

var _ Broadcaster = (*Registry)(nil)

type bridgeEnvelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room,omitempty"`
	User    string          `json:"user,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBridge 多节点部署时把房间广播经 Redis Pub/Sub 转发给其他节点的本地成员。
// 在线人数仍以各节点本地 Registry 为准。
type RedisBridge struct {
	local   *Registry
	client  *redis.Client
	channel string
	nodeID  string
}

func NewRedisBridge(local *Registry, client *redis.Client, channel string) *RedisBridge {
	return &RedisBridge{local: local, client: client, channel: channel, nodeID: uuid.NewString()}
}

var _ Broadcaster = (*RedisBridge)(nil)

func (b *RedisBridge) Broadcast(roomID string, payload []byte) int {
	n := b.local.Broadcast(roomID, payload)
	b.publish(bridgeEnvelope{Origin: b.nodeID, Room: roomID, Payload: payload})
	return n
}

func (b *RedisBridge) NotifyUser(userID string, payload []byte) int {
	n := b.local.NotifyUser(userID, payload)
	b.publish(bridgeEnvelope{Origin: b.nodeID, User: userID, Payload: payload})
	return n
}

func (b *RedisBridge) publish(env bridgeEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("bridge encode", zap.Error(err))
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, data).Err(); err != nil {
		logger.Warn("bridge publish failed", zap.String("channel", b.channel), zap.Error(err))
	}
}

// Run 订阅频道并把其他节点的事件投递给本地成员，直到 ctx 取消。
// ready 在订阅建立后关闭（可为 nil）。
func (b *RedisBridge) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(msg.Payload)
		}
	}
}

func (b *RedisBridge) deliver(raw string) {
	var env bridgeEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		logger.Warn("bridge decode", zap.Error(err))
		return
	}
	if env.Origin == b.nodeID {
		return
	}
	switch {
	case env.Room != "":
		b.local.Broadcast(env.Room, env.Payload)
	case env.User != "":
		b.local.NotifyUser(env.User, env.Payload)
	}
}

// ViewerCount 本节点人数
func (b *RedisBridge) ViewerCount(roomID string) int { return b.local.ViewerCount(roomID) }
