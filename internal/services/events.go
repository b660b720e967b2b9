package services

// 变更事件：内容写入后通过 Redis Pub/Sub 广播，公开页面据此实时刷新。

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"madajagad/internal/metrics"
)

// ChangesChannel 为内容变更事件使用的 Redis 频道。
const ChangesChannel = "cms:changes"

// Event 描述一次内容变更。
type Event struct {
	Table  string    `json:"table"`
	Action string    `json:"action"` // create | update | delete | publish | unpublish | reorder
	IDs    []string  `json:"ids,omitempty"`
	At     time.Time `json:"at"`
}

// EventBus 基于 Redis Pub/Sub 的事件总线；rdb 为空时静默丢弃事件。
type EventBus struct{ rdb *redis.Client }

func NewEventBus(rdb *redis.Client) *EventBus { return &EventBus{rdb: rdb} }

// Publish 记录写入指标并广播事件；广播失败只记录日志，不影响写入结果。
func (b *EventBus) Publish(ctx context.Context, ev Event) {
	metrics.ContentWrites.WithLabelValues(ev.Table, ev.Action).Inc()
	if b == nil || b.rdb == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, _ := json.Marshal(ev)
	if err := b.rdb.Publish(ctx, ChangesChannel, payload).Err(); err != nil {
		log.WithError(err).WithField("table", ev.Table).Warn("publish change event")
	}
}

// Subscribe 订阅变更事件，返回事件通道与关闭函数。ctx 结束时通道关闭。
func (b *EventBus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	out := make(chan Event, 16)
	if b == nil || b.rdb == nil {
		close(out)
		return out, func() {}
	}
	sub := b.rdb.Subscribe(ctx, ChangesChannel)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() { _ = sub.Close() }
}
