// Package notification delivers user notifications without blocking the
// caller. Delivery is best effort: failures are logged, never returned.
package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hyperion/internal/config"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

type Message struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	ActionModule string `json:"action_module"`
}

type Notifier interface {
	NotifyUser(ctx context.Context, userID string, msg Message)
}

type envelope struct {
	UserIDs []string `json:"user_ids"`
	Message
	SentAt string `json:"sent_at"`
}

// Dispatcher publishes notifications on a redis channel consumed by the push
// gateway. Without redis it only logs them.
type Dispatcher struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(cfg config.Config, client *redis.Client, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client:  client,
		channel: cfg.NotificationChannel,
		log:     log.Named("notification"),
	}
}

func (d *Dispatcher) NotifyUser(ctx context.Context, userID string, msg Message) {
	if d == nil || userID == "" {
		return
	}
	if d.client == nil {
		d.log.Info("notification",
			zap.String("user_id", userID),
			zap.String("title", msg.Title),
			zap.String("action_module", msg.ActionModule),
		)
		return
	}

	payload, err := json.Marshal(envelope{
		UserIDs: []string{userID},
		Message: msg,
		SentAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		d.log.Warn("encode notification failed", zap.Error(err))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := d.client.Publish(pubCtx, d.channel, payload).Err(); err != nil {
			d.log.Warn("publish notification failed",
				zap.String("user_id", userID),
				zap.String("channel", d.channel),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight publishes are done.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
