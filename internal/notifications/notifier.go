// Package notifications delivers post lifecycle events to connected clients.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"quill/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "notifications:user:"
	// ModerationChannel carries events for admins and moderators.
	ModerationChannel = "notifications:moderation"
)

// Notifier publishes lifecycle events into Redis channels. Without Redis it
// delivers straight to a local hub, if one is attached.
type Notifier struct {
	rdb   *redis.Client
	local *Hub
}

// NewNotifier creates a new Notifier instance using the provided Redis client, which may be nil.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// WithLocalHub attaches a hub used for delivery when Redis is not configured.
func (n *Notifier) WithLocalHub(h *Hub) *Notifier {
	n.local = h
	return n
}

// PublishUser sends a notification payload to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n.rdb == nil {
		if n.local != nil {
			n.local.Broadcast(userID, payload)
		}
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// PublishModeration sends a notification payload to every connected moderator.
func (n *Notifier) PublishModeration(ctx context.Context, payload string) error {
	if n.rdb == nil {
		if n.local != nil {
			n.local.BroadcastModerators(payload)
		}
		return nil
	}
	return n.rdb.Publish(ctx, ModerationChannel, payload).Err()
}

// PublishPostEvent routes e to the author and, for submissions, to the moderation channel.
func (n *Notifier) PublishPostEvent(ctx context.Context, e PostEvent) error {
	if n == nil {
		return nil
	}
	payload, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	if err := n.PublishUser(ctx, e.AuthorID, payload); err != nil {
		observability.RecordRedisError("publish")
		return fmt.Errorf("publish %s to author: %w", e.Type, err)
	}
	if e.Type == EventPostSubmitted {
		if err := n.PublishModeration(ctx, payload); err != nil {
			observability.RecordRedisError("publish")
			return fmt.Errorf("publish %s to moderators: %w", e.Type, err)
		}
	}
	return nil
}

// StartSubscriber subscribes to user and moderation channels and calls onMessage
// for each incoming message until ctx is cancelled.
func (n *Notifier) StartSubscriber(ctx context.Context, onMessage func(channel string, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", ModerationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.Logger.Error("panic in notification subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// parseUserChannel extracts the user id from a user channel name.
func parseUserChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
