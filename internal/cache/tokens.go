package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	blacklistPrefix = "blacklist:"
	wsTicketFormat  = "ws_ticket:%s"

	// WSTicketTTL is how long a WebSocket ticket stays redeemable.
	WSTicketTTL = 30 * time.Second
)

// ErrTicketInvalid is returned when a WebSocket ticket is unknown, expired or already used.
var ErrTicketInvalid = errors.New("invalid or expired WebSocket ticket")

// ErrUnavailable is returned by operations that need Redis when none is configured.
var ErrUnavailable = errors.New("redis unavailable")

// RevokeToken blacklists jti until ttl elapses.
func (s *Store) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if !s.Enabled() {
		return ErrUnavailable
	}
	if jti == "" || ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, blacklistPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether jti has been blacklisted.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if !s.Enabled() || jti == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IssueTicket stores a single-use WebSocket ticket for userID.
func (s *Store) IssueTicket(ctx context.Context, userID uint) (string, error) {
	if !s.Enabled() {
		return "", ErrUnavailable
	}
	ticket := uuid.NewString()
	key := fmt.Sprintf(wsTicketFormat, ticket)
	if err := s.rdb.Set(ctx, key, strconv.FormatUint(uint64(userID), 10), WSTicketTTL).Err(); err != nil {
		return "", err
	}
	return ticket, nil
}

// ConsumeTicket redeems ticket once and returns its user ID.
func (s *Store) ConsumeTicket(ctx context.Context, ticket string) (uint, error) {
	if !s.Enabled() {
		return 0, ErrUnavailable
	}
	if ticket == "" {
		return 0, ErrTicketInvalid
	}
	raw, err := s.rdb.GetDel(ctx, fmt.Sprintf(wsTicketFormat, ticket)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTicketInvalid
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, ErrTicketInvalid
	}
	return uint(id), nil
}
