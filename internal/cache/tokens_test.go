package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RevokeToken(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)

	revoked, err := store.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.RevokeToken(ctx, "abc", time.Hour))
	revoked, err = store.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, time.Hour, mr.TTL("blacklist:abc"))

	mr.FastForward(2 * time.Hour)
	revoked, err = store.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestStore_TicketsAreSingleUse(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)

	ticket, err := store.IssueTicket(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, WSTicketTTL, mr.TTL("ws_ticket:"+ticket))

	userID, err := store.ConsumeTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, uint(12), userID)

	_, err = store.ConsumeTicket(ctx, ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)

	_, err = store.ConsumeTicket(ctx, "")
	assert.ErrorIs(t, err, ErrTicketInvalid)
}

func TestStore_TicketsExpire(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)

	ticket, err := store.IssueTicket(ctx, 3)
	require.NoError(t, err)

	mr.FastForward(WSTicketTTL + time.Second)
	_, err = store.ConsumeTicket(ctx, ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)
}
