package messages

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Message{}))
	return conn
}

func TestRepository_ListNewestFirstWithCursor(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	clk := &clock.Fixed{At: time.Date(2024, 5, 1, 9, 0, 0, 0, clock.Zone(clock.DefaultOffsetHours))}
	receiver := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		msg := NewSystemMessage(clk, receiver, fmt.Sprintf("message %d", i))
		require.NoError(t, repo.Create(ctx, msg))
		ids = append(ids, msg.ID)
		clk.Advance(time.Minute)
	}
	require.NoError(t, repo.Create(ctx, NewSystemMessage(clk, uuid.New(), "someone else")))

	page, next, err := repo.List(ctx, listMessagesParams{ReceiverID: receiver, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	rest, next, err := repo.List(ctx, listMessagesParams{ReceiverID: receiver, Limit: 2, Cursor: next})
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)
}

func TestRepository_MarkRead(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	clk := &clock.Fixed{At: time.Date(2024, 5, 1, 9, 0, 0, 0, clock.Zone(clock.DefaultOffsetHours))}
	receiver := uuid.New()

	msg := NewSystemMessage(clk, receiver, "damage detected")
	require.NoError(t, repo.Create(ctx, msg))

	res, err := repo.MarkRead(ctx, receiver, msg.ID)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Updated)

	res, err = repo.MarkRead(ctx, receiver, msg.ID)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Updated)

	res, err = repo.MarkRead(ctx, uuid.New(), msg.ID)
	require.NoError(t, err)
	assert.False(t, res.Found)

	unread, _, err := repo.List(ctx, listMessagesParams{ReceiverID: receiver, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unread)
}
