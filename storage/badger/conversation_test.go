package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/pagewise/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turn(conversationID string, role core.Role, content string) *core.ConversationTurn {
	return &core.ConversationTurn{ConversationID: conversationID, Role: role, Content: content}
}

func TestAppendAssignsIndexAndTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conversations := store.Conversations()

	added, err := conversations.Append(ctx,
		turn("conv1", core.RoleUser, "What is Alpha?"),
		turn("conv1", core.RoleAssistant, "The first paragraph."),
	)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, int64(0), added[0].Index)
	assert.Equal(t, int64(1), added[1].Index)
	assert.True(t, added[1].CreatedAt.After(added[0].CreatedAt))

	more, err := conversations.Append(ctx, turn("conv1", core.RoleUser, "And Beta?"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), more[0].Index)
	assert.True(t, more[0].CreatedAt.After(added[1].CreatedAt))
}

func TestAppendValidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Conversations().Append(ctx, turn("", core.RoleUser, "x"))
	assert.ErrorIs(t, err, core.ErrEmptyConversationID)

	_, err = store.Conversations().Append(ctx, turn("conv1", core.RoleUser, "ok"), turn("conv1", "system", "x"))
	assert.ErrorIs(t, err, core.ErrInvalidRole)

	recent, err := store.Conversations().Recent(ctx, "conv1", 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "a rejected batch writes nothing")
}

func TestRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conversations := store.Conversations()

	for i := 0; i < 5; i++ {
		_, err := conversations.Append(ctx, turn("conv1", core.RoleUser, fmt.Sprintf("message %d", i)))
		require.NoError(t, err)
	}
	_, err := conversations.Append(ctx, turn("conv2", core.RoleUser, "other"))
	require.NoError(t, err)

	recent, err := conversations.Recent(ctx, "conv1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "message 2", recent[0].Content)
	assert.Equal(t, "message 3", recent[1].Content)
	assert.Equal(t, "message 4", recent[2].Content)

	all, err := conversations.Recent(ctx, "conv1", 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := conversations.Recent(ctx, "conv1", 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	unknown, err := conversations.Recent(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestAppendMixedConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conversations := store.Conversations()

	_, err := conversations.Append(ctx,
		turn("a", core.RoleUser, "a0"),
		turn("b", core.RoleUser, "b0"),
		turn("a", core.RoleAssistant, "a1"),
	)
	require.NoError(t, err)

	a, err := conversations.Recent(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, int64(1), a[1].Index)

	b, err := conversations.Recent(ctx, "b", 10)
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, int64(0), b[0].Index)
}

func TestConcurrentAppendsKeepEveryTurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conversations := store.Conversations()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := conversations.Append(ctx,
				turn("conv1", core.RoleUser, fmt.Sprintf("q%d", i)),
				turn("conv1", core.RoleAssistant, fmt.Sprintf("a%d", i)),
			)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, err := conversations.Recent(ctx, "conv1", 100)
	require.NoError(t, err)
	require.Len(t, turns, writers*2)
	for i, tr := range turns {
		assert.Equal(t, int64(i), tr.Index)
		if i > 0 {
			assert.True(t, tr.CreatedAt.After(turns[i-1].CreatedAt))
		}
	}
	// each batch stays contiguous
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, core.RoleUser, turns[i].Role)
		assert.Equal(t, core.RoleAssistant, turns[i+1].Role)
		assert.Equal(t, turns[i].Content[1:], turns[i+1].Content[1:])
	}
}

func TestDeleteConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conversations := store.Conversations()

	_, err := conversations.Append(ctx, turn("conv1", core.RoleUser, "x"), turn("conv2", core.RoleUser, "y"))
	require.NoError(t, err)

	require.NoError(t, conversations.Delete(ctx, "conv1"))
	require.NoError(t, conversations.Delete(ctx, "never-existed"))

	gone, err := conversations.Recent(ctx, "conv1", 10)
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := conversations.Recent(ctx, "conv2", 10)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	restarted, err := conversations.Append(ctx, turn("conv1", core.RoleUser, "again"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), restarted[0].Index)
}
