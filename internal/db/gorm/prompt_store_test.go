//go:build fts5

package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptStore_GetPromptsBySession(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	sessions := NewSessionStore(store)
	prompts := NewPromptStore(store)
	ctx := context.Background()

	_, _, err := sessions.InitOrUpsertSession(ctx, "claude-1", "myproject", "first prompt")
	require.NoError(t, err)
	_, _, err = sessions.InitOrUpsertSession(ctx, "claude-1", "myproject", "second prompt")
	require.NoError(t, err)

	got, err := prompts.GetPromptsBySession(ctx, "claude-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].PromptNumber)
	assert.Equal(t, "first prompt", got[0].PromptText)
	assert.Equal(t, 2, got[1].PromptNumber)
	assert.Equal(t, "second prompt", got[1].PromptText)
}

func TestPromptStore_GetPromptByNumber(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	sessions := NewSessionStore(store)
	prompts := NewPromptStore(store)
	ctx := context.Background()

	_, _, err := sessions.InitOrUpsertSession(ctx, "claude-1", "alpha", "alpha prompt")
	require.NoError(t, err)
	_, _, err = sessions.InitOrUpsertSession(ctx, "claude-1", "alpha", "second prompt")
	require.NoError(t, err)

	got, err := prompts.GetPromptByNumber(ctx, "claude-1", 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second prompt", got.PromptText)
	assert.Equal(t, "alpha", got.Project)

	missing, err := prompts.GetPromptByNumber(ctx, "claude-1", 9)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPromptStore_GetPromptsByIDs(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	sessions := NewSessionStore(store)
	prompts := NewPromptStore(store)
	ctx := context.Background()

	_, _, err := sessions.InitOrUpsertSession(ctx, "claude-1", "myproject", "first")
	require.NoError(t, err)
	_, _, err = sessions.InitOrUpsertSession(ctx, "claude-1", "myproject", "second")
	require.NoError(t, err)

	all, err := prompts.GetPromptsBySession(ctx, "claude-1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Reversed id order is preserved; unknown ids are dropped.
	got, err := prompts.GetPromptsByIDs(ctx, []int64{all[1].ID, all[0].ID, 9999})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].PromptText)
	assert.Equal(t, "first", got[1].PromptText)
	assert.Equal(t, "myproject", got[0].Project)
}

func TestPromptStore_SearchFTS(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	sessions := NewSessionStore(store)
	prompts := NewPromptStore(store)
	ctx := context.Background()

	_, _, err := sessions.InitOrUpsertSession(ctx, "claude-1", "myproject", "please refactor the payment gateway integration")
	require.NoError(t, err)
	_, _, err = sessions.InitOrUpsertSession(ctx, "claude-2", "myproject", "add dark mode support")
	require.NoError(t, err)

	got, err := prompts.SearchPromptsFTS(ctx, "payment gateway", "myproject", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "claude-1", got[0].ContentSessionID)
	assert.Equal(t, "myproject", got[0].Project)

	// Other projects are excluded.
	got, err = prompts.SearchPromptsFTS(ctx, "payment gateway", "other", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
