package telegram

import (
	"context"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSyncGroupMetadataUpdatesNames(t *testing.T) {
	f := newConnectorFixture(t)

	mockBot := &MockBot{}
	mockBot.On("GetChat", mock.Anything, mock.MatchedBy(func(p *telego.GetChatParams) bool {
		return p.ChatID.ID == 100
	})).Return(&telego.ChatFullInfo{ID: 100, Title: "Renamed Chat"}, nil).Once()
	f.connector.bot = mockBot

	require.NoError(t, f.connector.SyncGroupMetadata(context.Background(), true))
	mockBot.AssertExpectations(t)

	chats, err := f.store.AllChats()
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Renamed Chat", chats[0].Name)

	marker, err := f.store.RouterState("last_group_sync")
	require.NoError(t, err)
	assert.NotEmpty(t, marker)
}

func TestSyncGroupMetadataCachesForADay(t *testing.T) {
	f := newConnectorFixture(t)

	mockBot := &MockBot{}
	mockBot.On("GetChat", mock.Anything, mock.Anything).
		Return(&telego.ChatFullInfo{ID: 100, Title: "Main Chat"}, nil)
	f.connector.bot = mockBot

	require.NoError(t, f.connector.SyncGroupMetadata(context.Background(), true))
	require.NoError(t, f.connector.SyncGroupMetadata(context.Background(), false))
	mockBot.AssertNumberOfCalls(t, "GetChat", 1)

	// Force bypasses the freshness check.
	require.NoError(t, f.connector.SyncGroupMetadata(context.Background(), true))
	mockBot.AssertNumberOfCalls(t, "GetChat", 2)
}

func TestSyncGroupMetadataSurvivesFetchErrors(t *testing.T) {
	f := newConnectorFixture(t)

	mockBot := &MockBot{}
	mockBot.On("GetChat", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)
	f.connector.bot = mockBot

	require.NoError(t, f.connector.SyncGroupMetadata(context.Background(), true))

	marker, err := f.store.RouterState("last_group_sync")
	require.NoError(t, err)
	assert.NotEmpty(t, marker)
}
