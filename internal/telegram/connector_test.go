package telegram

import (
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

func testLogger() *logger.Logger {
	log, err := logger.New(logger.Config{
		Level:  "debug",
		Format: "text",
		Output: "stdout",
	})
	if err != nil {
		panic(err)
	}
	return log
}

type connectorFixture struct {
	store     *store.Store
	connector *Connector
	notified  []string
}

func newConnectorFixture(t *testing.T) *connectorFixture {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.RegisterGroup(&store.RegisteredGroup{
		JID:     "100",
		Name:    "Main",
		Folder:  "main",
		AddedAt: store.Now(),
	}))

	f := &connectorFixture{store: st}
	groups := func() map[string]*store.RegisteredGroup {
		gs, err := st.RegisteredGroups()
		require.NoError(t, err)
		return gs
	}
	f.connector = New(Config{Enabled: true, Token: "test"}, Deps{
		Store:  st,
		Groups: groups,
		OnNewMessage: func(chatJID string) {
			f.notified = append(f.notified, chatJID)
		},
	}, testLogger())
	f.connector.botID = 555
	return f
}

func textUpdate(chatID int64, fromID int64, text string) telego.Update {
	return telego.Update{
		Message: &telego.Message{
			MessageID: 7,
			Date:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Unix(),
			Chat:      telego.Chat{ID: chatID, Type: telego.ChatTypeGroup, Title: "Main Chat"},
			From:      &telego.User{ID: fromID, FirstName: "Alice"},
			Text:      text,
		},
	}
}

func TestHandleUpdateStoresMessageForRegisteredGroup(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.connector.handleUpdate(textUpdate(100, 1, "hello there")))

	msgs, err := f.store.MessagesSince("100", "", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "7", msgs[0].ID)
	assert.Equal(t, "1", msgs[0].Sender)
	assert.Equal(t, "Alice", msgs[0].SenderName)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, "2026-03-01T10:00:00.000Z", msgs[0].Timestamp)
	assert.False(t, msgs[0].IsFromMe)
	assert.Equal(t, []string{"100"}, f.notified)

	chats, err := f.store.AllChats()
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Main Chat", chats[0].Name)
}

func TestHandleUpdateUnregisteredChatKeepsMetadataOnly(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.connector.handleUpdate(textUpdate(200, 1, "psst")))

	msgs, err := f.store.MessagesSince("200", "", "")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, f.notified)

	chats, err := f.store.AllChats()
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "200", chats[0].JID)
}

func TestHandleUpdateMarksOwnMessages(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.connector.handleUpdate(textUpdate(100, 555, "Andy: done")))

	// MessagesSince excludes bot-authored rows.
	msgs, err := f.store.MessagesSince("100", "", "")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandleUpdateIgnoresNonText(t *testing.T) {
	f := newConnectorFixture(t)

	require.NoError(t, f.connector.handleUpdate(telego.Update{}))
	require.NoError(t, f.connector.handleUpdate(telego.Update{
		Message: &telego.Message{Chat: telego.Chat{ID: 100}},
	}))

	chats, err := f.store.AllChats()
	require.NoError(t, err)
	assert.Empty(t, chats)
}
