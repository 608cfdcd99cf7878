package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterGroupRoundtrip(t *testing.T) {
	s := testStore(t)

	timeout := int64(600000)
	g := &RegisteredGroup{
		JID:            "123@g.us",
		Name:           "Family",
		Folder:         "family",
		TriggerPattern: `^@?Andy\b`,
		AddedAt:        Now(),
		ContainerConfig: &GroupContainerConfig{
			AdditionalMounts: []GroupMount{
				{HostPath: "~/photos", ContainerPath: "photos", ReadOnly: true},
			},
			TimeoutMs: &timeout,
		},
		RequiresTrigger: true,
	}
	require.NoError(t, s.RegisterGroup(g))

	got, err := s.GroupByJID("123@g.us")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "family", got.Folder)
	assert.True(t, got.RequiresTrigger)
	require.NotNil(t, got.ContainerConfig)
	require.Len(t, got.ContainerConfig.AdditionalMounts, 1)
	assert.Equal(t, "~/photos", got.ContainerConfig.AdditionalMounts[0].HostPath)
	assert.True(t, got.ContainerConfig.AdditionalMounts[0].ReadOnly)
	require.NotNil(t, got.ContainerConfig.TimeoutMs)
	assert.Equal(t, int64(600000), *got.ContainerConfig.TimeoutMs)

	byFolder, err := s.GroupByFolder("family")
	require.NoError(t, err)
	require.NotNil(t, byFolder)
	assert.Equal(t, "123@g.us", byFolder.JID)
}

func TestRegisterGroupReplace(t *testing.T) {
	s := testStore(t)

	g := &RegisteredGroup{
		JID: "123@g.us", Name: "Old", Folder: "main",
		TriggerPattern: `^@?Andy\b`, AddedAt: Now(), RequiresTrigger: true,
	}
	require.NoError(t, s.RegisterGroup(g))

	g.Name = "Main"
	g.RequiresTrigger = false
	require.NoError(t, s.RegisterGroup(g))

	got, err := s.GroupByJID("123@g.us")
	require.NoError(t, err)
	assert.Equal(t, "Main", got.Name)
	assert.False(t, got.RequiresTrigger)

	groups, err := s.RegisteredGroups()
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestUnregisterGroup(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.RegisterGroup(&RegisteredGroup{
		JID: "123@g.us", Name: "Main", Folder: "main",
		TriggerPattern: `^@?Andy\b`, AddedAt: Now(),
	}))
	require.NoError(t, s.UnregisterGroup("123@g.us"))

	got, err := s.GroupByJID("123@g.us")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRouterStateKV(t *testing.T) {
	s := testStore(t)

	val, err := s.RouterState("last_timestamp")
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, s.SetRouterState("last_timestamp", "2026-01-01T00:00:00Z"))
	require.NoError(t, s.SetRouterState("last_timestamp", "2026-01-02T00:00:00Z"))

	val, err = s.RouterState("last_timestamp")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T00:00:00Z", val)
}

func TestSessions(t *testing.T) {
	s := testStore(t)

	id, err := s.Session("main")
	require.NoError(t, err)
	assert.Equal(t, "", id)

	require.NoError(t, s.SetSession("main", "sess-1"))
	require.NoError(t, s.SetSession("main", "sess-2"))

	id, err = s.Session("main")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", id)

	require.NoError(t, s.ClearSession("main"))
	id, err = s.Session("main")
	require.NoError(t, err)
	assert.Equal(t, "", id)
}
