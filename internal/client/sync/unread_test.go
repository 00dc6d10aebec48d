package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreadCounterRefresh(t *testing.T) {
	backend := newFakeBackend()
	backend.unread = 3

	notified := 0
	u := NewUnreadCounter(backend, func() { notified++ }, nil)
	assert.Equal(t, 0, u.Count())

	require.NoError(t, u.Refresh(context.Background()))
	assert.Equal(t, 3, u.Count())
	assert.Equal(t, 1, notified)

	// The counter always mirrors the server, including downward moves
	// that local arithmetic could not derive.
	backend.unread = 1
	require.NoError(t, u.Refresh(context.Background()))
	assert.Equal(t, 1, u.Count())
}

func TestUnreadCounterKeepsValueOnError(t *testing.T) {
	backend := newFakeBackend()
	backend.unread = 2

	u := NewUnreadCounter(backend, nil, nil)
	require.NoError(t, u.Refresh(context.Background()))

	backend.unreadErr = assert.AnError
	assert.Error(t, u.Refresh(context.Background()))
	assert.Equal(t, 2, u.Count())
}
