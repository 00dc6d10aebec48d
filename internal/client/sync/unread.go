package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// UnreadCounter holds the session-global count of conversations with
// unread messages. The count is only ever set from the authoritative
// endpoint; local arithmetic cannot account for events missed while a
// conversation was open or during reconnect gaps, so every trigger is a
// refetch.
type UnreadCounter struct {
	fetcher UnreadFetcher
	log     *slog.Logger
	notify  func()

	mu    sync.Mutex
	count int
}

// NewUnreadCounter returns a counter starting at zero. notify is called
// after every successful refresh; it may be nil.
func NewUnreadCounter(fetcher UnreadFetcher, notify func(), log *slog.Logger) *UnreadCounter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if notify == nil {
		notify = func() {}
	}
	return &UnreadCounter{fetcher: fetcher, log: log, notify: notify}
}

// Refresh replaces the count with the server's value.
func (u *UnreadCounter) Refresh(ctx context.Context) error {
	count, err := u.fetcher.UnreadConversationCount(ctx)
	if err != nil {
		return fmt.Errorf("refresh unread count: %w", err)
	}
	u.mu.Lock()
	u.count = count
	u.mu.Unlock()
	u.notify()
	return nil
}

// Count returns the last refreshed value.
func (u *UnreadCounter) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}
