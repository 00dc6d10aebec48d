package sync

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultTypingDebounce = 1200 * time.Millisecond
	defaultTypingExpiry   = 3 * time.Second
)

// TypingTracker throttles outgoing typing signals and tracks incoming ones.
// Typing is a decaying signal: an incoming flag clears itself after a short
// expiry if no refresh arrives, so a lost "stopped typing" event can never
// leave a stuck indicator.
type TypingTracker struct {
	rt     Invoker
	log    *slog.Logger
	notify func()

	debounce time.Duration
	expiry   time.Duration

	mu        sync.Mutex
	convID    string
	signaling bool
	stopTimer *time.Timer
	peers     map[string]bool
	expiries  map[string]*time.Timer
}

// NewTypingTracker returns a tracker emitting through rt. notify is called
// whenever the set of typing peers changes; it may be nil.
func NewTypingTracker(rt Invoker, notify func(), log *slog.Logger) *TypingTracker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if notify == nil {
		notify = func() {}
	}
	return &TypingTracker{
		rt:       rt,
		log:      log,
		notify:   notify,
		debounce: defaultTypingDebounce,
		expiry:   defaultTypingExpiry,
		peers:    make(map[string]bool),
		expiries: make(map[string]*time.Timer),
	}
}

// Keystroke signals that the user typed into the given conversation. The
// first keystroke emits "typing"; a pause of the debounce interval emits
// "stopped typing". Repeated keystrokes only re-arm the timer.
func (t *TypingTracker) Keystroke(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.signaling && t.convID == conversationID {
		t.stopTimer.Reset(t.debounce)
		return
	}
	if t.signaling {
		t.emitStopLocked()
	}
	t.convID = conversationID
	t.signaling = true
	if err := t.rt.UserTyping(conversationID, true); err != nil {
		t.log.Debug("typing signal skipped", "error", err)
	}
	t.stopTimer = time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.signaling && t.convID == conversationID {
			t.emitStopLocked()
		}
	})
}

// InputCleared emits "stopped typing" immediately, e.g. after sending or
// wiping the compose field.
func (t *TypingTracker) InputCleared() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.signaling {
		t.emitStopLocked()
	}
}

func (t *TypingTracker) emitStopLocked() {
	if t.stopTimer != nil {
		t.stopTimer.Stop()
	}
	if err := t.rt.UserTyping(t.convID, false); err != nil {
		t.log.Debug("typing signal skipped", "error", err)
	}
	t.signaling = false
}

// SetStatus records a pushed typing flag for a peer. A true flag arms a
// local expiry that force-clears it absent a refresh.
func (t *TypingTracker) SetStatus(userID string, typing bool) {
	t.mu.Lock()
	if timer, ok := t.expiries[userID]; ok {
		timer.Stop()
		delete(t.expiries, userID)
	}
	if typing {
		t.peers[userID] = true
		t.expiries[userID] = time.AfterFunc(t.expiry, func() {
			t.mu.Lock()
			delete(t.peers, userID)
			delete(t.expiries, userID)
			t.mu.Unlock()
			t.notify()
		})
	} else {
		delete(t.peers, userID)
	}
	t.mu.Unlock()
	t.notify()
}

// IsTyping reports whether a peer is currently typing.
func (t *TypingTracker) IsTyping(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peers[userID]
}

// Peers returns the ids of every peer currently typing.
func (t *TypingTracker) Peers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.peers))
	for id := range t.peers {
		out = append(out, id)
	}
	return out
}

// Reset drops all peer state and stops outgoing signaling, used when the
// active conversation changes.
func (t *TypingTracker) Reset() {
	t.mu.Lock()
	if t.signaling {
		t.emitStopLocked()
	}
	for id, timer := range t.expiries {
		timer.Stop()
		delete(t.expiries, id)
	}
	t.peers = make(map[string]bool)
	t.mu.Unlock()
	t.notify()
}
