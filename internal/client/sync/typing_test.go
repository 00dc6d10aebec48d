package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(rt *fakeInvoker) *TypingTracker {
	tr := NewTypingTracker(rt, nil, nil)
	tr.debounce = 30 * time.Millisecond
	tr.expiry = 50 * time.Millisecond
	return tr
}

func TestTypingKeystrokeDebounce(t *testing.T) {
	rt := &fakeInvoker{}
	tr := newTestTracker(rt)

	// A burst of keystrokes emits a single "typing" signal.
	tr.Keystroke("c1")
	tr.Keystroke("c1")
	tr.Keystroke("c1")
	assert.Equal(t, []bool{true}, rt.typingSignals())

	// After the pause the stop signal follows.
	require.Eventually(t, func() bool {
		sig := rt.typingSignals()
		return len(sig) == 2 && !sig[1]
	}, time.Second, 5*time.Millisecond)

	// The next keystroke starts a new cycle.
	tr.Keystroke("c1")
	assert.Equal(t, []bool{true, false, true}, rt.typingSignals())
}

func TestTypingInputClearedStopsImmediately(t *testing.T) {
	rt := &fakeInvoker{}
	tr := newTestTracker(rt)

	tr.Keystroke("c1")
	tr.InputCleared()
	assert.Equal(t, []bool{true, false}, rt.typingSignals())

	// Idempotent when nothing is being signaled.
	tr.InputCleared()
	assert.Equal(t, []bool{true, false}, rt.typingSignals())
}

func TestTypingPeerExpiry(t *testing.T) {
	rt := &fakeInvoker{}
	tr := newTestTracker(rt)

	tr.SetStatus("buyer-1", true)
	assert.True(t, tr.IsTyping("buyer-1"))

	// Without a refresh the flag decays on its own, so a lost stop event
	// cannot leave a stuck indicator.
	require.Eventually(t, func() bool {
		return !tr.IsTyping("buyer-1")
	}, time.Second, 5*time.Millisecond)
}

func TestTypingExplicitStopClears(t *testing.T) {
	rt := &fakeInvoker{}
	tr := newTestTracker(rt)

	tr.SetStatus("buyer-1", true)
	tr.SetStatus("buyer-2", true)
	assert.Len(t, tr.Peers(), 2)

	tr.SetStatus("buyer-1", false)
	assert.False(t, tr.IsTyping("buyer-1"))
	assert.True(t, tr.IsTyping("buyer-2"))
}

func TestTypingResetDropsEverything(t *testing.T) {
	rt := &fakeInvoker{}
	tr := newTestTracker(rt)

	tr.Keystroke("c1")
	tr.SetStatus("buyer-1", true)

	tr.Reset()
	assert.Empty(t, tr.Peers())
	// Reset while signaling emits the stop.
	assert.Equal(t, []bool{true, false}, rt.typingSignals())
}
