package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionLimit(t *testing.T) {
	l := New(2, 5)

	assert.True(t, l.CanConnect("1.2.3.4"))
	l.AddConnection("1.2.3.4")
	assert.True(t, l.CanConnect("1.2.3.4"))
	l.AddConnection("1.2.3.4")
	assert.False(t, l.CanConnect("1.2.3.4"))

	// Another IP is unaffected.
	assert.True(t, l.CanConnect("5.6.7.8"))

	l.RemoveConnection("1.2.3.4")
	assert.True(t, l.CanConnect("1.2.3.4"))
}

func TestLoginQuota(t *testing.T) {
	l := New(10, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.AllowLogin("1.2.3.4"), "attempt %d should pass", i+1)
	}
	assert.False(t, l.AllowLogin("1.2.3.4"))
	assert.True(t, l.AllowLogin("5.6.7.8"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "9.9.9.9:1234"
	assert.Equal(t, "9.9.9.9", ClientIP(r))

	r.Header.Set("X-Real-IP", "2.2.2.2")
	assert.Equal(t, "2.2.2.2", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "1.1.1.1")
	assert.Equal(t, "1.1.1.1", ClientIP(r))
}
