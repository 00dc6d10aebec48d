// Package ratelimit caps per-IP websocket connections and login
// attempts for the chat hub.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type Limiter struct {
	mu            sync.RWMutex
	connections   map[string]int         // IP -> open websocket count
	loginAttempts map[string][]time.Time // IP -> login timestamps within the window
	maxConns      int
	maxLogins     int
}

// New builds a limiter allowing maxConns simultaneous sockets and
// maxLogins login attempts per minute for each client IP.
func New(maxConns, maxLogins int) *Limiter {
	l := &Limiter{
		connections:   make(map[string]int),
		loginAttempts: make(map[string][]time.Time),
		maxConns:      maxConns,
		maxLogins:     maxLogins,
	}

	go func() {
		for {
			time.Sleep(time.Minute)
			l.cleanup()
		}
	}()

	return l
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	for ip, attempts := range l.loginAttempts {
		var recent []time.Time
		for _, t := range attempts {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
		if len(recent) == 0 {
			delete(l.loginAttempts, ip)
		} else {
			l.loginAttempts[ip] = recent
		}
	}
}

func (l *Limiter) CanConnect(ip string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connections[ip] < l.maxConns
}

func (l *Limiter) AddConnection(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connections[ip]++
}

func (l *Limiter) RemoveConnection(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connections[ip]--
	if l.connections[ip] <= 0 {
		delete(l.connections, ip)
	}
}

// AllowLogin records a login attempt and reports whether the IP is
// still under its per-minute quota.
func (l *Limiter) AllowLogin(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-time.Minute)
	var recent []time.Time
	for _, t := range l.loginAttempts[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.maxLogins {
		l.loginAttempts[ip] = recent
		return false
	}

	l.loginAttempts[ip] = append(recent, time.Now())
	return true
}

func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
