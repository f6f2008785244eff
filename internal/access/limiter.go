package access

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles login attempts per client. Each client may make perMinute
// attempts in a burst, refilled evenly over a minute. A successful login
// forgets the client.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	clients   map[string]*rate.Limiter
}

func NewLimiter(perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	return &Limiter{perMinute: perMinute, clients: make(map[string]*rate.Limiter)}
}

func (l *Limiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.clients[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.clients[key] = lim
	}
	return lim
}

// Allow consumes one attempt for key at now.
func (l *Limiter) Allow(key string, now time.Time) bool {
	return l.limiter(key).AllowN(now, 1)
}

func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, key)
}
