package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// limiterInfo is a client's token bucket and the last time it was used.
type limiterInfo struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters holds one limiter per client IP.
type ipLimiters struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*limiterInfo
}

func (l *ipLimiters) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.clients[ip]
	if !ok {
		info = &limiterInfo{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = info
	}
	info.lastSeen = now
	return info.limiter
}

// evict drops limiters idle for longer than expiration.
func (l *ipLimiters) evict(now time.Time, expiration time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for ip, info := range l.clients {
		if now.Sub(info.lastSeen) > expiration {
			delete(l.clients, ip)
			evicted++
		}
	}
	return evicted
}

// RateLimitByIP allows each client IP rps requests per second with a burst
// of rps. Rejected requests get 429 and a Retry-After header. A non-positive
// rps disables the limit.
func RateLimitByIP(rps int, cleanupInterval time.Duration, expiration time.Duration) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := &ipLimiters{
		limit:   rate.Limit(rps),
		burst:   rps,
		clients: make(map[string]*limiterInfo),
	}
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(rps))))

	if cleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for now := range ticker.C {
				if n := limiters.evict(now, expiration); n > 0 {
					logger.Get().Debug("evicted idle rate limiters", zap.Int("count", n))
				}
			}
		}()
	}

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP(), time.Now()).Allow() {
			logger.FromGin(c).Info("rate limit exceeded", zap.String("client_ip", c.ClientIP()))
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
