package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	resp "blog-account-server/internal/transport/http/response"
)

// RateLimit 全局令牌桶限速
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		if lim.Allow() {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTooManyRequests, "too many requests"))
	}
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// IPLimiter 每 IP 一个令牌桶；长时间不活跃的桶定期清理
type IPLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idle    time.Duration
	buckets map[string]*ipBucket
	lastGC  time.Time
	now     func() time.Time
}

func NewIPLimiter(rps rate.Limit, burst int, idle time.Duration) *IPLimiter {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &IPLimiter{rps: rps, burst: burst, idle: idle, buckets: map[string]*ipBucket{}, now: time.Now}
}

func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastGC) > l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}
	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *IPLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimitPerIP 每 IP 限速（登录/注册等敏感接口）
func RateLimitPerIP(rps rate.Limit, burst int) gin.HandlerFunc {
	return RateLimitWith(NewIPLimiter(rps, burst, 0))
}

func RateLimitWith(l *IPLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTooManyRequests, "too many requests"))
	}
}
