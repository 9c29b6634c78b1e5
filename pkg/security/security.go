package security

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// OriginWhitelist 可热更新的 CORS 白名单
type OriginWhitelist struct {
	mu      sync.RWMutex
	origins map[string]bool
}

func NewOriginWhitelist(origins []string) *OriginWhitelist {
	w := &OriginWhitelist{}
	w.Set(origins)
	return w
}

func (w *OriginWhitelist) Set(origins []string) {
	set := make(map[string]bool, len(origins))
	for _, o := range origins {
		set[o] = true
	}
	w.mu.Lock()
	w.origins = set
	w.mu.Unlock()
}

func (w *OriginWhitelist) Allowed(origin string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.origins["*"] || w.origins[origin]
}

// CORS 中间件 仅允许白名单中的Origin，支持Credentials
func CORS(whitelist *OriginWhitelist) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && whitelist.Allowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Secure 中间件
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按 key 限流（默认客户端 IP），自动清理过期条目
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	expiry   time.Duration
	keyFunc  func(c *gin.Context) string
}

func NewRateLimiter(maxRequests int, window time.Duration, keyFunc func(c *gin.Context) string) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	expiry := window * 3
	if expiry < time.Minute {
		expiry = time.Minute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		expiry:   expiry,
		keyFunc:  keyFunc,
	}
}

// Allow 判断 key 当前是否还有配额
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.limiter.Allow()
}

// Cleanup 删除长时间未访问的条目，直到 stop 关闭
func (l *RateLimiter) Cleanup(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for k, v := range l.visitors {
				if time.Since(v.lastSeen) > l.expiry {
					delete(l.visitors, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(l.keyFunc(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"error":   "too_many_requests",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}
