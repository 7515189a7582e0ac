// 包 middleware：入口级中间件
package middleware

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"shelter-api/internal/metrics"
)

// 文档注释：令牌桶限流（每秒）
// 背景：流量峰值时限制入口速率，避免路由提供方配额被突发请求耗尽。
// 约束：每个整秒重置令牌，不做排队；超限直接返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

func NewTokenBucket(qps int) *TokenBucket {
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Limit 用给定令牌桶包装处理器
func Limit(tb *TokenBucket, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.allow() {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("retry-after", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Wrap 按 RATE_LIMIT_ENABLED / RATE_LIMIT_QPS（默认 200）决定是否限流
func Wrap(next http.Handler) http.Handler {
	if os.Getenv("RATE_LIMIT_ENABLED") != "true" {
		return next
	}
	qps := 200
	if n, err := strconv.Atoi(os.Getenv("RATE_LIMIT_QPS")); err == nil && n > 0 {
		qps = n
	}
	return Limit(NewTokenBucket(qps), next)
}
