package tcpserver

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter 基于 Token Bucket 的接入限流器
type RateLimiter struct {
	limiter       *rate.Limiter
	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewRateLimiter 创建接入限流器。
// perSec: 每秒允许的新连接数；burst: 突发容量。
func NewRateLimiter(perSec int, burst int) *RateLimiter {
	if perSec <= 0 {
		perSec = 100
	}
	if burst <= 0 {
		burst = perSec * 2
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Allow 检查是否允许接入（非阻塞）
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowedCount.Add(1)
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

// AllowedCount 允许的接入数（累计）
func (l *RateLimiter) AllowedCount() int64 { return l.allowedCount.Load() }

// RejectedCount 被拒绝的接入数（累计）
func (l *RateLimiter) RejectedCount() int64 { return l.rejectedCount.Load() }
