package middleware

import (
	"net/http"
	"sync"

	"github.com/KOMKZ/go-yogan-eureka/logger"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 限流分桶方式
const (
	KeyFuncGlobal = "global" // 所有请求共用一个令牌桶
	KeyFuncIP     = "ip"     // 按客户端 IP 分桶
)

// maxRateLimitKeys 分桶数量上限，超过后整体重建
const maxRateLimitKeys = 10000

// RateLimitConfig 令牌桶限流配置（sidecar.rate_limit）
type RateLimitConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	KeyFunc   string   `mapstructure:"key_func"`
	Rate      float64  `mapstructure:"rate"`     // 每秒令牌数
	Capacity  int      `mapstructure:"capacity"` // 桶容量（突发）
	SkipPaths []string `mapstructure:"skip_paths"`
}

// DefaultRateLimitConfig 默认不启用
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:   false,
		KeyFunc:   KeyFuncGlobal,
		Rate:      100,
		Capacity:  200,
		SkipPaths: []string{"/health"},
	}
}

// Validate implements validation.Validatable.
func (c RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.KeyFunc, validation.Required, validation.In(KeyFuncGlobal, KeyFuncIP)),
		validation.Field(&c.Rate, validation.Required, validation.Min(0.0)),
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
	)
}

// RateLimit 令牌桶限流，超出时返回 429。未启用时直接放行
func RateLimit(cfg RateLimitConfig, log logger.CtxLogger) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if log == nil {
		log = logger.GetLogger("sidecar")
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	var (
		mu       sync.Mutex
		limiters = map[string]*rate.Limiter{}
	)
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			if len(limiters) >= maxRateLimitKeys {
				limiters = map[string]*rate.Limiter{}
			}
			l = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Capacity)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		key := KeyFuncGlobal
		if cfg.KeyFunc == KeyFuncIP {
			key = c.ClientIP()
		}
		if !limiterFor(key).Allow() {
			log.DebugCtx(c.Request.Context(), "rate limited",
				zap.String("key", key), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "too many requests",
			})
			return
		}
		c.Next()
	}
}
