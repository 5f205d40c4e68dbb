package xarm

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/azrm/pkg/observability/xmetrics"
)

// =============================================================================
// Options 结构
// =============================================================================

// Options 定义客户端的可选配置。
type Options struct {
	// HTTPClient 自定义 HTTP 客户端。
	// 如果不设置，将根据配置自动创建。
	// 注入自定义 Client 后，Config.TLS 和 Config.Timeout 不再生效。
	HTTPClient *http.Client

	// Logger 日志记录器。
	// 如果不设置，使用 slog.Default()。
	Logger *slog.Logger

	// Observer 可观测性接口。
	Observer xmetrics.Observer

	// TransportRetryAttempts 传输层故障的总尝试次数（含首次）。
	// 默认 3。
	TransportRetryAttempts int

	// TransportRetryDelay 传输层重试的固定间隔。
	// 默认 2 秒。
	TransportRetryDelay time.Duration

	// TokenExpirySkew Token 过期判定安全边际，覆盖 Config 中的设置。
	TokenExpirySkew time.Duration

	// EnableBreaker 是否对资源请求启用熔断器。
	// 默认不启用。
	EnableBreaker bool

	// BreakerSettings 熔断器配置，仅 EnableBreaker 时生效。
	// Name 为空时使用 "xarm"。
	BreakerSettings gobreaker.Settings
}

// Option 定义配置客户端的函数类型。
type Option func(*Options)

// defaultOptions 返回默认的 Options。
func defaultOptions() *Options {
	return &Options{
		Logger:                 slog.Default(),
		Observer:               xmetrics.NoopObserver{},
		TransportRetryAttempts: DefaultTransportRetryAttempts,
		TransportRetryDelay:    DefaultTransportRetryDelay,
	}
}

// applyOptions 应用所有 Option。
func applyOptions(opts []Option) *Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// =============================================================================
// Option 函数
// =============================================================================

// WithHTTPClient 设置自定义 HTTP 客户端。
// 可用于配置自定义传输层、代理，或在测试中注入 stub transport。
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithLogger 设置日志记录器。
// 传入 nil 会被忽略，保留默认值。
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithObserver 设置可观测性接口。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *Options) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithTransportRetry 设置传输层重试参数。
// attempts 为总尝试次数（含首次），delay 为固定重试间隔。
// 非正值保留默认配置。
func WithTransportRetry(attempts int, delay time.Duration) Option {
	return func(o *Options) {
		if attempts > 0 {
			o.TransportRetryAttempts = attempts
		}
		if delay > 0 {
			o.TransportRetryDelay = delay
		}
	}
}

// WithTokenExpirySkew 设置 Token 过期判定安全边际。
func WithTokenExpirySkew(skew time.Duration) Option {
	return func(o *Options) {
		if skew > 0 {
			o.TokenExpirySkew = skew
		}
	}
}

// WithBreaker 对资源请求启用熔断器。
func WithBreaker(settings gobreaker.Settings) Option {
	return func(o *Options) {
		o.EnableBreaker = true
		o.BreakerSettings = settings
	}
}

// buildBreaker 根据选项构建熔断器实例，未启用时返回 nil。
func (o *Options) buildBreaker() *gobreaker.CircuitBreaker[json.RawMessage] {
	if !o.EnableBreaker {
		return nil
	}
	settings := o.BreakerSettings
	if settings.Name == "" {
		settings.Name = MetricsComponent
	}
	return gobreaker.NewCircuitBreaker[json.RawMessage](settings)
}
