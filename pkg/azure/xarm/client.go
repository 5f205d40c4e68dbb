package xarm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// =============================================================================
// Client 接口
// =============================================================================

// Client 定义 Azure Resource Manager 客户端接口。
//
// 所有资源方法共享同一返回值约定：(nil, nil) 表示资源不存在
// （absent），与错误严格区分；调用方永远看不到原始 HTTP 状态码。
type Client interface {
	// Get 发送 GET 请求。
	// path 为资源路径（RestAPIURL 的产物或完整资源 ID），
	// apiVersion 为空时使用 Config.APIVersion。
	Get(ctx context.Context, path, apiVersion string) (json.RawMessage, error)

	// GetByID 按完整资源 ID 获取资源。
	GetByID(ctx context.Context, resourceID, apiVersion string) (json.RawMessage, error)

	// GetResourceByID 按完整资源 ID 获取资源并解析公共字段。
	// 资源不存在时返回 (nil, nil)。
	GetResourceByID(ctx context.Context, resourceID, apiVersion string) (*Resource, error)

	// ExistsByID 判断资源是否存在。
	ExistsByID(ctx context.Context, resourceID, apiVersion string) (bool, error)

	// Post 发送 POST 请求。body 为 nil 时无请求体。
	Post(ctx context.Context, path, apiVersion string, body any) (json.RawMessage, error)

	// Put 发送 PUT 请求。
	Put(ctx context.Context, path, apiVersion string, body any) (json.RawMessage, error)

	// Delete 发送 DELETE 请求。
	// 资源本就不存在（404）时同样返回 nil 错误。
	Delete(ctx context.Context, path, apiVersion string) error

	// RestAPIURL 组装资源路径。
	// 未指定资源组时使用配置的默认资源组。纯字符串拼接。
	RestAPIURL(provider, resourceType string, opts *URLOptions) string

	// GetToken 返回一个当前有效的 Bearer Token。
	// 主要用于调用方需要自行构造请求的场景。
	GetToken(ctx context.Context) (string, error)

	// InvalidateToken 主动丢弃缓存的 Token。
	// 用于已知 Token 被服务端撤销的场景。
	InvalidateToken()

	// Close 关闭客户端。关闭后所有方法返回 ErrClientClosed。
	Close() error
}

// =============================================================================
// client 实现
// =============================================================================

// client 实现 Client 接口。
type client struct {
	config   *Config
	executor *Executor
	tokens   *TokenManager
	hc       *http.Client
	logger   *slog.Logger
	closed   atomic.Bool
}

// NewClient 创建 Azure Resource Manager 客户端。
//
// 示例：
//
//	client, err := xarm.NewClient(&xarm.Config{
//	    TenantID:             "...",
//	    ClientID:             "...",
//	    ClientSecret:         "...",
//	    SubscriptionID:       "...",
//	    DefaultResourceGroup: "my-group",
//	})
func NewClient(cfg *Config, opts ...Option) (Client, error) {
	cfg, err := prepareConfig(cfg)
	if err != nil {
		return nil, err
	}

	options := applyOptions(opts)

	httpClient, err := createHTTPClient(cfg, options)
	if err != nil {
		return nil, err
	}

	tokens, err := NewTokenManager(TokenManagerConfig{
		Config:     cfg,
		HTTPClient: httpClient,
		Logger:     options.Logger,
		Observer:   options.Observer,
		ExpirySkew: options.TokenExpirySkew,
	})
	if err != nil {
		return nil, err
	}

	executor, err := NewExecutor(ExecutorConfig{
		HTTPClient:    httpClient,
		BaseURL:       cfg.ResourceManagerHost,
		Tokens:        tokens,
		Logger:        options.Logger,
		Observer:      options.Observer,
		RetryAttempts: options.TransportRetryAttempts,
		RetryDelay:    options.TransportRetryDelay,
		AllowInsecure: cfg.AllowInsecure,
		Breaker:       options.buildBreaker(),
	})
	if err != nil {
		return nil, err
	}

	return &client{
		config:   cfg,
		executor: executor,
		tokens:   tokens,
		hc:       httpClient,
		logger:   options.Logger,
	}, nil
}

// prepareConfig 验证并准备配置。
func prepareConfig(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	// 克隆配置，避免外部修改
	cfg = cfg.Clone()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("xarm: invalid config: %w", err)
	}

	return cfg, nil
}

// createHTTPClient 创建底层 HTTP 客户端。
func createHTTPClient(cfg *Config, options *Options) (*http.Client, error) {
	if options.HTTPClient != nil {
		return options.HTTPClient, nil
	}

	tlsConfig, err := cfg.TLS.BuildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("xarm: build tls config failed: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}

// Get 发送 GET 请求。
func (c *client) Get(ctx context.Context, path, apiVersion string) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.executor.Request(ctx, http.MethodGet, path, c.resolveAPIVersion(apiVersion), nil)
}

// GetByID 按完整资源 ID 获取资源。
// ID 先经 ParseResourceID 校验，畸形 ID 立即返回 InvalidResourceIDError，
// 不发起网络请求。
func (c *client) GetByID(ctx context.Context, resourceID, apiVersion string) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if _, err := ParseResourceID(resourceID); err != nil {
		return nil, err
	}
	return c.executor.Request(ctx, http.MethodGet, resourceID, c.resolveAPIVersion(apiVersion), nil)
}

// GetResourceByID 按完整资源 ID 获取资源并解析公共字段。
func (c *client) GetResourceByID(ctx context.Context, resourceID, apiVersion string) (*Resource, error) {
	raw, err := c.GetByID(ctx, resourceID, apiVersion)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var res Resource
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("xarm: unmarshal resource failed: %w", err)
	}
	return &res, nil
}

// ExistsByID 判断资源是否存在。
func (c *client) ExistsByID(ctx context.Context, resourceID, apiVersion string) (bool, error) {
	raw, err := c.GetByID(ctx, resourceID, apiVersion)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// Post 发送 POST 请求。
func (c *client) Post(ctx context.Context, path, apiVersion string, body any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.executor.Request(ctx, http.MethodPost, path, c.resolveAPIVersion(apiVersion), body)
}

// Put 发送 PUT 请求。
func (c *client) Put(ctx context.Context, path, apiVersion string, body any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.executor.Request(ctx, http.MethodPut, path, c.resolveAPIVersion(apiVersion), body)
}

// Delete 发送 DELETE 请求。
func (c *client) Delete(ctx context.Context, path, apiVersion string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	_, err := c.executor.Request(ctx, http.MethodDelete, path, c.resolveAPIVersion(apiVersion), nil)
	return err
}

// RestAPIURL 组装资源路径。
func (c *client) RestAPIURL(provider, resourceType string, opts *URLOptions) string {
	return buildRestAPIURL(c.config.SubscriptionID, c.config.DefaultResourceGroup, provider, resourceType, opts)
}

// GetToken 返回一个当前有效的 Bearer Token。
func (c *client) GetToken(ctx context.Context) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}
	return c.tokens.Token(ctx)
}

// InvalidateToken 主动丢弃缓存的 Token。
func (c *client) InvalidateToken() {
	c.tokens.Invalidate()
}

// Close 关闭客户端，丢弃缓存的 Token 并释放空闲连接。
func (c *client) Close() error {
	if c.closed.Swap(true) {
		return nil // 已关闭
	}
	c.tokens.Invalidate()
	c.hc.CloseIdleConnections()
	c.logger.Debug("xarm client closed")
	return nil
}

// resolveAPIVersion 解析 api-version，空值回退到配置默认。
func (c *client) resolveAPIVersion(apiVersion string) string {
	if apiVersion != "" {
		return apiVersion
	}
	return c.config.APIVersion
}

// 确保 client 实现 Client 接口
var _ Client = (*client)(nil)

// 确保错误类型实现 RetryableError
var (
	_ RetryableError = (*AuthError)(nil)
	_ RetryableError = (*APIError)(nil)
	_ RetryableError = (*TransportError)(nil)
	_ RetryableError = (*InvalidResourceIDError)(nil)
)
