package xarm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/azrm/pkg/observability/xmetrics"
)

const (
	// maxResponseSize 最大响应体大小（10MB）。
	// 防止异常响应导致内存溢出。
	maxResponseSize = 10 * 1024 * 1024

	// headerClientRequestID ARM 请求关联 ID 头。
	headerClientRequestID = "x-ms-client-request-id"
)

// =============================================================================
// Executor 认证请求执行器
// =============================================================================

// Executor 执行带认证的资源请求，负责状态码语义、
// 401 强制刷新重试和传输层有界重试。
type Executor struct {
	hc       *http.Client
	baseURL  string
	tokens   *TokenManager
	logger   *slog.Logger
	observer xmetrics.Observer

	retryAttempts int
	retryDelay    time.Duration
	allowInsecure bool

	// breaker 可选熔断器，nil 表示不启用。
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
}

// ExecutorConfig Executor 配置。
type ExecutorConfig struct {
	HTTPClient    *http.Client
	BaseURL       string
	Tokens        *TokenManager
	Logger        *slog.Logger
	Observer      xmetrics.Observer
	RetryAttempts int
	RetryDelay    time.Duration
	AllowInsecure bool
	Breaker       *gobreaker.CircuitBreaker[json.RawMessage]
}

// NewExecutor 创建 Executor。Tokens 为必填依赖。
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("xarm: nil token manager")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = xmetrics.NoopObserver{}
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultTransportRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultTransportRetryDelay
	}

	return &Executor{
		hc:            cfg.HTTPClient,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:        cfg.Tokens,
		logger:        cfg.Logger,
		observer:      cfg.Observer,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		allowInsecure: cfg.AllowInsecure,
		breaker:       cfg.Breaker,
	}, nil
}

// Request 执行一次带认证的资源请求。
//
// 返回值约定：
//   - (body, nil)：成功且有响应体
//   - (nil, nil)：资源不存在（2xx 空响应体、204 或 404）
//   - (nil, err)：AuthError、APIError 或 TransportError
func (e *Executor) Request(ctx context.Context, method, path, apiVersion string, body any) (raw json.RawMessage, err error) {
	// 请求体在进入任何重试路径之前物化为字节：
	// 401 重取和传输层重试都会重发同一请求，
	// io.Reader 只能消费一次，重发时会变成空请求体
	payload, err := buildRequestBody(body)
	if err != nil {
		return nil, err
	}

	fullURL, err := e.buildURL(path, apiVersion)
	if err != nil {
		return nil, err
	}

	ctx, span := xmetrics.Start(ctx, e.observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: MetricsOpRequest,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			{Key: MetricsAttrHTTPMethod, Value: method},
			{Key: MetricsAttrHTTPPath, Value: sanitizeURL(fullURL)},
		},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	if e.breaker != nil {
		raw, err = e.breaker.Execute(func() (json.RawMessage, error) {
			return e.requestWithReauth(ctx, method, fullURL, payload)
		})
		return raw, err
	}

	return e.requestWithReauth(ctx, method, fullURL, payload)
}

// requestWithReauth 执行请求并处理 401 语义：
// 资源端点返回 401 时，无视本地过期时间强制重新获取 Token，
// 用新 Token 恰好重试一次；重试仍 401 则返回与获取失败相同的 AuthError。
func (e *Executor) requestWithReauth(ctx context.Context, method, fullURL string, payload []byte) (json.RawMessage, error) {
	token, err := e.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	status, respBody, err := e.sendWithRetry(ctx, method, fullURL, token, payload)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		e.logger.Debug("401 from resource endpoint, forcing token refresh",
			slog.String("url", sanitizeURL(fullURL)),
		)
		token, err = e.tokens.ForceRefresh(ctx)
		if err != nil {
			return nil, err
		}

		status, respBody, err = e.sendWithRetry(ctx, method, fullURL, token, payload)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, newAuthError(http.StatusUnauthorized)
		}
	}

	return interpretResponse(status, respBody)
}

// sendWithRetry 发送单次请求，连接级故障做有界重试。
// 只有传输错误进入重试循环；任何 HTTP 状态都视为"已送达"，
// 状态语义由上层处理。重试复用同一 Token。
func (e *Executor) sendWithRetry(ctx context.Context, method, fullURL, token string, payload []byte) (int, []byte, error) {
	type result struct {
		status int
		body   []byte
	}

	attempts := 0
	res, err := retry.NewWithData[result](
		retry.Context(ctx),
		retry.Attempts(uint(e.retryAttempts)),
		retry.Delay(e.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransportError),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Warn("transient transport failure, retrying",
				slog.Uint64("attempt", uint64(n)+1),
				slog.String("url", sanitizeURL(fullURL)),
				slog.String("error", err.Error()),
			)
		}),
	).Do(func() (result, error) {
		attempts++
		status, respBody, err := e.send(ctx, method, fullURL, token, payload)
		if err != nil {
			return result{}, err
		}
		return result{status: status, body: respBody}, nil
	})
	if err != nil {
		if isTransportError(err) {
			return 0, nil, &TransportError{Attempts: attempts, Err: err}
		}
		return 0, nil, err
	}

	return res.status, res.body, nil
}

// send 执行一次 HTTP 往返。每次发送从 payload 重建请求体，
// 重试时携带与首次完全相同的内容。
func (e *Executor) send(ctx context.Context, method, fullURL, token string, payload []byte) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("xarm: create request failed: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerClientRequestID, uuid.NewString())
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("xarm: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // Close 错误无法传播

	respBody, err := readLimitedBody(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, respBody, nil
}

// buildURL 拼接完整请求 URL 并附加 api-version 查询参数。
// 拒绝向 http:// 端点携带 Bearer Token（除非 AllowInsecure）。
func (e *Executor) buildURL(path, apiVersion string) (string, error) {
	full := path
	if !isAbsoluteURL(path) {
		full = e.baseURL + path
	}

	if !e.allowInsecure && strings.HasPrefix(strings.ToLower(full), "http://") {
		return "", fmt.Errorf("%w: refusing to send Bearer token over plain http", ErrInsecureHost)
	}

	if apiVersion != "" {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + "api-version=" + url.QueryEscape(apiVersion)
	}

	return full, nil
}

// interpretResponse 将状态码与响应体翻译为调用方可见的结果。
func interpretResponse(status int, body []byte) (json.RawMessage, error) {
	switch {
	case status == http.StatusNoContent, status == http.StatusNotFound:
		return nil, nil
	case status >= 200 && status < 300:
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("xarm: invalid json in response: %s", truncateBody(body))
		}
		return json.RawMessage(body), nil
	default:
		return nil, &APIError{StatusCode: status, Body: string(body)}
	}
}

// isTransportError 判断错误是否为连接级故障。
// HTTP 状态码永远不进入此判定（有状态码说明请求已送达）。
// 证书校验失败、非法 URL 等永久失败不算传输故障，重试不可能恢复。
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// http.Client.Do 把一切错误包装为 *url.Error，而 *url.Error
	// 自身实现 net.Error，直接匹配会把永久失败也归为可重试，
	// 必须剥开按内层错误分类
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	// 连接建立和读写阶段的故障（连接拒绝、重置等）
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// 其余 net.Error 只有超时类（如 TLS 握手超时）值得重试
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// buildRequestBody 将请求体物化为字节。
// 支持 nil、string、[]byte、io.Reader，其余类型 JSON 序列化。
// io.Reader 在此一次性读完，之后的每次发送都从字节重建。
func buildRequestBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("xarm: read request body failed: %w", err)
		}
		return data, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("xarm: marshal request body failed: %w", err)
		}
		return data, nil
	}
}

// isAbsoluteURL 判断 path 是否为绝对 URL（大小写不敏感）。
func isAbsoluteURL(path string) bool {
	if len(path) >= 8 && strings.EqualFold(path[:8], "https://") {
		return true
	}
	return len(path) >= 7 && strings.EqualFold(path[:7], "http://")
}

// sanitizeURL 移除查询参数，避免日志与观测指标高基数。
func sanitizeURL(rawURL string) string {
	if path, _, found := strings.Cut(rawURL, "?"); found {
		return path
	}
	return rawURL
}

// truncateBody 截断响应体用于错误消息。
func truncateBody(body []byte) string {
	const maxLen = 256
	if len(body) <= maxLen {
		return string(body)
	}
	return string(body[:maxLen]) + "..."
}
