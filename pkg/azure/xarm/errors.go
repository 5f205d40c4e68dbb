package xarm

import (
	"errors"
	"fmt"
)

// =============================================================================
// 配置错误
// =============================================================================

var (
	// ErrNilConfig 表示传入的配置为 nil。
	ErrNilConfig = errors.New("xarm: nil config")

	// ErrMissingTenantID 表示租户 ID 未配置。
	ErrMissingTenantID = errors.New("xarm: missing tenant_id")

	// ErrMissingClientID 表示客户端 ID 未配置。
	ErrMissingClientID = errors.New("xarm: missing client_id")

	// ErrMissingClientSecret 表示客户端密钥未配置。
	ErrMissingClientSecret = errors.New("xarm: missing client_secret")

	// ErrMissingSubscriptionID 表示订阅 ID 未配置。
	ErrMissingSubscriptionID = errors.New("xarm: missing subscription_id")

	// ErrMissingResourceGroup 表示默认资源组未配置。
	ErrMissingResourceGroup = errors.New("xarm: missing default resource group")

	// ErrUnknownEnvironment 表示云环境名称无法识别。
	ErrUnknownEnvironment = errors.New("xarm: unknown environment")

	// ErrInvalidHost 表示端点格式无效。
	// 端点必须包含协议和主机名，例如 "https://management.azure.com"。
	ErrInvalidHost = errors.New("xarm: invalid host: must include scheme and host")

	// ErrInsecureHost 表示端点使用了非 HTTPS 协议。
	// 客户端传输 Bearer Token 和凭据，明文 HTTP 会泄露敏感信息。
	// 开发/测试环境可设置 Config.AllowInsecure = true。
	ErrInsecureHost = errors.New("xarm: host must use https:// (set AllowInsecure=true for development)")

	// ErrInvalidTimeout 表示超时配置无效。
	ErrInvalidTimeout = errors.New("xarm: invalid timeout")
)

// =============================================================================
// 客户端状态错误
// =============================================================================

var (
	// ErrClientClosed 表示客户端已关闭。
	ErrClientClosed = errors.New("xarm: client closed")

	// ErrResponseTooLarge 表示响应体超过最大限制。
	// 超过限制的响应会被拒绝而非截断。
	ErrResponseTooLarge = errors.New("xarm: response body exceeds maximum size limit")
)

// =============================================================================
// 认证错误消息
// =============================================================================

const (
	// authMsgInvalidCredentials 401 时的提示。
	authMsgInvalidCredentials = "Invalid tenant_id, client_id or client_secret/certificate."

	// authMsgBadRequest 400 时的提示。
	authMsgBadRequest = "Bad request: please check tenant_id, client_id and client_secret for typos."
)

// =============================================================================
// InvalidResourceIDError 资源 ID 解析错误
// =============================================================================

// InvalidResourceIDError 表示资源 ID 不符合
// /subscriptions/<a>/resourceGroups/<b>/providers/<c>/<d>/<e> 结构。
type InvalidResourceIDError struct {
	// ID 引发错误的原始 ID。
	ID string
}

func (e *InvalidResourceIDError) Error() string {
	return fmt.Sprintf("xarm: invalid resource id: %q", e.ID)
}

// Retryable 解析错误不可重试。
func (e *InvalidResourceIDError) Retryable() bool {
	return false
}

// =============================================================================
// AuthError 认证错误
// =============================================================================

// AuthError 表示 Token 获取被身份端点拒绝，
// 或资源请求在强制刷新 Token 后仍返回 401。
type AuthError struct {
	// StatusCode 身份端点或资源端点返回的 HTTP 状态码。
	StatusCode int

	// Message 错误说明。
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("xarm: authentication failed: status=%d: %s", e.StatusCode, e.Message)
}

// Retryable 认证错误不可重试，需要调用方修正凭据。
func (e *AuthError) Retryable() bool {
	return false
}

// newAuthError 根据身份端点返回的状态码构建 AuthError。
func newAuthError(statusCode int) *AuthError {
	switch statusCode {
	case 401:
		return &AuthError{StatusCode: statusCode, Message: authMsgInvalidCredentials}
	case 400:
		return &AuthError{StatusCode: statusCode, Message: authMsgBadRequest}
	default:
		return &AuthError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("failed to acquire token, http status %d", statusCode),
		}
	}
}

// =============================================================================
// APIError 资源端点错误
// =============================================================================

// APIError 表示资源端点返回了非 2xx、非 401、非 404 状态。
type APIError struct {
	// StatusCode HTTP 状态码。
	StatusCode int

	// Body 原始响应体文本。
	Body string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("xarm: api error: status=%d, body=%s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("xarm: api error: status=%d", e.StatusCode)
}

// Retryable 5xx 可重试，4xx 不可重试。
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// =============================================================================
// TransportError 传输层错误
// =============================================================================

// TransportError 表示连接级故障耗尽重试后仍未成功。
type TransportError struct {
	// Attempts 实际尝试次数。
	Attempts int

	// Err 最后一次的底层错误。
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("xarm: transport failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable 传输层错误本身可重试（本客户端已在内部重试到上限）。
func (e *TransportError) Retryable() bool {
	return true
}

// =============================================================================
// 错误分类辅助
// =============================================================================

// RetryableError 可重试错误接口。
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable 检查错误是否可重试。
// 库内部只对传输层故障和单次 401 做自动恢复，
// 此函数供调用方为其余错误决定自己的重试策略。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}

	return false
}

// IsAbsent 报告 GetByID/Get 的返回值是否表示"资源不存在"。
// 约定：body 为 nil 且 err 为 nil 时表示 absent。
func IsAbsent(body []byte, err error) bool {
	return err == nil && body == nil
}
