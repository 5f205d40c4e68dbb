package xarm

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// =============================================================================
// 默认值
// =============================================================================

const (
	// DefaultTimeout 默认单次请求超时时间。
	DefaultTimeout = 30 * time.Second

	// DefaultTokenAPIVersion Token 获取接口的 api-version。
	DefaultTokenAPIVersion = "2015-06-15"

	// DefaultAPIVersion 资源请求未显式指定时使用的 api-version。
	DefaultAPIVersion = "2015-06-15"

	// DefaultTokenExpirySkew Token 过期判定的安全边际。
	// 剩余有效期小于此值的缓存 Token 视为已过期，避免因客户端与
	// 服务端时钟偏移导致带着刚过期的 Token 发出请求。
	DefaultTokenExpirySkew = 30 * time.Second

	// DefaultTransportRetryAttempts 传输层故障的总尝试次数（含首次）。
	DefaultTransportRetryAttempts = 3

	// DefaultTransportRetryDelay 传输层重试的固定间隔。
	DefaultTransportRetryDelay = 2 * time.Second
)

// =============================================================================
// 环境端点
// =============================================================================

const (
	// EnvironmentAzureCloud Azure 公有云。
	EnvironmentAzureCloud = "AzureCloud"

	// EnvironmentAzureChinaCloud Azure 中国区。
	EnvironmentAzureChinaCloud = "AzureChinaCloud"

	// EnvironmentAzureUSGovernment Azure 美国政务云。
	EnvironmentAzureUSGovernment = "AzureUSGovernment"
)

// environmentEndpoints 各环境的认证与资源管理端点。
var environmentEndpoints = map[string]struct {
	authority       string
	resourceManager string
}{
	EnvironmentAzureCloud: {
		authority:       "https://login.microsoftonline.com",
		resourceManager: "https://management.azure.com",
	},
	EnvironmentAzureChinaCloud: {
		authority:       "https://login.chinacloudapi.cn",
		resourceManager: "https://management.chinacloudapi.cn",
	},
	EnvironmentAzureUSGovernment: {
		authority:       "https://login.microsoftonline.us",
		resourceManager: "https://management.usgovcloudapi.net",
	},
}

// =============================================================================
// 环境变量 Key
// =============================================================================

const (
	// EnvKeyClientSecret 客户端密钥环境变量，避免密钥落入配置文件。
	EnvKeyClientSecret = "AZRM_CLIENT_SECRET"
)

// =============================================================================
// Config 配置结构
// =============================================================================

// Config 定义 xarm 客户端配置。
// TenantID、ClientID、ClientSecret、SubscriptionID、DefaultResourceGroup
// 为必填项，构造后不应再修改。
type Config struct {
	// TenantID Azure AD 租户 ID（必填）。
	TenantID string

	// ClientID 应用客户端 ID（必填）。
	ClientID string

	// ClientSecret 客户端密钥（必填）。
	// 为空时尝试从环境变量 AZRM_CLIENT_SECRET 获取。
	ClientSecret string

	// SubscriptionID 订阅 ID（必填）。
	SubscriptionID string

	// DefaultResourceGroup 默认资源组（必填）。
	// RestAPIURL 未指定资源组时使用此值。
	DefaultResourceGroup string

	// Environment 云环境名称。
	// 支持 AzureCloud（默认）、AzureChinaCloud、AzureUSGovernment。
	// AuthorityHost 与 ResourceManagerHost 的默认值由此决定。
	Environment string

	// AuthorityHost 认证端点，例如 https://login.microsoftonline.com。
	// 为空时根据 Environment 选择。
	AuthorityHost string

	// ResourceManagerHost 资源管理端点，例如 https://management.azure.com。
	// 为空时根据 Environment 选择。
	ResourceManagerHost string

	// TokenAPIVersion Token 获取接口的 api-version。
	// 默认 DefaultTokenAPIVersion。
	TokenAPIVersion string

	// APIVersion 资源请求未显式指定版本时的默认 api-version。
	// 默认 DefaultAPIVersion。
	APIVersion string

	// Timeout 单次 HTTP 请求超时时间。
	// 默认 30 秒。
	Timeout time.Duration

	// TokenExpirySkew Token 过期判定的安全边际。
	// 默认 30 秒。
	TokenExpirySkew time.Duration

	// AllowInsecure 允许使用 http:// 端点。
	// Bearer Token 经明文 HTTP 传输会泄露凭据，仅用于开发/测试环境。
	AllowInsecure bool

	// TLS TLS 配置。
	// 为 nil 时使用默认配置（启用证书验证）。
	TLS *TLSConfig
}

// TLSConfig TLS 配置。
type TLSConfig struct {
	// InsecureSkipVerify 是否跳过证书验证。
	// 仅用于开发/测试环境。
	InsecureSkipVerify bool

	// RootCAFile CA 证书文件路径（私有云/代理场景）。
	RootCAFile string
}

// Validate 验证配置有效性。
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}

	if strings.TrimSpace(c.TenantID) == "" {
		return ErrMissingTenantID
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return ErrMissingClientID
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return ErrMissingClientSecret
	}
	if strings.TrimSpace(c.SubscriptionID) == "" {
		return ErrMissingSubscriptionID
	}
	if strings.TrimSpace(c.DefaultResourceGroup) == "" {
		return ErrMissingResourceGroup
	}

	if c.Environment != "" {
		if _, ok := environmentEndpoints[c.Environment]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEnvironment, c.Environment)
		}
	}

	if err := c.validateHost(c.AuthorityHost); err != nil {
		return err
	}
	if err := c.validateHost(c.ResourceManagerHost); err != nil {
		return err
	}

	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// validateHost 校验端点格式和协议安全性。
// 无 scheme 的地址在拼接 API 路径后无法正确请求，在配置阶段 fail-fast。
func (c *Config) validateHost(host string) error {
	if host == "" {
		return nil // 为空时 ApplyDefaults 会按环境填充
	}

	u, err := url.Parse(host)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	// Bearer Token 和客户端凭据不允许走明文 HTTP，
	// 开发/测试环境可通过 AllowInsecure 放行。
	if !c.AllowInsecure && u.Scheme != "https" {
		return ErrInsecureHost
	}

	return nil
}

// ApplyDefaults 应用默认值。
func (c *Config) ApplyDefaults() {
	if c.ClientSecret == "" {
		c.ClientSecret = os.Getenv(EnvKeyClientSecret)
	}

	if c.Environment == "" {
		c.Environment = EnvironmentAzureCloud
	}
	if ep, ok := environmentEndpoints[c.Environment]; ok {
		if c.AuthorityHost == "" {
			c.AuthorityHost = ep.authority
		}
		if c.ResourceManagerHost == "" {
			c.ResourceManagerHost = ep.resourceManager
		}
	}

	c.AuthorityHost = strings.TrimSuffix(c.AuthorityHost, "/")
	c.ResourceManagerHost = strings.TrimSuffix(c.ResourceManagerHost, "/")

	if c.TokenAPIVersion == "" {
		c.TokenAPIVersion = DefaultTokenAPIVersion
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TokenExpirySkew == 0 {
		c.TokenExpirySkew = DefaultTokenExpirySkew
	}
}

// Clone 创建配置的深拷贝，避免构造后外部修改影响客户端。
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	if c.TLS != nil {
		tlsCopy := *c.TLS
		clone.TLS = &tlsCopy
	}
	return &clone
}

// BuildTLSConfig 构建 TLS 配置。
func (c *TLSConfig) BuildTLSConfig() (*tls.Config, error) {
	if c == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}

	//nolint:gosec // G402: InsecureSkipVerify 由用户配置控制，仅用于开发/测试
	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if c.RootCAFile != "" {
		caCert, err := os.ReadFile(c.RootCAFile)
		if err != nil {
			return nil, fmt.Errorf("xarm: failed to read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("xarm: failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}
