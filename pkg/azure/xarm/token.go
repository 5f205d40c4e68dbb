package xarm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omeyang/azrm/pkg/observability/xmetrics"
)

// =============================================================================
// accessToken
// =============================================================================

// accessToken 缓存的 Bearer Token。
// Token 由 TokenManager 独占持有，一旦过期或被服务端拒绝即丢弃，
// 绝不复用。
type accessToken struct {
	token     string
	expiresOn time.Time
}

// valid 判断 Token 在扣除安全边际后是否仍然有效。
func (t *accessToken) valid(skew time.Duration) bool {
	if t == nil || t.token == "" {
		return false
	}
	return time.Now().Add(skew).Before(t.expiresOn)
}

// tokenResponse 身份端点的响应。
// expires_on 部分环境返回 JSON 数字、部分返回字符串形式的 Unix 时间戳，
// 两种都要接受。
type tokenResponse struct {
	AccessToken string        `json:"access_token"`
	ExpiresOn   unixTimestamp `json:"expires_on"`
	ExpiresIn   unixTimestamp `json:"expires_in"`
}

// unixTimestamp 兼容数字和字符串两种形式的秒值。
type unixTimestamp int64

func (u *unixTimestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// 个别端点返回带小数的秒值
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("xarm: invalid expires value %q: %w", s, err)
		}
		v = int64(f)
	}
	*u = unixTimestamp(v)
	return nil
}

// =============================================================================
// TokenManager
// =============================================================================

// TokenManager 负责 Token 的获取、缓存与强制刷新。
//
// 状态机：NoToken → Valid → Expired → Valid|Failed。
// 缓存由读写锁保护，获取经 singleflight 合并，
// 并发调用方共享同一次在途获取的结果。
type TokenManager struct {
	cfg      *Config
	hc       *http.Client
	logger   *slog.Logger
	observer xmetrics.Observer
	skew     time.Duration

	mu    sync.RWMutex
	token *accessToken

	sf singleflight.Group
}

// TokenManagerConfig TokenManager 配置。
type TokenManagerConfig struct {
	Config     *Config
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   xmetrics.Observer
	ExpirySkew time.Duration
}

// NewTokenManager 创建 TokenManager。
func NewTokenManager(cfg TokenManagerConfig) (*TokenManager, error) {
	if cfg.Config == nil {
		return nil, ErrNilConfig
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = xmetrics.NoopObserver{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Config.Timeout}
	}
	if cfg.ExpirySkew <= 0 {
		cfg.ExpirySkew = cfg.Config.TokenExpirySkew
	}
	if cfg.ExpirySkew <= 0 {
		cfg.ExpirySkew = DefaultTokenExpirySkew
	}

	return &TokenManager{
		cfg:      cfg.Config,
		hc:       cfg.HTTPClient,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		skew:     cfg.ExpirySkew,
	}, nil
}

// Token 返回一个当前有效的 Bearer Token。
// 缓存有效时直接返回；缓存缺失或已过期时向身份端点重新获取，
// 并发调用合并为一次请求。
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	cached := m.token
	m.mu.RUnlock()

	if cached.valid(m.skew) {
		return cached.token, nil
	}

	return m.acquireShared(ctx)
}

// ForceRefresh 丢弃缓存的 Token 并立即重新获取。
// 资源端点返回 401 时由执行器调用：无论本地过期时间如何，
// 被服务端拒绝的 Token 一律作废。
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.Invalidate()
	return m.acquireShared(ctx)
}

// Invalidate 丢弃缓存的 Token，并废弃可能在途的合并获取。
// 失效之前启动的 flight 可能已通过二次检查、正要返回旧 Token，
// 强制刷新绝不能加入这样的 flight，否则会拿回刚被服务端拒绝的值。
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
	m.sf.Forget(tokenFlightKey)
}

// tokenFlightKey 合并获取的 singleflight key。
const tokenFlightKey = "token"

// acquireShared 经 singleflight 获取新 Token。
// 进入合并组后先二次检查缓存：排队等待期间其他调用可能已完成刷新。
func (m *TokenManager) acquireShared(ctx context.Context) (string, error) {
	v, err, _ := m.sf.Do(tokenFlightKey, func() (any, error) {
		m.mu.RLock()
		cached := m.token
		m.mu.RUnlock()
		if cached.valid(m.skew) {
			return cached.token, nil
		}

		tok, err := m.acquire(ctx)
		if err != nil {
			return "", err
		}

		m.mu.Lock()
		m.token = tok
		m.mu.Unlock()

		return tok.token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// acquire 向身份端点请求新 Token。
func (m *TokenManager) acquire(ctx context.Context) (tok *accessToken, err error) {
	ctx, span := xmetrics.Start(ctx, m.observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: MetricsOpGetToken,
		Kind:      xmetrics.KindClient,
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	endpoint := m.cfg.AuthorityHost + "/" + m.cfg.TenantID + "/oauth2/token" +
		"?api-version=" + url.QueryEscape(m.cfg.TokenAPIVersion)

	// 凭据经 POST body 传递，避免出现在 URL 中（RFC 6749 §2.3.1）
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"resource":      {m.cfg.ResourceManagerHost + "/"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("xarm: create token request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xarm: token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // Close 错误无法传播

	body, err := readLimitedBody(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err = newAuthError(resp.StatusCode)
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("xarm: unmarshal token response failed: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "token response contains no access_token"}
	}

	expiresOn := time.Unix(int64(tr.ExpiresOn), 0)
	if tr.ExpiresOn == 0 && tr.ExpiresIn > 0 {
		expiresOn = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	m.logger.Debug("obtained access token",
		slog.String("tenant_id", m.cfg.TenantID),
		slog.Time("expires_on", expiresOn),
	)

	return &accessToken{token: tr.AccessToken, expiresOn: expiresOn}, nil
}

// readLimitedBody 带大小上限地读取响应体。
// 多读取 1 字节用于检测截断。
func readLimitedBody(r io.Reader) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: maxResponseSize + 1}
	body, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("xarm: read response body failed: %w", err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, maxResponseSize)
	}
	return body, nil
}
