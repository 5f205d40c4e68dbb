package xarm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeARM 模拟身份端点和资源端点于一体的测试服务。
// /<tenant>/oauth2/token 走 tokenHandler，其余路径走 resourceHandler。
type fakeARM struct {
	server *httptest.Server

	// tokenCalls 身份端点被调用次数。
	tokenCalls atomic.Int64
	// resourceCalls 资源端点被调用次数。
	resourceCalls atomic.Int64

	// tokenHandler 为 nil 时发放 "token-<N>"，有效期 1 小时。
	tokenHandler http.HandlerFunc
	// resourceHandler 为 nil 时返回 200 {"ok":true}。
	resourceHandler http.HandlerFunc
}

func newFakeARM(t *testing.T) *fakeARM {
	t.Helper()

	f := &fakeARM{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/oauth2/token") {
			n := f.tokenCalls.Add(1)
			if f.tokenHandler != nil {
				f.tokenHandler(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"access_token":"token-%d","expires_on":"4102444800"}`, n)
			return
		}

		f.resourceCalls.Add(1)
		if f.resourceHandler != nil {
			f.resourceHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	t.Cleanup(f.server.Close)

	return f
}

// config 返回指向 fake 服务的客户端配置。
func (f *fakeARM) config() *Config {
	return &Config{
		TenantID:             "test-tenant",
		ClientID:             "test-client",
		ClientSecret:         "test-secret",
		SubscriptionID:       "test-sub",
		DefaultResourceGroup: "test-group",
		AuthorityHost:        f.server.URL,
		ResourceManagerHost:  f.server.URL,
		AllowInsecure:        true, // httptest 是 http://
	}
}

// newTestClient 创建指向 fake 服务的客户端。
func newTestClient(t *testing.T, f *fakeARM, opts ...Option) Client {
	t.Helper()

	c, err := NewClient(f.config(), opts...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// testConfig 返回一份可通过校验的配置（不指向任何真实服务）。
func testConfig() *Config {
	return &Config{
		TenantID:             "test-tenant",
		ClientID:             "test-client",
		ClientSecret:         "test-secret",
		SubscriptionID:       "test-sub",
		DefaultResourceGroup: "test-group",
	}
}
