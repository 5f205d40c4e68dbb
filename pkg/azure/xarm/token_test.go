package xarm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTokenManager(t *testing.T, f *fakeARM, skew time.Duration) *TokenManager {
	t.Helper()

	cfg := f.config()
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	m, err := NewTokenManager(TokenManagerConfig{
		Config:     cfg,
		HTTPClient: f.server.Client(),
		ExpirySkew: skew,
	})
	require.NoError(t, err)
	return m
}

func TestTokenManager_Token(t *testing.T) {
	ctx := context.Background()

	t.Run("acquire and cache", func(t *testing.T) {
		f := newFakeARM(t)
		m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

		token, err := m.Token(ctx)
		require.NoError(t, err)
		if token != "token-1" {
			t.Errorf("token = %q, expected 'token-1'", token)
		}

		// 第二次调用走缓存，不再请求身份端点
		token, err = m.Token(ctx)
		require.NoError(t, err)
		if token != "token-1" {
			t.Errorf("cached token = %q, expected 'token-1'", token)
		}
		if got := f.tokenCalls.Load(); got != 1 {
			t.Errorf("token endpoint calls = %d, expected 1", got)
		}
	})

	t.Run("expired token replaced", func(t *testing.T) {
		f := newFakeARM(t)
		f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
			// 有效期 1 秒，远小于过期安全边际，缓存后立即视为过期
			fmt.Fprintf(w, `{"access_token":"short-%d","expires_on":"%d"}`,
				f.tokenCalls.Load(), time.Now().Add(time.Second).Unix())
		}
		m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

		_, err := m.Token(ctx)
		require.NoError(t, err)

		token, err := m.Token(ctx)
		require.NoError(t, err)
		if token != "short-2" {
			t.Errorf("token = %q, expected fresh 'short-2'", token)
		}
		if got := f.tokenCalls.Load(); got != 2 {
			t.Errorf("token endpoint calls = %d, expected 2", got)
		}
	})

	t.Run("numeric expires_on accepted", func(t *testing.T) {
		f := newFakeARM(t)
		f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"access_token":"numeric","expires_on":%d}`, time.Now().Add(time.Hour).Unix())
		}
		m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

		token, err := m.Token(ctx)
		require.NoError(t, err)
		if token != "numeric" {
			t.Errorf("token = %q, expected 'numeric'", token)
		}
	})

	t.Run("expires_in fallback", func(t *testing.T) {
		f := newFakeARM(t)
		f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"access_token":"fallback","expires_in":"3600"}`)
		}
		m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

		_, err := m.Token(ctx)
		require.NoError(t, err)

		// expires_in 推导出的过期时间足够长，第二次仍走缓存
		_, err = m.Token(ctx)
		require.NoError(t, err)
		if got := f.tokenCalls.Load(); got != 1 {
			t.Errorf("token endpoint calls = %d, expected 1", got)
		}
	})

	t.Run("credentials sent as form", func(t *testing.T) {
		f := newFakeARM(t)
		var gotGrantType, gotClientID string
		f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			gotGrantType = r.PostFormValue("grant_type")
			gotClientID = r.PostFormValue("client_id")
			fmt.Fprint(w, `{"access_token":"t","expires_on":"4102444800"}`)
		}
		m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

		_, err := m.Token(ctx)
		require.NoError(t, err)

		if gotGrantType != "client_credentials" {
			t.Errorf("grant_type = %q, expected 'client_credentials'", gotGrantType)
		}
		if gotClientID != "test-client" {
			t.Errorf("client_id = %q, expected 'test-client'", gotClientID)
		}
	})
}

func TestTokenManager_AcquisitionErrors(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		status     int
		wantInMsg  string
		wantStatus int
	}{
		{"unauthorized", http.StatusUnauthorized, "Invalid tenant_id, client_id or client_secret/certificate.", 401},
		{"bad request", http.StatusBadRequest, "check tenant_id, client_id and client_secret", 400},
		{"not found", http.StatusNotFound, "404", 404},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeARM(t)
			f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}
			m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

			_, err := m.Token(ctx)

			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthError, got %v", err)
			}
			if authErr.StatusCode != tc.wantStatus {
				t.Errorf("StatusCode = %d, expected %d", authErr.StatusCode, tc.wantStatus)
			}
			require.Contains(t, err.Error(), tc.wantInMsg)
		})
	}

	t.Run("missing access_token in response", func(t *testing.T) {
		f := newFakeARM(t)
		f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"token_type":"Bearer"}`)
		}
		m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

		_, err := m.Token(ctx)
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
	})
}

func TestTokenManager_ForceRefresh(t *testing.T) {
	ctx := context.Background()

	f := newFakeARM(t)
	m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

	token, err := m.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "token-1", token)

	// 强制刷新必须作废缓存并获取新 Token，绝不复用旧值
	token, err = m.ForceRefresh(ctx)
	require.NoError(t, err)
	if token != "token-2" {
		t.Errorf("refreshed token = %q, expected 'token-2'", token)
	}
	if got := f.tokenCalls.Load(); got != 2 {
		t.Errorf("token endpoint calls = %d, expected 2", got)
	}
}

func TestTokenManager_InvalidateDiscardsInFlight(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	f := newFakeARM(t)
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenCalls.Load()
		if n == 1 {
			close(entered)
			<-release
		}
		fmt.Fprintf(w, `{"access_token":"token-%d","expires_on":"4102444800"}`, n)
	}
	m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

	var firstToken string
	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		firstToken, firstErr = m.Token(ctx)
	}()

	// 首次获取卡在身份端点时强制刷新。刷新绝不能并入作废前启动的
	// 合并获取，否则拿回的正是刚被拒绝的旧 Token
	<-entered
	token, err := m.ForceRefresh(ctx)
	require.NoError(t, err)
	if token != "token-2" {
		t.Errorf("refreshed token = %q, expected 'token-2'", token)
	}
	if got := f.tokenCalls.Load(); got != 2 {
		t.Errorf("token endpoint calls = %d, expected 2 (fresh acquisition)", got)
	}

	close(release)
	<-done
	require.NoError(t, firstErr)
	require.Equal(t, "token-1", firstToken)
}

func TestTokenManager_ConcurrentAcquire(t *testing.T) {
	ctx := context.Background()

	f := newFakeARM(t)
	f.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		// 放大竞争窗口
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"access_token":"shared","expires_on":"4102444800"}`)
	}
	m := newTestTokenManager(t, f, DefaultTokenExpirySkew)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	tokens := make([]string, workers)

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = m.Token(ctx)
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		if tokens[i] != "shared" {
			t.Errorf("worker %d token = %q, expected 'shared'", i, tokens[i])
		}
	}

	// singleflight 合并：并发调用只触发一次获取
	if got := f.tokenCalls.Load(); got != 1 {
		t.Errorf("token endpoint calls = %d, expected 1 (singleflight)", got)
	}
}

func TestAccessToken_Valid(t *testing.T) {
	if (*accessToken)(nil).valid(0) {
		t.Error("nil token should be invalid")
	}
	if (&accessToken{}).valid(0) {
		t.Error("empty token should be invalid")
	}

	fresh := &accessToken{token: "t", expiresOn: time.Now().Add(time.Hour)}
	if !fresh.valid(30 * time.Second) {
		t.Error("fresh token should be valid")
	}

	// 剩余有效期小于安全边际时视为过期
	nearExpiry := &accessToken{token: "t", expiresOn: time.Now().Add(10 * time.Second)}
	if nearExpiry.valid(30 * time.Second) {
		t.Error("token inside skew window should be invalid")
	}
}
