package xmetrics

import (
	"context"
	"errors"
	"testing"
)

func TestStart_NilSafety(t *testing.T) {
	t.Run("nil observer", func(t *testing.T) {
		ctx, span := Start(context.Background(), nil, SpanOptions{Operation: "op"})
		if ctx == nil {
			t.Fatal("ctx should never be nil")
		}
		if span == nil {
			t.Fatal("span should never be nil")
		}
		span.End(Result{})
	})

	t.Run("nil ctx", func(t *testing.T) {
		ctx, span := Start(nil, NoopObserver{}, SpanOptions{Operation: "op"}) //nolint:staticcheck // 覆盖 nil ctx 兜底
		if ctx == nil {
			t.Fatal("ctx should never be nil")
		}
		span.End(Result{Err: errors.New("boom")})
	})

	t.Run("observer returning nils", func(t *testing.T) {
		ctx, span := Start(context.Background(), nilObserver{}, SpanOptions{})
		if ctx == nil {
			t.Fatal("ctx should never be nil")
		}
		if span == nil {
			t.Fatal("span should never be nil")
		}
		span.End(Result{})
	})
}

// nilObserver 模拟返回 nil 的自定义实现。
type nilObserver struct{}

func (nilObserver) Start(_ context.Context, _ SpanOptions) (context.Context, Span) {
	return nil, nil
}

func TestResolveStatus(t *testing.T) {
	cases := []struct {
		name   string
		result Result
		want   Status
	}{
		{"explicit status wins", Result{Status: StatusOK, Err: errors.New("boom")}, StatusOK},
		{"error implies error status", Result{Err: errors.New("boom")}, StatusError},
		{"no error implies ok", Result{}, StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveStatus(tc.result); got != tc.want {
				t.Errorf("resolveStatus = %q, expected %q", got, tc.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if KindClient.String() != "Client" {
		t.Errorf("KindClient.String() = %q", KindClient.String())
	}
	if Kind(42).String() != "Kind(42)" {
		t.Errorf("unknown kind = %q", Kind(42).String())
	}
}
