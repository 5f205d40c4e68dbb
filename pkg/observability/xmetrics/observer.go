package xmetrics

import (
	"context"
	"strconv"
)

// Kind 表示观测跨度的类型。
type Kind int

const (
	// KindInternal 表示进程内部操作。
	KindInternal Kind = iota
	// KindClient 表示对外部服务的客户端调用。
	KindClient
	// KindServer 表示服务端处理。
	KindServer
)

// String 返回 Kind 的可读表示。
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindClient:
		return "Client"
	case KindServer:
		return "Server"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Status 表示观测结果状态。
type Status string

const (
	// StatusOK 表示成功。
	StatusOK Status = "ok"
	// StatusError 表示失败。
	StatusError Status = "error"
)

// Attr 表示一个观测属性。
type Attr struct {
	Key   string
	Value any
}

// SpanOptions 定义 Span 的创建参数。
type SpanOptions struct {
	// Component 组件名（如 "xarm"）。
	Component string
	// Operation 操作名（如 "get_token"）。
	Operation string
	// Kind 跨度类型。
	Kind Kind
	// Attrs 附加属性。
	Attrs []Attr
}

// Result 表示 Span 结束时的结果。
type Result struct {
	// Status 操作状态；为空时根据 Err 推导。
	Status Status
	// Err 操作错误。
	Err error
	// Attrs 附加属性。
	Attrs []Attr
}

// Span 表示一次观测跨度。
type Span interface {
	// End 结束观测并记录结果。实现应保证幂等。
	End(result Result)
}

// Observer 定义统一观测接口。
type Observer interface {
	// Start 开始一次观测跨度。
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 是 Observer 的空实现。
type NoopObserver struct{}

// Start 原样返回 ctx（nil 时替换为 Background）和空跨度。
func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 是空跨度。
type NoopSpan struct{}

// End 不做任何处理。
func (NoopSpan) End(_ Result) {}

// Start 使用 observer 开始观测。
// 保证返回非 nil 的 context 和 Span：nil ctx 替换为 Background，
// nil observer 等价于 NoopObserver，自定义实现返回的 nil 值会被兜底。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}
