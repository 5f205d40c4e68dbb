// Package xmetrics 提供统一的观测抽象（指标 + 追踪）。
//
// 核心概念是 Observer：调用方在操作开始时 Start 一个 Span，
// 操作结束时 End 并附带结果。库代码只依赖 Observer 接口，
// 不感知具体的观测后端。
//
// # 实现
//
//   - NoopObserver：空实现，未配置观测时的默认值
//   - NewOTelObserver：基于 OpenTelemetry 的实现，
//     每个 Span 产生一条 trace span、一次计数和一次耗时记录
//
// # 使用方式
//
//	ctx, span := xmetrics.Start(ctx, observer, xmetrics.SpanOptions{
//	    Component: "xarm",
//	    Operation: "get_token",
//	    Kind:      xmetrics.KindClient,
//	})
//	defer func() { span.End(xmetrics.Result{Err: err}) }()
//
// 包级 Start 函数对 nil ctx、nil observer 和自定义实现返回的
// nil 值做了兜底，调用方无需防御。
package xmetrics
