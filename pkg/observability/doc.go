// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xmetrics: 统一观测抽象（指标、追踪），默认空实现，
//     可选接入 OpenTelemetry
//
// 设计原则：
//   - 库代码只依赖抽象接口，不感知具体观测后端
//   - 遵循 OpenTelemetry 语义规范
package observability
