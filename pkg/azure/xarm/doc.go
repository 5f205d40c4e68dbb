// Package xarm 提供 Azure Resource Manager REST API 客户端，
// 封装 OAuth2 Token 获取、缓存与过期重取，以及资源请求的状态码语义。
//
// # 功能概述
//
//   - Token 管理：client_credentials 方式获取 Bearer Token，
//     进程内缓存，过期或被服务端拒绝后自动重新获取
//   - 资源请求：GET/POST/PUT/DELETE，自动附加 Authorization 头
//     和 api-version 查询参数
//   - URL 构建：从 provider/type/group/name 组装资源路径
//   - 资源 ID 解析：将完整资源 ID 分解为结构化字段
//
// # 状态码语义
//
// 调用方永远不直接接触 HTTP 状态码：
//   - 2xx 且有响应体：解析为 JSON 返回
//   - 2xx 空响应体、204、404：返回 (nil, nil)，表示资源不存在，
//     与错误严格区分
//   - 401：视为 Token 失效信号，强制重新获取 Token 并重试一次；
//     重试仍 401 时返回 AuthError
//   - 其他非 2xx：返回携带状态码和原始响应体的 APIError
//
// 将 401 作为隐式过期信号处理（而非请求前主动校验过期时间），
// 使客户端对时钟偏移和服务端主动吊销都保持健壮。
//
// # 传输层重试
//
// 连接级故障（连接重置、异常 EOF）通过 avast/retry-go 做有界重试，
// 默认 3 次尝试、固定 2 秒间隔，复用同一 Token。
// 可通过 WithTransportRetry 调整。
//
// # 并发安全
//
// 单个 Client 可被多 goroutine 共享。Token 缓存由读写锁保护，
// 并发刷新经 singleflight 合并为一次请求。
//
// # 使用方式
//
//	client, err := xarm.NewClient(&xarm.Config{
//	    TenantID:             "...",
//	    ClientID:             "...",
//	    ClientSecret:         "...",
//	    SubscriptionID:       "...",
//	    DefaultResourceGroup: "my-group",
//	})
//	body, err := client.Get(ctx, client.RestAPIURL("Microsoft.Network", "virtualNetworks",
//	    &xarm.URLOptions{Name: "my-vnet"}), "2015-06-15")
package xarm
