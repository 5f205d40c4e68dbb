package xarm

// 观测用的组件/操作/属性名。
const (
	// MetricsComponent xarm 组件名。
	MetricsComponent = "xarm"

	// MetricsOpGetToken Token 获取操作。
	MetricsOpGetToken = "get_token"

	// MetricsOpRequest 资源 HTTP 请求操作。
	MetricsOpRequest = "http_request"

	// MetricsAttrHTTPMethod HTTP 方法属性。
	MetricsAttrHTTPMethod = "http.method"

	// MetricsAttrHTTPPath HTTP 路径属性（不含查询参数，避免高基数）。
	MetricsAttrHTTPPath = "http.path"
)
