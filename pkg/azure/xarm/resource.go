package xarm

import (
	"strings"
)

// =============================================================================
// 资源 ID
// =============================================================================

const (
	segmentSubscriptions  = "subscriptions"
	segmentResourceGroups = "resourceGroups"
	segmentProviders      = "providers"

	// minIDSegments /subscriptions/<a>/resourceGroups/<b>/providers/<c>/<d>/<e>
	// 按 "/" 切分后的最小段数（含首个空段）。
	minIDSegments = 9
)

// ResourceID 表示解析后的资源标识。
// 每次解析都产生新值，不做任何缓存。
type ResourceID struct {
	// SubscriptionID 订阅 ID。
	SubscriptionID string

	// ResourceGroup 资源组名。
	ResourceGroup string

	// Provider 资源提供方，例如 "Microsoft.Network"。
	Provider string

	// ResourceType 资源类型，例如 "virtualNetworks"。
	ResourceType string

	// Name 资源名。
	// ID 中 providers 之后还有更多段时（子资源后缀），只取第一个资源名。
	Name string
}

// String 返回规范化的资源路径。
func (r *ResourceID) String() string {
	return "/" + segmentSubscriptions + "/" + r.SubscriptionID +
		"/" + segmentResourceGroups + "/" + r.ResourceGroup +
		"/" + segmentProviders + "/" + r.Provider +
		"/" + r.ResourceType + "/" + r.Name
}

// ParseResourceID 将完整资源 ID 分解为结构化字段。
// ID 必须符合
//
//	/subscriptions/<a>/resourceGroups/<b>/providers/<c>/<d>/<e>[/...]
//
// 结构，否则返回 *InvalidResourceIDError。分隔标记段大小写不敏感
// （ARM 对 resourceGroups/resourcegroups 等写法均接受）。
// 第 9 段之后的内容（子资源后缀）被忽略。
func ParseResourceID(id string) (*ResourceID, error) {
	segments := strings.Split(id, "/")
	if len(segments) < minIDSegments || segments[0] != "" {
		return nil, &InvalidResourceIDError{ID: id}
	}

	if !strings.EqualFold(segments[1], segmentSubscriptions) ||
		!strings.EqualFold(segments[3], segmentResourceGroups) ||
		!strings.EqualFold(segments[5], segmentProviders) {
		return nil, &InvalidResourceIDError{ID: id}
	}

	for _, i := range []int{2, 4, 6, 7, 8} {
		if segments[i] == "" {
			return nil, &InvalidResourceIDError{ID: id}
		}
	}

	return &ResourceID{
		SubscriptionID: segments[2],
		ResourceGroup:  segments[4],
		Provider:       segments[6],
		ResourceType:   segments[7],
		Name:           segments[8],
	}, nil
}

// =============================================================================
// URL 构建
// =============================================================================

// URLOptions 定义 RestAPIURL 的可选路径段。
// 各字段独立可省略，按声明顺序依次拼接：
// 资源组（缺省使用配置的默认资源组）、资源名、附加段。
type URLOptions struct {
	// ResourceGroup 资源组名，为空时使用 Config.DefaultResourceGroup。
	ResourceGroup string

	// Name 资源名，为空时不追加。
	Name string

	// Others 资源名之后的附加段（子资源路径等），为空时不追加。
	// 只有同时提供 Name 时才有意义。
	Others []string
}

// BuildRestAPIURL 在不构造客户端的情况下组装资源路径。
// 与 Client.RestAPIURL 行为一致，defaultGroup 为未指定资源组时的回退值。
func BuildRestAPIURL(subscriptionID, defaultGroup, provider, resourceType string, opts *URLOptions) string {
	return buildRestAPIURL(subscriptionID, defaultGroup, provider, resourceType, opts)
}

// buildRestAPIURL 组装资源路径。纯字符串拼接，无网络和状态副作用。
func buildRestAPIURL(subscriptionID, defaultGroup, provider, resourceType string, opts *URLOptions) string {
	group := defaultGroup
	if opts != nil && opts.ResourceGroup != "" {
		group = opts.ResourceGroup
	}

	var sb strings.Builder
	sb.WriteString("/" + segmentSubscriptions + "/")
	sb.WriteString(subscriptionID)
	sb.WriteString("/" + segmentResourceGroups + "/")
	sb.WriteString(group)
	sb.WriteString("/" + segmentProviders + "/")
	sb.WriteString(provider)
	sb.WriteString("/")
	sb.WriteString(resourceType)

	if opts != nil && opts.Name != "" {
		sb.WriteString("/")
		sb.WriteString(opts.Name)
	}
	if opts != nil {
		for _, other := range opts.Others {
			if other == "" {
				continue
			}
			sb.WriteString("/")
			sb.WriteString(other)
		}
	}

	return sb.String()
}

// =============================================================================
// 资源响应（最小形状）
// =============================================================================

// Resource 表示资源的最小公共形状。
// 完整 schema 由调用方自己定义，核心不做约束。
type Resource struct {
	// ID 完整资源 ID。
	ID string `json:"id"`

	// Name 资源名。
	Name string `json:"name"`

	// Type 资源类型（provider/type 形式）。
	Type string `json:"type,omitempty"`

	// Location 资源所在区域。
	Location string `json:"location,omitempty"`

	// Tags 资源标签。
	Tags map[string]string `json:"tags,omitempty"`

	// Properties 资源属性中的公共字段。
	Properties ResourceProperties `json:"properties,omitempty"`
}

// ResourceProperties 资源属性中跨类型通用的字段。
type ResourceProperties struct {
	// ProvisioningState 置备状态（Succeeded、Failed、Creating 等）。
	ProvisioningState string `json:"provisioningState,omitempty"`
}
