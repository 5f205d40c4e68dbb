package main

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/omeyang/azrm/pkg/azure/xarm"
)

// fileConfig 配置文件中 azure 段的结构。
// 密钥建议通过环境变量 AZRM_CLIENT_SECRET 提供，而非写入文件。
type fileConfig struct {
	TenantID       string        `koanf:"tenant_id"`
	ClientID       string        `koanf:"client_id"`
	ClientSecret   string        `koanf:"client_secret"`
	SubscriptionID string        `koanf:"subscription_id"`
	ResourceGroup  string        `koanf:"resource_group"`
	Environment    string        `koanf:"environment"`
	APIVersion     string        `koanf:"api_version"`
	Timeout        time.Duration `koanf:"timeout"`
	AllowInsecure  bool          `koanf:"allow_insecure"`

	AuthorityHost       string `koanf:"authority_host"`
	ResourceManagerHost string `koanf:"resource_manager_host"`
}

// loadConfig 读取配置文件并转换为客户端配置。
// path 为空时返回空配置，必填项交由客户端构造时校验。
func loadConfig(path string) (*xarm.Config, error) {
	fc := &fileConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &usageError{msg: fmt.Sprintf("读取配置文件失败: %v", err)}
		}
		if err := parseConfig(data, fc); err != nil {
			return nil, err
		}
	}

	return &xarm.Config{
		TenantID:             fc.TenantID,
		ClientID:             fc.ClientID,
		ClientSecret:         fc.ClientSecret,
		SubscriptionID:       fc.SubscriptionID,
		DefaultResourceGroup: fc.ResourceGroup,
		Environment:          fc.Environment,
		AuthorityHost:        fc.AuthorityHost,
		ResourceManagerHost:  fc.ResourceManagerHost,
		APIVersion:           fc.APIVersion,
		Timeout:              fc.Timeout,
		AllowInsecure:        fc.AllowInsecure,
	}, nil
}

// parseConfig 解析 YAML 配置内容中的 azure 段。
func parseConfig(data []byte, fc *fileConfig) error {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return &usageError{msg: fmt.Sprintf("解析配置文件失败: %v", err)}
	}

	if err := k.Unmarshal("azure", fc); err != nil {
		return &usageError{msg: fmt.Sprintf("配置结构无效: %v", err)}
	}
	return nil
}
